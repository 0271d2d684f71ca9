// Package state holds the latest committed results of the aggregation
// operations. Every operation owns one slot; committing replaces that slot
// wholesale and never touches another.
package state

import (
	"slices"
	"sync"

	"github.com/TobiSchelling/blogagg/internal/content"
)

// Slot names an independently committed part of a Snapshot.
type Slot string

const (
	SlotApp      Slot = "app"
	SlotArticles Slot = "articles"
	SlotTags     Slot = "tags"
	SlotCurrent  Slot = "currentArticle"
	SlotPrevious Slot = "previousArticle"
	SlotNext     Slot = "nextArticle"
	SlotAuthors  Slot = "authors"
	SlotArchives Slot = "archives"
)

// popularTagLimit caps the PopularTags view.
const popularTagLimit = 10

// Snapshot is an immutable view of all slots. The With* methods return a
// new Snapshot and leave the receiver untouched.
type Snapshot struct {
	App      *content.App            `json:"app"`
	Articles []content.Article       `json:"articles"`
	Total    int                     `json:"total"`
	Tags     []content.Tag           `json:"tags"`
	Current  *content.Article        `json:"currentArticle"`
	Previous *content.Article        `json:"previousArticle"`
	Next     *content.Article        `json:"nextArticle"`
	Authors  []content.Author        `json:"authors"`
	Archives []content.ArchiveBucket `json:"archives"`
}

// New returns the initial empty snapshot.
func New() Snapshot {
	return Snapshot{
		Articles: []content.Article{},
		Tags:     []content.Tag{},
		Authors:  []content.Author{},
		Archives: []content.ArchiveBucket{},
	}
}

func (s Snapshot) WithApp(app *content.App) Snapshot {
	s.App = app
	return s
}

// WithArticles replaces the article page and its total together.
func (s Snapshot) WithArticles(articles []content.Article, total int) Snapshot {
	s.Articles = slices.Clone(articles)
	s.Total = total
	return s
}

func (s Snapshot) WithTags(tags []content.Tag) Snapshot {
	s.Tags = slices.Clone(tags)
	return s
}

func (s Snapshot) WithCurrent(a *content.Article) Snapshot {
	s.Current = a
	return s
}

func (s Snapshot) WithPrevious(a *content.Article) Snapshot {
	s.Previous = a
	return s
}

func (s Snapshot) WithNext(a *content.Article) Snapshot {
	s.Next = a
	return s
}

func (s Snapshot) WithAuthors(authors []content.Author) Snapshot {
	s.Authors = slices.Clone(authors)
	return s
}

func (s Snapshot) WithArchives(archives []content.ArchiveBucket) Snapshot {
	s.Archives = slices.Clone(archives)
	return s
}

// PublicAuthors returns authors with at least one article.
func (s Snapshot) PublicAuthors() []content.Author {
	out := []content.Author{}
	for _, a := range s.Authors {
		if a.Total > 0 {
			out = append(out, a)
		}
	}
	return out
}

// PopularTags returns up to ten tags with at least one article, most used
// first. Tags with equal totals keep their taxonomy order.
func (s Snapshot) PopularTags() []content.Tag {
	out := []content.Tag{}
	for _, t := range s.Tags {
		if t.Total > 0 {
			out = append(out, t)
		}
	}
	slices.SortStableFunc(out, func(a, b content.Tag) int {
		return b.Total - a.Total
	})
	if len(out) > popularTagLimit {
		out = out[:popularTagLimit]
	}
	return out
}

// Store is the long-lived holder of the current Snapshot. It is safe for
// concurrent use; each commit is applied atomically.
type Store struct {
	mu   sync.RWMutex
	snap Snapshot
	subs []chan Slot
}

// NewStore creates a store holding the empty snapshot.
func NewStore() *Store {
	return &Store{snap: New()}
}

// Snapshot returns the latest committed snapshot.
func (st *Store) Snapshot() Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.snap
}

// Commit applies fn to the current snapshot and stores the result as one
// atomic step, then notifies subscribers that slot changed.
func (st *Store) Commit(slot Slot, fn func(Snapshot) Snapshot) {
	st.mu.Lock()
	st.snap = fn(st.snap)
	subs := st.subs
	st.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- slot:
		default:
		}
	}
}

// Subscribe returns a channel that receives the slot of every commit.
// Notifications are dropped while the buffer is full.
func (st *Store) Subscribe(buffer int) <-chan Slot {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Slot, buffer)
	st.mu.Lock()
	st.subs = append(st.subs, ch)
	st.mu.Unlock()
	return ch
}
