package seed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/mmcdole/gofeed"

	"github.com/TobiSchelling/blogagg/internal/content"
	"github.com/TobiSchelling/blogagg/internal/fetch"
	"github.com/TobiSchelling/blogagg/internal/localstore"
)

const defaultMaxPerFeed = 50

// Result holds the results of a seeding run.
type Result struct {
	TotalFound  int
	NewArticles int
	Duplicates  int
	Skipped     int
	Sources     map[string]int
}

// Feed is a single feed to import. Location is a URL or a file path.
type Feed struct {
	Location string
	Name     string
}

// Seeder imports RSS/Atom feeds into a local content store.
type Seeder struct {
	store      *localstore.Store
	appUID     string
	parser     *gofeed.Parser
	pages      *fetch.PageFetcher
	maxPerFeed int
	now        func() time.Time
}

// Option customizes a Seeder.
type Option func(*Seeder)

// WithPageFetcher replaces each item body with the readable text of the
// linked page when extraction succeeds.
func WithPageFetcher(p *fetch.PageFetcher) Option {
	return func(s *Seeder) { s.pages = p }
}

// WithMaxPerFeed caps how many items are imported from one feed.
func WithMaxPerFeed(n int) Option {
	return func(s *Seeder) { s.maxPerFeed = n }
}

// NewSeeder creates a seeder writing into store. The first feed seeded into
// an empty store also names the app appUID.
func NewSeeder(store *localstore.Store, appUID string, opts ...Option) *Seeder {
	s := &Seeder{
		store:      store,
		appUID:     appUID,
		parser:     gofeed.NewParser(),
		maxPerFeed: defaultMaxPerFeed,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SeedAll imports every feed. A feed that fails to parse is logged and
// skipped.
func (s *Seeder) SeedAll(ctx context.Context, feeds []Feed) *Result {
	r := &Result{Sources: make(map[string]int)}
	for _, f := range feeds {
		if err := s.seed(ctx, f, r); err != nil {
			log.Printf("Failed to seed feed %s: %v", f.Location, err)
		}
	}
	log.Printf("Seeding complete: %d found, %d new, %d duplicates", r.TotalFound, r.NewArticles, r.Duplicates)
	return r
}

// SeedFeed imports a single feed.
func (s *Seeder) SeedFeed(ctx context.Context, f Feed) (*Result, error) {
	r := &Result{Sources: make(map[string]int)}
	if err := s.seed(ctx, f, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Seeder) seed(ctx context.Context, f Feed, r *Result) error {
	feed, err := s.parse(ctx, f.Location)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", f.Location, err)
	}

	name := f.Name
	if name == "" {
		name = strings.TrimSpace(feed.Title)
	}
	if err := s.ensureApp(ctx, feed, name); err != nil {
		return err
	}

	for i, item := range feed.Items {
		if i >= s.maxPerFeed {
			break
		}
		r.TotalFound++

		out, err := s.insertItem(ctx, item)
		if err != nil {
			return err
		}
		switch out {
		case outcomeSkipped:
			r.Skipped++
		case outcomeDuplicate:
			r.Duplicates++
		default:
			r.NewArticles++
			r.Sources[name]++
		}
	}
	log.Printf("Seeded %d entries from %s", r.Sources[name], name)
	return nil
}

func (s *Seeder) parse(ctx context.Context, location string) (*gofeed.Feed, error) {
	if u, err := url.Parse(location); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return s.parser.ParseURLWithContext(location, ctx)
	}
	f, err := os.Open(location)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return s.parser.Parse(f)
}

func (s *Seeder) ensureApp(ctx context.Context, feed *gofeed.Feed, name string) error {
	_, err := s.store.GetApp(ctx, s.appUID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, localstore.ErrNotFound) {
		return err
	}
	app := content.App{UID: s.appUID, Name: name, Description: strings.TrimSpace(feed.Description)}
	if feed.Image != nil && feed.Image.URL != "" {
		app.Cover = &content.Image{Src: feed.Image.URL}
	}
	return s.store.UpsertApp(app)
}

type outcome int

const (
	outcomeInserted outcome = iota
	outcomeDuplicate
	// outcomeSkipped is an item without a usable title or slug.
	outcomeSkipped
)

func (s *Seeder) insertItem(ctx context.Context, item *gofeed.Item) (outcome, error) {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return outcomeSkipped, nil
	}

	source := itemSource(item)
	if source != "" {
		exists, err := s.store.HasSource(source)
		if err != nil || exists {
			return outcomeDuplicate, err
		}
	}

	name, taken, err := s.articleSlug(item)
	if err != nil {
		return 0, err
	}
	if name == "" {
		return outcomeSkipped, nil
	}
	// Without a source the slug is the only identity an item has.
	if taken && source == "" {
		return outcomeDuplicate, nil
	}
	if taken {
		if name, err = s.freeSlug(name); err != nil {
			return 0, err
		}
	}

	a := localstore.NewArticle{
		Slug:      name,
		Title:     title,
		Body:      itemBody(item),
		CreatedAt: s.now(),
		Source:    source,
	}
	if item.PublishedParsed != nil {
		a.CreatedAt = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		a.CreatedAt = *item.UpdatedParsed
	}

	if s.pages != nil && item.Link != "" {
		text, err := s.pages.Text(ctx, item.Link)
		if err != nil {
			log.Printf("Failed to fetch %s: %v", item.Link, err)
		} else if text != "" {
			a.Body = text
		}
	}

	if author := itemAuthor(item); author != "" {
		id, err := s.store.InsertAuthor(author, Slugify(author), "")
		if err != nil {
			return 0, err
		}
		a.AuthorID = id
	}

	seen := make(map[string]bool)
	for _, c := range item.Categories {
		c = strings.TrimSpace(c)
		tagSlug := Slugify(c)
		if tagSlug == "" || seen[tagSlug] {
			continue
		}
		seen[tagSlug] = true
		id, err := s.store.InsertTag(c, tagSlug)
		if err != nil {
			return 0, err
		}
		a.TagIDs = append(a.TagIDs, id)
	}

	id, err := s.store.InsertArticle(a)
	if err != nil {
		return 0, err
	}
	if id == "" {
		return outcomeDuplicate, nil
	}
	return outcomeInserted, nil
}

func itemBody(item *gofeed.Item) string {
	if item.Content != "" {
		return item.Content
	}
	return item.Description
}

func itemAuthor(item *gofeed.Item) string {
	if item.Author != nil && strings.TrimSpace(item.Author.Name) != "" {
		return strings.TrimSpace(item.Author.Name)
	}
	for _, p := range item.Authors {
		if p != nil && strings.TrimSpace(p.Name) != "" {
			return strings.TrimSpace(p.Name)
		}
	}
	return ""
}

// itemSource is the identity of an item across imports: its GUID, or its
// link when the feed has none.
func itemSource(item *gofeed.Item) string {
	if guid := strings.TrimSpace(item.GUID); guid != "" {
		return guid
	}
	return strings.TrimSpace(item.Link)
}

// genericSegments are link segments shared by many entries of one site.
var genericSegments = map[string]bool{"": true, ".": true, "index": true, "default": true}

// linkSlug derives a slug from the last path segment of link plus its query.
// Generic segments without a query yield "".
func linkSlug(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	base := path.Base(strings.TrimSuffix(u.Path, "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	if u.RawQuery == "" {
		if genericSegments[strings.ToLower(base)] {
			return ""
		}
		return Slugify(base)
	}
	return Slugify(base + " " + u.RawQuery)
}

// articleSlug returns the first free candidate out of the link slug and the
// title slug. When both are taken it returns the preferred one with
// taken set.
func (s *Seeder) articleSlug(item *gofeed.Item) (name string, taken bool, err error) {
	var candidates []string
	for _, c := range []string{linkSlug(item.Link), Slugify(item.Title)} {
		if c != "" {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return "", false, nil
	}
	for _, c := range candidates {
		exists, err := s.store.HasArticle(c)
		if err != nil {
			return "", false, err
		}
		if !exists {
			return c, false, nil
		}
	}
	return candidates[0], true, nil
}

// freeSlug appends the first unused numeric suffix to base.
func (s *Seeder) freeSlug(base string) (string, error) {
	for n := 2; ; n++ {
		c := fmt.Sprintf("%s-%d", base, n)
		exists, err := s.store.HasArticle(c)
		if err != nil {
			return "", err
		}
		if !exists {
			return c, nil
		}
	}
}

// maxSlugLength caps generated slugs; longer ones are cut at a word boundary.
const maxSlugLength = 80

func init() {
	slug.MaxLength = maxSlugLength
}

// Slugify transliterates s to ASCII and joins its words with hyphens.
func Slugify(s string) string {
	return slug.Make(s)
}
