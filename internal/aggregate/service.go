package aggregate

import (
	"context"
	"log"
	"time"

	"github.com/TobiSchelling/blogagg/internal/content"
	"github.com/TobiSchelling/blogagg/internal/fetch"
	"github.com/TobiSchelling/blogagg/internal/query"
	"github.com/TobiSchelling/blogagg/internal/state"
)

// Depths used by the operations. Listings and the current article inline
// nested references; navigation and taxonomy only need one level.
const (
	articleDepth  = 2
	taxonomyDepth = 1
	neighborDepth = 1
)

// Models names the store app and content models the service queries.
type Models struct {
	App     string
	Article string
	Tag     string
	Author  string
}

// Service runs the aggregation operations and commits their results into
// a state.Store.
type Service struct {
	fetcher     *fetch.Fetcher
	models      Models
	store       *state.Store
	now         func() time.Time
	concurrency int
}

// Option customizes a Service.
type Option func(*Service)

// WithClock sets the time source used to determine the current year.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithConcurrency sets how many per-entry count queries may be in flight at
// once. Values below 1 mean strictly sequential.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n < 1 {
			n = 1
		}
		s.concurrency = n
	}
}

// New creates a Service. A nil store gets a fresh state.Store.
func New(src fetch.Source, models Models, store *state.Store, opts ...Option) *Service {
	if store == nil {
		store = state.NewStore()
	}
	s := &Service{
		fetcher:     fetch.NewFetcher(src, models.App),
		models:      models,
		store:       store,
		now:         time.Now,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the store the service commits into.
func (s *Service) State() *state.Store {
	return s.store
}

func (s *Service) fail(op string, err error) error {
	log.Printf("%s failed: %v", op, err)
	return opError(op, err)
}

// FetchApp loads the application metadata.
func (s *Service) FetchApp(ctx context.Context) (*content.App, error) {
	app, err := s.fetcher.App(ctx)
	if err != nil {
		return nil, s.fail("fetchApp", err)
	}
	s.store.Commit(state.SlotApp, func(snap state.Snapshot) state.Snapshot {
		return snap.WithApp(app)
	})
	return app, nil
}

// FetchArticles loads one page of articles matching p and commits the page
// together with the total match count.
func (s *Service) FetchArticles(ctx context.Context, p query.ArticleParams) ([]content.Article, int, error) {
	page := p.PageRequest()
	q := query.Query{
		Depth:  articleDepth,
		Limit:  page.Limit,
		Skip:   page.Skip(),
		Filter: query.BuildFilter(p),
	}

	articles, total, err := fetch.Contents[content.Article](ctx, s.fetcher, s.models.Article, q)
	if err != nil {
		return nil, 0, s.fail("fetchArticles", err)
	}
	s.store.Commit(state.SlotArticles, func(snap state.Snapshot) state.Snapshot {
		return snap.WithArticles(articles, total)
	})
	return articles, total, nil
}

// FetchCurrentArticle loads the article with slug. An empty slug commits nil
// without querying; so does a slug that matches nothing.
func (s *Service) FetchCurrentArticle(ctx context.Context, slug string) (*content.Article, error) {
	var article *content.Article
	if slug != "" {
		var err error
		article, err = fetch.Single[content.Article](ctx, s.fetcher, s.models.Article, query.Query{
			Depth:  articleDepth,
			Filter: query.Filter{}.Equal(content.FieldSlug, slug),
		})
		if err != nil {
			return nil, s.fail("fetchCurrentArticle", err)
		}
	}
	s.store.Commit(state.SlotCurrent, func(snap state.Snapshot) state.Snapshot {
		return snap.WithCurrent(article)
	})
	return article, nil
}
