package aggregate

import (
	"context"
	"time"

	"github.com/TobiSchelling/blogagg/internal/content"
	"github.com/TobiSchelling/blogagg/internal/fetch"
	"github.com/TobiSchelling/blogagg/internal/query"
	"github.com/TobiSchelling/blogagg/internal/state"
)

// FetchPreviousArticle commits the nearest article created strictly before
// createdAt, or nil. A zero createdAt commits nil without querying.
func (s *Service) FetchPreviousArticle(ctx context.Context, createdAt time.Time) (*content.Article, error) {
	var prev *content.Article
	if !createdAt.IsZero() {
		var err error
		prev, err = s.neighbor(ctx, query.Filter{}.CreatedBefore(createdAt), query.Descending(content.FieldCreatedAt))
		if err != nil {
			return nil, s.fail("fetchPreviousArticle", err)
		}
	}
	s.store.Commit(state.SlotPrevious, func(snap state.Snapshot) state.Snapshot {
		return snap.WithPrevious(prev)
	})
	return prev, nil
}

// FetchNextArticle commits the nearest article created strictly after
// createdAt, or nil. A zero createdAt commits nil without querying.
func (s *Service) FetchNextArticle(ctx context.Context, createdAt time.Time) (*content.Article, error) {
	var next *content.Article
	if !createdAt.IsZero() {
		var err error
		next, err = s.neighbor(ctx, query.Filter{}.CreatedAfter(createdAt), content.FieldCreatedAt)
		if err != nil {
			return nil, s.fail("fetchNextArticle", err)
		}
	}
	s.store.Commit(state.SlotNext, func(snap state.Snapshot) state.Snapshot {
		return snap.WithNext(next)
	})
	return next, nil
}

func (s *Service) neighbor(ctx context.Context, filter query.Filter, order string) (*content.Article, error) {
	return fetch.Single[content.Article](ctx, s.fetcher, s.models.Article, query.Query{
		Depth:  neighborDepth,
		Select: []string{content.FieldSlug, content.FieldTitle, content.FieldCreatedAt},
		Order:  []string{order},
		Filter: filter,
	})
}
