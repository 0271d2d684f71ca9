package aggregate

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/blogagg/internal/content"
	"github.com/TobiSchelling/blogagg/internal/fetch"
	"github.com/TobiSchelling/blogagg/internal/query"
	"github.com/TobiSchelling/blogagg/internal/state"
)

// FetchTags loads the tag taxonomy and the number of articles per tag.
// The result keeps taxonomy order; any failed count discards the whole run.
func (s *Service) FetchTags(ctx context.Context) ([]content.Tag, error) {
	tags, _, err := fetch.Contents[content.Tag](ctx, s.fetcher, s.models.Tag, query.Query{Depth: taxonomyDepth})
	if err != nil {
		return nil, s.fail("fetchTags", err)
	}

	totals, err := s.countEach(ctx, len(tags), func(i int) query.Filter {
		return query.Filter{}.Equal(content.FieldTags, tags[i].ID)
	})
	if err != nil {
		return nil, s.fail("fetchTags", err)
	}
	for i := range tags {
		tags[i].Total = totals[i]
	}

	s.store.Commit(state.SlotTags, func(snap state.Snapshot) state.Snapshot {
		return snap.WithTags(tags)
	})
	return tags, nil
}

// FetchAuthors loads the author taxonomy and the number of articles per
// author, with the same ordering and failure rules as FetchTags.
func (s *Service) FetchAuthors(ctx context.Context) ([]content.Author, error) {
	authors, _, err := fetch.Contents[content.Author](ctx, s.fetcher, s.models.Author, query.Query{Depth: taxonomyDepth})
	if err != nil {
		return nil, s.fail("fetchAuthors", err)
	}

	totals, err := s.countEach(ctx, len(authors), func(i int) query.Filter {
		return query.Filter{}.Equal(content.FieldAuthor, authors[i].ID)
	})
	if err != nil {
		return nil, s.fail("fetchAuthors", err)
	}
	for i := range authors {
		authors[i].Total = totals[i]
	}

	s.store.Commit(state.SlotAuthors, func(snap state.Snapshot) state.Snapshot {
		return snap.WithAuthors(authors)
	})
	return authors, nil
}

// countEach counts articles for n filters. Counts are issued in index order
// with at most s.concurrency in flight; totals[i] always belongs to
// filterFor(i). The first failure stops scheduling and is returned.
func (s *Service) countEach(ctx context.Context, n int, filterFor func(i int) query.Filter) ([]int, error) {
	totals := make([]int, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			total, err := s.fetcher.Count(gctx, s.models.Article, filterFor(i))
			if err != nil {
				return err
			}
			totals[i] = total
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return totals, nil
}
