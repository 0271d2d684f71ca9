package aggregate

import (
	"context"

	"github.com/TobiSchelling/blogagg/internal/content"
	"github.com/TobiSchelling/blogagg/internal/fetch"
	"github.com/TobiSchelling/blogagg/internal/query"
	"github.com/TobiSchelling/blogagg/internal/state"
)

// FetchArchives counts articles per calendar year, from the year of the
// oldest article up to the current year, most recent first. An empty store
// commits an empty list.
func (s *Service) FetchArchives(ctx context.Context) ([]content.ArchiveBucket, error) {
	oldest, err := fetch.Single[content.Article](ctx, s.fetcher, s.models.Article, query.Query{
		Depth:  neighborDepth,
		Select: []string{content.FieldSlug, content.FieldCreatedAt},
		Order:  []string{content.FieldCreatedAt},
	})
	if err != nil {
		return nil, s.fail("fetchArchives", err)
	}

	buckets := []content.ArchiveBucket{}
	if oldest != nil {
		buckets = yearBuckets(oldest.CreatedAt().UTC().Year(), s.now().UTC().Year())
		counts, err := s.countEach(ctx, len(buckets), func(i int) query.Filter {
			return query.Filter{}.InYear(buckets[i].Year)
		})
		if err != nil {
			return nil, s.fail("fetchArchives", err)
		}
		for i := range buckets {
			buckets[i].Count = counts[i]
		}
	}

	s.store.Commit(state.SlotArchives, func(snap state.Snapshot) state.Snapshot {
		return snap.WithArchives(buckets)
	})
	return buckets, nil
}

// yearBuckets returns one bucket per year in [from, to], newest first.
// It is empty when from > to.
func yearBuckets(from, to int) []content.ArchiveBucket {
	buckets := []content.ArchiveBucket{}
	for year := to; year >= from; year-- {
		buckets = append(buckets, content.ArchiveBucket{Year: year})
	}
	return buckets
}
