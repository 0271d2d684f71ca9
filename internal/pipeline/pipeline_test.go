package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/TobiSchelling/blogagg/internal/aggregate"
	"github.com/TobiSchelling/blogagg/internal/content"
	"github.com/TobiSchelling/blogagg/internal/fetch"
	"github.com/TobiSchelling/blogagg/internal/localstore"
	"github.com/TobiSchelling/blogagg/internal/query"
)

var models = aggregate.Models{App: "blog", Article: "article", Tag: "tag", Author: "author"}

func seededStore(t *testing.T) *localstore.Store {
	t.Helper()
	s, err := localstore.Open(filepath.Join(t.TempDir(), "content.db"), localstore.Models{})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.UpsertApp(content.App{UID: "blog", Name: "Notes"}); err != nil {
		t.Fatalf("upsert app: %v", err)
	}
	goID, _ := s.InsertTag("Go", "go")
	ada, _ := s.InsertAuthor("Ada", "ada", "")
	for _, a := range []localstore.NewArticle{
		{Slug: "one", Title: "One", AuthorID: ada, TagIDs: []string{goID}, CreatedAt: time.Date(2021, 5, 1, 0, 0, 0, 0, time.UTC)},
		{Slug: "two", Title: "Two", AuthorID: ada, CreatedAt: time.Date(2022, 5, 1, 0, 0, 0, 0, time.UTC)},
		{Slug: "three", Title: "Three", TagIDs: []string{goID}, CreatedAt: time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)},
	} {
		if _, err := s.InsertArticle(a); err != nil {
			t.Fatalf("insert %s: %v", a.Slug, err)
		}
	}
	return s
}

func newService(src fetch.Source) *aggregate.Service {
	return aggregate.New(src, models, nil, aggregate.WithClock(func() time.Time {
		return time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
	}))
}

func TestRunArticlePage(t *testing.T) {
	runner := New(newService(seededStore(t)))
	res := runner.Run(context.Background(), Request{Slug: "two"})

	names := []string{"App", "Articles", "Tags", "Authors", "Archives", "Current", "Previous", "Next"}
	if len(res.Steps) != len(names) {
		t.Fatalf("expected %d steps, got %d", len(names), len(res.Steps))
	}
	for i, s := range res.Steps {
		if s.Name != names[i] {
			t.Errorf("step %d: expected %s, got %s", i, names[i], s.Name)
		}
		if s.Err != nil {
			t.Errorf("step %s failed: %v", s.Name, s.Err)
		}
	}

	snap := res.Snapshot
	if snap.App == nil || snap.App.Name != "Notes" {
		t.Errorf("unexpected app: %+v", snap.App)
	}
	if snap.Total != 3 || len(snap.Articles) != 3 {
		t.Errorf("expected 3 articles, got %d/%d", len(snap.Articles), snap.Total)
	}
	if snap.Current == nil || snap.Current.Slug != "two" {
		t.Fatalf("unexpected current: %+v", snap.Current)
	}
	if snap.Previous == nil || snap.Previous.Slug != "one" {
		t.Errorf("expected previous 'one', got %+v", snap.Previous)
	}
	if snap.Next == nil || snap.Next.Slug != "three" {
		t.Errorf("expected next 'three', got %+v", snap.Next)
	}
	if len(snap.Archives) != 3 || snap.Archives[0].Year != 2023 {
		t.Errorf("unexpected archives: %+v", snap.Archives)
	}
	if len(snap.Tags) != 1 || snap.Tags[0].Total != 2 {
		t.Errorf("unexpected tags: %+v", snap.Tags)
	}
	if len(res.Failed()) != 0 {
		t.Errorf("expected no failures, got %+v", res.Failed())
	}
}

func TestRunListingPageHasNoNeighbours(t *testing.T) {
	runner := New(newService(seededStore(t)))
	res := runner.Run(context.Background(), Request{Articles: query.ArticleParams{Tag: "missing"}})

	snap := res.Snapshot
	if snap.Current != nil || snap.Previous != nil || snap.Next != nil {
		t.Errorf("expected no current or neighbours, got %+v %+v %+v", snap.Current, snap.Previous, snap.Next)
	}
	if snap.Total != 0 {
		t.Errorf("expected no matches for unknown tag, got %d", snap.Total)
	}
}

type brokenApp struct {
	*localstore.Store
}

func (brokenApp) GetApp(context.Context, string) (*content.App, error) {
	return nil, errors.New("forbidden")
}

func TestRunKeepsGoingAfterFailure(t *testing.T) {
	runner := New(newService(brokenApp{seededStore(t)}))
	res := runner.Run(context.Background(), Request{Slug: "three"})

	failed := res.Failed()
	if len(failed) != 1 || failed[0].Name != "App" {
		t.Fatalf("expected only App to fail, got %+v", failed)
	}
	var opErr *aggregate.Error
	if !errors.As(failed[0].Err, &opErr) || opErr.Op != "fetchApp" {
		t.Errorf("expected fetchApp error, got %v", failed[0].Err)
	}
	if res.Snapshot.App != nil {
		t.Error("expected app slot untouched")
	}
	if res.Snapshot.Next != nil || res.Snapshot.Previous == nil {
		t.Errorf("expected only a previous article for the newest post")
	}
}
