package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/TobiSchelling/blogagg/internal/content"
	"github.com/TobiSchelling/blogagg/internal/query"
)

// stubSource returns canned items and records the queries it saw.
type stubSource struct {
	items   []string
	total   int
	err     error
	queries []query.Query
	models  []string
}

func (s *stubSource) GetContents(_ context.Context, _, modelUID string, q query.Query) (*query.Result, error) {
	s.models = append(s.models, modelUID)
	s.queries = append(s.queries, q)
	if s.err != nil {
		return nil, s.err
	}
	res := &query.Result{Total: s.total}
	for _, it := range s.items {
		res.Items = append(res.Items, json.RawMessage(it))
	}
	return res, nil
}

func (s *stubSource) GetApp(_ context.Context, appUID string) (*content.App, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &content.App{UID: appUID, Name: "Blog"}, nil
}

func TestContentsDecodesReferences(t *testing.T) {
	src := &stubSource{
		items: []string{
			`{"_id":"a1","slug":"one","_sys":{"createdAt":"2022-03-04T05:06:07.000Z"},"tags":["t1","t2"],"author":"u1"}`,
			`{"_id":"a2","slug":"two","_sys":{"createdAt":"2023-01-01T00:00:00.000Z"},"tags":[{"_id":"t1","name":"Go","slug":"go"}],"author":{"_id":"u1","fullName":"Ada","slug":"ada"}}`,
		},
		total: 7,
	}
	f := NewFetcher(src, "blog")

	articles, total, err := Contents[content.Article](context.Background(), f, "article", query.Query{Depth: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 7 || len(articles) != 2 {
		t.Fatalf("expected 2 items of 7, got %d of %d", len(articles), total)
	}
	if articles[0].Tags[1].ID != "t2" || articles[0].Author.ID != "u1" {
		t.Errorf("expected bare references, got %+v", articles[0])
	}
	if articles[1].Tags[0].Name != "Go" || articles[1].Author.Name != "Ada" {
		t.Errorf("expected inlined references, got %+v", articles[1])
	}
	if articles[0].CreatedAt().Year() != 2022 {
		t.Errorf("expected 2022 timestamp, got %v", articles[0].CreatedAt())
	}
}

func TestContentsDecodeError(t *testing.T) {
	src := &stubSource{items: []string{`{"_id": 42}`}, total: 1}
	f := NewFetcher(src, "blog")

	_, _, err := Contents[content.Tag](context.Background(), f, "tag", query.Query{})
	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if decErr.Model != "tag" {
		t.Errorf("expected model tag, got %q", decErr.Model)
	}
}

func TestRawPropagatesErrors(t *testing.T) {
	storeErr := fmt.Errorf("503 unavailable")
	f := NewFetcher(&stubSource{err: storeErr}, "blog")

	_, err := f.Raw(context.Background(), "article", query.Query{})
	if !errors.Is(err, storeErr) {
		t.Errorf("expected wrapped store error, got %v", err)
	}
}

func TestCountSelectsSlugOnly(t *testing.T) {
	src := &stubSource{total: 12}
	f := NewFetcher(src, "blog")

	n, err := f.Count(context.Background(), "article", query.Filter{}.Equal("tags", "t1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 12 {
		t.Errorf("expected 12, got %d", n)
	}
	q := src.queries[0]
	if len(q.Select) != 1 || q.Select[0] != "slug" {
		t.Errorf("expected select [slug], got %v", q.Select)
	}
	if q.Filter.Conditions()[0].Value != "t1" {
		t.Errorf("expected tag filter, got %s", q.Filter)
	}
}

func TestSingle(t *testing.T) {
	f := NewFetcher(&stubSource{items: []string{`{"_id":"a1","slug":"one"}`}, total: 1}, "blog")
	a, err := Single[content.Article](context.Background(), f, "article", query.Query{})
	if err != nil || a == nil || a.Slug != "one" {
		t.Fatalf("expected article one, got %+v (%v)", a, err)
	}

	f = NewFetcher(&stubSource{}, "blog")
	a, err = Single[content.Article](context.Background(), f, "article", query.Query{})
	if err != nil || a != nil {
		t.Errorf("expected nil for empty result, got %+v (%v)", a, err)
	}
}

func TestPageText(t *testing.T) {
	paragraph := strings.Repeat("SQLite is a small, fast and reliable database engine. ", 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, "<html><head><title>Post</title></head><body><article><h1>Post</h1><p>%s</p><p>%s</p></article></body></html>", paragraph, paragraph)
	}))
	defer srv.Close()

	p := NewPageFetcher(5 * time.Second)
	text, err := p.Text(context.Background(), srv.URL+"/post")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(text, "reliable database engine") {
		t.Errorf("expected extracted text, got %q", text)
	}

	_, err = p.Text(context.Background(), srv.URL+"/missing")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404 HTTPError, got %v", err)
	}
}
