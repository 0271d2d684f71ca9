package newt

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/TobiSchelling/blogagg/internal/query"
)

func TestGetContents(t *testing.T) {
	var gotPath, gotAuth, gotTag, gotDepth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotTag = r.URL.Query().Get("tags")
		gotDepth = r.URL.Query().Get("depth")
		w.Write([]byte(`{"skip":0,"limit":1,"total":3,"items":[{"_id":"a1","slug":"hello"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Token: "secret"})
	res, err := c.GetContents(context.Background(), "blog", "article", query.Query{
		Depth:  1,
		Filter: query.Filter{}.Equal("tags", "t1"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Total != 3 || len(res.Items) != 1 {
		t.Errorf("expected 1 item of 3, got %d of %d", len(res.Items), res.Total)
	}
	if gotPath != "/blog/article" {
		t.Errorf("expected /blog/article, got %q", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("expected bearer token, got %q", gotAuth)
	}
	if gotTag != "t1" || gotDepth != "1" {
		t.Errorf("expected tags=t1 depth=1, got %q %q", gotTag, gotDepth)
	}
}

func TestGetContentsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Token: "bad"})
	_, err := c.GetContents(context.Background(), "blog", "article", query.Query{})

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", statusErr.Code)
	}
}

func TestGetApp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/space/apps/blog" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"_id":"x","uid":"blog","name":"My Blog","cover":{"src":"https://img/c.png"}}`))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Token: "secret"})
	app, err := c.GetApp(context.Background(), "blog")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if app.Name != "My Blog" || app.Cover == nil || app.Cover.Src != "https://img/c.png" {
		t.Errorf("unexpected app: %+v", app)
	}
}

func TestNotConfigured(t *testing.T) {
	c := NewClient(Options{SpaceUID: "space"})
	if c.IsConfigured() {
		t.Error("expected client without token to be unconfigured")
	}
	_, err := c.GetApp(context.Background(), "blog")
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestEndpointFromSpace(t *testing.T) {
	if got := NewClient(Options{SpaceUID: "acme", Token: "x"}).baseURL; got != "https://acme.cdn.newt.so/v1" {
		t.Errorf("unexpected cdn endpoint %q", got)
	}
	if got := NewClient(Options{SpaceUID: "acme", Token: "x", APIType: APITypeAPI}).baseURL; got != "https://acme.api.newt.so/v1" {
		t.Errorf("unexpected api endpoint %q", got)
	}
}

func TestRateLimitedClientStillServes(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"total":0,"items":[]}`))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Token: "secret", RateLimit: 50})
	for i := 0; i < 3; i++ {
		if _, err := c.GetContents(context.Background(), "blog", "tag", query.Query{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}
