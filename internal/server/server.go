package server

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/TobiSchelling/blogagg/internal/aggregate"
	"github.com/TobiSchelling/blogagg/internal/content"
	"github.com/TobiSchelling/blogagg/internal/fetch"
	"github.com/TobiSchelling/blogagg/internal/pipeline"
	"github.com/TobiSchelling/blogagg/internal/query"
	"github.com/TobiSchelling/blogagg/internal/state"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Article bodies may be markdown or raw HTML from a feed; raw HTML passes
// through goldmark and is sanitized afterwards.
var (
	md       = goldmark.New(goldmark.WithExtensions(extension.GFM), goldmark.WithRendererOptions(html.WithUnsafe()))
	sanitize = bluemonday.UGCPolicy()
)

// Server is the HTTP preview server for the aggregated blog.
type Server struct {
	src       fetch.Source
	models    aggregate.Models
	opts      []aggregate.Option
	pageLimit int
	pages     map[string]*template.Template
	mux       *http.ServeMux
}

// New creates a new Server. Every request runs its own refresh against src.
func New(src fetch.Source, models aggregate.Models, pageLimit int, opts ...aggregate.Option) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown":   renderMarkdown,
		"formatDate": formatDate,
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of base with its own "title" and "content".
	pageNames := []string{"index.html", "article.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{
		src:       src,
		models:    models,
		opts:      opts,
		pageLimit: pageLimit,
		pages:     pages,
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/articles/", s.handleArticle)
	s.mux.HandleFunc("/api/snapshot", s.handleSnapshot)
}

// refresh runs every operation for one page view on a fresh state store.
func (s *Server) refresh(r *http.Request, req pipeline.Request) *pipeline.Result {
	svc := aggregate.New(s.src, s.models, state.NewStore(), s.opts...)
	res := pipeline.New(svc).Run(r.Context(), req)
	for _, step := range res.Failed() {
		log.Printf("%s %s: step %s failed: %v", r.Method, r.URL.Path, step.Name, step.Err)
	}
	return res
}

// listParams reads the article listing options from the query string.
// Malformed numbers are ignored.
func (s *Server) listParams(v url.Values) query.ArticleParams {
	p := query.ArticleParams{
		Search:    strings.TrimSpace(v.Get("search")),
		Tag:       v.Get("tag"),
		Author:    v.Get("author"),
		PageLimit: s.pageLimit,
	}
	p.Year, _ = strconv.Atoi(v.Get("year"))
	p.Page, _ = strconv.Atoi(v.Get("page"))
	return p
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	params := s.listParams(r.URL.Query())
	res := s.refresh(r, pipeline.Request{Articles: params})
	snap := res.Snapshot

	page := params.PageRequest()
	pages := (snap.Total + page.Limit - 1) / page.Limit
	data := s.sidebar(res)
	data["Articles"] = snap.Articles
	data["Total"] = snap.Total
	data["Params"] = params
	data["Page"] = page.Page
	data["Pages"] = pages
	if page.Page > 1 {
		data["PrevURL"] = pageURL(r.URL.Query(), page.Page-1)
	}
	if page.Page < pages {
		data["NextURL"] = pageURL(r.URL.Query(), page.Page+1)
	}

	s.render(w, http.StatusOK, "index.html", data)
}

func (s *Server) handleArticle(w http.ResponseWriter, r *http.Request) {
	slug := strings.Trim(strings.TrimPrefix(r.URL.Path, "/articles/"), "/")
	if slug == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	res := s.refresh(r, pipeline.Request{Slug: slug, Articles: query.ArticleParams{PageLimit: s.pageLimit}})
	if res.Snapshot.Current == nil {
		if failedStep(res, "Current") {
			http.Error(w, "Bad gateway", http.StatusBadGateway)
			return
		}
		http.NotFound(w, r)
		return
	}

	data := s.sidebar(res)
	data["Article"] = res.Snapshot.Current
	data["Previous"] = res.Snapshot.Previous
	data["Next"] = res.Snapshot.Next
	s.render(w, http.StatusOK, "article.html", data)
}

type stepError struct {
	Step  string `json:"step"`
	Error string `json:"error"`
}

type snapshotResponse struct {
	state.Snapshot
	PopularTags   []content.Tag    `json:"popularTags"`
	PublicAuthors []content.Author `json:"publicAuthors"`
	Errors        []stepError      `json:"errors"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	res := s.refresh(r, pipeline.Request{Articles: s.listParams(v), Slug: v.Get("slug")})

	out := snapshotResponse{
		Snapshot:      res.Snapshot,
		PopularTags:   res.Snapshot.PopularTags(),
		PublicAuthors: res.Snapshot.PublicAuthors(),
		Errors:        []stepError{},
	}
	for _, step := range res.Failed() {
		out.Errors = append(out.Errors, stepError{Step: step.Name, Error: step.Err.Error()})
	}

	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Printf("Error encoding snapshot: %v", err)
	}
}

// sidebar collects the data every page shows next to its content.
func (s *Server) sidebar(res *pipeline.Result) map[string]any {
	var failed []string
	for _, step := range res.Failed() {
		failed = append(failed, step.Name)
	}
	return map[string]any{
		"App":           res.Snapshot.App,
		"PopularTags":   res.Snapshot.PopularTags(),
		"PublicAuthors": res.Snapshot.PublicAuthors(),
		"Archives":      res.Snapshot.Archives,
		"Failed":        failed,
	}
}

func failedStep(res *pipeline.Result, name string) bool {
	for _, step := range res.Failed() {
		if step.Name == name {
			return true
		}
	}
	return false
}

func pageURL(v url.Values, page int) string {
	q := url.Values{}
	for k, vals := range v {
		q[k] = vals
	}
	q.Set("page", strconv.Itoa(page))
	return "/?" + q.Encode()
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Printf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		log.Printf("Error rendering template %s: %v", name, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(sanitize.SanitizeBytes(buf.Bytes())) //nolint: gosec
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("Jan 2, 2006")
}

// Serve starts the HTTP server on the given port.
func Serve(src fetch.Source, models aggregate.Models, pageLimit, port int, opts ...aggregate.Option) error {
	srv, err := New(src, models, pageLimit, opts...)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("Server listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
