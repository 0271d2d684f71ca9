package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/blogagg/internal/aggregate"
	"github.com/TobiSchelling/blogagg/internal/query"
	"github.com/TobiSchelling/blogagg/internal/state"
)

// StepResult holds the result of a single refresh step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full refresh run.
type Result struct {
	Steps    []StepResult
	Snapshot state.Snapshot
}

// Failed returns the steps that reported an error.
func (r *Result) Failed() []StepResult {
	var out []StepResult
	for _, s := range r.Steps {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

// Request describes the page a refresh prepares state for.
type Request struct {
	Articles query.ArticleParams
	// Slug selects the current article; empty for listing pages.
	Slug string
}

// Runner executes every aggregation operation needed to render a page.
type Runner struct {
	svc *aggregate.Service
}

// New creates a runner over svc.
func New(svc *aggregate.Service) *Runner {
	return &Runner{svc: svc}
}

type step struct {
	name string
	run  func(ctx context.Context) (string, error)
}

// Run executes the independent operations side by side, then resolves the
// neighbours of the current article. A failed step is recorded and leaves
// its state slot untouched; the other steps still run.
func (r *Runner) Run(ctx context.Context, req Request) *Result {
	var createdAt time.Time

	first := []step{
		{"App", func(ctx context.Context) (string, error) {
			app, err := r.svc.FetchApp(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Loaded app %q", app.Name), nil
		}},
		{"Articles", func(ctx context.Context) (string, error) {
			articles, total, err := r.svc.FetchArticles(ctx, req.Articles)
			if err != nil {
				return "", err
			}
			page := req.Articles.PageRequest()
			return fmt.Sprintf("Page %d: %d of %d articles", page.Page, len(articles), total), nil
		}},
		{"Tags", func(ctx context.Context) (string, error) {
			tags, err := r.svc.FetchTags(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Counted %d tags", len(tags)), nil
		}},
		{"Authors", func(ctx context.Context) (string, error) {
			authors, err := r.svc.FetchAuthors(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Counted %d authors", len(authors)), nil
		}},
		{"Archives", func(ctx context.Context) (string, error) {
			buckets, err := r.svc.FetchArchives(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Counted %d years", len(buckets)), nil
		}},
		{"Current", func(ctx context.Context) (string, error) {
			article, err := r.svc.FetchCurrentArticle(ctx, req.Slug)
			if err != nil {
				return "", err
			}
			if article == nil {
				return "No current article", nil
			}
			createdAt = article.CreatedAt()
			return fmt.Sprintf("Loaded %s", article.Slug), nil
		}},
	}

	second := []step{
		{"Previous", func(ctx context.Context) (string, error) {
			prev, err := r.svc.FetchPreviousArticle(ctx, createdAt)
			return neighborSummary(prev == nil, "previous", err)
		}},
		{"Next", func(ctx context.Context) (string, error) {
			next, err := r.svc.FetchNextArticle(ctx, createdAt)
			return neighborSummary(next == nil, "next", err)
		}},
	}

	res := &Result{}
	total := len(first) + len(second)
	res.Steps = append(res.Steps, runSteps(ctx, first, 0, total)...)
	res.Steps = append(res.Steps, runSteps(ctx, second, len(first), total)...)
	res.Snapshot = r.svc.State().Snapshot()
	return res
}

// runSteps runs steps concurrently and returns their results in order.
func runSteps(ctx context.Context, steps []step, offset, total int) []StepResult {
	results := make([]StepResult, len(steps))
	var g errgroup.Group
	for i, s := range steps {
		i, s := i, s
		g.Go(func() error {
			log.Printf("Step %d/%d: %s...", offset+i+1, total, s.name)
			summary, err := s.run(ctx)
			results[i] = StepResult{Name: s.name, Summary: summary, Err: err}
			return nil
		})
	}
	g.Wait()
	return results
}

func neighborSummary(missing bool, which string, err error) (string, error) {
	if err != nil {
		return "", err
	}
	if missing {
		return "No " + which + " article", nil
	}
	return "Resolved " + which + " article", nil
}
