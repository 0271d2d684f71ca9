package fetch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/TobiSchelling/blogagg/internal/content"
	"github.com/TobiSchelling/blogagg/internal/query"
)

// Source executes queries against a content store.
type Source interface {
	GetContents(ctx context.Context, appUID, modelUID string, q query.Query) (*query.Result, error)
	GetApp(ctx context.Context, appUID string) (*content.App, error)
}

// DecodeError reports a record the store returned but that could not be decoded.
type DecodeError struct {
	Model string
	Index int
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s item %d: %v", e.Model, e.Index, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Fetcher runs single paginated queries for one store application.
type Fetcher struct {
	src    Source
	appUID string
}

// NewFetcher creates a fetcher bound to appUID.
func NewFetcher(src Source, appUID string) *Fetcher {
	return &Fetcher{src: src, appUID: appUID}
}

// AppUID returns the application the fetcher queries.
func (f *Fetcher) AppUID() string {
	return f.appUID
}

// App returns the application metadata.
func (f *Fetcher) App(ctx context.Context) (*content.App, error) {
	app, err := f.src.GetApp(ctx, f.appUID)
	if err != nil {
		return nil, fmt.Errorf("getting app %s: %w", f.appUID, err)
	}
	return app, nil
}

// Raw executes q and returns the undecoded result.
func (f *Fetcher) Raw(ctx context.Context, model string, q query.Query) (*query.Result, error) {
	res, err := f.src.GetContents(ctx, f.appUID, model, q)
	if err != nil {
		return nil, fmt.Errorf("querying %s (%s): %w", model, q.Filter, err)
	}
	if res == nil {
		return &query.Result{}, nil
	}
	return res, nil
}

// Count returns the number of model records matching filter. Only the slug
// is selected so the response carries no payload beyond the total.
func (f *Fetcher) Count(ctx context.Context, model string, filter query.Filter) (int, error) {
	res, err := f.Raw(ctx, model, query.Query{
		Depth:  0,
		Limit:  1,
		Select: []string{content.FieldSlug},
		Filter: filter,
	})
	if err != nil {
		return 0, err
	}
	return res.Total, nil
}

// Contents executes q and decodes every item into T.
func Contents[T any](ctx context.Context, f *Fetcher, model string, q query.Query) ([]T, int, error) {
	res, err := f.Raw(ctx, model, q)
	if err != nil {
		return nil, 0, err
	}
	items := make([]T, 0, len(res.Items))
	for i, raw := range res.Items {
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, 0, &DecodeError{Model: model, Index: i, Err: err}
		}
		items = append(items, item)
	}
	return items, res.Total, nil
}

// Single executes q with limit 1 and returns the item only when exactly one
// record came back, otherwise nil.
func Single[T any](ctx context.Context, f *Fetcher, model string, q query.Query) (*T, error) {
	q.Limit = 1
	items, _, err := Contents[T](ctx, f, model, q)
	if err != nil {
		return nil, err
	}
	if len(items) != 1 {
		return nil, nil
	}
	return &items[0], nil
}
