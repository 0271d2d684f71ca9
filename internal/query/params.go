package query

import "github.com/TobiSchelling/blogagg/internal/content"

// Pagination defaults used when a request leaves them unset.
const (
	DefaultPage  = 1
	DefaultLimit = 10
)

// PageRequest selects one page of results.
type PageRequest struct {
	Page  int
	Limit int
}

// Normalize fills unset or non-positive fields with the defaults.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	return p
}

// Skip returns the number of records preceding the page.
func (p PageRequest) Skip() int {
	n := p.Normalize()
	return (n.Page - 1) * n.Limit
}

// ArticleParams are the high-level options of an article listing.
// Zero values mean "not set".
type ArticleParams struct {
	Search    string
	Tag       string // tag id
	Author    string // author id
	Year      int
	Page      int
	PageLimit int
	// Base is merged first; explicit options above override its fields.
	Base Filter
}

// PageRequest returns the pagination part of p.
func (p ArticleParams) PageRequest() PageRequest {
	return PageRequest{Page: p.Page, Limit: p.PageLimit}.Normalize()
}

// BuildFilter converts article listing options into a store filter.
// It never fails; a request without options yields p.Base unchanged.
func BuildFilter(p ArticleParams) Filter {
	f := p.Base
	if p.Search != "" {
		f = f.Or(
			Condition{Field: content.FieldTitle, Op: Match, Value: p.Search},
			Condition{Field: content.FieldBody, Op: Match, Value: p.Search},
		)
	}
	if p.Tag != "" {
		f = f.Equal(content.FieldTags, p.Tag)
	}
	if p.Author != "" {
		f = f.Equal(content.FieldAuthor, p.Author)
	}
	if p.Year != 0 {
		f = f.InYear(p.Year)
	}
	return f
}
