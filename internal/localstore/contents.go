package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/TobiSchelling/blogagg/internal/content"
	"github.com/TobiSchelling/blogagg/internal/query"
)

// defaultLimit mirrors the delivery API page size when none is requested.
const defaultLimit = 100

// table describes how store fields map onto one SQL table.
type table struct {
	name         string
	columns      map[string]string
	timeFields   map[string]bool
	defaultOrder string
}

var (
	articleTable = table{
		name: "articles",
		columns: map[string]string{
			content.FieldID:        "r.id",
			content.FieldSlug:      "r.slug",
			content.FieldTitle:     "r.title",
			content.FieldBody:      "r.body",
			content.FieldAuthor:    "r.author_id",
			content.FieldCreatedAt: "r.created_at",
			"_sys.updatedAt":       "r.updated_at",
		},
		timeFields:   map[string]bool{content.FieldCreatedAt: true, "_sys.updatedAt": true},
		defaultOrder: "r.created_at DESC",
	}
	tagTable = table{
		name: "tags",
		columns: map[string]string{
			content.FieldID:   "r.id",
			content.FieldSlug: "r.slug",
			"name":            "r.name",
		},
		defaultOrder: "r.position",
	}
	authorTable = table{
		name: "authors",
		columns: map[string]string{
			content.FieldID:   "r.id",
			content.FieldSlug: "r.slug",
			"fullName":        "r.full_name",
			"biography":       "r.biography",
		},
		defaultOrder: "r.position",
	}
)

// GetApp returns the application record for appUID.
func (s *Store) GetApp(ctx context.Context, appUID string) (*content.App, error) {
	var app content.App
	var desc, cover sql.NullString
	err := s.conn.QueryRowContext(ctx,
		"SELECT id, uid, name, description, cover_src FROM apps WHERE uid = ?", appUID,
	).Scan(&app.ID, &app.UID, &app.Name, &desc, &cover)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("app %s: %w", appUID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	app.Description = desc.String
	if cover.Valid && cover.String != "" {
		app.Cover = &content.Image{Src: cover.String}
	}
	return &app, nil
}

// GetContents answers q for modelUID. The app uid is accepted for interface
// compatibility; a local store hosts a single app.
func (s *Store) GetContents(ctx context.Context, _, modelUID string, q query.Query) (*query.Result, error) {
	var t table
	switch modelUID {
	case s.models.Article:
		t = articleTable
	case s.models.Tag:
		t = tagTable
	case s.models.Author:
		t = authorTable
	default:
		return nil, fmt.Errorf("unknown model %q", modelUID)
	}

	where, args, err := t.where(q.Filter)
	if err != nil {
		return nil, err
	}
	orderBy, err := t.orderBy(q.Order)
	if err != nil {
		return nil, err
	}

	res := &query.Result{}
	if err := s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+t.name+" r"+where, args...,
	).Scan(&res.Total); err != nil {
		return nil, fmt.Errorf("counting %s: %w", modelUID, err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	page := append(append([]any(nil), args...), limit, q.Skip)
	tail := " FROM " + t.name + " r" + where + " ORDER BY " + orderBy + " LIMIT ? OFFSET ?"

	var records []map[string]any
	switch t.name {
	case "articles":
		records, err = s.articleRecords(ctx, tail, page, q)
	case "tags":
		records, err = s.tagRecords(ctx, tail, page, newSelector(q.Select))
	default:
		records, err = s.authorRecords(ctx, tail, page, newSelector(q.Select))
	}
	if err != nil {
		return nil, err
	}

	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, err
		}
		res.Items = append(res.Items, data)
	}
	return res, nil
}

func (t table) where(f query.Filter) (string, []any, error) {
	var clauses []string
	var args []any
	for _, c := range f.Conditions() {
		clause, arg, err := t.condition(c)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, clause)
		args = append(args, arg)
	}
	if alts := f.AnyOf(); len(alts) > 0 {
		var ors []string
		for _, c := range alts {
			clause, arg, err := t.condition(c)
			if err != nil {
				return "", nil, err
			}
			ors = append(ors, clause)
			args = append(args, arg)
		}
		clauses = append(clauses, "("+strings.Join(ors, " OR ")+")")
	}
	if len(clauses) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func (t table) condition(c query.Condition) (string, any, error) {
	if t.name == "articles" && c.Field == content.FieldTags {
		if c.Op != query.Eq {
			return "", nil, fmt.Errorf("operator %s not supported on %s", c.Op, c.Field)
		}
		return "EXISTS (SELECT 1 FROM article_tags at WHERE at.article_id = r.id AND at.tag_id = ?)", c.Value, nil
	}

	col, ok := t.columns[c.Field]
	if !ok {
		return "", nil, fmt.Errorf("unknown field %q on %s", c.Field, t.name)
	}

	var value any = c.Value
	if t.timeFields[c.Field] && c.Op != query.Match {
		ts, err := time.Parse(time.RFC3339Nano, c.Value)
		if err != nil {
			return "", nil, fmt.Errorf("invalid timestamp for %s: %w", c.Field, err)
		}
		value = ts.UnixMilli()
	}

	switch c.Op {
	case query.Eq:
		return col + " = ?", value, nil
	case query.Match:
		return col + ` LIKE ? ESCAPE '\'`, "%" + escapeLike(c.Value) + "%", nil
	case query.Lt:
		return col + " < ?", value, nil
	case query.Lte:
		return col + " <= ?", value, nil
	case query.Gt:
		return col + " > ?", value, nil
	case query.Gte:
		return col + " >= ?", value, nil
	}
	return "", nil, fmt.Errorf("unsupported operator %q", c.Op)
}

func (t table) orderBy(keys []string) (string, error) {
	if len(keys) == 0 {
		return t.defaultOrder + ", r.position", nil
	}
	var parts []string
	for _, key := range keys {
		field, desc := query.ParseOrder(key)
		col, ok := t.columns[field]
		if !ok {
			return "", fmt.Errorf("cannot order %s by %q", t.name, field)
		}
		if desc {
			col += " DESC"
		}
		parts = append(parts, col)
	}
	return strings.Join(parts, ", ") + ", r.position", nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// selector restricts which top-level fields are rendered.
type selector map[string]bool

func newSelector(fields []string) selector {
	if len(fields) == 0 {
		return nil
	}
	sel := selector{}
	for _, f := range fields {
		sel[f] = true
		if i := strings.Index(f, "."); i > 0 {
			sel[f[:i]] = true
		}
	}
	return sel
}

func (s selector) has(field string) bool {
	return s == nil || s[field]
}

type articleRow struct {
	id, slug, title  string
	body, authorID   sql.NullString
	created, updated int64
}

func (s *Store) articleRecords(ctx context.Context, tail string, args []any, q query.Query) ([]map[string]any, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT r.id, r.slug, r.title, r.body, r.author_id, r.created_at, r.updated_at"+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("querying articles: %w", err)
	}
	var list []articleRow
	for rows.Next() {
		var a articleRow
		if err := rows.Scan(&a.id, &a.slug, &a.title, &a.body, &a.authorID, &a.created, &a.updated); err != nil {
			rows.Close()
			return nil, err
		}
		list = append(list, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sel := newSelector(q.Select)
	var tags map[string][]map[string]any
	if sel.has(content.FieldTags) && len(list) > 0 {
		if tags, err = s.articleTags(ctx, list); err != nil {
			return nil, err
		}
	}

	out := make([]map[string]any, 0, len(list))
	for _, a := range list {
		rec := map[string]any{content.FieldID: a.id}
		if sel.has("_sys") {
			rec["_sys"] = map[string]string{
				"createdAt": query.FormatTime(time.UnixMilli(a.created)),
				"updatedAt": query.FormatTime(time.UnixMilli(a.updated)),
			}
		}
		if sel.has(content.FieldSlug) {
			rec[content.FieldSlug] = a.slug
		}
		if sel.has(content.FieldTitle) {
			rec[content.FieldTitle] = a.title
		}
		if sel.has(content.FieldBody) {
			rec[content.FieldBody] = a.body.String
		}
		if sel.has(content.FieldTags) {
			rec[content.FieldTags] = refs(tags[a.id], q.Depth)
		}
		if sel.has(content.FieldAuthor) {
			author, err := s.authorRef(ctx, a.authorID, q.Depth)
			if err != nil {
				return nil, err
			}
			rec[content.FieldAuthor] = author
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) articleTags(ctx context.Context, list []articleRow) (map[string][]map[string]any, error) {
	ids := make([]any, len(list))
	marks := make([]string, len(list))
	for i, a := range list {
		ids[i] = a.id
		marks[i] = "?"
	}
	rows, err := s.conn.QueryContext(ctx,
		`SELECT at.article_id, t.id, t.name, t.slug FROM article_tags at
		JOIN tags t ON t.id = at.tag_id
		WHERE at.article_id IN (`+strings.Join(marks, ",")+`)
		ORDER BY at.article_id, at.position`, ids...)
	if err != nil {
		return nil, fmt.Errorf("loading article tags: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]map[string]any)
	for rows.Next() {
		var articleID, id, name, slug string
		if err := rows.Scan(&articleID, &id, &name, &slug); err != nil {
			return nil, err
		}
		out[articleID] = append(out[articleID], map[string]any{
			content.FieldID:   id,
			"name":            name,
			content.FieldSlug: slug,
		})
	}
	return out, rows.Err()
}

func (s *Store) authorRef(ctx context.Context, id sql.NullString, depth int) (any, error) {
	if !id.Valid || id.String == "" {
		return nil, nil
	}
	if depth == 0 {
		return id.String, nil
	}
	var fullName, slug string
	var bio sql.NullString
	err := s.conn.QueryRowContext(ctx,
		"SELECT full_name, slug, biography FROM authors WHERE id = ?", id.String,
	).Scan(&fullName, &slug, &bio)
	if errors.Is(err, sql.ErrNoRows) {
		return id.String, nil
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{
		content.FieldID:   id.String,
		"fullName":        fullName,
		content.FieldSlug: slug,
		"biography":       bio.String,
	}, nil
}

// refs renders references as ids at depth 0 and as records otherwise.
func refs(records []map[string]any, depth int) any {
	if depth == 0 {
		ids := make([]string, 0, len(records))
		for _, r := range records {
			ids = append(ids, r[content.FieldID].(string))
		}
		return ids
	}
	if records == nil {
		return []map[string]any{}
	}
	return records
}

func (s *Store) tagRecords(ctx context.Context, tail string, args []any, sel selector) ([]map[string]any, error) {
	rows, err := s.conn.QueryContext(ctx, "SELECT r.id, r.name, r.slug"+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tags: %w", err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var id, name, slug string
		if err := rows.Scan(&id, &name, &slug); err != nil {
			return nil, err
		}
		rec := map[string]any{content.FieldID: id}
		if sel.has("name") {
			rec["name"] = name
		}
		if sel.has(content.FieldSlug) {
			rec[content.FieldSlug] = slug
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) authorRecords(ctx context.Context, tail string, args []any, sel selector) ([]map[string]any, error) {
	rows, err := s.conn.QueryContext(ctx, "SELECT r.id, r.full_name, r.slug, r.biography"+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("querying authors: %w", err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var id, fullName, slug string
		var bio sql.NullString
		if err := rows.Scan(&id, &fullName, &slug, &bio); err != nil {
			return nil, err
		}
		rec := map[string]any{content.FieldID: id}
		if sel.has("fullName") {
			rec["fullName"] = fullName
		}
		if sel.has(content.FieldSlug) {
			rec[content.FieldSlug] = slug
		}
		if sel.has("biography") {
			rec["biography"] = bio.String
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
