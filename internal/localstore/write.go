package localstore

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/TobiSchelling/blogagg/internal/content"
)

// NewArticle holds the fields of an article to insert.
type NewArticle struct {
	Slug      string
	Title     string
	Body      string
	AuthorID  string
	TagIDs    []string
	CreatedAt time.Time
	// Source identifies where the article was imported from (feed GUID or
	// link). Empty for hand-written records.
	Source string
}

// Stats contains record counts of the local store.
type Stats struct {
	Articles int
	Tags     int
	Authors  int
}

// UpsertApp creates or replaces the application record.
func (s *Store) UpsertApp(app content.App) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	var cover *string
	if app.Cover != nil && app.Cover.Src != "" {
		cover = &app.Cover.Src
	}
	_, err := s.conn.Exec(
		`INSERT INTO apps (uid, id, name, description, cover_src) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(uid) DO UPDATE SET name = excluded.name, description = excluded.description, cover_src = excluded.cover_src`,
		app.UID, app.ID, app.Name, app.Description, cover,
	)
	return err
}

// InsertTag returns the id of the tag with slug, creating it if needed.
func (s *Store) InsertTag(name, slug string) (string, error) {
	if id, err := s.lookupID("tags", slug); err != nil || id != "" {
		return id, err
	}
	id := uuid.NewString()
	if _, err := s.conn.Exec("INSERT INTO tags (id, name, slug) VALUES (?, ?, ?)", id, name, slug); err != nil {
		return "", fmt.Errorf("inserting tag %s: %w", slug, err)
	}
	return id, nil
}

// InsertAuthor returns the id of the author with slug, creating it if needed.
func (s *Store) InsertAuthor(fullName, slug, biography string) (string, error) {
	if id, err := s.lookupID("authors", slug); err != nil || id != "" {
		return id, err
	}
	id := uuid.NewString()
	if _, err := s.conn.Exec(
		"INSERT INTO authors (id, full_name, slug, biography) VALUES (?, ?, ?, ?)",
		id, fullName, slug, nullable(biography),
	); err != nil {
		return "", fmt.Errorf("inserting author %s: %w", slug, err)
	}
	return id, nil
}

// InsertArticle inserts an article. Returns the new id, or "" if an article
// with the same slug already exists.
func (s *Store) InsertArticle(a NewArticle) (string, error) {
	existing, err := s.lookupID("articles", a.Slug)
	if err != nil {
		return "", err
	}
	if existing != "" {
		return "", nil
	}

	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	id := uuid.NewString()

	tx, err := s.conn.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO articles (id, slug, title, body, author_id, created_at, updated_at, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, a.Slug, a.Title, nullable(a.Body), nullable(a.AuthorID), created.UnixMilli(), created.UnixMilli(), nullable(a.Source),
	); err != nil {
		return "", fmt.Errorf("inserting article %s: %w", a.Slug, err)
	}
	for i, tagID := range a.TagIDs {
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO article_tags (article_id, tag_id, position) VALUES (?, ?, ?)",
			id, tagID, i,
		); err != nil {
			return "", fmt.Errorf("tagging article %s: %w", a.Slug, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// Stats returns record counts.
func (s *Store) Stats() (*Stats, error) {
	st := &Stats{}
	for table, dst := range map[string]*int{
		"articles": &st.Articles,
		"tags":     &st.Tags,
		"authors":  &st.Authors,
	} {
		if err := s.conn.QueryRow("SELECT COUNT(*) FROM " + table).Scan(dst); err != nil {
			return nil, fmt.Errorf("counting %s: %w", table, err)
		}
	}
	return st, nil
}

// HasArticle reports whether an article with slug exists.
func (s *Store) HasArticle(slug string) (bool, error) {
	id, err := s.lookupID("articles", slug)
	return id != "", err
}

// HasSource reports whether an article imported from source exists.
func (s *Store) HasSource(source string) (bool, error) {
	var n int
	if err := s.conn.QueryRow("SELECT COUNT(*) FROM articles WHERE source = ?", source).Scan(&n); err != nil {
		return false, fmt.Errorf("looking up article source %s: %w", source, err)
	}
	return n > 0, nil
}

func (s *Store) lookupID(table, slug string) (string, error) {
	var id string
	err := s.conn.QueryRow("SELECT id FROM "+table+" WHERE slug = ?", slug).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("looking up %s %s: %w", table, slug, err)
	}
	return id, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
