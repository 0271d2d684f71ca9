package localstore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested app does not exist.
var ErrNotFound = errors.New("not found")

// Models maps store model uids onto the local tables.
type Models struct {
	Article string
	Tag     string
	Author  string
}

// Store is a SQLite-backed content store that answers the same queries as
// the remote delivery API. It is used for offline development and tests.
type Store struct {
	conn   *sql.DB
	path   string
	models Models
}

// Open creates or opens a local content store at the given path.
func Open(dbPath string, models Models) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	if models.Article == "" {
		models.Article = "article"
	}
	if models.Tag == "" {
		models.Tag = "tag"
	}
	if models.Author == "" {
		models.Author = "author"
	}

	return &Store{conn: conn, path: dbPath, models: models}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}
