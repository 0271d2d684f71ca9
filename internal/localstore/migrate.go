package localstore

import (
	"database/sql"
	"fmt"
	"log"
)

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "content schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS apps (
    uid TEXT PRIMARY KEY,
    id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    cover_src TEXT
);

CREATE TABLE IF NOT EXISTS tags (
    position INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT UNIQUE NOT NULL,
    name TEXT NOT NULL,
    slug TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS authors (
    position INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT UNIQUE NOT NULL,
    full_name TEXT NOT NULL,
    slug TEXT UNIQUE NOT NULL,
    biography TEXT
);

CREATE TABLE IF NOT EXISTS articles (
    position INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT UNIQUE NOT NULL,
    slug TEXT UNIQUE NOT NULL,
    title TEXT NOT NULL,
    body TEXT,
    author_id TEXT REFERENCES authors(id),
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS article_tags (
    article_id TEXT NOT NULL REFERENCES articles(id),
    tag_id TEXT NOT NULL REFERENCES tags(id),
    position INTEGER NOT NULL,
    PRIMARY KEY (article_id, tag_id)
);

CREATE INDEX IF NOT EXISTS idx_articles_created ON articles(created_at);
CREATE INDEX IF NOT EXISTS idx_articles_author ON articles(author_id);
CREATE INDEX IF NOT EXISTS idx_article_tags_tag ON article_tags(tag_id);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "article source identity",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
ALTER TABLE articles ADD COLUMN source TEXT;
CREATE UNIQUE INDEX IF NOT EXISTS idx_articles_source ON articles(source) WHERE source IS NOT NULL;
`)
			return err
		},
	},
}

// latestVersion is the content schema version a fully migrated store has.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}

// schemaVersion returns the content schema version recorded in the store.
func schemaVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading content schema version: %w", err)
	}
	return version, nil
}

// migrate applies the pending content schema migrations in order, each in
// its own transaction. The store version is bumped after every step so an
// interrupted run resumes at the failed migration.
func migrate(conn *sql.DB) error {
	applied, err := schemaVersion(conn)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= applied {
			continue
		}
		log.Printf("content store: migrating schema v%d -> v%d (%s)", applied, m.Version, m.Description)
		if err := applyMigration(conn, m); err != nil {
			return err
		}
		applied = m.Version
	}
	return nil
}

func applyMigration(conn *sql.DB, m Migration) error {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("content schema v%d: %w", m.Version, err)
	}
	if err := m.Up(tx); err != nil {
		tx.Rollback()
		return fmt.Errorf("content schema v%d (%s): %w", m.Version, m.Description, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("content schema v%d: committing: %w", m.Version, err)
	}
	// modernc/sqlite ignores user_version set inside a transaction.
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
		return fmt.Errorf("content schema v%d: recording version: %w", m.Version, err)
	}
	return nil
}
