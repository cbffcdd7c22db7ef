// Package sqlite persists crawl checkpoints and results in a single SQLite
// database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/dualsub-crawler/internal/crawler"
)

const schema = `
CREATE TABLE IF NOT EXISTS classifications (
	crawl     TEXT    NOT NULL,
	video_id  TEXT    NOT NULL,
	qualifies INTEGER NOT NULL,
	PRIMARY KEY (crawl, video_id)
);
CREATE TABLE IF NOT EXISTS crawl_cursors (
	crawl   TEXT PRIMARY KEY,
	token   TEXT NOT NULL,
	profile TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS results (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	crawl         TEXT NOT NULL,
	video_id      TEXT NOT NULL,
	title         TEXT NOT NULL,
	channel_title TEXT NOT NULL,
	published_at  TEXT NOT NULL,
	url           TEXT NOT NULL,
	UNIQUE (crawl, video_id)
);`

// Config selects the database file.
type Config struct {
	Path  string
	Crawl string
}

// Store implements crawler.CheckpointStore and crawler.ResultStore.
type Store struct {
	db    *sql.DB
	crawl string
}

var (
	_ crawler.CheckpointStore = (*Store)(nil)
	_ crawler.ResultStore     = (*Store)(nil)
)

// Open opens or creates the database at cfg.Path and applies the schema.
// Commits are synced to disk before they return.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if cfg.Crawl == "" {
		return nil, fmt.Errorf("crawl name is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	dsn := cfg.Path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &Store{db: db, crawl: cfg.Crawl}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

// Classification returns the cached verdict for id.
func (s *Store) Classification(ctx context.Context, id string) (bool, bool, error) {
	var qualifies bool
	err := s.db.QueryRowContext(ctx,
		`SELECT qualifies FROM classifications WHERE crawl = ? AND video_id = ?`, s.crawl, id,
	).Scan(&qualifies)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("select classification: %w", err)
	}
	return qualifies, true, nil
}

// PutClassification records the verdict for id unless one exists.
func (s *Store) PutClassification(ctx context.Context, id string, qualifies bool) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO classifications (crawl, video_id, qualifies) VALUES (?, ?, ?)`,
		s.crawl, id, qualifies,
	); err != nil {
		return fmt.Errorf("insert classification: %w", err)
	}
	return nil
}

// ClassificationCount returns the number of cached verdicts.
func (s *Store) ClassificationCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM classifications WHERE crawl = ?`, s.crawl,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count classifications: %w", err)
	}
	return count, nil
}

// ResetClassifications forgets every verdict of the crawl.
func (s *Store) ResetClassifications(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM classifications WHERE crawl = ?`, s.crawl); err != nil {
		return fmt.Errorf("delete classifications: %w", err)
	}
	return nil
}

// Cursor returns the persisted cursor, or the start cursor when none is stored.
func (s *Store) Cursor(ctx context.Context) (crawler.Cursor, error) {
	var cursor crawler.Cursor
	err := s.db.QueryRowContext(ctx,
		`SELECT token, profile FROM crawl_cursors WHERE crawl = ?`, s.crawl,
	).Scan(&cursor.Token, &cursor.Profile)
	if errors.Is(err, sql.ErrNoRows) {
		return crawler.Cursor{}, nil
	}
	if err != nil {
		return crawler.Cursor{}, fmt.Errorf("select cursor: %w", err)
	}
	return cursor, nil
}

// PutCursor upserts the crawl's cursor.
func (s *Store) PutCursor(ctx context.Context, cursor crawler.Cursor) error {
	if _, err := s.db.ExecContext(ctx, `
INSERT INTO crawl_cursors (crawl, token, profile) VALUES (?, ?, ?)
ON CONFLICT (crawl) DO UPDATE SET token = excluded.token, profile = excluded.profile`,
		s.crawl, cursor.Token, cursor.Profile,
	); err != nil {
		return fmt.Errorf("upsert cursor: %w", err)
	}
	return nil
}

// ResetCursor deletes the crawl's cursor.
func (s *Store) ResetCursor(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM crawl_cursors WHERE crawl = ?`, s.crawl); err != nil {
		return fmt.Errorf("delete cursor: %w", err)
	}
	return nil
}

// LoadResults returns the result set in insertion order.
func (s *Store) LoadResults(ctx context.Context) ([]crawler.ResultEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT video_id, title, channel_title, published_at, url
FROM results WHERE crawl = ? ORDER BY seq`, s.crawl)
	if err != nil {
		return nil, fmt.Errorf("select results: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []crawler.ResultEntry
	for rows.Next() {
		var (
			entry     crawler.ResultEntry
			published string
		)
		if err := rows.Scan(&entry.ID, &entry.Title, &entry.ChannelTitle, &published, &entry.URL); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if entry.PublishedAt, err = time.Parse(time.RFC3339Nano, published); err != nil {
			return nil, fmt.Errorf("decode published_at of %s: %w", entry.ID, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return entries, nil
}

// AppendResults inserts entries in one transaction, skipping known ids.
func (s *Store) AppendResults(ctx context.Context, entries ...crawler.ResultEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin results tx: %w", err)
	}
	for _, entry := range entries {
		if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO results (crawl, video_id, title, channel_title, published_at, url)
VALUES (?, ?, ?, ?, ?, ?)`,
			s.crawl, entry.ID, entry.Title, entry.ChannelTitle,
			entry.PublishedAt.UTC().Format(time.RFC3339Nano), entry.URL,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert result %s: %w", entry.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit results tx: %w", err)
	}
	return nil
}
