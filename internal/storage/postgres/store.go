// Package postgres provides Postgres-backed checkpoint and result persistence.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/dualsub-crawler/internal/crawler"
)

// Schema creates the tables used by Store.
const Schema = `
CREATE TABLE IF NOT EXISTS classifications (
	crawl         TEXT        NOT NULL,
	video_id      TEXT        NOT NULL,
	qualifies     BOOLEAN     NOT NULL,
	classified_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (crawl, video_id)
);
CREATE TABLE IF NOT EXISTS crawl_cursors (
	crawl      TEXT        PRIMARY KEY,
	token      TEXT        NOT NULL,
	profile    TEXT        NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS results (
	seq           BIGSERIAL,
	crawl         TEXT        NOT NULL,
	video_id      TEXT        NOT NULL,
	title         TEXT        NOT NULL,
	channel_title TEXT        NOT NULL,
	published_at  TIMESTAMPTZ NOT NULL,
	url           TEXT        NOT NULL,
	PRIMARY KEY (crawl, video_id)
);`

// Config controls the Postgres connection pool.
type Config struct {
	DSN string
	// Crawl scopes every row so several crawls can share the tables.
	Crawl           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// Migrate creates the tables on open.
	Migrate bool
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// Store implements crawler.CheckpointStore and crawler.ResultStore.
type Store struct {
	pool  querier
	crawl string
}

var (
	_ crawler.CheckpointStore = (*Store)(nil)
	_ crawler.ResultStore     = (*Store)(nil)
)

// New connects to Postgres using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("checkpoint.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(pool, cfg.Crawl)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if cfg.Migrate {
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool querier, crawl string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if crawl == "" {
		return nil, fmt.Errorf("crawl name is required")
	}
	return &Store{pool: pool, crawl: crawl}, nil
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate postgres schema: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Classification returns the cached verdict for id.
func (s *Store) Classification(ctx context.Context, id string) (bool, bool, error) {
	var qualifies bool
	err := s.pool.QueryRow(ctx,
		`SELECT qualifies FROM classifications WHERE crawl = $1 AND video_id = $2`,
		s.crawl, id,
	).Scan(&qualifies)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("select classification: %w", err)
	}
	return qualifies, true, nil
}

// PutClassification records the verdict for id. An existing verdict is kept.
func (s *Store) PutClassification(ctx context.Context, id string, qualifies bool) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO classifications (crawl, video_id, qualifies)
VALUES ($1, $2, $3)
ON CONFLICT (crawl, video_id) DO NOTHING`,
		s.crawl, id, qualifies,
	)
	if err != nil {
		return fmt.Errorf("insert classification: %w", err)
	}
	return nil
}

// ClassificationCount returns the number of cached verdicts.
func (s *Store) ClassificationCount(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM classifications WHERE crawl = $1`, s.crawl,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count classifications: %w", err)
	}
	return count, nil
}

// ResetClassifications forgets every cached verdict of the crawl.
func (s *Store) ResetClassifications(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM classifications WHERE crawl = $1`, s.crawl); err != nil {
		return fmt.Errorf("delete classifications: %w", err)
	}
	return nil
}

// Cursor returns the persisted cursor, or the start cursor when none is stored.
func (s *Store) Cursor(ctx context.Context) (crawler.Cursor, error) {
	var cursor crawler.Cursor
	err := s.pool.QueryRow(ctx,
		`SELECT token, profile FROM crawl_cursors WHERE crawl = $1`, s.crawl,
	).Scan(&cursor.Token, &cursor.Profile)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Cursor{}, nil
	}
	if err != nil {
		return crawler.Cursor{}, fmt.Errorf("select cursor: %w", err)
	}
	return cursor, nil
}

// PutCursor upserts the crawl's cursor.
func (s *Store) PutCursor(ctx context.Context, cursor crawler.Cursor) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO crawl_cursors (crawl, token, profile, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (crawl) DO UPDATE
SET token = EXCLUDED.token, profile = EXCLUDED.profile, updated_at = EXCLUDED.updated_at`,
		s.crawl, cursor.Token, cursor.Profile,
	)
	if err != nil {
		return fmt.Errorf("upsert cursor: %w", err)
	}
	return nil
}

// ResetCursor deletes the crawl's cursor.
func (s *Store) ResetCursor(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM crawl_cursors WHERE crawl = $1`, s.crawl); err != nil {
		return fmt.Errorf("delete cursor: %w", err)
	}
	return nil
}

// LoadResults returns the result set in insertion order.
func (s *Store) LoadResults(ctx context.Context) ([]crawler.ResultEntry, error) {
	rows, err := s.pool.Query(ctx, `
SELECT video_id, title, channel_title, published_at, url
FROM results
WHERE crawl = $1
ORDER BY seq`, s.crawl)
	if err != nil {
		return nil, fmt.Errorf("select results: %w", err)
	}
	defer rows.Close()

	var entries []crawler.ResultEntry
	for rows.Next() {
		var entry crawler.ResultEntry
		if err := rows.Scan(&entry.ID, &entry.Title, &entry.ChannelTitle, &entry.PublishedAt, &entry.URL); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
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
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin results tx: %w", err)
	}
	for _, entry := range entries {
		_, err := tx.Exec(ctx, `
INSERT INTO results (crawl, video_id, title, channel_title, published_at, url)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (crawl, video_id) DO NOTHING`,
			s.crawl, entry.ID, entry.Title, entry.ChannelTitle, entry.PublishedAt, entry.URL,
		)
		if err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("insert result %s: %w", entry.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit results tx: %w", err)
	}
	return nil
}
