// Package redis keeps crawl checkpoints in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/dualsub-crawler/internal/crawler"
)

// ErrEmptyAddress is returned when the Redis address is not configured.
var ErrEmptyAddress = errors.New("redis address is required")

const connectionTimeout = 5 * time.Second

// Config holds Redis connection configuration.
type Config struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
	Crawl     string
}

// Store implements crawler.CheckpointStore. Verdicts live in one hash and the
// cursor in a string key, both scoped by crawl name.
type Store struct {
	client      goredis.UniversalClient
	verdictsKey string
	cursorKey   string
}

var _ crawler.CheckpointStore = (*Store)(nil)

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewWithClient(client, cfg.KeyPrefix, cfg.Crawl), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client goredis.UniversalClient, prefix, crawl string) *Store {
	if prefix == "" {
		prefix = "dualsub"
	}
	if crawl == "" {
		crawl = "default"
	}
	base := prefix + ":" + crawl
	return &Store{
		client:      client,
		verdictsKey: base + ":classifications",
		cursorKey:   base + ":cursor",
	}
}

// Close closes the underlying client.
func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}

// Classification returns the cached verdict for id.
func (s *Store) Classification(ctx context.Context, id string) (bool, bool, error) {
	value, err := s.client.HGet(ctx, s.verdictsKey, id).Result()
	if errors.Is(err, goredis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("redis hget %s: %w", id, err)
	}
	qualifies, err := strconv.ParseBool(value)
	if err != nil {
		return false, false, fmt.Errorf("decode classification %s: %w", id, err)
	}
	return qualifies, true, nil
}

// PutClassification records the verdict for id unless one exists.
func (s *Store) PutClassification(ctx context.Context, id string, qualifies bool) error {
	if err := s.client.HSetNX(ctx, s.verdictsKey, id, strconv.FormatBool(qualifies)).Err(); err != nil {
		return fmt.Errorf("redis hsetnx %s: %w", id, err)
	}
	return nil
}

// ClassificationCount returns the number of cached verdicts.
func (s *Store) ClassificationCount(ctx context.Context) (int, error) {
	n, err := s.client.HLen(ctx, s.verdictsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hlen: %w", err)
	}
	return int(n), nil
}

// ResetClassifications deletes the verdict hash.
func (s *Store) ResetClassifications(ctx context.Context) error {
	if err := s.client.Del(ctx, s.verdictsKey).Err(); err != nil {
		return fmt.Errorf("redis del classifications: %w", err)
	}
	return nil
}

// Cursor returns the persisted cursor, or the start cursor when unset.
func (s *Store) Cursor(ctx context.Context) (crawler.Cursor, error) {
	raw, err := s.client.Get(ctx, s.cursorKey).Bytes()
	if errors.Is(err, goredis.Nil) {
		return crawler.Cursor{}, nil
	}
	if err != nil {
		return crawler.Cursor{}, fmt.Errorf("redis get cursor: %w", err)
	}
	var cursor crawler.Cursor
	if err := json.Unmarshal(raw, &cursor); err != nil {
		return crawler.Cursor{}, fmt.Errorf("decode cursor: %w", err)
	}
	return cursor, nil
}

// PutCursor stores cursor without expiry.
func (s *Store) PutCursor(ctx context.Context, cursor crawler.Cursor) error {
	raw, err := json.Marshal(cursor)
	if err != nil {
		return fmt.Errorf("encode cursor: %w", err)
	}
	if err := s.client.Set(ctx, s.cursorKey, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set cursor: %w", err)
	}
	return nil
}

// ResetCursor deletes the cursor key.
func (s *Store) ResetCursor(ctx context.Context) error {
	if err := s.client.Del(ctx, s.cursorKey).Err(); err != nil {
		return fmt.Errorf("redis del cursor: %w", err)
	}
	return nil
}
