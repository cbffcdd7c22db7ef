package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/dualsub-crawler/internal/crawler"
)

// ResultStore is an in-memory crawler.ResultStore.
type ResultStore struct {
	mu      sync.RWMutex
	entries []crawler.ResultEntry
}

// NewResultStore constructs a ResultStore seeded with entries.
func NewResultStore(entries ...crawler.ResultEntry) *ResultStore {
	merged, _ := crawler.MergeResults(nil, entries)
	return &ResultStore{entries: merged}
}

// LoadResults returns a copy of the stored entries.
func (s *ResultStore) LoadResults(context.Context) ([]crawler.ResultEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.ResultEntry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

// AppendResults merges entries into the store.
func (s *ResultStore) AppendResults(_ context.Context, entries ...crawler.ResultEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries, _ = crawler.MergeResults(s.entries, entries)
	return nil
}
