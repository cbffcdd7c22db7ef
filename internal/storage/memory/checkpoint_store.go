// Package memory keeps crawl checkpoints and results in process memory for
// development, dry runs and tests.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/dualsub-crawler/internal/crawler"
)

// CheckpointStore is an in-memory crawler.CheckpointStore.
type CheckpointStore struct {
	mu              sync.RWMutex
	classifications map[string]bool
	cursor          crawler.Cursor
	cursorWrites    []crawler.Cursor
}

// NewCheckpointStore constructs an empty CheckpointStore.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{classifications: make(map[string]bool)}
}

// Classification returns the cached verdict for id.
func (s *CheckpointStore) Classification(_ context.Context, id string) (bool, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	qualifies, found := s.classifications[id]
	return qualifies, found, nil
}

// PutClassification records a verdict. An existing verdict is kept.
func (s *CheckpointStore) PutClassification(_ context.Context, id string, qualifies bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.classifications[id]; !exists {
		s.classifications[id] = qualifies
	}
	return nil
}

// ClassificationCount returns the number of cached verdicts.
func (s *CheckpointStore) ClassificationCount(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.classifications), nil
}

// ResetClassifications clears the verdict cache.
func (s *CheckpointStore) ResetClassifications(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classifications = make(map[string]bool)
	return nil
}

// Cursor returns the stored cursor.
func (s *CheckpointStore) Cursor(context.Context) (crawler.Cursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor, nil
}

// PutCursor stores cursor.
func (s *CheckpointStore) PutCursor(_ context.Context, cursor crawler.Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = cursor
	s.cursorWrites = append(s.cursorWrites, cursor)
	return nil
}

// ResetCursor moves the cursor back to the start of the sequence.
func (s *CheckpointStore) ResetCursor(ctx context.Context) error {
	return s.PutCursor(ctx, crawler.Cursor{})
}

// CursorWrites returns every cursor persisted so far, oldest first.
func (s *CheckpointStore) CursorWrites() []crawler.Cursor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Cursor, len(s.cursorWrites))
	copy(out, s.cursorWrites)
	return out
}
