// Package memory contains an in-memory notifier for tests and dry runs.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/dualsub-crawler/internal/crawler"
)

// Notifier records every announced result.
type Notifier struct {
	mu      sync.RWMutex
	entries []crawler.ResultEntry
}

var _ crawler.Notifier = (*Notifier)(nil)

// New returns a memory Notifier.
func New() *Notifier {
	return &Notifier{}
}

// Notify records entry.
func (n *Notifier) Notify(_ context.Context, entry crawler.ResultEntry) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries = append(n.entries, entry)
	return nil
}

// Entries returns the recorded results.
func (n *Notifier) Entries() []crawler.ResultEntry {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]crawler.ResultEntry, len(n.entries))
	copy(out, n.entries)
	return out
}
