package crawler

import (
	"context"
	"time"
)

// SearchProvider returns one page of candidates for a cursor and profile.
type SearchProvider interface {
	Search(ctx context.Context, cursor Cursor, profile SourceProfile, pageSize int) (Page, error)
}

// Classifier decides whether a candidate qualifies. Implementations fail
// closed: lookup errors yield false rather than an error.
type Classifier interface {
	Classify(ctx context.Context, item CandidateItem) bool
}

// TrackLookup lists the caption tracks of an item.
type TrackLookup interface {
	ListTracks(ctx context.Context, itemID string) ([]Track, error)
	ListTranslationTargets(ctx context.Context, itemID string) ([]string, error)
}

// CheckpointStore persists the classification cache and the pagination
// cursor. Writes must be durable when they return.
type CheckpointStore interface {
	Classification(ctx context.Context, id string) (qualifies bool, found bool, err error)
	PutClassification(ctx context.Context, id string, qualifies bool) error
	ClassificationCount(ctx context.Context) (int, error)
	ResetClassifications(ctx context.Context) error
	Cursor(ctx context.Context) (Cursor, error)
	PutCursor(ctx context.Context, cursor Cursor) error
	ResetCursor(ctx context.Context) error
}

// ResultStore persists the ordered, deduplicated result set. AppendResults
// ignores ids that are already stored.
type ResultStore interface {
	LoadResults(ctx context.Context) ([]ResultEntry, error)
	AppendResults(ctx context.Context, entries ...ResultEntry) error
}

// Notifier announces newly qualified results to downstream consumers.
type Notifier interface {
	Notify(ctx context.Context, entry ResultEntry) error
}

// Exporter publishes a snapshot of the full result set.
type Exporter interface {
	Export(ctx context.Context, entries []ResultEntry) (string, error)
}

// Recorder receives engine observations (Prometheus in production).
type Recorder interface {
	ObservePage(profile string, items int, failed bool)
	ObserveClassification(qualifies bool)
	ObserveSkipped()
	SetResults(n int)
	ObserveOutcome(status OutcomeStatus)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

type nopRecorder struct{}

func (nopRecorder) ObservePage(string, int, bool) {}
func (nopRecorder) ObserveClassification(bool)    {}
func (nopRecorder) ObserveSkipped()               {}
func (nopRecorder) SetResults(int)                {}
func (nopRecorder) ObserveOutcome(OutcomeStatus)  {}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
