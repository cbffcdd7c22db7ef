package crawler

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrStorage marks failures of the checkpoint or result stores. The engine
// aborts the run on any error wrapping it.
var ErrStorage = errors.New("durable storage failure")

// ErrInvalidRun is returned when run parameters are unusable.
var ErrInvalidRun = errors.New("invalid run parameters")

// WatchURLPrefix is used to derive the canonical URL of a result.
const WatchURLPrefix = "https://www.youtube.com/watch?v="

// CandidateItem is one search hit as returned by a SearchProvider. It is
// treated as immutable once produced.
type CandidateItem struct {
	ID                   string
	Title                string
	ChannelTitle         string
	PublishedAt          time.Time
	DefaultLanguage      string
	DefaultAudioLanguage string
	Raw                  json.RawMessage
}

// LanguageHints returns the declared metadata languages that are set.
func (c CandidateItem) LanguageHints() []string {
	hints := make([]string, 0, 2)
	if c.DefaultLanguage != "" {
		hints = append(hints, c.DefaultLanguage)
	}
	if c.DefaultAudioLanguage != "" {
		hints = append(hints, c.DefaultAudioLanguage)
	}
	return hints
}

// SourceProfile is a named set of query parameters that reaches a slice of the
// search index.
type SourceProfile struct {
	Name              string `json:"name" mapstructure:"name"`
	RegionCode        string `json:"region_code" mapstructure:"region_code"`
	RelevanceLanguage string `json:"relevance_language" mapstructure:"relevance_language"`
	Query             string `json:"query" mapstructure:"query"`
}

// Cursor is the persisted pagination position. An empty Token means the
// start of the sequence for Profile.
type Cursor struct {
	Token   string `json:"nextPageToken,omitempty"`
	Profile string `json:"profile,omitempty"`
}

// IsStart reports whether the cursor points at the beginning of a sequence.
func (c Cursor) IsStart() bool {
	return c.Token == ""
}

// Page is one page of search results.
type Page struct {
	Items []CandidateItem
	Next  string
}

// Track describes one caption track available for an item.
type Track struct {
	Language      string
	AutoGenerated bool
	Translatable  bool
}

// ResultEntry is a qualifying item as persisted in the result set.
type ResultEntry struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	ChannelTitle string    `json:"channel_title"`
	PublishedAt  time.Time `json:"published_at"`
	URL          string    `json:"url"`
}

// NewResultEntry derives the persisted form of a qualifying candidate.
func NewResultEntry(item CandidateItem) ResultEntry {
	return ResultEntry{
		ID:           item.ID,
		Title:        item.Title,
		ChannelTitle: item.ChannelTitle,
		PublishedAt:  item.PublishedAt,
		URL:          WatchURLPrefix + item.ID,
	}
}

// RunState is the in-memory bookkeeping of a single run.
type RunState struct {
	AttemptsUsed          int `json:"attempts_used"`
	ConsecutiveEmptyPages int `json:"consecutive_empty_pages"`
	TargetCount           int `json:"target_count"`
	MaxAttempts           int `json:"max_attempts"`
}

// OutcomeStatus is the terminal state of a run.
type OutcomeStatus string

// Run outcomes.
const (
	OutcomeAlreadySatisfied  OutcomeStatus = "already_satisfied"
	OutcomeTargetReached     OutcomeStatus = "target_reached"
	OutcomeAttemptsExhausted OutcomeStatus = "attempts_exhausted"
	OutcomeAborted           OutcomeStatus = "aborted"
)

// Outcome summarizes a finished run.
type Outcome struct {
	Status   OutcomeStatus `json:"status"`
	Reason   string        `json:"reason,omitempty"`
	Attempts int           `json:"attempts"`
	Results  int           `json:"results"`
	Added    int           `json:"added"`
}

// String renders the outcome for logs and CLI output.
func (o Outcome) String() string {
	if o.Status == OutcomeAborted {
		return fmt.Sprintf("aborted(%s)", o.Reason)
	}
	return string(o.Status)
}
