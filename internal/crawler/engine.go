package crawler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Option customizes an Engine.
type Option func(*Engine)

// WithNotifier announces every newly qualified result.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithRecorder routes engine observations to r.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithRunID tags status snapshots with id. Callers tag the logger themselves.
func WithRunID(id string) Option {
	return func(e *Engine) { e.runID = id }
}

// Status is a point-in-time view of the engine for operators.
type Status struct {
	RunID     string    `json:"run_id,omitempty"`
	Running   bool      `json:"running"`
	StartedAt time.Time `json:"started_at,omitempty"`
	State     RunState  `json:"state"`
	Cursor    Cursor    `json:"cursor"`
	Results   int       `json:"results"`
	Outcome   *Outcome  `json:"outcome,omitempty"`
}

// Engine drives a crawl run: fetch a page, persist the cursor, classify unseen
// candidates, merge qualifying ones into the result set, and stop at the
// target or when the attempt budget is spent. It is strictly sequential.
type Engine struct {
	cfg         Config
	fallback    *Fallback
	classifier  Classifier
	checkpoints CheckpointStore
	results     ResultStore
	notifier    Notifier
	recorder    Recorder
	clock       Clock
	runID       string
	logger      *zap.Logger

	mu     sync.RWMutex
	status Status
}

// NewEngine wires the engine's collaborators.
func NewEngine(
	cfg Config,
	provider SearchProvider,
	classifier Classifier,
	checkpoints CheckpointStore,
	results ResultStore,
	logger *zap.Logger,
	opts ...Option,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		cfg:         cfg.withDefaults(),
		classifier:  classifier,
		checkpoints: checkpoints,
		results:     results,
		recorder:    nopRecorder{},
		clock:       systemClock{},
		logger:      logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.fallback = NewFallback(provider, e.cfg, e.recorder, e.logger.Named("fallback"))
	e.status.RunID = e.runID
	return e
}

// Run executes RunUntil with the configured target and attempt budget.
func (e *Engine) Run(ctx context.Context) (Outcome, error) {
	return e.RunUntil(ctx, e.cfg.TargetCount, e.cfg.MaxAttempts)
}

// RunUntil loops until the persisted result set holds targetCount entries or
// maxAttempts pages have been processed. Storage failures abort the run and
// are returned wrapped in ErrStorage; everything committed before the failure
// stays durable.
func (e *Engine) RunUntil(ctx context.Context, targetCount, maxAttempts int) (Outcome, error) {
	if targetCount <= 0 || maxAttempts <= 0 {
		err := fmt.Errorf("%w: target=%d max_attempts=%d", ErrInvalidRun, targetCount, maxAttempts)
		return e.finish(Outcome{Status: OutcomeAborted, Reason: err.Error()}), err
	}
	state := RunState{TargetCount: targetCount, MaxAttempts: maxAttempts}

	set, err := e.results.LoadResults(ctx)
	if err != nil {
		return e.abort(state, 0, 0, fmt.Errorf("%w: load results: %w", ErrStorage, err))
	}
	e.recorder.SetResults(len(set))
	e.logger.Info("starting crawl",
		zap.Int("results", len(set)),
		zap.Int("target", targetCount),
		zap.Int("max_attempts", maxAttempts),
	)
	e.begin(state, len(set))

	if len(set) >= targetCount {
		e.logger.Info("target already satisfied", zap.Int("results", len(set)), zap.Int("target", targetCount))
		return e.finish(Outcome{Status: OutcomeAlreadySatisfied, Results: len(set)}), nil
	}

	added := 0
	for {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("crawl interrupted between attempts", zap.Error(err))
			return e.finish(Outcome{
				Status:   OutcomeAborted,
				Reason:   "interrupted",
				Attempts: state.AttemptsUsed,
				Results:  len(set),
				Added:    added,
			}), nil
		}

		// An attempt is the unit of cancellation: once started it runs to
		// completion so the cursor and verdicts it persists stay consistent.
		newEntries, err := e.attempt(context.WithoutCancel(ctx), &state, set)
		set, _ = MergeResults(set, newEntries)
		added += len(newEntries)
		e.recorder.SetResults(len(set))
		if err != nil {
			return e.abort(state, len(set), added, err)
		}

		state.AttemptsUsed++
		e.update(state, len(set))
		e.logger.Info("attempt finished",
			zap.Int("attempt", state.AttemptsUsed),
			zap.Int("max_attempts", maxAttempts),
			zap.Int("new_results", len(newEntries)),
			zap.Int("results", len(set)),
			zap.Int("target", targetCount),
		)

		switch {
		case len(set) >= targetCount:
			return e.finish(Outcome{
				Status:   OutcomeTargetReached,
				Attempts: state.AttemptsUsed,
				Results:  len(set),
				Added:    added,
			}), nil
		case state.AttemptsUsed >= maxAttempts:
			e.logger.Warn("attempt budget exhausted before reaching target",
				zap.Int("results", len(set)),
				zap.Int("target", targetCount),
			)
			return e.finish(Outcome{
				Status:   OutcomeAttemptsExhausted,
				Attempts: state.AttemptsUsed,
				Results:  len(set),
				Added:    added,
			}), nil
		}
	}
}

// attempt processes one page. It returns the entries that were durably added
// even when it fails part way.
func (e *Engine) attempt(ctx context.Context, state *RunState, set []ResultEntry) ([]ResultEntry, error) {
	cursor, err := e.checkpoints.Cursor(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load cursor: %w", ErrStorage, err)
	}

	step := e.fallback.Next(ctx, cursor, state)
	if err := e.checkpoints.PutCursor(ctx, step.Cursor); err != nil {
		return nil, fmt.Errorf("%w: persist cursor: %w", ErrStorage, err)
	}
	e.setCursor(step.Cursor)
	e.logger.Debug("page fetched",
		zap.String("profile", step.Profile),
		zap.Int("items", len(step.Items)),
		zap.Int("search_calls", step.Calls),
		zap.Bool("has_next", !step.Cursor.IsStart()),
	)

	known := make(map[string]struct{}, len(set))
	for _, entry := range set {
		known[entry.ID] = struct{}{}
	}
	var added []ResultEntry
	for _, item := range step.Items {
		entry, ok, err := e.process(ctx, item, known)
		if ok {
			known[entry.ID] = struct{}{}
			added = append(added, entry)
		}
		if err != nil {
			return added, err
		}
	}
	return added, nil
}

// process classifies one candidate unless its verdict is already cached. A
// qualifying entry is appended to the result store before its verdict is
// recorded, so a cached true always has its entry persisted.
func (e *Engine) process(ctx context.Context, item CandidateItem, known map[string]struct{}) (ResultEntry, bool, error) {
	_, cached, err := e.checkpoints.Classification(ctx, item.ID)
	if err != nil {
		return ResultEntry{}, false, fmt.Errorf("%w: read classification %s: %w", ErrStorage, item.ID, err)
	}
	if cached {
		e.recorder.ObserveSkipped()
		e.logger.Debug("skipping already classified item", zap.String("id", item.ID))
		return ResultEntry{}, false, nil
	}

	qualifies := e.classifier.Classify(ctx, item)
	e.recorder.ObserveClassification(qualifies)

	var entry ResultEntry
	isNew := false
	if qualifies {
		entry = NewResultEntry(item)
		if _, dup := known[entry.ID]; !dup {
			if err := e.results.AppendResults(ctx, entry); err != nil {
				return ResultEntry{}, false, fmt.Errorf("%w: append result %s: %w", ErrStorage, item.ID, err)
			}
			isNew = true
		}
	}
	if err := e.checkpoints.PutClassification(ctx, item.ID, qualifies); err != nil {
		return entry, isNew, fmt.Errorf("%w: persist classification %s: %w", ErrStorage, item.ID, err)
	}
	if isNew {
		e.logger.Info("found qualifying item",
			zap.String("id", entry.ID),
			zap.String("title", entry.Title),
			zap.String("channel", entry.ChannelTitle),
		)
		e.notify(ctx, entry)
	}
	return entry, isNew, nil
}

func (e *Engine) notify(ctx context.Context, entry ResultEntry) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, entry); err != nil {
		e.logger.Warn("result notification failed", zap.String("id", entry.ID), zap.Error(err))
	}
}

func (e *Engine) abort(state RunState, results, added int, err error) (Outcome, error) {
	e.logger.Error("crawl aborted", zap.Int("attempts", state.AttemptsUsed), zap.Error(err))
	return e.finish(Outcome{
		Status:   OutcomeAborted,
		Reason:   err.Error(),
		Attempts: state.AttemptsUsed,
		Results:  results,
		Added:    added,
	}), err
}

// Status returns a snapshot of the current or last run.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	snapshot := e.status
	if e.status.Outcome != nil {
		outcome := *e.status.Outcome
		snapshot.Outcome = &outcome
	}
	return snapshot
}

func (e *Engine) begin(state RunState, results int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.Running = true
	e.status.StartedAt = e.clock.Now()
	e.status.State = state
	e.status.Results = results
	e.status.Outcome = nil
}

func (e *Engine) update(state RunState, results int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.State = state
	e.status.Results = results
}

func (e *Engine) setCursor(cursor Cursor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.Cursor = cursor
}

func (e *Engine) finish(outcome Outcome) Outcome {
	e.recorder.ObserveOutcome(outcome.Status)
	e.mu.Lock()
	e.status.Running = false
	e.status.Outcome = &outcome
	if outcome.Results > e.status.Results {
		e.status.Results = outcome.Results
	}
	e.mu.Unlock()
	e.logger.Info("crawl finished",
		zap.Stringer("outcome", outcome),
		zap.Int("attempts", outcome.Attempts),
		zap.Int("results", outcome.Results),
		zap.Int("added", outcome.Added),
	)
	return outcome
}
