package crawler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type fallbackState int

// States of the escalation ladder walked during one attempt.
const (
	// statePrimary fetches at the persisted cursor on the cursor's own profile.
	statePrimary fallbackState = iota
	stateRetrying
	stateAlternate
	stateResetting
	stateDone
)

func (s fallbackState) String() string {
	switch s {
	case statePrimary:
		return "primary"
	case stateRetrying:
		return "retrying"
	case stateAlternate:
		return "alternate"
	case stateResetting:
		return "resetting"
	default:
		return "done"
	}
}

// Step is what one attempt through the fallback ladder produced.
type Step struct {
	Items []CandidateItem
	// Cursor is the position to persist before any item is classified.
	Cursor Cursor
	// Profile names the source profile that produced Items.
	Profile string
	// Calls counts the search requests issued.
	Calls int
}

// Fallback decides how to fetch the next page: continue at the cursor, retry
// once at a returned cursor, switch to the alternate profile, or reset.
type Fallback struct {
	provider SearchProvider
	cfg      Config
	recorder Recorder
	logger   *zap.Logger
}

// NewFallback builds the strategy for cfg's profiles and thresholds.
func NewFallback(provider SearchProvider, cfg Config, recorder Recorder, logger *zap.Logger) *Fallback {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fallback{
		provider: provider,
		cfg:      cfg.withDefaults(),
		recorder: recorder,
		logger:   logger,
	}
}

// Next fetches one page starting from cursor and updates the empty-page streak
// held in state. It never fails: fetch errors count as empty pages that leave
// the cursor where it was.
func (f *Fallback) Next(ctx context.Context, cursor Cursor, state *RunState) Step {
	profile := f.profileFor(cursor)
	if cursor.Profile != "" && cursor.Profile != profile.Name {
		f.logger.Warn("cursor belongs to an unknown profile, restarting primary",
			zap.String("profile", cursor.Profile),
		)
		cursor.Token = ""
	}
	cursor.Profile = profile.Name

	var step Step
	current := statePrimary
	for {
		f.logger.Debug("fallback state",
			zap.Stringer("state", current),
			zap.String("profile", profile.Name),
			zap.String("cursor", cursor.Token),
		)
		switch current {
		case statePrimary, stateRetrying:
			page, ok := f.fetch(ctx, profile, cursor.Token, &step)
			if len(page.Items) > 0 {
				return f.accept(page, profile, state, step)
			}
			if ok && current == statePrimary && page.Next != "" {
				cursor.Token = page.Next
				current = stateRetrying
				continue
			}
			// A failed call keeps the token it was issued at.
			if ok {
				cursor.Token = page.Next
			}
			current = f.afterEmpty(profile, state)
		case stateAlternate:
			alternate := f.cfg.Fallback
			f.logger.Info("primary profile exhausted, trying alternate profile",
				zap.String("primary", f.cfg.Primary.Name),
				zap.String("alternate", alternate.Name),
				zap.Int("consecutive_empty_pages", state.ConsecutiveEmptyPages),
			)
			page, ok := f.fetch(ctx, alternate, "", &step)
			if len(page.Items) > 0 {
				return f.accept(page, alternate, state, step)
			}
			switch {
			case !ok:
				// The alternate was never reached; stay on the primary cursor.
			case page.Next != "":
				profile, cursor = alternate, Cursor{Token: page.Next, Profile: alternate.Name}
			default:
				profile, cursor = f.cfg.Primary, Cursor{Profile: f.cfg.Primary.Name}
			}
			current = stateDone
			if state.ConsecutiveEmptyPages >= f.cfg.EmptyPageThreshold {
				current = stateResetting
			}
		case stateResetting:
			f.logger.Info("resetting cursor after consecutive empty pages",
				zap.Int("consecutive_empty_pages", state.ConsecutiveEmptyPages),
			)
			state.ConsecutiveEmptyPages = 0
			step.Cursor = Cursor{Profile: f.cfg.Primary.Name}
			step.Profile = profile.Name
			return step
		default:
			step.Cursor = cursor
			step.Profile = profile.Name
			return step
		}
	}
}

func (f *Fallback) afterEmpty(profile SourceProfile, state *RunState) fallbackState {
	state.ConsecutiveEmptyPages++
	if profile.Name == f.cfg.Primary.Name && f.cfg.HasFallback() {
		return stateAlternate
	}
	if state.ConsecutiveEmptyPages >= f.cfg.EmptyPageThreshold {
		return stateResetting
	}
	return stateDone
}

func (f *Fallback) accept(page Page, profile SourceProfile, state *RunState, step Step) Step {
	state.ConsecutiveEmptyPages = 0
	step.Items = page.Items
	step.Profile = profile.Name
	step.Cursor = Cursor{Token: page.Next, Profile: profile.Name}
	return step
}

func (f *Fallback) profileFor(cursor Cursor) SourceProfile {
	if f.cfg.HasFallback() && cursor.Profile == f.cfg.Fallback.Name {
		return f.cfg.Fallback
	}
	return f.cfg.Primary
}

// fetch issues one search call. ok is false when the call failed; the page is
// then empty and carries no cursor.
func (f *Fallback) fetch(ctx context.Context, profile SourceProfile, token string, step *Step) (Page, bool) {
	step.Calls++
	callCtx, cancel := withOptionalTimeout(ctx, f.cfg.CallTimeout)
	defer cancel()

	page, err := f.provider.Search(callCtx, Cursor{Token: token, Profile: profile.Name}, profile, f.cfg.PageSize)
	if err != nil {
		f.logger.Warn("search page failed, treating as empty",
			zap.String("profile", profile.Name),
			zap.String("cursor", token),
			zap.Error(err),
		)
		f.recorder.ObservePage(profile.Name, 0, true)
		return Page{}, false
	}
	f.recorder.ObservePage(profile.Name, len(page.Items), false)
	return page, true
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
