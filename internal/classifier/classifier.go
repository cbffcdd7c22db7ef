// Package classifier decides whether a candidate item qualifies for the result
// set. Predicates run cheapest first and stop at the first failure so that
// external lookups only happen for items that already look promising.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/JakeFAU/dualsub-crawler/internal/crawler"
)

// ErrUnknownScript is returned when the configured script is not a Unicode
// script name.
var ErrUnknownScript = errors.New("unknown unicode script")

// Lookup names reported to a Recorder.
const (
	LookupTracks             = "tracks"
	LookupTranslationTargets = "translation_targets"
)

// Config controls the predicates.
type Config struct {
	// Script is a Unicode script name such as "Arabic".
	Script string
	// TargetLanguage is the language the item must primarily be in.
	TargetLanguage string
	// RequiredLanguages must all be available as native or translated tracks.
	RequiredLanguages []string
	// CallTimeout bounds each external lookup. Zero disables the bound.
	CallTimeout time.Duration
}

// Recorder observes external lookups.
type Recorder interface {
	ObserveLookup(kind string, failed bool)
}

type nopRecorder struct{}

func (nopRecorder) ObserveLookup(string, bool) {}

// Option customizes a Chain.
type Option func(*Chain)

// WithRecorder routes lookup observations to r.
func WithRecorder(r Recorder) Option {
	return func(c *Chain) {
		if r != nil {
			c.recorder = r
		}
	}
}

// Chain implements crawler.Classifier.
type Chain struct {
	script   *unicode.RangeTable
	target   language.Base
	required []language.Base
	timeout  time.Duration
	lookup   crawler.TrackLookup
	recorder Recorder
	logger   *zap.Logger
}

var _ crawler.Classifier = (*Chain)(nil)

// New validates cfg and builds the predicate chain.
func New(cfg Config, lookup crawler.TrackLookup, logger *zap.Logger, opts ...Option) (*Chain, error) {
	if lookup == nil {
		return nil, errors.New("classifier: track lookup is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	script, ok := unicode.Scripts[cfg.Script]
	if !ok {
		return nil, fmt.Errorf("classifier: %w: %q", ErrUnknownScript, cfg.Script)
	}
	target, err := parseBase(cfg.TargetLanguage)
	if err != nil {
		return nil, fmt.Errorf("classifier: target language: %w", err)
	}
	if len(cfg.RequiredLanguages) == 0 {
		return nil, errors.New("classifier: at least one required language is needed")
	}
	required := make([]language.Base, 0, len(cfg.RequiredLanguages))
	for _, tag := range cfg.RequiredLanguages {
		base, err := parseBase(tag)
		if err != nil {
			return nil, fmt.Errorf("classifier: required language: %w", err)
		}
		required = append(required, base)
	}
	c := &Chain{
		script:   script,
		target:   target,
		required: required,
		timeout:  cfg.CallTimeout,
		lookup:   lookup,
		recorder: nopRecorder{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Classify reports whether item qualifies. It never fails: a lookup error or
// timeout makes the predicate that needed it false.
func (c *Chain) Classify(ctx context.Context, item crawler.CandidateItem) bool {
	log := c.logger.With(zap.String("id", item.ID))
	if !c.HasScript(item.Title) {
		log.Debug("title lacks target script")
		return false
	}

	tracks, ok := c.tracks(ctx, item.ID, log)
	if !ok {
		return false
	}
	if !c.declaresTarget(item) && !c.hasManualTarget(tracks) {
		log.Debug("item is not primarily in target language")
		return false
	}
	return c.dualAvailable(ctx, item.ID, tracks, log)
}

// HasScript reports whether s contains at least one rune of the configured
// script.
func (c *Chain) HasScript(s string) bool {
	for _, r := range s {
		if unicode.Is(c.script, r) {
			return true
		}
	}
	return false
}

func (c *Chain) declaresTarget(item crawler.CandidateItem) bool {
	for _, hint := range item.LanguageHints() {
		if matchesBase(hint, c.target) {
			return true
		}
	}
	return false
}

func (c *Chain) hasManualTarget(tracks []crawler.Track) bool {
	for _, track := range tracks {
		if !track.AutoGenerated && matchesBase(track.Language, c.target) {
			return true
		}
	}
	return false
}

func (c *Chain) dualAvailable(ctx context.Context, id string, tracks []crawler.Track, log *zap.Logger) bool {
	missing := make([]language.Base, 0, len(c.required))
	for _, want := range c.required {
		if !hasTrack(tracks, want) {
			missing = append(missing, want)
		}
	}
	if len(missing) == 0 {
		return true
	}

	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()
	targets, err := c.lookup.ListTranslationTargets(callCtx, id)
	c.recorder.ObserveLookup(LookupTranslationTargets, err != nil)
	if err != nil {
		log.Warn("translation target lookup failed", zap.Error(err))
		return false
	}
	for _, want := range missing {
		if !containsBase(targets, want) {
			log.Debug("required language unavailable", zap.String("language", want.String()))
			return false
		}
	}
	return true
}

// tracks lists id's caption tracks. ok is false when the lookup failed, which
// fails the whole chain closed.
func (c *Chain) tracks(ctx context.Context, id string, log *zap.Logger) ([]crawler.Track, bool) {
	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()
	tracks, err := c.lookup.ListTracks(callCtx, id)
	c.recorder.ObserveLookup(LookupTracks, err != nil)
	if err != nil {
		log.Warn("track lookup failed", zap.Error(err))
		return nil, false
	}
	return tracks, true
}

func (c *Chain) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func hasTrack(tracks []crawler.Track, want language.Base) bool {
	for _, track := range tracks {
		if matchesBase(track.Language, want) {
			return true
		}
	}
	return false
}

func containsBase(tags []string, want language.Base) bool {
	for _, tag := range tags {
		if matchesBase(tag, want) {
			return true
		}
	}
	return false
}

func parseBase(tag string) (language.Base, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return language.Base{}, errors.New("empty language tag")
	}
	base, err := language.ParseBase(tag)
	if err == nil {
		return base, nil
	}
	parsed, perr := language.Parse(tag)
	if perr != nil {
		return language.Base{}, fmt.Errorf("parse %q: %w", tag, perr)
	}
	base, _ = parsed.Base()
	return base, nil
}

// matchesBase reports whether tag has want as its base language. Malformed
// tags never match.
func matchesBase(tag string, want language.Base) bool {
	if strings.TrimSpace(tag) == "" {
		return false
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return false
	}
	base, _ := parsed.Base()
	return base == want
}
