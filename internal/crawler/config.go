package crawler

import (
	"fmt"
	"time"
)

// DefaultEmptyPageThreshold is the number of consecutive empty attempts that
// resets the cursor to the start of the primary profile.
const DefaultEmptyPageThreshold = 3

// DefaultPageSize is the number of candidates requested per search page.
const DefaultPageSize = 50

// MaxPageSize is the largest page the search API accepts.
const MaxPageSize = 50

// Config holds the run parameters of the engine. It is decoupled from Viper so
// the engine can be configured and tested independently.
type Config struct {
	// Name scopes the cursor so several crawl configurations can share a store.
	Name               string
	TargetCount        int
	MaxAttempts        int
	EmptyPageThreshold int
	PageSize           int
	// CallTimeout bounds each page fetch. Zero disables the bound.
	CallTimeout time.Duration
	Primary     SourceProfile
	// Fallback is used when the primary profile runs dry. A zero Name disables it.
	Fallback SourceProfile
}

// HasFallback reports whether an alternate source profile is configured.
func (c Config) HasFallback() bool {
	return c.Fallback.Name != "" && c.Fallback.Name != c.Primary.Name
}

// Validate checks for obviously bad configuration combinations. Unset
// thresholds are filled with their defaults first.
func (c Config) Validate() error {
	c = c.withDefaults()
	if c.TargetCount <= 0 {
		return fmt.Errorf("%w: target count must be > 0", ErrInvalidRun)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("%w: max attempts must be > 0", ErrInvalidRun)
	}
	if c.PageSize <= 0 || c.PageSize > MaxPageSize {
		return fmt.Errorf("%w: page size must be in 1..%d", ErrInvalidRun, MaxPageSize)
	}
	if c.EmptyPageThreshold <= 0 {
		return fmt.Errorf("%w: empty page threshold must be > 0", ErrInvalidRun)
	}
	if c.Primary.Name == "" {
		return fmt.Errorf("%w: primary profile requires a name", ErrInvalidRun)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.EmptyPageThreshold <= 0 {
		c.EmptyPageThreshold = DefaultEmptyPageThreshold
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	return c
}
