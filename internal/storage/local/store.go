// Package local persists crawl checkpoints and results as JSON files in a
// directory on the local filesystem.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/JakeFAU/dualsub-crawler/internal/crawler"
)

// File names inside the store directory.
const (
	ClassificationsFile = "processed_videos.json"
	CursorFile          = "pagination_token.json"
	ResultsFile         = "results.json"
)

// Config captures the parameters for the local filesystem store.
type Config struct {
	// Dir holds the checkpoint files.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// ResultsPath overrides the location of the result document.
	ResultsPath string `mapstructure:"results_path" yaml:"results_path"`
}

type resultDocument struct {
	Videos []crawler.ResultEntry `json:"videos"`
}

// Store implements crawler.CheckpointStore and crawler.ResultStore. Every
// write replaces the whole file atomically.
type Store struct {
	dir         string
	resultsPath string

	mu       sync.Mutex
	verdicts map[string]bool
	results  []crawler.ResultEntry
}

var (
	_ crawler.CheckpointStore = (*Store)(nil)
	_ crawler.ResultStore     = (*Store)(nil)
)

// New opens the store rooted at cfg.Dir, creating the directory if needed. An
// existing file that cannot be decoded is an error.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("checkpoint directory is required")
	}
	if err := ensureWritableDir(cfg.Dir); err != nil {
		return nil, err
	}
	resultsPath := cfg.ResultsPath
	if strings.TrimSpace(resultsPath) == "" {
		resultsPath = filepath.Join(cfg.Dir, ResultsFile)
	} else if err := os.MkdirAll(filepath.Dir(resultsPath), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}

	s := &Store{
		dir:         cfg.Dir,
		resultsPath: resultsPath,
		verdicts:    make(map[string]bool),
	}
	if err := readJSON(s.path(ClassificationsFile), &s.verdicts); err != nil {
		return nil, err
	}
	if s.verdicts == nil {
		s.verdicts = make(map[string]bool)
	}
	var doc resultDocument
	if err := readJSON(s.resultsPath, &doc); err != nil {
		return nil, err
	}
	s.results, _ = crawler.MergeResults(nil, doc.Videos)
	return s, nil
}

func ensureWritableDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return fmt.Errorf("failed to create checkpoint directory: %w", mkErr)
		}
	case err != nil:
		return fmt.Errorf("failed to stat checkpoint directory: %w", err)
	case !info.IsDir():
		return fmt.Errorf("checkpoint path %s is not a directory", dir)
	}

	testFile := filepath.Join(dir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("checkpoint directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return fmt.Errorf("failed to clean up test file: %w", err)
	}
	return nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// Classification returns the cached verdict for id.
func (s *Store) Classification(_ context.Context, id string) (bool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	qualifies, found := s.verdicts[id]
	return qualifies, found, nil
}

// PutClassification records the verdict for id. An existing verdict is kept.
func (s *Store) PutClassification(_ context.Context, id string, qualifies bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.verdicts[id]; exists {
		return nil
	}
	s.verdicts[id] = qualifies
	if err := writeJSON(s.path(ClassificationsFile), s.verdicts); err != nil {
		delete(s.verdicts, id)
		return err
	}
	return nil
}

// ClassificationCount returns the number of cached verdicts.
func (s *Store) ClassificationCount(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.verdicts), nil
}

// ResetClassifications forgets every cached verdict.
func (s *Store) ResetClassifications(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeJSON(s.path(ClassificationsFile), map[string]bool{}); err != nil {
		return err
	}
	s.verdicts = make(map[string]bool)
	return nil
}

// Cursor reads the persisted cursor. A missing file is the start cursor.
func (s *Store) Cursor(context.Context) (crawler.Cursor, error) {
	var cursor crawler.Cursor
	if err := readJSON(s.path(CursorFile), &cursor); err != nil {
		return crawler.Cursor{}, err
	}
	return cursor, nil
}

// PutCursor persists cursor. The file is written even for the start cursor.
func (s *Store) PutCursor(_ context.Context, cursor crawler.Cursor) error {
	return writeJSON(s.path(CursorFile), cursor)
}

// ResetCursor removes the persisted cursor.
func (s *Store) ResetCursor(context.Context) error {
	if err := os.Remove(s.path(CursorFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove cursor file: %w", err)
	}
	return nil
}

// LoadResults re-reads the result document from disk. The read holds the
// same lock as AppendResults so a concurrent append is never overwritten.
func (s *Store) LoadResults(context.Context) ([]crawler.ResultEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var doc resultDocument
	if err := readJSON(s.resultsPath, &doc); err != nil {
		return nil, err
	}
	s.results, _ = crawler.MergeResults(nil, doc.Videos)
	return append([]crawler.ResultEntry(nil), s.results...), nil
}

// AppendResults merges entries into the result document.
func (s *Store) AppendResults(_ context.Context, entries ...crawler.ResultEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged, added := crawler.MergeResults(s.results, entries)
	if len(added) == 0 {
		return nil
	}
	if err := writeJSON(s.resultsPath, resultDocument{Videos: merged}); err != nil {
		return err
	}
	s.results = merged
	return nil
}

// ResultsPath returns the location of the result document.
func (s *Store) ResultsPath() string {
	return s.resultsPath
}

// readJSON decodes path into v. A missing file leaves v untouched.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is built from configuration.
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return fmt.Errorf("failed to decode %s: file is empty", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// writeJSON replaces path with the JSON encoding of v through a synced
// temporary file and a rename.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpName)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
