package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedocs/omaha/cmd/omaha/cli/channel"
	"github.com/chromedocs/omaha/cmd/omaha/cli/jsonutil"
	"github.com/chromedocs/omaha/cmd/omaha/cli/paths"
)

// FileCreator persists each category as <dir>/<category>.json.
type FileCreator struct {
	dir    string
	mu     sync.Mutex
	stores map[string]*FileStore
}

// NewFileCreator returns a FileCreator rooted at dir, creating it if needed.
func NewFileCreator(dir string) (*FileCreator, error) {
	if dir == "" {
		return nil, errors.New("file store directory is required")
	}
	if err := paths.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &FileCreator{dir: dir, stores: make(map[string]*FileStore)}, nil
}

// Create implements Creator.
//
//nolint:ireturn // Creator interface
func (c *FileCreator) Create(category string) (Store, error) {
	if err := validateCategory(category); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.stores[category]; ok {
		return s, nil
	}
	s := &FileStore{path: filepath.Join(c.dir, category+".json")}
	c.stores[category] = s
	return s, nil
}

// FileStore is a Store kept in a single JSON object on disk. The file is
// read once and rewritten atomically on every Set.
type FileStore struct {
	path    string
	mu      sync.Mutex
	loaded  bool
	entries map[string]Entry
}

// Get implements Store.
func (s *FileStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		return Entry{}, false, err
	}
	e, ok := s.entries[key]
	return e, ok, nil
}

// Set implements Store.
func (s *FileStore) Set(ctx context.Context, key string, value channel.Number) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(); err != nil {
		// A corrupt file is replaced rather than blocking every write.
		s.entries = make(map[string]Entry)
		s.loaded = true
	}
	s.entries[key] = Entry{Value: value, Written: time.Now()}
	return s.saveLocked()
}

func (s *FileStore) loadLocked() error {
	if s.loaded {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.entries = make(map[string]Entry)
		s.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading cache file: %w", err)
	}

	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing cache file %s: %w", s.path, err)
	}
	entries := make(map[string]Entry, len(raw))
	for key, msg := range raw {
		e, err := decodeEntry(msg)
		if err != nil {
			return fmt.Errorf("parsing cache file %s: key %q: %w", s.path, key, err)
		}
		entries[key] = e
	}
	s.entries = entries
	s.loaded = true
	return nil
}

// decodeEntry accepts an {"value","written"} object or a bare number. Bare
// numbers have no write time and are therefore always older than any
// positive max age.
func decodeEntry(msg json.RawMessage) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(msg, &e); err == nil {
		return e, nil
	}
	var v channel.Number
	if err := json.Unmarshal(msg, &v); err != nil {
		return Entry{}, err
	}
	return Entry{Value: v}, nil
}

// saveLocked writes to a temp file and renames it over the cache file.
func (s *FileStore) saveLocked() error {
	data, err := jsonutil.MarshalIndentWithNewline(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cache: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(s.path), ".omaha_cache_tmp_")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("writing cache: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpFile.Name(), s.path); err != nil {
		return fmt.Errorf("renaming cache file: %w", err)
	}
	return nil
}
