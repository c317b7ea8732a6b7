// Package store holds derived branch and version numbers between lookups.
//
// A Creator hands out one Store per category ("branch", "version"). Stores
// never drop entries on their own apart from the memory backend's LRU bound.
// Every entry records when it was written so callers can decide what is
// stale.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedocs/omaha/cmd/omaha/cli/channel"
)

// Entry is a stored value and the time it was written.
type Entry struct {
	Value   channel.Number `json:"value"`
	Written time.Time      `json:"written"`
}

// OlderThan reports whether e was written more than maxAge before now.
// A non-positive maxAge never ages an entry.
func (e Entry) OlderThan(maxAge time.Duration, now time.Time) bool {
	return maxAge > 0 && now.Sub(e.Written) > maxAge
}

// Store is a key-value store for one category.
type Store interface {
	// Get returns the entry for key. ok is false on a miss.
	Get(ctx context.Context, key string) (entry Entry, ok bool, err error)
	// Set stores value under key with the current time, replacing any
	// previous entry.
	Set(ctx context.Context, key string, value channel.Number) error
}

// Creator creates the Store for a category.
type Creator interface {
	Create(category string) (Store, error)
}

// Backend names accepted by NewCreator.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// ErrUnknownBackend is returned by NewCreator for unsupported backends.
var ErrUnknownBackend = errors.New("unknown cache backend")

// Options configures NewCreator.
type Options struct {
	// Backend is one of BackendMemory, BackendFile or BackendSQLite.
	Backend string
	// Path is the cache directory (file) or database file (sqlite).
	Path string
	// Size bounds each category of the memory backend.
	Size int
}

// NewCreator builds the Creator for opts.Backend. The returned close function
// releases backend resources and is never nil.
func NewCreator(opts Options) (Creator, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendMemory:
		return NewMemoryCreator(opts.Size), noop, nil
	case BackendFile:
		c, err := NewFileCreator(opts.Path)
		if err != nil {
			return nil, noop, err
		}
		return c, noop, nil
	case BackendSQLite:
		db, err := OpenSQLite(opts.Path)
		if err != nil {
			return nil, noop, err
		}
		return db, db.Close, nil
	default:
		return nil, noop, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}

func validateCategory(category string) error {
	if strings.TrimSpace(category) == "" {
		return errors.New("store category is required")
	}
	if strings.ContainsAny(category, `/\.`) {
		return fmt.Errorf("invalid store category %q", category)
	}
	return nil
}
