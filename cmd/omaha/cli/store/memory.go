package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/chromedocs/omaha/cmd/omaha/cli/channel"
)

// DefaultMemorySize is the per-category capacity used when none is given.
const DefaultMemorySize = 512

// MemoryCreator keeps each category in a bounded in-process LRU. Creating the
// same category twice returns the same Store.
type MemoryCreator struct {
	size   int
	mu     sync.Mutex
	stores map[string]*MemoryStore
}

// NewMemoryCreator returns a MemoryCreator whose stores hold up to size
// entries each. A non-positive size selects DefaultMemorySize.
func NewMemoryCreator(size int) *MemoryCreator {
	if size <= 0 {
		size = DefaultMemorySize
	}
	return &MemoryCreator{size: size, stores: make(map[string]*MemoryStore)}
}

// Create implements Creator.
//
//nolint:ireturn // Creator interface
func (c *MemoryCreator) Create(category string) (Store, error) {
	if err := validateCategory(category); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.stores[category]; ok {
		return s, nil
	}
	cache, err := lru.New[string, Entry](c.size)
	if err != nil {
		return nil, fmt.Errorf("creating memory store: %w", err)
	}
	s := &MemoryStore{cache: cache}
	c.stores[category] = s
	return s, nil
}

// MemoryStore is a Store backed by an LRU cache.
type MemoryStore struct {
	cache *lru.Cache[string, Entry]
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, false, err
	}
	e, ok := s.cache.Get(key)
	return e, ok, nil
}

// Set implements Store.
func (s *MemoryStore) Set(ctx context.Context, key string, value channel.Number) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.cache.Add(key, Entry{Value: value, Written: time.Now()})
	return nil
}
