package resourcecache

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned when a path has neither a seeded entry nor a
// seeded failure.
var ErrNotFound = errors.New("resource not found")

// MemoryCache is an in-process fake of the resource cache, for tests and
// for small demo runs that don't need a persistent cache. Fetch always
// replies synchronously on the calling goroutine; real caches would reply
// from a different goroutine, but the dispatcher's mailbox model (spec.md
// §5) makes no distinction between the two.
type MemoryCache struct {
	mu       sync.Mutex
	contents map[string][]byte
	failures map[string]error
}

// NewMemoryCache builds an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		contents: make(map[string][]byte),
		failures: make(map[string]error),
	}
}

// Seed registers the bytes a later Fetch for path should return.
func (c *MemoryCache) Seed(path string, bytes []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contents[path] = bytes
}

// SeedFailure registers the error a later Fetch for path should report.
func (c *MemoryCache) SeedFailure(path string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[path] = err
}

// Fetch implements Cache.
func (c *MemoryCache) Fetch(_ context.Context, req GetResource, onOK func(CachedResource), onErr func(ResourceGetError)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err, ok := c.failures[req.Path]; ok {
		onErr(ResourceGetError{Path: req.Path, Err: err})
		return
	}

	b, ok := c.contents[req.Path]
	if !ok {
		onErr(ResourceGetError{Path: req.Path, Err: ErrNotFound})
		return
	}

	onOK(CachedResource{Path: req.Path, Bytes: b})
}

var _ Cache = (*MemoryCache)(nil)
