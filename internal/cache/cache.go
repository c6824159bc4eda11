// Package cache provides a small TTL cache with a single compute-on-miss entry point.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// ComputeFunc produces the value for a missing key.
type ComputeFunc func(ctx context.Context) ([]byte, error)

// Cache stores byte values for a bounded time.
type Cache interface {
	// GetOrCompute returns the cached value for key, or calls fn, stores its result for ttl
	// and returns it. Errors from fn are returned and nothing is stored.
	GetOrCompute(ctx context.Context, key string, ttl time.Duration, fn ComputeFunc) ([]byte, error)
	// DeletePrefix drops every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Local is an in-process Cache.
type Local struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// NewLocal creates an empty Local cache.
func NewLocal() *Local {
	return &Local{entries: make(map[string]entry), now: time.Now}
}

// WithClock replaces the time source.
func (c *Local) WithClock(now func() time.Time) *Local {
	c.now = now
	return c
}

func (c *Local) GetOrCompute(ctx context.Context, key string, ttl time.Duration, fn ComputeFunc) ([]byte, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && c.now().Before(e.expiresAt) {
		c.mu.Unlock()
		return e.value, nil
	}
	if ok {
		delete(c.entries, key)
	}
	c.mu.Unlock()

	value, err := fn(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
	return value, nil
}

func (c *Local) DeletePrefix(ctx context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *Local) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
