package adapter

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Credentials is what a constructor needs to build an adapter for one account.
type Credentials struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Constructor builds an adapter for a single account.
type Constructor func(ctx context.Context, creds Credentials) (StorageAdapter, error)

// Registry maps vendor names to adapter constructors.
// It is built once at startup and handed to the services; it is safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	constructors map[ProviderName]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[ProviderName]Constructor)}
}

// Register adds or replaces the constructor for a vendor.
func (r *Registry) Register(name ProviderName, c Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[name] = c
}

// Create builds an adapter for the named vendor.
func (r *Registry) Create(ctx context.Context, name ProviderName, creds Credentials) (StorageAdapter, error) {
	r.mu.RLock()
	c, ok := r.constructors[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, name)
	}

	a, err := c(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s adapter: %w", name, err)
	}
	return a, nil
}

// IsSupported reports whether a vendor name is registered.
func (r *Registry) IsSupported(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.constructors[ProviderName(name)]
	return ok
}

// ListSupported returns the registered vendor names in a stable order.
func (r *Registry) ListSupported() []ProviderName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]ProviderName, 0, len(r.constructors))
	for n := range r.constructors {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
