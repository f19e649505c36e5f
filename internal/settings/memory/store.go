// Package memory provides an in-process settings store.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/dubbadge/internal/settings"
)

// Store implements settings.Store backed by a map.
type Store struct {
	mu     sync.RWMutex
	values map[string]string
}

var _ settings.Store = (*Store)(nil)

// New returns a store seeded with values.
func New(values map[string]string) *Store {
	m := make(map[string]string, len(values))
	for k, v := range values {
		m[k] = v
	}
	return &Store{values: m}
}

// Get returns the value for key.
func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

// Set stores value under key.
func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}
