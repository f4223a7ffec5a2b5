// Package kvstore provides the session-scoped key-value store behind an
// explicitly fallible interface. The store may be absent (disabled storage),
// unreachable, or hold corrupt values; all of those degrade to "no stored
// value" and must never crash the checkout flow.
package kvstore

import (
	"context"
	"encoding/json"
	"sync"
)

// Store is a fallible key-value store. TryGet and TrySet report success
// explicitly instead of returning errors: every failure mode collapses to
// "value unavailable" for the caller.
type Store interface {
	TryGet(ctx context.Context, key string) (string, bool)
	TrySet(ctx context.Context, key, value string) bool
	TryDelete(ctx context.Context, key string) bool
}

// GetJSON reads and decodes a JSON value. Absent keys and corrupt payloads
// both yield ok=false.
func GetJSON[T any](ctx context.Context, s Store, key string) (T, bool) {
	var v T
	raw, ok := s.TryGet(ctx, key)
	if !ok {
		return v, false
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return v, false
	}
	return v, true
}

// SetJSON encodes and writes a JSON value.
func SetJSON(ctx context.Context, s Store, key string, v any) bool {
	raw, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return s.TrySet(ctx, key, string(raw))
}

// Memory is an in-process Store. It backs single-instance deployments and
// tests.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) TryGet(_ context.Context, key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *Memory) TrySet(_ context.Context, key, value string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return true
}

func (m *Memory) TryDelete(_ context.Context, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return true
}
