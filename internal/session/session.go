// Package session persists per-session report state as flat key/value maps.
package session

import (
	"context"
	"sync"
)

// Store keeps one value map per (session, key). Get returns a nil map when
// nothing is stored.
type Store interface {
	Get(ctx context.Context, sessionID, key string) (map[string]string, error)
	Set(ctx context.Context, sessionID, key string, values map[string]string) error
	Delete(ctx context.Context, sessionID, key string) error
}

type memKey struct {
	session, key string
}

// MemoryStore is a Store for tests and single process deployments.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[memKey]map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: map[memKey]map[string]string{}}
}

func (m *MemoryStore) Get(ctx context.Context, sessionID, key string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyValues(m.values[memKey{sessionID, key}]), nil
}

func (m *MemoryStore) Set(ctx context.Context, sessionID, key string, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[memKey{sessionID, key}] = copyValues(values)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, sessionID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, memKey{sessionID, key})
	return nil
}

func copyValues(v map[string]string) map[string]string {
	if v == nil {
		return nil
	}
	out := make(map[string]string, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}
