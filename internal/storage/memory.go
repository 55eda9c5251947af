package storage

import (
	"context"
	"sync"
)

// MemoryPreferences keeps preferences for the life of the process.
type MemoryPreferences struct {
	mu     sync.RWMutex
	values map[string]map[string]string
}

var _ Preferences = (*MemoryPreferences)(nil)

func NewMemoryPreferences() *MemoryPreferences {
	return &MemoryPreferences{values: map[string]map[string]string{}}
}

func (m *MemoryPreferences) Get(_ context.Context, clientID, key string) (string, bool, error) {
	if clientID == "" {
		return "", false, ErrEmptyClientID
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[clientID][key]
	return v, ok, nil
}

func (m *MemoryPreferences) Set(_ context.Context, clientID, key, value string) error {
	if clientID == "" {
		return ErrEmptyClientID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values[clientID] == nil {
		m.values[clientID] = map[string]string{}
	}
	m.values[clientID][key] = value
	return nil
}

func (m *MemoryPreferences) Close() error { return nil }
