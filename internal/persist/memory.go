package persist

import (
	"context"
	"slices"
	"sync"
)

// MemoryBackend is an in-process Backend. It is used by tests and by the CLI
// when running with --ephemeral.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte

	// FailWrites makes every Set return this error when non-nil.
	FailWrites error
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(v), true, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	m.data[key] = slices.Clone(value)
	return nil
}

// Raw returns the stored bytes for key as a string, or "" when absent.
func (m *MemoryBackend) Raw(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return string(m.data[key])
}
