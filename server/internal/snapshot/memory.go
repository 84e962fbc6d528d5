package snapshot

import (
	"context"
	"slices"
	"sync"
)

// Memory keeps snapshots in process memory.
type Memory struct {
	mu        sync.Mutex
	snapshots map[string][]byte
	index     []string
}

// NewMemory returns an empty in-memory Backend.
func NewMemory() *Memory {
	return &Memory{snapshots: make(map[string][]byte)}
}

func (m *Memory) Driver() Driver { return DriverMemory }

func (m *Memory) Close() error { return nil }

func (m *Memory) WriteSnapshot(_ context.Context, id string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[id] = slices.Clone(data)
	return nil
}

func (m *Memory) ReadSnapshot(_ context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.snapshots[id]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(data), nil
}

func (m *Memory) DeleteSnapshot(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, id)
	return nil
}

func (m *Memory) WriteIndex(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = slices.Clone(ids)
	return nil
}

func (m *Memory) ReadIndex(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.index), nil
}

func (m *Memory) Purge(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = make(map[string][]byte)
	m.index = nil
	return nil
}
