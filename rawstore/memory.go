package rawstore

import (
	"sync"

	"github.com/statewalker/vcs-sub012/codec"
)

// Memory is a map-backed Store, used for tests and as the staging
// area for objects not yet flushed to disk.
type Memory struct {
	mu   sync.RWMutex
	data map[codec.ID][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[codec.ID][]byte)}
}

func (m *Memory) Store(id codec.ID, encoded []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := make([]byte, len(encoded))
	copy(buf, encoded)
	m.data[id] = buf
	return nil
}

func (m *Memory) Load(id codec.ID) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	buf, ok := m.data[id]
	if !ok {
		return nil, ErrNotFound
	}

	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

func (m *Memory) Has(id codec.ID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.data[id]
	return ok, nil
}

func (m *Memory) Remove(id codec.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, id)
	return nil
}

func (m *Memory) Keys() ([]codec.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]codec.ID, 0, len(m.data))
	for id := range m.data {
		out = append(out, id)
	}
	return out, nil
}
