package cart

import (
	"context"
	"sync"
)

// Storage is a keyed slot holding the serialized cart item array. Load
// returns nil when the slot is empty. Changes delivers the raw payloads
// written by OTHER holders of the same slot; a storage implementation must
// not echo its own writes, matching the platform rule that storage change
// events fire everywhere except the writer.
type Storage interface {
	Load(ctx context.Context) ([]byte, error)
	Store(ctx context.Context, data []byte) error
	Clear(ctx context.Context) error
	Changes() <-chan []byte
}

// MemoryStorage is a process-local Storage used in tests and single-session
// embedding. External writes are simulated with Inject.
type MemoryStorage struct {
	mu      sync.Mutex
	data    []byte
	changes chan []byte
}

// NewMemoryStorage creates an empty in-memory slot.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{changes: make(chan []byte, 8)}
}

func (m *MemoryStorage) Load(_ context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, nil
	}
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out, nil
}

func (m *MemoryStorage) Store(_ context.Context, data []byte) error {
	m.mu.Lock()
	m.data = append([]byte(nil), data...)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Clear(_ context.Context) error {
	m.mu.Lock()
	m.data = nil
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Changes() <-chan []byte {
	return m.changes
}

// Inject overwrites the slot as if another session holder had written it and
// signals the change feed. Intended for tests.
func (m *MemoryStorage) Inject(data []byte) {
	m.mu.Lock()
	m.data = append([]byte(nil), data...)
	m.mu.Unlock()

	select {
	case m.changes <- data:
	default:
	}
}
