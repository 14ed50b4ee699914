package memory

import (
	"bytes"
	"context"
	"fmt"
	"sync"
)

// InMemoryStore is an in-process implementation of Memory for tests and
// single-process deployments. Data is lost when the process exits.
type InMemoryStore struct {
	mu      sync.Mutex
	records map[string][]byte
	locks   map[string]string // subject -> holder token
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string][]byte),
		locks:   make(map[string]string),
	}
}

// Read implements Memory.
func (m *InMemoryStore) Read(_ context.Context, subject string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.records[subject]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Write implements Memory, enforcing optimistic concurrency against prevRecord.
func (m *InMemoryStore) Write(_ context.Context, subject string, newRecord, prevRecord []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.records[subject]
	if prevRecord == nil {
		if exists {
			return fmt.Errorf("memory: write conflict: subject %s already has a record", subject)
		}
	} else if !exists || !bytes.Equal(current, prevRecord) {
		return fmt.Errorf("memory: write conflict: subject %s record changed since read", subject)
	}

	stored := make([]byte, len(newRecord))
	copy(stored, newRecord)
	m.records[subject] = stored
	return nil
}

// Lock implements Memory.
func (m *InMemoryStore) Lock(_ context.Context, subject, token string) (LockResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	holder, locked := m.locks[subject]
	if !locked {
		m.locks[subject] = token
		return Acquired, nil
	}
	if holder == token {
		return AlreadyAcquired, nil
	}
	return NotAcquired, nil
}

// Unlock implements Memory. Releases only if token is the current holder,
// so a stale unlock from a prior, already-superseded caller is a no-op.
func (m *InMemoryStore) Unlock(_ context.Context, subject, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.locks[subject] == token {
		delete(m.locks, subject)
	}
}

// Len returns the number of stored records. Useful for tests.
func (m *InMemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
