package intake

import (
	"context"
	"sync"
	"time"
)

// Store persists session snapshots between turns.
type Store interface {
	// Create stores a new session, failing with ErrSessionExists if the ID
	// is taken.
	Create(ctx context.Context, snap Snapshot) error
	// Get returns ErrInvalidSession for an unknown ID.
	Get(ctx context.Context, id string) (Snapshot, error)
	// Put replaces an existing session and returns ErrInvalidSession if it
	// was deleted in the meantime.
	Put(ctx context.Context, snap Snapshot) error
	Delete(ctx context.Context, id string) error
	// DeleteIdle removes sessions not updated since before and returns how
	// many were removed.
	DeleteIdle(ctx context.Context, before time.Time) (int, error)
}

// MemoryStore keeps snapshots in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Snapshot
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Snapshot)}
}

func (m *MemoryStore) Create(_ context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[snap.ID]; ok {
		return ErrSessionExists
	}
	m.sessions[snap.ID] = snap
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.sessions[id]
	if !ok {
		return Snapshot{}, ErrInvalidSession
	}
	return snap, nil
}

func (m *MemoryStore) Put(_ context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[snap.ID]; !ok {
		return ErrInvalidSession
	}
	m.sessions[snap.ID] = snap
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrInvalidSession
	}
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) DeleteIdle(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, snap := range m.sessions {
		if snap.UpdatedAt.Before(before) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
