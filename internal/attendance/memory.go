package attendance

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps both tables in process memory. It is used by tests and
// by ephemeral dev runs.
type MemoryStore struct {
	mu       sync.RWMutex
	roster   *Roster
	sessions []Session
}

// NewMemoryStore creates a store seeded with the given attendee names.
func NewMemoryStore(names ...string) *MemoryStore {
	r := &Roster{}
	for _, n := range names {
		r.Entries = append(r.Entries, Entry{Name: n})
	}
	return &MemoryStore{roster: r}
}

// LoadRoster returns a copy of the stored roster.
func (m *MemoryStore) LoadRoster(_ context.Context) (*Roster, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.roster.Clone(), nil
}

// SaveRoster replaces the stored roster with a copy of r.
func (m *MemoryStore) SaveRoster(_ context.Context, r *Roster) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roster = r.Clone()
	return nil
}

// LoadSessions returns a copy of the stored sessions.
func (m *MemoryStore) LoadSessions(_ context.Context) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.sessions), nil
}

// SaveSessions replaces the stored sessions.
func (m *MemoryStore) SaveSessions(_ context.Context, sessions []Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = slices.Clone(sessions)
	return nil
}
