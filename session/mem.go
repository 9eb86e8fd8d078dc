package session

import (
	"fmt"
	"sync"

	"github.com/ethoslab/ethoscore/types"
)

// MemStore keeps sessions in memory, round-tripped through the JSON
// codec so stored states are isolated copies and behave exactly like
// file-persisted ones. Intended for tests and the TUI.
type MemStore struct {
	mu       sync.Mutex
	sessions map[string][]byte
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{sessions: map[string][]byte{}}
}

func (m *MemStore) Create(s *types.SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.SessionID]; ok {
		return fmt.Errorf("%w: %s", types.ErrSessionExists, s.SessionID)
	}
	data, err := Encode(s)
	if err != nil {
		return err
	}
	m.sessions[s.SessionID] = data
	return nil
}

func (m *MemStore) Load(id string) (*types.SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrSessionNotFound, id)
	}
	return Decode(data)
}

func (m *MemStore) Save(s *types.SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.SessionID]; !ok {
		return fmt.Errorf("%w: %s", types.ErrSessionNotFound, s.SessionID)
	}
	data, err := Encode(s)
	if err != nil {
		return err
	}
	m.sessions[s.SessionID] = data
	return nil
}

func (m *MemStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", types.ErrSessionNotFound, id)
	}
	delete(m.sessions, id)
	return nil
}

func (m *MemStore) List() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids, nil
}
