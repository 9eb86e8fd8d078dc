// Package session owns the lifecycle of running simulation instances:
// create, load, save, reset. Persistence is an injected dependency —
// file-backed for the CLI, in-memory for tests, SQLite when many
// sessions share one database — so parallel test runs and concurrent
// simulations never fight over a hardcoded path.
package session

import (
	"encoding/json"
	"fmt"

	"github.com/ethoslab/ethoscore/types"
)

// Store persists complete session states keyed by session id. A stored
// state is sufficient to resume the session and to recompute every
// score. Implementations must make Save atomic: a crash mid-write may
// lose the latest update but never corrupts the previous state.
type Store interface {
	// Create stores a new session; fails with ErrSessionExists if the id is taken.
	Create(s *types.SessionState) error
	// Load rehydrates a session; fails with ErrSessionNotFound.
	Load(id string) (*types.SessionState, error)
	// Save overwrites an existing session; fails with ErrSessionNotFound.
	Save(s *types.SessionState) error
	// Delete removes a session irreversibly; fails with ErrSessionNotFound.
	Delete(id string) error
	// List returns all stored session ids in unspecified order.
	List() ([]string, error)
}

// Encode serializes a session state to its canonical JSON form.
func Encode(s *types.SessionState) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// Decode deserializes a session state and normalizes nil collections,
// so a decoded state behaves identically to the one that was saved.
func Decode(data []byte) (*types.SessionState, error) {
	var s types.SessionState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	if s.Entities == nil {
		s.Entities = map[string]*types.EntityState{}
	}
	for _, ent := range s.Entities {
		if ent.Fields == nil {
			ent.Fields = map[string]any{}
		}
	}
	if s.EntityOrder == nil {
		s.EntityOrder = []string{}
	}
	if s.Counters == nil {
		s.Counters = map[string]int{}
	}
	if s.Flags == nil {
		s.Flags = map[string]bool{}
	}
	if s.Log == nil {
		s.Log = []types.ActionRecord{}
	}
	return &s, nil
}
