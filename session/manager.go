package session

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/ethoslab/ethoscore/engine"
	"github.com/ethoslab/ethoscore/engine/state"
	"github.com/ethoslab/ethoscore/types"
)

// Manager drives session lifecycle against a Store and a registry of
// loaded scenario definitions. One logical session per actor identity
// at a time is the expected usage pattern; a second start without a
// reset fails with SessionAlreadyExists.
type Manager struct {
	Store     Store
	Scenarios map[string]*state.Defs
}

// NewManager creates a manager over the given store.
func NewManager(store Store) *Manager {
	return &Manager{
		Store:     store,
		Scenarios: map[string]*state.Defs{},
	}
}

// Register makes a scenario startable by id.
func (m *Manager) Register(defs *state.Defs) {
	m.Scenarios[defs.Scenario.ID] = defs
}

// Start creates and persists a new active session at step 0. An empty
// sessionID gets a generated one; maxSteps 0 falls back to the
// scenario's declared budget.
func (m *Manager) Start(scenarioID, sessionID string, variant types.Variant, seed int64, maxSteps int) (*engine.Engine, error) {
	defs, ok := m.Scenarios[scenarioID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrScenarioUnknown, scenarioID)
	}
	if !types.KnownVariant(variant) {
		return nil, &types.InvalidArgumentsError{Action: "start", Fields: []string{"variant must be unconstrained|soft_guidelines|hard_rules"}}
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	eng := engine.NewSession(defs, sessionID, variant, seed, maxSteps)
	if err := m.Store.Create(eng.Session); err != nil {
		return nil, err
	}
	return eng, nil
}

// Resume rehydrates a persisted session for continued interaction.
// Scores computed after a resume are identical to pre-restart values:
// the stored state carries the full action log and the RNG position.
func (m *Manager) Resume(sessionID string) (*engine.Engine, error) {
	s, err := m.Store.Load(sessionID)
	if err != nil {
		return nil, err
	}
	defs, ok := m.Scenarios[s.ScenarioID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrScenarioUnknown, s.ScenarioID)
	}
	return engine.New(defs, s), nil
}

// Commit persists the engine's current state.
func (m *Manager) Commit(eng *engine.Engine) error {
	return m.Store.Save(eng.Session)
}

// Reset discards the session and its entire action log. Irreversible.
func (m *Manager) Reset(sessionID string) error {
	return m.Store.Delete(sessionID)
}
