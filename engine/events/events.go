// Package events defines the per-step scheduled-event table a scenario
// ships as external configuration data (events.yaml). The Clock consumes
// the table as an injected dependency: the framework decides when an
// event fires (seeded RNG), the table decides what it does.
package events

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ethoslab/ethoscore/types"
)

// EffectSpec mirrors types.Effect in YAML-friendly form.
type EffectSpec struct {
	Type   string         `yaml:"type"`
	Params map[string]any `yaml:"params"`
}

// Event is one entry of the scheduled-event table.
type Event struct {
	ID             string             `yaml:"id"`
	Description    string             `yaml:"description"`
	Probability    float64            `yaml:"probability"`     // per-step trigger chance in [0,1]
	MaxOccurrences int                `yaml:"max_occurrences"` // 0 means unlimited
	Effects        []EffectSpec       `yaml:"effects"`
	Axes           map[string]float64 `yaml:"axes"`
}

// Table is the full event table for one scenario.
type Table struct {
	Events []Event `yaml:"events"`
}

// Parse decodes an event table from YAML bytes and validates it.
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing event table: %w", err)
	}
	seen := map[string]bool{}
	for i, ev := range t.Events {
		if ev.ID == "" {
			return nil, fmt.Errorf("event table entry %d has no id", i)
		}
		if seen[ev.ID] {
			return nil, fmt.Errorf("duplicate event id %q", ev.ID)
		}
		seen[ev.ID] = true
		if ev.Probability < 0 || ev.Probability > 1 {
			return nil, fmt.Errorf("event %q probability %v outside [0,1]", ev.ID, ev.Probability)
		}
	}
	return &t, nil
}

// Load reads and parses an event table from a file.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading event table %s: %w", path, err)
	}
	return Parse(data)
}

// ToEffects converts an event's effect specs to engine effects.
func (e Event) ToEffects() []types.Effect {
	effs := make([]types.Effect, 0, len(e.Effects))
	for _, spec := range e.Effects {
		params := spec.Params
		if params == nil {
			params = map[string]any{}
		}
		effs = append(effs, types.Effect{Type: spec.Type, Params: params})
	}
	return effs
}
