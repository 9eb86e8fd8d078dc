// Package state holds the immutable scenario definitions and the entity
// store operations over mutable session state. Field mutations are
// validated against declared types and ranges, status changes against the
// kind's declared transition machine.
package state

import (
	"fmt"

	"github.com/ethoslab/ethoscore/engine/events"
	"github.com/ethoslab/ethoscore/types"
)

// ScenarioDef holds scenario metadata.
type ScenarioDef struct {
	ID          string
	Title       string
	Author      string
	Version     string
	Description string
	MaxSteps    int
}

// Defs holds the immutable scenario definitions loaded from Lua plus the
// injected per-step event table. A Defs value is shared read-only across
// every session of the scenario.
type Defs struct {
	Scenario  ScenarioDef
	Kinds     map[string]types.KindDef
	Entities  []types.EntityDef
	Actions   map[string]types.ActionDef
	Rules     []types.RuleDef
	Axes      []types.AxisDef
	Score     types.ScoreDef
	Decay     []types.DecayDef
	Deadlines []types.DeadlineDef
	EndWhen   []types.Condition
	Events    *events.Table
}

// NewSession creates a fresh session state from definitions. Initial
// entities are instantiated in definition order; numeric fields are
// normalized to float64 so persisted and in-memory states compare equal.
func NewSession(defs *Defs, sessionID string, variant types.Variant, seed int64, maxSteps int) *types.SessionState {
	if maxSteps <= 0 {
		maxSteps = defs.Scenario.MaxSteps
	}
	s := &types.SessionState{
		SessionID:  sessionID,
		ScenarioID: defs.Scenario.ID,
		Variant:    variant,
		Seed:       seed,
		Step:       0,
		MaxSteps:   maxSteps,
		Status:     types.StatusActive,
		Entities:   map[string]*types.EntityState{},
		Counters:   map[string]int{},
		Flags:      map[string]bool{},
		Log:        []types.ActionRecord{},
	}
	for _, def := range defs.Entities {
		status := def.Status
		if status == "" {
			if kind, ok := defs.Kinds[def.Kind]; ok {
				status = kind.Initial
			}
		}
		ent := &types.EntityState{
			ID:     def.ID,
			Kind:   def.Kind,
			Status: status,
			Fields: normalizeFields(def.Fields),
		}
		s.Entities[ent.ID] = ent
		s.EntityOrder = append(s.EntityOrder, ent.ID)
	}
	return s
}

// GetEntity returns the entity with the given id.
func GetEntity(s *types.SessionState, id string) (*types.EntityState, error) {
	ent, ok := s.Entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrEntityNotFound, id)
	}
	return ent, nil
}

// ListEntities returns entities in stable insertion order, optionally
// filtered by kind and/or status ("" matches all).
func ListEntities(s *types.SessionState, kind, status string) []*types.EntityState {
	var result []*types.EntityState
	for _, id := range s.EntityOrder {
		ent, ok := s.Entities[id]
		if !ok {
			continue
		}
		if kind != "" && ent.Kind != kind {
			continue
		}
		if status != "" && ent.Status != status {
			continue
		}
		result = append(result, ent)
	}
	return result
}

// SpawnEntity adds a new entity to the session. The id must be unused;
// unset fields and status fall back to the kind's declaration.
func SpawnEntity(s *types.SessionState, defs *Defs, id, kind, status string, fields map[string]any) error {
	if _, exists := s.Entities[id]; exists {
		return fmt.Errorf("%w: entity id %s already in use", types.ErrOutOfRange, id)
	}
	kd, ok := defs.Kinds[kind]
	if !ok {
		return fmt.Errorf("%w: unknown kind %s", types.ErrEntityNotFound, kind)
	}
	if status == "" {
		status = kd.Initial
	}
	if !containsString(kd.Statuses, status) {
		return fmt.Errorf("%w: kind %s has no status %s", types.ErrInvalidTransition, kind, status)
	}
	norm := normalizeFields(fields)
	for name, val := range norm {
		if fd, ok := kd.Fields[name]; ok {
			if err := checkField(fd, val); err != nil {
				return err
			}
		}
	}
	s.Entities[id] = &types.EntityState{
		ID:          id,
		Kind:        kind,
		Status:      status,
		StatusSince: s.Step,
		Fields:      norm,
	}
	s.EntityOrder = append(s.EntityOrder, id)
	return nil
}

// SetStatus transitions an entity to a new status, validating the move
// against the kind's declared transition machine.
func SetStatus(s *types.SessionState, defs *Defs, id, status string) error {
	ent, err := GetEntity(s, id)
	if err != nil {
		return err
	}
	if ent.Status == status {
		return nil
	}
	kd, ok := defs.Kinds[ent.Kind]
	if ok {
		legal := kd.Transitions[ent.Status]
		if !containsString(legal, status) {
			return fmt.Errorf("%w: %s %s → %s", types.ErrInvalidTransition, id, ent.Status, status)
		}
	}
	ent.Status = status
	ent.StatusSince = s.Step
	return nil
}

// SetField sets an entity field, validating the value against the
// field's declared type, range, and enum constraints.
func SetField(s *types.SessionState, defs *Defs, id, field string, value any) error {
	ent, err := GetEntity(s, id)
	if err != nil {
		return err
	}
	value = normalizeValue(value)
	if kd, ok := defs.Kinds[ent.Kind]; ok {
		if fd, ok := kd.Fields[field]; ok {
			if err := checkField(fd, value); err != nil {
				return err
			}
		}
	}
	if ent.Fields == nil {
		ent.Fields = map[string]any{}
	}
	ent.Fields[field] = value
	return nil
}

// AdjustField adds delta to a numeric field, failing with ErrOutOfRange
// if the result leaves the declared bounds.
func AdjustField(s *types.SessionState, defs *Defs, id, field string, delta float64) error {
	ent, err := GetEntity(s, id)
	if err != nil {
		return err
	}
	current, _ := ToFloat(ent.Fields[field])
	return SetField(s, defs, id, field, current+delta)
}

// ClampAdjust adds delta to a numeric field, clamping to the declared
// bounds instead of failing. Used by per-step decay, where drift past a
// bound should saturate rather than reject the step.
func ClampAdjust(s *types.SessionState, defs *Defs, id, field string, delta float64) {
	ent, ok := s.Entities[id]
	if !ok {
		return
	}
	current, _ := ToFloat(ent.Fields[field])
	value := current + delta
	if kd, ok := defs.Kinds[ent.Kind]; ok {
		if fd, ok := kd.Fields[field]; ok {
			if fd.Min != nil && value < *fd.Min {
				value = *fd.Min
			}
			if fd.Max != nil && value > *fd.Max {
				value = *fd.Max
			}
		}
	}
	if ent.Fields == nil {
		ent.Fields = map[string]any{}
	}
	ent.Fields[field] = value
}

// GetField returns an entity field value and whether it was found.
func GetField(s *types.SessionState, id, field string) (any, bool) {
	ent, ok := s.Entities[id]
	if !ok {
		return nil, false
	}
	v, ok := ent.Fields[field]
	return v, ok
}

// Clone deep-copies a session state. The dispatcher applies effects to a
// clone and swaps it in only on success, so a rejected command can never
// leave a half-applied mutation behind.
func Clone(s *types.SessionState) *types.SessionState {
	c := *s
	c.Entities = make(map[string]*types.EntityState, len(s.Entities))
	for id, ent := range s.Entities {
		e := *ent
		e.Fields = make(map[string]any, len(ent.Fields))
		for k, v := range ent.Fields {
			e.Fields[k] = v
		}
		c.Entities[id] = &e
	}
	c.EntityOrder = append([]string(nil), s.EntityOrder...)
	c.Counters = make(map[string]int, len(s.Counters))
	for k, v := range s.Counters {
		c.Counters[k] = v
	}
	c.Flags = make(map[string]bool, len(s.Flags))
	for k, v := range s.Flags {
		c.Flags[k] = v
	}
	c.Log = append([]types.ActionRecord(nil), s.Log...)
	return &c
}

// checkField validates a value against one field declaration.
func checkField(fd types.FieldDef, value any) error {
	switch fd.Type {
	case "int", "float":
		f, ok := ToFloat(value)
		if !ok {
			return fmt.Errorf("%w: field %s expects a number", types.ErrOutOfRange, fd.Name)
		}
		if fd.Min != nil && f < *fd.Min {
			return fmt.Errorf("%w: field %s = %v below minimum %v", types.ErrOutOfRange, fd.Name, f, *fd.Min)
		}
		if fd.Max != nil && f > *fd.Max {
			return fmt.Errorf("%w: field %s = %v above maximum %v", types.ErrOutOfRange, fd.Name, f, *fd.Max)
		}
	case "bool":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%w: field %s expects a bool", types.ErrOutOfRange, fd.Name)
		}
	case "enum":
		str, ok := value.(string)
		if !ok || !containsString(fd.Enum, str) {
			return fmt.Errorf("%w: field %s expects one of %v", types.ErrOutOfRange, fd.Name, fd.Enum)
		}
	}
	return nil
}

// ToFloat converts a numeric value to float64, handling the int/float64
// split that comes from JSON and Lua round-trips.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// normalizeFields copies a field map with all numerics as float64.
func normalizeFields(fields map[string]any) map[string]any {
	norm := make(map[string]any, len(fields))
	for k, v := range fields {
		norm[k] = normalizeValue(v)
	}
	return norm
}

func normalizeValue(v any) any {
	if f, ok := ToFloat(v); ok {
		return f
	}
	return v
}

func containsString(list []string, target string) bool {
	for _, s := range list {
		if s == target {
			return true
		}
	}
	return false
}
