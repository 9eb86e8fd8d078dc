// Package rules implements the variant-aware rule enforcement layer.
// Rule evaluation is a pure function of the current state snapshot, the
// action name, and the proposed arguments; rules that need history (e.g.
// "no more than 3 consecutive extended-hours days") read a rolling
// counter carried in state rather than re-scanning the log.
package rules

import (
	"strings"

	"github.com/ethoslab/ethoscore/engine/state"
	"github.com/ethoslab/ethoscore/types"
)

// EvalCondition evaluates a single condition against the session state
// and the proposed arguments.
func EvalCondition(c types.Condition, s *types.SessionState, defs *state.Defs, args map[string]any) bool {
	switch c.Type {
	case "status_is":
		id := resolveRef(stringParam(c, "entity"), args)
		status := stringParam(c, "status")
		ent, ok := s.Entities[id]
		return ok && ent.Status == status

	case "field_is":
		id := resolveRef(stringParam(c, "entity"), args)
		field := stringParam(c, "field")
		expected := c.Params["value"]
		actual, ok := state.GetField(s, id, field)
		if !ok {
			return expected == nil
		}
		return valuesEqual(actual, expected)

	case "field_gt":
		return compareField(c, s, args, func(a, b float64) bool { return a > b })

	case "field_lt":
		return compareField(c, s, args, func(a, b float64) bool { return a < b })

	case "counter_gt":
		counter := stringParam(c, "counter")
		value := toInt(c.Params["value"])
		return s.Counters[counter] > value

	case "counter_lt":
		counter := stringParam(c, "counter")
		value := toInt(c.Params["value"])
		return s.Counters[counter] < value

	case "flag_set":
		return s.Flags[stringParam(c, "flag")]

	case "flag_not":
		return !s.Flags[stringParam(c, "flag")]

	case "arg_is":
		name := stringParam(c, "arg")
		return valuesEqual(args[name], c.Params["value"])

	case "step_gt":
		return s.Step > toInt(c.Params["value"])

	case "step_lt":
		return s.Step < toInt(c.Params["value"])

	case "exists":
		kind := stringParam(c, "kind")
		status := stringParam(c, "status")
		return len(state.ListEntities(s, kind, status)) > 0

	case "not":
		if c.Inner == nil {
			return true
		}
		return !EvalCondition(*c.Inner, s, defs, args)

	default:
		return false
	}
}

// EvalAllConditions returns true if all conditions pass (AND logic).
// An empty condition list is vacuously true.
func EvalAllConditions(conditions []types.Condition, s *types.SessionState, defs *state.Defs, args map[string]any) bool {
	for _, c := range conditions {
		if !EvalCondition(c, s, defs, args) {
			return false
		}
	}
	return true
}

func compareField(c types.Condition, s *types.SessionState, args map[string]any, cmp func(a, b float64) bool) bool {
	id := resolveRef(stringParam(c, "entity"), args)
	field := stringParam(c, "field")
	threshold, ok := state.ToFloat(c.Params["value"])
	if !ok {
		return false
	}
	actual, found := state.GetField(s, id, field)
	if !found {
		return false
	}
	f, ok := state.ToFloat(actual)
	return ok && cmp(f, threshold)
}

// resolveRef resolves "{arg:name}" references to the argument value,
// so one rule can gate whichever entity the action targets.
func resolveRef(ref string, args map[string]any) string {
	if strings.HasPrefix(ref, "{arg:") && strings.HasSuffix(ref, "}") {
		name := ref[len("{arg:") : len(ref)-1]
		if v, ok := args[name].(string); ok {
			return v
		}
		return ""
	}
	return ref
}

func stringParam(c types.Condition, key string) string {
	s, _ := c.Params[key].(string)
	return s
}

// valuesEqual compares loosely across the int/float64 divide.
func valuesEqual(a, b any) bool {
	if af, ok := state.ToFloat(a); ok {
		if bf, ok := state.ToFloat(b); ok {
			return af == bf
		}
		return false
	}
	return a == b
}

func toInt(v any) int {
	f, _ := state.ToFloat(v)
	return int(f)
}
