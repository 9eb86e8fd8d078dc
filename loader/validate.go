package loader

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethoslab/ethoscore/engine/state"
	"github.com/ethoslab/ethoscore/types"
)

// ValidationError collects all validation errors and warnings.
type ValidationError struct {
	Errors   []string
	Warnings []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed with %d error(s):\n  %s",
		len(e.Errors), strings.Join(e.Errors, "\n  "))
}

// Known effect types.
var validEffectTypes = map[string]bool{
	"note":         true,
	"set_field":    true,
	"adjust_field": true,
	"set_status":   true,
	"spawn":        true,
	"inc_counter":  true,
	"set_counter":  true,
	"set_flag":     true,
	"end_session":  true,
}

// Known condition types.
var validConditionTypes = map[string]bool{
	"status_is":  true,
	"field_is":   true,
	"field_gt":   true,
	"field_lt":   true,
	"counter_gt": true,
	"counter_lt": true,
	"flag_set":   true,
	"flag_not":   true,
	"arg_is":     true,
	"step_gt":    true,
	"step_lt":    true,
	"exists":     true,
	"not":        true,
}

// Known field types.
var validFieldTypes = map[string]bool{
	"int": true, "float": true, "bool": true, "string": true, "enum": true,
}

// Known argument types.
var validArgTypes = map[string]bool{
	"int": true, "float": true, "bool": true, "string": true, "entity": true,
}

// Known score aggregates.
var validAggregates = map[string]bool{
	"sum": true, "mean": true, "count": true,
}

// validate checks the compiled defs for referential integrity and
// consistency. Loading fails on any error; warnings go to stderr.
func validate(defs *state.Defs) error {
	ve := &ValidationError{}

	if defs.Scenario.ID == "" {
		ve.Errors = append(ve.Errors, "Scenario.id is required")
	}
	if defs.Scenario.Title == "" {
		ve.Errors = append(ve.Errors, "Scenario.title is required")
	}
	if defs.Scenario.MaxSteps <= 0 {
		ve.Errors = append(ve.Errors, "Scenario.max_steps must be positive")
	}

	axisNames := map[string]bool{}
	for _, axis := range defs.Axes {
		if axisNames[axis.Name] {
			ve.Errors = append(ve.Errors, fmt.Sprintf("duplicate axis %q", axis.Name))
		}
		axisNames[axis.Name] = true
	}

	entityIDs := map[string]bool{}
	for _, ent := range defs.Entities {
		entityIDs[ent.ID] = true
	}

	validateKinds(defs, ve)
	validateEntities(defs, ve)
	validateActions(defs, entityIDs, axisNames, ve)
	validateRules(defs, entityIDs, axisNames, ve)
	validateScore(defs, ve)
	validateDecay(defs, ve)
	validateDeadlines(defs, axisNames, ve)
	validateConditions(defs.EndWhen, defs, entityIDs, ve)
	validateEventTable(defs, axisNames, ve)

	for _, w := range ve.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateKinds(defs *state.Defs, ve *ValidationError) {
	for name, kind := range defs.Kinds {
		if len(kind.Statuses) == 0 {
			ve.Errors = append(ve.Errors, fmt.Sprintf("kind %q declares no statuses", name))
			continue
		}
		statusSet := map[string]bool{}
		for _, s := range kind.Statuses {
			statusSet[s] = true
		}
		if kind.Initial == "" {
			ve.Errors = append(ve.Errors, fmt.Sprintf("kind %q has no initial status", name))
		} else if !statusSet[kind.Initial] {
			ve.Errors = append(ve.Errors, fmt.Sprintf(
				"kind %q initial status %q not in declared statuses", name, kind.Initial))
		}
		for from, targets := range kind.Transitions {
			if !statusSet[from] {
				ve.Errors = append(ve.Errors, fmt.Sprintf(
					"kind %q transition from undeclared status %q", name, from))
			}
			for _, to := range targets {
				if !statusSet[to] {
					ve.Errors = append(ve.Errors, fmt.Sprintf(
						"kind %q transition %s → undeclared status %q", name, from, to))
				}
			}
		}
		for fname, field := range kind.Fields {
			if !validFieldTypes[field.Type] {
				ve.Errors = append(ve.Errors, fmt.Sprintf(
					"kind %q field %q has unknown type %q", name, fname, field.Type))
			}
			if field.Type == "enum" && len(field.Enum) == 0 {
				ve.Errors = append(ve.Errors, fmt.Sprintf(
					"kind %q enum field %q declares no values", name, fname))
			}
			if field.Min != nil && field.Max != nil && *field.Min > *field.Max {
				ve.Errors = append(ve.Errors, fmt.Sprintf(
					"kind %q field %q has min > max", name, fname))
			}
		}
	}
}

func validateEntities(defs *state.Defs, ve *ValidationError) {
	seen := map[string]bool{}
	for _, ent := range defs.Entities {
		if seen[ent.ID] {
			ve.Errors = append(ve.Errors, fmt.Sprintf("duplicate entity id %q", ent.ID))
		}
		seen[ent.ID] = true

		kind, ok := defs.Kinds[ent.Kind]
		if !ok {
			ve.Errors = append(ve.Errors, fmt.Sprintf(
				"entity %q references undefined kind %q", ent.ID, ent.Kind))
			continue
		}
		if ent.Status != "" && !containsString(kind.Statuses, ent.Status) {
			ve.Errors = append(ve.Errors, fmt.Sprintf(
				"entity %q status %q not declared on kind %q", ent.ID, ent.Status, ent.Kind))
		}
		for fname := range ent.Fields {
			if _, ok := kind.Fields[fname]; !ok {
				ve.Warnings = append(ve.Warnings, fmt.Sprintf(
					"entity %q sets field %q not declared on kind %q", ent.ID, fname, ent.Kind))
			}
		}
	}
}

func validateActions(defs *state.Defs, entityIDs, axisNames map[string]bool, ve *ValidationError) {
	for name, action := range defs.Actions {
		argNames := map[string]bool{}
		for _, arg := range action.Args {
			if argNames[arg.Name] {
				ve.Errors = append(ve.Errors, fmt.Sprintf(
					"action %q declares argument %q twice", name, arg.Name))
			}
			argNames[arg.Name] = true
			if !validArgTypes[arg.Type] {
				ve.Errors = append(ve.Errors, fmt.Sprintf(
					"action %q argument %q has unknown type %q", name, arg.Name, arg.Type))
			}
			if arg.Type == "entity" && arg.Kind != "" {
				if _, ok := defs.Kinds[arg.Kind]; !ok {
					ve.Errors = append(ve.Errors, fmt.Sprintf(
						"action %q argument %q requires undefined kind %q", name, arg.Name, arg.Kind))
				}
			}
		}
		validateEffects(action.Effects, defs, entityIDs, ve)
		for axis := range action.Axes {
			if !axisNames[axis] {
				ve.Errors = append(ve.Errors, fmt.Sprintf(
					"action %q records undeclared axis %q", name, axis))
			}
		}
	}
}

func validateRules(defs *state.Defs, entityIDs, axisNames map[string]bool, ve *ValidationError) {
	ruleIDs := map[string]bool{}
	for _, rule := range defs.Rules {
		if ruleIDs[rule.ID] {
			ve.Errors = append(ve.Errors, fmt.Sprintf("duplicate rule ID %q", rule.ID))
		}
		ruleIDs[rule.ID] = true

		if rule.Action != "*" {
			if _, ok := defs.Actions[rule.Action]; !ok {
				ve.Errors = append(ve.Errors, fmt.Sprintf(
					"rule %q gates undefined action %q", rule.ID, rule.Action))
			}
		}
		if rule.Message == "" {
			ve.Warnings = append(ve.Warnings, fmt.Sprintf("rule %q has no message", rule.ID))
		}
		validateConditions(rule.Conditions, defs, entityIDs, ve)
		for axis := range rule.Penalty {
			if !axisNames[axis] {
				ve.Errors = append(ve.Errors, fmt.Sprintf(
					"rule %q penalizes undeclared axis %q", rule.ID, axis))
			}
		}
	}
}

func validateScore(defs *state.Defs, ve *ValidationError) {
	for i, term := range defs.Score.Terms {
		switch {
		case term.Counter != "" && term.Kind != "":
			ve.Errors = append(ve.Errors, fmt.Sprintf(
				"score term %d sets both counter and kind", i+1))
		case term.Counter == "" && term.Kind == "":
			ve.Errors = append(ve.Errors, fmt.Sprintf(
				"score term %d sets neither counter nor kind", i+1))
		case term.Kind != "":
			kind, ok := defs.Kinds[term.Kind]
			if !ok {
				ve.Errors = append(ve.Errors, fmt.Sprintf(
					"score term %d references undefined kind %q", i+1, term.Kind))
				continue
			}
			if !validAggregates[term.Aggregate] {
				ve.Errors = append(ve.Errors, fmt.Sprintf(
					"score term %d has unknown aggregate %q", i+1, term.Aggregate))
			}
			if term.Aggregate != "count" {
				if _, ok := kind.Fields[term.Field]; !ok {
					ve.Errors = append(ve.Errors, fmt.Sprintf(
						"score term %d aggregates undeclared field %q on kind %q",
						i+1, term.Field, term.Kind))
				}
			}
			if term.Status != "" && !containsString(kind.Statuses, term.Status) {
				ve.Errors = append(ve.Errors, fmt.Sprintf(
					"score term %d filters on undeclared status %q", i+1, term.Status))
			}
		}
	}
	if defs.Score.Min != nil && defs.Score.Max != nil && *defs.Score.Min > *defs.Score.Max {
		ve.Errors = append(ve.Errors, "score min > max")
	}
}

func validateDecay(defs *state.Defs, ve *ValidationError) {
	for i, d := range defs.Decay {
		kind, ok := defs.Kinds[d.Kind]
		if !ok {
			ve.Errors = append(ve.Errors, fmt.Sprintf(
				"decay %d references undefined kind %q", i+1, d.Kind))
			continue
		}
		field, ok := kind.Fields[d.Field]
		if !ok {
			ve.Errors = append(ve.Errors, fmt.Sprintf(
				"decay %d references undeclared field %q on kind %q", i+1, d.Field, d.Kind))
		} else if field.Type != "int" && field.Type != "float" {
			ve.Errors = append(ve.Errors, fmt.Sprintf(
				"decay %d targets non-numeric field %q", i+1, d.Field))
		}
		if d.Status != "" && !containsString(kind.Statuses, d.Status) {
			ve.Errors = append(ve.Errors, fmt.Sprintf(
				"decay %d filters on undeclared status %q", i+1, d.Status))
		}
	}
}

func validateDeadlines(defs *state.Defs, axisNames map[string]bool, ve *ValidationError) {
	for i, dl := range defs.Deadlines {
		kind, ok := defs.Kinds[dl.Kind]
		if !ok {
			ve.Errors = append(ve.Errors, fmt.Sprintf(
				"deadline %d references undefined kind %q", i+1, dl.Kind))
			continue
		}
		if !containsString(kind.Statuses, dl.Status) {
			ve.Errors = append(ve.Errors, fmt.Sprintf(
				"deadline %d watches undeclared status %q", i+1, dl.Status))
		}
		if !containsString(kind.Statuses, dl.EscalateTo) {
			ve.Errors = append(ve.Errors, fmt.Sprintf(
				"deadline %d escalates to undeclared status %q", i+1, dl.EscalateTo))
		}
		if dl.AfterSteps <= 0 {
			ve.Errors = append(ve.Errors, fmt.Sprintf(
				"deadline %d must have a positive after_steps", i+1))
		}
		for axis := range dl.Axes {
			if !axisNames[axis] {
				ve.Errors = append(ve.Errors, fmt.Sprintf(
					"deadline %d records undeclared axis %q", i+1, axis))
			}
		}
	}
}

func validateEventTable(defs *state.Defs, axisNames map[string]bool, ve *ValidationError) {
	if defs.Events == nil {
		return
	}
	entityIDs := map[string]bool{}
	for _, ent := range defs.Entities {
		entityIDs[ent.ID] = true
	}
	for _, ev := range defs.Events.Events {
		validateEffects(ev.ToEffects(), defs, entityIDs, ve)
		for axis := range ev.Axes {
			if !axisNames[axis] {
				ve.Errors = append(ve.Errors, fmt.Sprintf(
					"event %q records undeclared axis %q", ev.ID, axis))
			}
		}
	}
}

func validateConditions(conditions []types.Condition, defs *state.Defs, entityIDs map[string]bool, ve *ValidationError) {
	for _, cond := range conditions {
		if !validConditionTypes[cond.Type] {
			ve.Errors = append(ve.Errors, fmt.Sprintf("unknown condition type %q", cond.Type))
		}

		switch cond.Type {
		case "status_is", "field_is", "field_gt", "field_lt":
			if entity, ok := cond.Params["entity"].(string); ok && !isTemplate(entity) {
				if !entityIDs[entity] {
					ve.Errors = append(ve.Errors, fmt.Sprintf(
						"condition %s references undefined entity %q", cond.Type, entity))
				}
			}
		case "exists":
			if kind, ok := cond.Params["kind"].(string); ok {
				if _, found := defs.Kinds[kind]; !found {
					ve.Errors = append(ve.Errors, fmt.Sprintf(
						"condition exists references undefined kind %q", kind))
				}
			}
		case "not":
			if cond.Inner != nil {
				validateConditions([]types.Condition{*cond.Inner}, defs, entityIDs, ve)
			}
		}
	}
}

func validateEffects(effects []types.Effect, defs *state.Defs, entityIDs map[string]bool, ve *ValidationError) {
	for _, eff := range effects {
		if !validEffectTypes[eff.Type] {
			ve.Errors = append(ve.Errors, fmt.Sprintf("unknown effect type %q", eff.Type))
		}

		switch eff.Type {
		case "set_field", "adjust_field", "set_status":
			if entity, ok := eff.Params["entity"].(string); ok && !isTemplate(entity) {
				if !entityIDs[entity] {
					ve.Errors = append(ve.Errors, fmt.Sprintf(
						"effect %s references undefined entity %q", eff.Type, entity))
				}
			}
		case "spawn":
			if kind, ok := eff.Params["kind"].(string); ok {
				if _, found := defs.Kinds[kind]; !found {
					ve.Errors = append(ve.Errors, fmt.Sprintf(
						"effect spawn references undefined kind %q", kind))
				}
			}
		}
	}
}

// isTemplate returns true if the string contains a template variable.
func isTemplate(s string) bool {
	return strings.Contains(s, "{") && strings.Contains(s, "}")
}

func containsString(list []string, target string) bool {
	for _, s := range list {
		if s == target {
			return true
		}
	}
	return false
}
