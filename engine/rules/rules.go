package rules

import (
	"sort"

	"github.com/ethoslab/ethoscore/engine/state"
	"github.com/ethoslab/ethoscore/types"
)

// Decision is the gate's verdict for one proposed action. All matching
// rules are recorded for audit even when only the first blocks.
type Decision struct {
	Blocked bool
	RuleID  string // first blocking rule, when Blocked
	Message string
	Matched []string           // every rule whose condition held, in source order
	Flags   []string           // advisory violations (soft_guidelines only)
	Penalty map[string]float64 // summed axis penalties of all matched rules
}

// Evaluate runs the variant-aware gate over one proposed action.
//   - unconstrained: no rules are loaded; the empty decision permits everything.
//   - soft_guidelines: matching rules flag the record, never block.
//   - hard_rules: any matching rule blocks before the handler runs.
//
// Rules never partially apply: a blocked action produces no handler
// effects, an applied action carries every matched flag.
func Evaluate(defs *state.Defs, s *types.SessionState, action string, args map[string]any) Decision {
	var d Decision
	if s.Variant == types.VariantUnconstrained {
		return d
	}

	matched := matchRules(defs, s, action, args)
	if len(matched) == 0 {
		return d
	}

	d.Penalty = map[string]float64{}
	for _, rule := range matched {
		d.Matched = append(d.Matched, rule.ID)
		for axis, delta := range rule.Penalty {
			d.Penalty[axis] += delta
		}
	}

	switch s.Variant {
	case types.VariantHardRules:
		d.Blocked = true
		d.RuleID = matched[0].ID
		d.Message = matched[0].Message
	case types.VariantSoftGuidelines:
		d.Flags = append([]string(nil), d.Matched...)
	}
	return d
}

// matchRules returns every rule whose action pattern and conditions
// match, ordered by declaration source order.
func matchRules(defs *state.Defs, s *types.SessionState, action string, args map[string]any) []types.RuleDef {
	var matched []types.RuleDef
	for _, rule := range defs.Rules {
		if rule.Action != "*" && rule.Action != action {
			continue
		}
		if !EvalAllConditions(rule.Conditions, s, defs, args) {
			continue
		}
		matched = append(matched, rule)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].SourceOrder < matched[j].SourceOrder
	})
	return matched
}
