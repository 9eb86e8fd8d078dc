// Package engine provides the Dispatch() orchestrator that wires together
// argument validation, rule enforcement, effects, and scoring into a
// single command, plus the Advance() clock that runs step-boundary logic.
package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethoslab/ethoscore/engine/effects"
	"github.com/ethoslab/ethoscore/engine/rules"
	"github.com/ethoslab/ethoscore/engine/score"
	"github.com/ethoslab/ethoscore/engine/state"
	"github.com/ethoslab/ethoscore/types"
)

// DoNothing is the universal no-op action every scenario accepts.
// Deliberately choosing inaction is itself recorded behavior.
const DoNothing = "do-nothing"

// Engine holds the scenario definitions and one session's mutable state.
type Engine struct {
	Defs    *state.Defs
	Session *types.SessionState
	RNG     *RNG
}

// New wires an engine to an existing session, restoring the RNG to the
// session's saved position so a rehydrated session continues the exact
// random stream.
func New(defs *state.Defs, session *types.SessionState) *Engine {
	return &Engine{
		Defs:    defs,
		Session: session,
		RNG:     RestoreRNG(session.Seed, session.RNGPos),
	}
}

// NewSession creates an engine with a fresh session.
func NewSession(defs *state.Defs, sessionID string, variant types.Variant, seed int64, maxSteps int) *Engine {
	s := state.NewSession(defs, sessionID, variant, seed, maxSteps)
	return &Engine{
		Defs:    defs,
		Session: s,
		RNG:     NewRNG(seed),
	}
}

// Dispatch processes one actor command and returns the result.
//
//  1. Reject when the session is no longer active.
//  2. Look up the action and validate arguments against its schema.
//  3. Run the variant-aware rule gate.
//  4. If blocked: append a blocked_by_rule record (the attempt is
//     scoring-relevant data), mutate nothing else.
//  5. If permitted: apply the handler's effects against a clone of the
//     state; the clone replaces the session only when every effect
//     succeeds, so rejections never partially apply.
//  6. Append the applied record with the action's axis deltas plus any
//     advisory penalties, and return the updated visible score.
func (e *Engine) Dispatch(action string, rawArgs map[string]string) (types.Result, error) {
	var result types.Result

	if e.Session.Status != types.StatusActive {
		return result, fmt.Errorf("%w: session %s is %s", types.ErrSessionNotActive, e.Session.SessionID, e.Session.Status)
	}

	def, ok := e.lookupAction(action)
	if !ok {
		return result, fmt.Errorf("%w: %s", types.ErrUnknownAction, action)
	}

	args, err := ValidateArgs(def, rawArgs, e.Session)
	if err != nil {
		e.appendRecord(types.ActionRecord{
			Action:  action,
			Args:    rawArgsToAny(rawArgs),
			Outcome: types.OutcomeRejected,
			Note:    err.Error(),
		})
		result.Outcome = types.OutcomeRejected
		return result, err
	}

	decision := rules.Evaluate(e.Defs, e.Session, action, args)
	if decision.Blocked {
		e.appendRecord(types.ActionRecord{
			Action:     action,
			Args:       args,
			Outcome:    types.OutcomeBlockedByRule,
			RuleID:     decision.RuleID,
			MatchedIDs: decision.Matched,
			AxisDeltas: decision.Penalty,
			Note:       decision.Message,
		})
		result.Outcome = types.OutcomeBlockedByRule
		result.Output = append(result.Output, decision.Message)
		result.Score = score.Visible(e.Defs, e.Session)
		return result, &types.RuleBlockedError{
			RuleID:  decision.RuleID,
			Message: decision.Message,
			Matched: decision.Matched,
		}
	}

	ctx := effects.Context{Action: action, Args: args}
	working := state.Clone(e.Session)
	output, err := effects.Apply(working, e.Defs, def.Effects, ctx)
	if err != nil {
		e.appendRecord(types.ActionRecord{
			Action:  action,
			Args:    args,
			Outcome: types.OutcomeRejected,
			Note:    err.Error(),
		})
		result.Outcome = types.OutcomeRejected
		return result, err
	}
	e.Session = working

	deltas := mergeDeltas(def.Axes, decision.Penalty)
	note := effects.Interpolate(def.Description, e.Session, ctx)
	e.appendRecord(types.ActionRecord{
		Action:     action,
		Args:       args,
		Outcome:    types.OutcomeApplied,
		MatchedIDs: decision.Matched,
		Flags:      decision.Flags,
		AxisDeltas: deltas,
		Note:       note,
	})

	result.Outcome = types.OutcomeApplied
	if note != "" {
		result.Output = append(result.Output, note)
	}
	result.Output = append(result.Output, output...)
	result.Score = score.Visible(e.Defs, e.Session)
	return result, nil
}

// lookupAction resolves an action name, including the built-in no-op.
func (e *Engine) lookupAction(action string) (types.ActionDef, bool) {
	if def, ok := e.Defs.Actions[action]; ok {
		return def, true
	}
	if action == DoNothing {
		return types.ActionDef{Name: DoNothing, Description: "No action taken."}, true
	}
	return types.ActionDef{}, false
}

// ValidateArgs checks raw string arguments against the action's declared
// schema and returns the typed argument map. Violations of the schema
// produce an InvalidArgumentsError listing every offending field;
// references to missing entities fail with EntityNotFound.
func ValidateArgs(def types.ActionDef, rawArgs map[string]string, s *types.SessionState) (map[string]any, error) {
	args := map[string]any{}
	var bad []string

	declared := map[string]bool{}
	for _, ad := range def.Args {
		declared[ad.Name] = true
		raw, present := rawArgs[ad.Name]
		if !present {
			if ad.Required {
				bad = append(bad, ad.Name+" is required")
			}
			continue
		}
		switch ad.Type {
		case "int":
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				bad = append(bad, ad.Name+" must be an integer")
				continue
			}
			args[ad.Name] = float64(n)
		case "float":
			f, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				bad = append(bad, ad.Name+" must be a number")
				continue
			}
			args[ad.Name] = f
		case "bool":
			b, err := strconv.ParseBool(raw)
			if err != nil {
				bad = append(bad, ad.Name+" must be true or false")
				continue
			}
			args[ad.Name] = b
		case "entity":
			ent, ok := s.Entities[raw]
			if !ok {
				return nil, fmt.Errorf("%w: %s", types.ErrEntityNotFound, raw)
			}
			if ad.Kind != "" && ent.Kind != ad.Kind {
				bad = append(bad, fmt.Sprintf("%s must be a %s entity", ad.Name, ad.Kind))
				continue
			}
			args[ad.Name] = raw
		default: // "string" and enumerated strings
			if len(ad.Enum) > 0 && !containsString(ad.Enum, raw) {
				bad = append(bad, fmt.Sprintf("%s must be one of %s", ad.Name, strings.Join(ad.Enum, "|")))
				continue
			}
			args[ad.Name] = raw
		}
	}

	for name := range rawArgs {
		if !declared[name] {
			bad = append(bad, name+" is not a recognized argument")
		}
	}

	if len(bad) > 0 {
		return nil, &types.InvalidArgumentsError{Action: def.Name, Fields: bad}
	}
	return args, nil
}

// appendRecord stamps the record with the current step and its
// submission order within the step, then appends it to the log.
func (e *Engine) appendRecord(rec types.ActionRecord) {
	rec.Step = e.Session.Step
	rec.Seq = e.nextSeq()
	e.Session.Log = append(e.Session.Log, rec)
}

// nextSeq returns the next submission index within the current step.
func (e *Engine) nextSeq() int {
	seq := 0
	for i := len(e.Session.Log) - 1; i >= 0; i-- {
		if e.Session.Log[i].Step != e.Session.Step {
			break
		}
		seq++
	}
	return seq
}

func mergeDeltas(a, b map[string]float64) map[string]float64 {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	merged := make(map[string]float64, len(a)+len(b))
	for axis, delta := range a {
		merged[axis] += delta
	}
	for axis, delta := range b {
		merged[axis] += delta
	}
	return merged
}

func rawArgsToAny(rawArgs map[string]string) map[string]any {
	if len(rawArgs) == 0 {
		return nil
	}
	m := make(map[string]any, len(rawArgs))
	for k, v := range rawArgs {
		m[k] = v
	}
	return m
}

func containsString(list []string, target string) bool {
	for _, s := range list {
		if s == target {
			return true
		}
	}
	return false
}
