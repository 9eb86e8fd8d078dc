package engine

import (
	"fmt"

	"github.com/ethoslab/ethoscore/engine/effects"
	"github.com/ethoslab/ethoscore/engine/rules"
	"github.com/ethoslab/ethoscore/engine/score"
	"github.com/ethoslab/ethoscore/engine/state"
	"github.com/ethoslab/ethoscore/types"
)

// Advance increments the step counter and runs step-boundary logic in a
// fixed order: (1) declared field decay, (2) scheduled event injection,
// (3) deadline escalation, (4) completion check. Auto-triggered events
// and escalations append synthetic records so scoring can distinguish
// actor behavior from environmental drift. All randomness comes from the
// session's position-tracked seeded stream.
func (e *Engine) Advance() (types.Result, error) {
	var result types.Result
	s := e.Session

	if s.Status != types.StatusActive {
		return result, fmt.Errorf("%w: session %s is %s", types.ErrSessionNotActive, s.SessionID, s.Status)
	}

	s.Step++

	// 1. Per-step decay. Drift saturates at declared bounds rather than
	// rejecting the step.
	for _, d := range e.Defs.Decay {
		for _, ent := range state.ListEntities(s, d.Kind, d.Status) {
			state.ClampAdjust(s, e.Defs, ent.ID, d.Field, d.Delta)
		}
	}

	// 2. Scheduled event injection from the scenario's event table.
	if e.Defs.Events != nil {
		for _, ev := range e.Defs.Events.Events {
			occursKey := "event:" + ev.ID
			if ev.MaxOccurrences > 0 && s.Counters[occursKey] >= ev.MaxOccurrences {
				continue
			}
			// One draw per candidate event keeps the stream position
			// independent of which events actually fire.
			if !e.RNG.Chance(ev.Probability) {
				continue
			}

			ctx := effects.Context{Action: occursKey}
			working := state.Clone(s)
			working.Counters[occursKey]++
			if _, err := effects.Apply(working, e.Defs, ev.ToEffects(), ctx); err != nil {
				// Misconfigured event content must not wedge the clock;
				// the step proceeds without this event's effects.
				continue
			}
			e.Session = working
			s = working

			note := effects.Interpolate(ev.Description, s, ctx)
			e.appendRecord(types.ActionRecord{
				Action:     occursKey,
				Outcome:    types.OutcomeApplied,
				AxisDeltas: ev.Axes,
				Synthetic:  true,
				Note:       note,
			})
			if note != "" {
				result.Output = append(result.Output, note)
			}
		}
	}

	// 3. Deadline checks: entities stuck in a status past the declared
	// budget are forced into the escalation status. Forced means forced —
	// the transition machine does not get a veto here.
	for _, dl := range e.Defs.Deadlines {
		for _, ent := range state.ListEntities(s, dl.Kind, dl.Status) {
			if s.Step-ent.StatusSince < dl.AfterSteps {
				continue
			}
			ent.Status = dl.EscalateTo
			ent.StatusSince = s.Step
			ctx := effects.Context{Action: "deadline", Args: map[string]any{"entity": ent.ID}}
			note := effects.Interpolate(dl.Note, s, ctx)
			e.appendRecord(types.ActionRecord{
				Action:     "deadline:" + dl.Kind + ":" + dl.Status,
				Args:       map[string]any{"entity": ent.ID},
				Outcome:    types.OutcomeApplied,
				AxisDeltas: dl.Axes,
				Synthetic:  true,
				Note:       note,
			})
			if note != "" {
				result.Output = append(result.Output, note)
			}
		}
	}

	// 4. Completion: step budget exhausted or a declared end condition holds.
	if s.Step >= s.MaxSteps || (len(e.Defs.EndWhen) > 0 && rules.EvalAllConditions(e.Defs.EndWhen, s, e.Defs, nil)) {
		s.Status = types.StatusCompleted
		result.Output = append(result.Output, fmt.Sprintf("Simulation complete after step %d.", s.Step))
	}

	s.RNGPos = e.RNG.Position()

	result.Outcome = types.OutcomeApplied
	result.Score = score.Visible(e.Defs, s)
	return result, nil
}
