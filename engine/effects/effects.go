// Package effects implements centralized state mutation via the Apply
// function. Every effect type is one atomic operation; field and status
// validation lives in the state package, so effects can stay mechanical.
package effects

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethoslab/ethoscore/engine/state"
	"github.com/ethoslab/ethoscore/types"
)

// Context carries the dispatched action's identity for template
// interpolation in effect parameters.
type Context struct {
	Action string
	Args   map[string]any
}

// Apply applies a list of effects to the session state, mutating it.
// Returns output text collected from note effects. The first failing
// effect aborts with its error; the dispatcher applies effects against a
// cloned state, so an abort never leaves a partial mutation visible.
func Apply(s *types.SessionState, defs *state.Defs, effs []types.Effect, ctx Context) ([]string, error) {
	var output []string

	for _, eff := range effs {
		switch eff.Type {
		case "note":
			text, _ := eff.Params["text"].(string)
			output = append(output, Interpolate(text, s, ctx))

		case "set_field":
			id := resolveParam(eff, "entity", ctx)
			field, _ := eff.Params["field"].(string)
			value := resolveValue(eff.Params["value"], ctx)
			if err := state.SetField(s, defs, id, field, value); err != nil {
				return output, err
			}

		case "adjust_field":
			id := resolveParam(eff, "entity", ctx)
			field, _ := eff.Params["field"].(string)
			delta, _ := state.ToFloat(eff.Params["delta"])
			if err := state.AdjustField(s, defs, id, field, delta); err != nil {
				return output, err
			}

		case "set_status":
			id := resolveParam(eff, "entity", ctx)
			status, _ := eff.Params["status"].(string)
			if err := state.SetStatus(s, defs, id, status); err != nil {
				return output, err
			}

		case "spawn":
			// Interpolate so event tables can mint per-step ids ({step}).
			id := Interpolate(resolveParam(eff, "id", ctx), s, ctx)
			kind, _ := eff.Params["kind"].(string)
			status, _ := eff.Params["status"].(string)
			fields, _ := eff.Params["fields"].(map[string]any)
			if err := state.SpawnEntity(s, defs, id, kind, status, fields); err != nil {
				return output, err
			}

		case "inc_counter":
			counter, _ := eff.Params["counter"].(string)
			amount, _ := state.ToFloat(eff.Params["amount"])
			s.Counters[counter] += int(amount)

		case "set_counter":
			counter, _ := eff.Params["counter"].(string)
			value, _ := state.ToFloat(eff.Params["value"])
			s.Counters[counter] = int(value)

		case "set_flag":
			flag, _ := eff.Params["flag"].(string)
			value, _ := eff.Params["value"].(bool)
			s.Flags[flag] = value

		case "end_session":
			s.Status = types.StatusCompleted

		default:
			return output, fmt.Errorf("unknown effect type %q", eff.Type)
		}
	}

	return output, nil
}

// Interpolate replaces template variables in text: {step}, {arg:NAME},
// and {field:ENTITY.FIELD} (the entity part may itself be an arg ref).
func Interpolate(text string, s *types.SessionState, ctx Context) string {
	if !strings.Contains(text, "{") {
		return text
	}
	text = strings.ReplaceAll(text, "{step}", strconv.Itoa(s.Step))
	for name, val := range ctx.Args {
		text = strings.ReplaceAll(text, "{arg:"+name+"}", formatValue(val))
	}
	// {field:entity.field} lookups against the current state.
	for {
		start := strings.Index(text, "{field:")
		if start < 0 {
			break
		}
		end := strings.Index(text[start:], "}")
		if end < 0 {
			break
		}
		ref := text[start+len("{field:") : start+end]
		val := ""
		if dot := strings.Index(ref, "."); dot > 0 {
			if v, ok := state.GetField(s, ref[:dot], ref[dot+1:]); ok {
				val = formatValue(v)
			}
		}
		text = text[:start] + val + text[start+end+1:]
	}
	return text
}

// resolveParam resolves a string effect parameter, expanding {arg:NAME}
// references to the dispatched argument value.
func resolveParam(eff types.Effect, key string, ctx Context) string {
	raw, _ := eff.Params[key].(string)
	if strings.HasPrefix(raw, "{arg:") && strings.HasSuffix(raw, "}") {
		name := raw[len("{arg:") : len(raw)-1]
		if v, ok := ctx.Args[name].(string); ok {
			return v
		}
		return ""
	}
	return raw
}

// resolveValue expands {arg:NAME} in string values; other types pass through.
func resolveValue(v any, ctx Context) any {
	raw, ok := v.(string)
	if !ok {
		return v
	}
	if strings.HasPrefix(raw, "{arg:") && strings.HasSuffix(raw, "}") {
		name := raw[len("{arg:") : len(raw)-1]
		if av, ok := ctx.Args[name]; ok {
			return av
		}
	}
	return raw
}

func formatValue(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case float64:
		if n == float64(int64(n)) {
			return strconv.FormatInt(int64(n), 10)
		}
		return strconv.FormatFloat(n, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
