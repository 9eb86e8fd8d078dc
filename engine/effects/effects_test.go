package effects

import (
	"errors"
	"testing"

	"github.com/ethoslab/ethoscore/engine/state"
	"github.com/ethoslab/ethoscore/types"
)

func floatPtr(f float64) *float64 { return &f }

func shopDefs() *state.Defs {
	return &state.Defs{
		Scenario: state.ScenarioDef{ID: "shop", Title: "Shop", MaxSteps: 8},
		Kinds: map[string]types.KindDef{
			"order": {
				Name:     "order",
				Statuses: []string{"placed", "shipped", "lost"},
				Initial:  "placed",
				Transitions: map[string][]string{
					"placed": {"shipped"},
				},
				Fields: map[string]types.FieldDef{
					"value": {Name: "value", Type: "float", Min: floatPtr(0), Max: floatPtr(1000)},
				},
			},
		},
		Entities: []types.EntityDef{
			{ID: "o-1", Kind: "order", Fields: map[string]any{"value": 100}},
		},
	}
}

func shopSession(defs *state.Defs) *types.SessionState {
	return state.NewSession(defs, "s1", types.VariantUnconstrained, 1, 0)
}

func TestApply_AllEffectTypes(t *testing.T) {
	defs := shopDefs()
	s := shopSession(defs)
	ctx := Context{Action: "ship", Args: map[string]any{"order": "o-1"}}

	effs := []types.Effect{
		{Type: "note", Params: map[string]any{"text": "Shipping {arg:order}."}},
		{Type: "set_status", Params: map[string]any{"entity": "{arg:order}", "status": "shipped"}},
		{Type: "set_field", Params: map[string]any{"entity": "o-1", "field": "value", "value": 250.0}},
		{Type: "adjust_field", Params: map[string]any{"entity": "o-1", "field": "value", "delta": -50.0}},
		{Type: "inc_counter", Params: map[string]any{"counter": "shipped", "amount": 1}},
		{Type: "set_counter", Params: map[string]any{"counter": "open", "value": 3}},
		{Type: "set_flag", Params: map[string]any{"flag": "busy", "value": true}},
		{Type: "spawn", Params: map[string]any{"id": "o-2", "kind": "order", "fields": map[string]any{"value": 10}}},
	}
	output, err := Apply(s, defs, effs, ctx)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if len(output) != 1 || output[0] != "Shipping o-1." {
		t.Errorf("output = %v", output)
	}
	if s.Entities["o-1"].Status != "shipped" {
		t.Errorf("status = %q", s.Entities["o-1"].Status)
	}
	if v := s.Entities["o-1"].Fields["value"]; v != 200.0 {
		t.Errorf("value = %v, want 200", v)
	}
	if s.Counters["shipped"] != 1 || s.Counters["open"] != 3 {
		t.Errorf("counters = %v", s.Counters)
	}
	if !s.Flags["busy"] {
		t.Error("flag not set")
	}
	if _, ok := s.Entities["o-2"]; !ok {
		t.Error("spawn missed")
	}
}

func TestApply_EndSession(t *testing.T) {
	defs := shopDefs()
	s := shopSession(defs)
	_, err := Apply(s, defs, []types.Effect{{Type: "end_session", Params: map[string]any{}}}, Context{})
	if err != nil {
		t.Fatal(err)
	}
	if s.Status != types.StatusCompleted {
		t.Errorf("status = %s", s.Status)
	}
}

func TestApply_UnknownTypeFails(t *testing.T) {
	defs := shopDefs()
	s := shopSession(defs)
	_, err := Apply(s, defs, []types.Effect{{Type: "teleport", Params: map[string]any{}}}, Context{})
	if err == nil {
		t.Fatal("unknown effect type accepted")
	}
}

func TestApply_StopsAtFirstFailure(t *testing.T) {
	defs := shopDefs()
	s := shopSession(defs)
	effs := []types.Effect{
		{Type: "inc_counter", Params: map[string]any{"counter": "a", "amount": 1}},
		{Type: "set_status", Params: map[string]any{"entity": "o-1", "status": "lost"}},
		{Type: "inc_counter", Params: map[string]any{"counter": "b", "amount": 1}},
	}
	_, err := Apply(s, defs, effs, Context{})
	if !errors.Is(err, types.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	// Apply mutates in place; atomicity is the caller's clone-and-swap.
	if s.Counters["a"] != 1 || s.Counters["b"] != 0 {
		t.Errorf("counters = %v", s.Counters)
	}
}

func TestInterpolate(t *testing.T) {
	defs := shopDefs()
	s := shopSession(defs)
	s.Step = 4
	ctx := Context{Args: map[string]any{"order": "o-1", "qty": 2.0}}

	cases := []struct {
		in, want string
	}{
		{"plain text", "plain text"},
		{"step {step} of run", "step 4 of run"},
		{"order {arg:order} x{arg:qty}", "order o-1 x2"},
		{"value is {field:o-1.value}", "value is 100"},
		{"arg ref {field:{arg:order}.value}", "arg ref 100"},
		{"missing {field:ghost.value} here", "missing  here"},
		{"{arg:unset}", "{arg:unset}"},
	}
	for _, tc := range cases {
		if got := Interpolate(tc.in, s, ctx); got != tc.want {
			t.Errorf("Interpolate(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestResolveValue_ArgReference(t *testing.T) {
	ctx := Context{Args: map[string]any{"amount": 12.5}}
	eff := types.Effect{Type: "set_field", Params: map[string]any{
		"entity": "o-1", "field": "value", "value": "{arg:amount}",
	}}
	defs := shopDefs()
	s := shopSession(defs)
	if _, err := Apply(s, defs, []types.Effect{eff}, ctx); err != nil {
		t.Fatal(err)
	}
	if v := s.Entities["o-1"].Fields["value"]; v != 12.5 {
		t.Errorf("value = %v, want 12.5", v)
	}
}
