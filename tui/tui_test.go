package tui

import (
	"strings"
	"testing"

	"github.com/ethoslab/ethoscore/engine"
	"github.com/ethoslab/ethoscore/engine/state"
	"github.com/ethoslab/ethoscore/session"
	"github.com/ethoslab/ethoscore/types"
)

func playDefs() *state.Defs {
	return &state.Defs{
		Scenario: state.ScenarioDef{ID: "play", Title: "Play", Version: "1.0", MaxSteps: 5},
		Kinds: map[string]types.KindDef{
			"door": {
				Name:        "door",
				Statuses:    []string{"shut", "open"},
				Initial:     "shut",
				Transitions: map[string][]string{"shut": {"open"}},
			},
		},
		Entities: []types.EntityDef{{ID: "d-1", Kind: "door"}},
		Actions: map[string]types.ActionDef{
			"open": {
				Name: "open",
				Args: []types.ArgDef{{Name: "door", Type: "entity", Kind: "door", Required: true}},
				Effects: []types.Effect{
					{Type: "set_status", Params: map[string]any{"entity": "{arg:door}", "status": "open"}},
				},
				Description: "The door {arg:door} swings open.",
			},
		},
		Rules: []types.RuleDef{
			{
				ID:     "keep-doors-shut",
				Action: "open",
				Conditions: []types.Condition{
					{Type: "flag_set", Params: map[string]any{"flag": "lockdown"}},
				},
				Message:     "Lockdown in effect.",
				SourceOrder: 1,
			},
		},
		Axes: []types.AxisDef{{Name: "curiosity"}},
	}
}

func playModel(t *testing.T, variant types.Variant) Model {
	t.Helper()
	mgr := session.NewManager(session.NewMemStore())
	defs := playDefs()
	mgr.Register(defs)
	eng, err := mgr.Start("play", "s1", variant, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	return New(eng, mgr)
}

func lineTexts(lines []rawLine) string {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = l.text
	}
	return strings.Join(parts, "\n")
}

func TestExecute_ActionApplied(t *testing.T) {
	m := playModel(t, types.VariantUnconstrained)
	lines := m.execute("open door=d-1")

	if !strings.Contains(lineTexts(lines), "The door d-1 swings open.") {
		t.Errorf("output = %q", lineTexts(lines))
	}
	if m.eng.Session.Entities["d-1"].Status != "open" {
		t.Error("action did not apply")
	}

	// Every command auto-commits; the store must see the new state.
	stored, err := m.mgr.Store.Load("s1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Entities["d-1"].Status != "open" {
		t.Error("state not persisted after command")
	}
}

func TestExecute_BlockedShowsRule(t *testing.T) {
	m := playModel(t, types.VariantHardRules)
	m.eng.Session.Flags["lockdown"] = true

	lines := m.execute("open door=d-1")
	if len(lines) != 1 || lines[0].kind != kindBlocked {
		t.Fatalf("lines = %+v", lines)
	}
	if !strings.Contains(lines[0].text, "BLOCKED [keep-doors-shut]") {
		t.Errorf("text = %q", lines[0].text)
	}
	if m.eng.Session.Entities["d-1"].Status != "shut" {
		t.Error("blocked action mutated state")
	}
}

func TestExecute_InvalidInputRejected(t *testing.T) {
	m := playModel(t, types.VariantUnconstrained)

	lines := m.execute("open not-a-pair")
	if len(lines) != 1 || lines[0].kind != kindRejected {
		t.Fatalf("lines = %+v", lines)
	}

	lines = m.execute("teleport")
	if len(lines) != 1 || lines[0].kind != kindRejected {
		t.Fatalf("lines = %+v", lines)
	}
}

func TestExecute_Advance(t *testing.T) {
	m := playModel(t, types.VariantUnconstrained)
	lines := m.execute("advance")

	if !strings.Contains(lineTexts(lines), "Step 1/5") {
		t.Errorf("output = %q", lineTexts(lines))
	}
	if m.eng.Session.Step != 1 {
		t.Errorf("step = %d", m.eng.Session.Step)
	}
}

func TestExecute_DoNothing(t *testing.T) {
	m := playModel(t, types.VariantHardRules)
	m.execute(engine.DoNothing)
	if len(m.eng.Session.Log) != 1 || m.eng.Session.Log[0].Action != engine.DoNothing {
		t.Errorf("log = %+v", m.eng.Session.Log)
	}
}

func TestHandleMeta(t *testing.T) {
	m := playModel(t, types.VariantUnconstrained)
	m.execute("open door=d-1")

	lines, quit := m.handleMeta("/log")
	if quit {
		t.Fatal("/log quit")
	}
	if !strings.Contains(lineTexts(lines), "open applied") {
		t.Errorf("/log output = %q", lineTexts(lines))
	}

	lines, _ = m.handleMeta("/state")
	if !strings.Contains(lineTexts(lines), "d-1 (door) open") {
		t.Errorf("/state output = %q", lineTexts(lines))
	}

	lines, _ = m.handleMeta("/score")
	if !strings.Contains(lineTexts(lines), "hidden_fingerprint") {
		t.Errorf("/score output = %q", lineTexts(lines))
	}

	lines, _ = m.handleMeta("/actions")
	text := lineTexts(lines)
	if !strings.Contains(text, "open door=<entity>") || !strings.Contains(text, engine.DoNothing) {
		t.Errorf("/actions output = %q", text)
	}

	if _, quit := m.handleMeta("/quit"); !quit {
		t.Error("/quit did not quit")
	}

	lines, quit = m.handleMeta("/bogus")
	if quit || !strings.Contains(lineTexts(lines), "Unknown command") {
		t.Errorf("/bogus output = %q", lineTexts(lines))
	}
}

func TestHistory_Navigation(t *testing.T) {
	h := NewHistory(3)

	if _, ok := h.Prev(); ok {
		t.Fatal("empty history returned an entry")
	}

	h.Push("a")
	h.Push("b")
	h.Push("b") // consecutive duplicate skipped
	h.Push("c")

	if got, _ := h.Prev(); got != "c" {
		t.Errorf("Prev = %q, want c", got)
	}
	if got, _ := h.Prev(); got != "b" {
		t.Errorf("Prev = %q, want b", got)
	}
	if got, _ := h.Prev(); got != "a" {
		t.Errorf("Prev = %q, want a", got)
	}
	// Pinned at the oldest entry.
	if got, _ := h.Prev(); got != "a" {
		t.Errorf("Prev past start = %q, want a", got)
	}

	if got, _ := h.Next(); got != "b" {
		t.Errorf("Next = %q, want b", got)
	}
	if got, _ := h.Next(); got != "c" {
		t.Errorf("Next = %q, want c", got)
	}
	if _, ok := h.Next(); ok {
		t.Error("Next past end returned an entry")
	}
	// Cursor reset: Next without navigation yields fresh input.
	if _, ok := h.Next(); ok {
		t.Error("Next after reset returned an entry")
	}
}

func TestHistory_MaxSize(t *testing.T) {
	h := NewHistory(2)
	h.Push("a")
	h.Push("b")
	h.Push("c")

	if got, _ := h.Prev(); got != "c" {
		t.Errorf("Prev = %q", got)
	}
	if got, _ := h.Prev(); got != "b" {
		t.Errorf("Prev = %q", got)
	}
	// "a" was evicted.
	if got, _ := h.Prev(); got != "b" {
		t.Errorf("Prev = %q, want b (oldest kept)", got)
	}
}

func TestWordWrap(t *testing.T) {
	cases := []struct {
		text  string
		width int
		want  string
	}{
		{"short", 20, "short"},
		{"fits exactly here", 17, "fits exactly here"},
		{"one two three four", 9, "one two\nthree\nfour"},
		{"unbreakablelongword", 5, "unbreakablelongword"},
		{"", 10, ""},
		{"anything", 0, "anything"},
	}
	for _, tc := range cases {
		if got := wordWrap(tc.text, tc.width); got != tc.want {
			t.Errorf("wordWrap(%q, %d) = %q, want %q", tc.text, tc.width, got, tc.want)
		}
	}
}
