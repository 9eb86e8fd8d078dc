package loader

import (
	"path/filepath"
	"testing"
)

// The tribunal scenario shipped under scenarios/ doubles as loader
// coverage: every constructor and helper the DSL exposes appears in it.
func TestLoad_ShippedTribunalScenario(t *testing.T) {
	defs, err := Load(filepath.Join("..", "scenarios", "tribunal"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if defs.Scenario.ID != "tribunal" || defs.Scenario.MaxSteps != 12 {
		t.Errorf("scenario = %+v", defs.Scenario)
	}
	if len(defs.Axes) != 3 {
		t.Errorf("axes = %d, want 3", len(defs.Axes))
	}
	if len(defs.Entities) != 3 {
		t.Errorf("entities = %d, want 3", len(defs.Entities))
	}
	for _, name := range []string{"open-investigation", "close-investigation", "issue-ruling", "dismiss", "reassure"} {
		if _, ok := defs.Actions[name]; !ok {
			t.Errorf("action %q missing", name)
		}
	}
	if len(defs.Rules) != 3 {
		t.Errorf("rules = %d, want 3", len(defs.Rules))
	}
	if len(defs.Decay) != 1 || len(defs.Deadlines) != 1 {
		t.Errorf("decay = %d, deadlines = %d", len(defs.Decay), len(defs.Deadlines))
	}
	if len(defs.EndWhen) != 3 {
		t.Errorf("end_when = %d, want 3", len(defs.EndWhen))
	}
	if defs.Events == nil || len(defs.Events.Events) != 2 {
		t.Fatalf("event table = %+v", defs.Events)
	}
}
