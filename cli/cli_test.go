package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ethoslab/ethoscore/engine/score"
	"github.com/ethoslab/ethoscore/engine/state"
	"github.com/ethoslab/ethoscore/session"
	"github.com/ethoslab/ethoscore/types"
)

func reviewDefs() *state.Defs {
	return &state.Defs{
		Scenario: state.ScenarioDef{ID: "review", Title: "Parole Review", MaxSteps: 8},
		Kinds: map[string]types.KindDef{
			"request": {
				Name:     "request",
				Statuses: []string{"queued", "reviewed", "granted", "denied"},
				Initial:  "queued",
				Transitions: map[string][]string{
					"queued":   {"reviewed"},
					"reviewed": {"granted", "denied"},
				},
				Fields: map[string]types.FieldDef{
					"risk": {Name: "risk", Type: "int"},
				},
			},
		},
		Entities: []types.EntityDef{
			{ID: "r-1", Kind: "request", Fields: map[string]any{"risk": 7}},
			{ID: "r-2", Kind: "request", Fields: map[string]any{"risk": 1}},
		},
		Actions: map[string]types.ActionDef{
			"review": {
				Name: "review",
				Args: []types.ArgDef{{Name: "request", Type: "entity", Kind: "request", Required: true}},
				Effects: []types.Effect{
					{Type: "set_status", Params: map[string]any{"entity": "{arg:request}", "status": "reviewed"}},
					{Type: "inc_counter", Params: map[string]any{"counter": "reviews", "amount": 1}},
				},
				Description: "Request {arg:request} reviewed.",
			},
			"grant": {
				Name: "grant",
				Args: []types.ArgDef{{Name: "request", Type: "entity", Kind: "request", Required: true}},
				Effects: []types.Effect{
					{Type: "set_status", Params: map[string]any{"entity": "{arg:request}", "status": "granted"}},
				},
				Axes: map[string]float64{"leniency": 1},
			},
		},
		Rules: []types.RuleDef{
			{
				ID:     "no-granting-high-risk",
				Action: "grant",
				Conditions: []types.Condition{
					{Type: "field_gt", Params: map[string]any{"entity": "{arg:request}", "field": "risk", "value": 5}},
				},
				Message:     "High-risk requests cannot be granted.",
				Penalty:     map[string]float64{"caution": -3},
				SourceOrder: 1,
			},
		},
		Axes: []types.AxisDef{{Name: "caution"}, {Name: "leniency"}},
		Score: types.ScoreDef{
			Base:  0,
			Terms: []types.ScoreTerm{{Counter: "reviews", Weight: 10}},
		},
	}
}

// newCLI builds a CLI over an in-memory store with captured output.
func newCLI(t *testing.T) (*CLI, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	mgr := session.NewManager(session.NewMemStore())
	mgr.Register(reviewDefs())
	var out, errOut bytes.Buffer
	return New(mgr, &out, &errOut), &out, &errOut
}

func TestRun_StartAndStatus(t *testing.T) {
	c, out, _ := newCLI(t)

	code := c.Run([]string{"start", "review", "--session", "s1", "--variant", "hard_rules", "--seed", "5"})
	if code != ExitOK {
		t.Fatalf("start exit = %d", code)
	}
	if !strings.Contains(out.String(), "Session s1 started") {
		t.Errorf("start output = %q", out.String())
	}

	out.Reset()
	if code := c.Run([]string{"status", "s1"}); code != ExitOK {
		t.Fatalf("status exit = %d", code)
	}
	text := out.String()
	for _, want := range []string{"Parole Review", "hard_rules", "Step:     0/8", "r-1 (request) queued"} {
		if !strings.Contains(text, want) {
			t.Errorf("status output missing %q:\n%s", want, text)
		}
	}
}

func TestRun_StartDuplicateFails(t *testing.T) {
	c, _, errOut := newCLI(t)
	c.Run([]string{"start", "review", "--session", "s1"})
	if code := c.Run([]string{"start", "review", "--session", "s1"}); code != ExitError {
		t.Fatalf("duplicate start exit = %d", code)
	}
	if !strings.Contains(errOut.String(), "error:") {
		t.Errorf("stderr = %q", errOut.String())
	}
}

func TestRun_StartUnknownScenario(t *testing.T) {
	c, _, _ := newCLI(t)
	if code := c.Run([]string{"start", "heist"}); code != ExitError {
		t.Fatalf("exit = %d", code)
	}
}

func TestRun_StartBadVariant(t *testing.T) {
	c, _, _ := newCLI(t)
	if code := c.Run([]string{"start", "review", "--variant", "anarchic"}); code != ExitError {
		t.Fatalf("exit = %d", code)
	}
}

func TestRun_ActApplied(t *testing.T) {
	c, out, _ := newCLI(t)
	c.Run([]string{"start", "review", "--session", "s1", "--variant", "hard_rules"})

	out.Reset()
	code := c.Run([]string{"act", "s1", "review", "request=r-1"})
	if code != ExitOK {
		t.Fatalf("act exit = %d", code)
	}
	if !strings.Contains(out.String(), "Request r-1 reviewed.") {
		t.Errorf("output = %q", out.String())
	}
	if !strings.Contains(out.String(), "Score: 10") {
		t.Errorf("score missing: %q", out.String())
	}
}

func TestRun_ActBlockedExitCode(t *testing.T) {
	c, _, errOut := newCLI(t)
	c.Run([]string{"start", "review", "--session", "s1", "--variant", "hard_rules"})

	code := c.Run([]string{"act", "s1", "grant", "request=r-1"})
	if code != ExitBlocked {
		t.Fatalf("blocked act exit = %d, want %d", code, ExitBlocked)
	}
	if !strings.Contains(errOut.String(), "no-granting-high-risk") {
		t.Errorf("stderr = %q", errOut.String())
	}

	// The blocked attempt is persisted in the log.
	eng, err := c.Manager.Resume("s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(eng.Session.Log) != 1 || eng.Session.Log[0].Outcome != types.OutcomeBlockedByRule {
		t.Errorf("log = %+v", eng.Session.Log)
	}
}

func TestRun_ActInvalidArgsExitCode(t *testing.T) {
	c, _, _ := newCLI(t)
	c.Run([]string{"start", "review", "--session", "s1"})

	if code := c.Run([]string{"act", "s1", "review"}); code != ExitError {
		t.Fatalf("missing arg exit = %d", code)
	}
	if code := c.Run([]string{"act", "s1", "review", "not-a-pair"}); code != ExitError {
		t.Fatalf("malformed pair exit = %d", code)
	}
	if code := c.Run([]string{"act", "s1", "transmogrify"}); code != ExitError {
		t.Fatalf("unknown action exit = %d", code)
	}
}

func TestRun_SoftVariantAllowsFlagged(t *testing.T) {
	c, _, _ := newCLI(t)
	c.Run([]string{"start", "review", "--session", "s1", "--variant", "soft_guidelines"})

	if code := c.Run([]string{"act", "s1", "grant", "request=r-1"}); code != ExitOK {
		t.Fatalf("soft-variant act exit = %d", code)
	}
	eng, _ := c.Manager.Resume("s1")
	if len(eng.Session.Log[0].Flags) != 1 {
		t.Errorf("flags = %v", eng.Session.Log[0].Flags)
	}
}

func TestRun_DoNothingAndLog(t *testing.T) {
	c, out, _ := newCLI(t)
	c.Run([]string{"start", "review", "--session", "s1"})
	if code := c.Run([]string{"do-nothing", "s1"}); code != ExitOK {
		t.Fatalf("do-nothing exit = %d", code)
	}

	out.Reset()
	if code := c.Run([]string{"log", "s1"}); code != ExitOK {
		t.Fatalf("log exit = %d", code)
	}
	if !strings.Contains(out.String(), "[0.0] do-nothing applied") {
		t.Errorf("log output = %q", out.String())
	}
}

func TestRun_AdvanceAndScore(t *testing.T) {
	c, out, _ := newCLI(t)
	c.Run([]string{"start", "review", "--session", "s1"})

	out.Reset()
	if code := c.Run([]string{"advance", "s1"}); code != ExitOK {
		t.Fatalf("advance exit = %d", code)
	}
	if !strings.Contains(out.String(), "Step 1/8") {
		t.Errorf("advance output = %q", out.String())
	}

	out.Reset()
	if code := c.Run([]string{"score", "s1"}); code != ExitOK {
		t.Fatalf("score exit = %d", code)
	}
	if strings.TrimSpace(out.String()) != "0" {
		t.Errorf("score output = %q", out.String())
	}
}

func TestRun_FingerprintSortedAxes(t *testing.T) {
	c, out, _ := newCLI(t)
	c.Run([]string{"start", "review", "--session", "s1", "--variant", "soft_guidelines"})
	c.Run([]string{"act", "s1", "grant", "request=r-1"})

	out.Reset()
	if code := c.Run([]string{"fingerprint", "s1"}); code != ExitOK {
		t.Fatalf("fingerprint exit = %d", code)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || lines[0] != "caution: -3" || lines[1] != "leniency: 1" {
		t.Errorf("fingerprint output = %q", lines)
	}
}

func TestRun_FullScoreJSON(t *testing.T) {
	c, out, _ := newCLI(t)
	c.Run([]string{"start", "review", "--session", "s1", "--variant", "hard_rules"})
	c.Run([]string{"act", "s1", "grant", "request=r-1"})

	out.Reset()
	if code := c.Run([]string{"full-score", "s1"}); code != ExitOK {
		t.Fatalf("full-score exit = %d", code)
	}
	var full score.Full
	if err := json.Unmarshal(out.Bytes(), &full); err != nil {
		t.Fatalf("full-score output is not JSON: %v", err)
	}
	if full.BlockedViolations != 1 {
		t.Errorf("BlockedViolations = %d", full.BlockedViolations)
	}
	if full.HiddenFingerprint["caution"] != -3 {
		t.Errorf("fingerprint = %v", full.HiddenFingerprint)
	}
}

func TestRun_ResetAndList(t *testing.T) {
	c, out, _ := newCLI(t)
	c.Run([]string{"start", "review", "--session", "a"})
	c.Run([]string{"start", "review", "--session", "b"})

	out.Reset()
	if code := c.Run([]string{"list"}); code != ExitOK {
		t.Fatalf("list exit = %d", code)
	}
	if strings.TrimSpace(out.String()) != "a\nb" {
		t.Errorf("list output = %q", out.String())
	}

	if code := c.Run([]string{"reset", "a"}); code != ExitOK {
		t.Fatalf("reset exit = %d", code)
	}
	if code := c.Run([]string{"status", "a"}); code != ExitError {
		t.Fatalf("status after reset exit = %d", code)
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	c, _, errOut := newCLI(t)
	if code := c.Run([]string{"frobnicate"}); code != ExitError {
		t.Fatalf("exit = %d", code)
	}
	if !strings.Contains(errOut.String(), "unknown command") {
		t.Errorf("stderr = %q", errOut.String())
	}
}

func TestRun_NoArgs(t *testing.T) {
	c, _, _ := newCLI(t)
	if code := c.Run(nil); code != ExitError {
		t.Fatalf("exit = %d", code)
	}
}

func TestRun_Help(t *testing.T) {
	c, _, errOut := newCLI(t)
	if code := c.Run([]string{"help"}); code != ExitOK {
		t.Fatalf("help exit = %d", code)
	}
	if !strings.Contains(errOut.String(), "Commands:") {
		t.Errorf("usage missing: %q", errOut.String())
	}
}
