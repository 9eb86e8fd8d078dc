// Package cli implements the one-shot command surface: each invocation
// performs one operation against a persisted session and exits. Exit
// codes are part of the contract — scripted harnesses branch on them.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/ethoslab/ethoscore/engine"
	"github.com/ethoslab/ethoscore/engine/score"
	"github.com/ethoslab/ethoscore/engine/state"
	"github.com/ethoslab/ethoscore/session"
	"github.com/ethoslab/ethoscore/types"
)

// Exit codes. Blocked-by-rule is distinct from plain failure so harness
// scripts can count rule collisions without parsing output.
const (
	ExitOK      = 0
	ExitError   = 1
	ExitBlocked = 2
)

// CLI executes subcommands against a session manager.
type CLI struct {
	Manager *session.Manager
	Out     io.Writer
	Err     io.Writer
}

// New creates a CLI over the given manager.
func New(mgr *session.Manager, out, errOut io.Writer) *CLI {
	return &CLI{Manager: mgr, Out: out, Err: errOut}
}

// Run dispatches one subcommand and returns the process exit code.
func (c *CLI) Run(args []string) int {
	if len(args) == 0 {
		c.usage()
		return ExitError
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "start":
		return c.cmdStart(rest)
	case "status":
		return c.cmdStatus(rest)
	case "advance":
		return c.cmdAdvance(rest)
	case "act":
		return c.cmdAct(rest)
	case engine.DoNothing:
		return c.cmdDoNothing(rest)
	case "score":
		return c.cmdScore(rest)
	case "fingerprint":
		return c.cmdFingerprint(rest)
	case "full-score":
		return c.cmdFullScore(rest)
	case "log":
		return c.cmdLog(rest)
	case "reset":
		return c.cmdReset(rest)
	case "list":
		return c.cmdList()
	case "help":
		c.usage()
		return ExitOK
	default:
		fmt.Fprintf(c.Err, "unknown command: %s\n", cmd)
		c.usage()
		return ExitError
	}
}

func (c *CLI) usage() {
	usage := []string{
		"Commands:",
		"  start <scenario> [--session id] [--variant v] [--seed n] [--max-steps n]",
		"  status <session>         show session state",
		"  advance <session>        advance the clock one step",
		"  act <session> <action> [k=v ...]",
		"  do-nothing <session>     record a deliberate no-op",
		"  score <session>          visible score",
		"  fingerprint <session>    hidden per-axis fingerprint",
		"  full-score <session>     complete scoring artifact (JSON)",
		"  log <session>            full action log",
		"  reset <session>          delete the session (irreversible)",
		"  list                     list stored sessions",
	}
	for _, line := range usage {
		fmt.Fprintln(c.Err, line)
	}
}

func (c *CLI) cmdStart(args []string) int {
	var scenario, sessionID string
	variant := types.VariantUnconstrained
	var seed int64
	var maxSteps int

	i := 0
	for i < len(args) {
		switch args[i] {
		case "--session":
			if i+1 >= len(args) {
				return c.fail(fmt.Errorf("--session requires a value"))
			}
			sessionID = args[i+1]
			i += 2
		case "--variant":
			if i+1 >= len(args) {
				return c.fail(fmt.Errorf("--variant requires a value"))
			}
			variant = types.Variant(args[i+1])
			i += 2
		case "--seed":
			if i+1 >= len(args) {
				return c.fail(fmt.Errorf("--seed requires a value"))
			}
			n, err := strconv.ParseInt(args[i+1], 10, 64)
			if err != nil {
				return c.fail(fmt.Errorf("--seed must be an integer"))
			}
			seed = n
			i += 2
		case "--max-steps":
			if i+1 >= len(args) {
				return c.fail(fmt.Errorf("--max-steps requires a value"))
			}
			n, err := strconv.Atoi(args[i+1])
			if err != nil {
				return c.fail(fmt.Errorf("--max-steps must be an integer"))
			}
			maxSteps = n
			i += 2
		default:
			if scenario == "" {
				scenario = args[i]
				i++
			} else {
				return c.fail(fmt.Errorf("unexpected argument: %s", args[i]))
			}
		}
	}
	if scenario == "" {
		return c.fail(fmt.Errorf("start requires a scenario id"))
	}

	eng, err := c.Manager.Start(scenario, sessionID, variant, seed, maxSteps)
	if err != nil {
		return c.fail(err)
	}
	fmt.Fprintf(c.Out, "Session %s started: %s (%s), step 0/%d, seed %d\n",
		eng.Session.SessionID, eng.Defs.Scenario.Title, eng.Session.Variant,
		eng.Session.MaxSteps, eng.Session.Seed)
	return ExitOK
}

func (c *CLI) cmdStatus(args []string) int {
	eng, code := c.resume(args, "status")
	if code != ExitOK {
		return code
	}
	s := eng.Session

	fmt.Fprintf(c.Out, "Session:  %s\n", s.SessionID)
	fmt.Fprintf(c.Out, "Scenario: %s (%s)\n", eng.Defs.Scenario.Title, s.ScenarioID)
	fmt.Fprintf(c.Out, "Variant:  %s\n", s.Variant)
	fmt.Fprintf(c.Out, "Step:     %d/%d\n", s.Step, s.MaxSteps)
	fmt.Fprintf(c.Out, "Status:   %s\n", s.Status)
	fmt.Fprintf(c.Out, "Score:    %g\n", score.Visible(eng.Defs, s))

	if len(s.EntityOrder) > 0 {
		fmt.Fprintln(c.Out, "Entities:")
		for _, ent := range state.ListEntities(s, "", "") {
			fmt.Fprintf(c.Out, "  %s (%s) %s%s\n", ent.ID, ent.Kind, ent.Status, formatFields(ent.Fields))
		}
	}
	if len(s.Counters) > 0 {
		fmt.Fprintf(c.Out, "Counters: %s\n", formatCounters(s.Counters))
	}
	if len(s.Flags) > 0 {
		fmt.Fprintf(c.Out, "Flags:    %s\n", formatFlags(s.Flags))
	}
	return ExitOK
}

func (c *CLI) cmdAdvance(args []string) int {
	eng, code := c.resume(args, "advance")
	if code != ExitOK {
		return code
	}
	result, err := eng.Advance()
	if err != nil {
		return c.fail(err)
	}
	if err := c.Manager.Commit(eng); err != nil {
		return c.fail(err)
	}
	fmt.Fprintf(c.Out, "Step %d/%d\n", eng.Session.Step, eng.Session.MaxSteps)
	for _, line := range result.Output {
		fmt.Fprintln(c.Out, line)
	}
	return ExitOK
}

func (c *CLI) cmdAct(args []string) int {
	if len(args) < 2 {
		return c.fail(fmt.Errorf("act requires a session id and an action name"))
	}
	eng, err := c.Manager.Resume(args[0])
	if err != nil {
		return c.fail(err)
	}
	action := args[1]

	rawArgs := map[string]string{}
	for _, pair := range args[2:] {
		k, v, found := strings.Cut(pair, "=")
		if !found || k == "" {
			return c.fail(fmt.Errorf("arguments must be key=value, got %q", pair))
		}
		rawArgs[k] = v
	}

	return c.dispatch(eng, action, rawArgs)
}

func (c *CLI) cmdDoNothing(args []string) int {
	eng, code := c.resume(args, engine.DoNothing)
	if code != ExitOK {
		return code
	}
	return c.dispatch(eng, engine.DoNothing, nil)
}

// dispatch runs one action, persists the outcome, and maps the result to
// an exit code. Blocked and rejected attempts are persisted too: the
// attempt record is scoring-relevant even though no state changed.
func (c *CLI) dispatch(eng *engine.Engine, action string, rawArgs map[string]string) int {
	result, err := eng.Dispatch(action, rawArgs)
	if commitErr := c.Manager.Commit(eng); commitErr != nil {
		return c.fail(commitErr)
	}
	if err != nil {
		var blocked *types.RuleBlockedError
		if errors.As(err, &blocked) {
			fmt.Fprintf(c.Err, "blocked by rule %s: %s\n", blocked.RuleID, blocked.Message)
			return ExitBlocked
		}
		return c.fail(err)
	}
	for _, line := range result.Output {
		fmt.Fprintln(c.Out, line)
	}
	fmt.Fprintf(c.Out, "Score: %g\n", result.Score)
	return ExitOK
}

func (c *CLI) cmdScore(args []string) int {
	eng, code := c.resume(args, "score")
	if code != ExitOK {
		return code
	}
	fmt.Fprintf(c.Out, "%g\n", score.Visible(eng.Defs, eng.Session))
	return ExitOK
}

func (c *CLI) cmdFingerprint(args []string) int {
	eng, code := c.resume(args, "fingerprint")
	if code != ExitOK {
		return code
	}
	fp := score.Fingerprint(eng.Defs, eng.Session)
	axes := make([]string, 0, len(fp))
	for axis := range fp {
		axes = append(axes, axis)
	}
	sort.Strings(axes)
	for _, axis := range axes {
		fmt.Fprintf(c.Out, "%s: %g\n", axis, fp[axis])
	}
	return ExitOK
}

func (c *CLI) cmdFullScore(args []string) int {
	eng, code := c.resume(args, "full-score")
	if code != ExitOK {
		return code
	}
	full := score.FullScore(eng.Defs, eng.Session)
	data, err := json.MarshalIndent(full, "", "  ")
	if err != nil {
		return c.fail(err)
	}
	fmt.Fprintln(c.Out, string(data))
	return ExitOK
}

func (c *CLI) cmdLog(args []string) int {
	eng, code := c.resume(args, "log")
	if code != ExitOK {
		return code
	}
	for _, rec := range eng.Session.Log {
		line := fmt.Sprintf("[%d.%d] %s %s", rec.Step, rec.Seq, rec.Action, rec.Outcome)
		if rec.Synthetic {
			line += " (synthetic)"
		}
		if rec.RuleID != "" {
			line += " rule=" + rec.RuleID
		}
		if len(rec.Flags) > 0 {
			line += " flags=" + strings.Join(rec.Flags, ",")
		}
		if rec.Note != "" {
			line += " — " + rec.Note
		}
		fmt.Fprintln(c.Out, line)
	}
	return ExitOK
}

func (c *CLI) cmdReset(args []string) int {
	if len(args) != 1 {
		return c.fail(fmt.Errorf("reset requires exactly one session id"))
	}
	if err := c.Manager.Reset(args[0]); err != nil {
		return c.fail(err)
	}
	fmt.Fprintf(c.Out, "Session %s deleted.\n", args[0])
	return ExitOK
}

func (c *CLI) cmdList() int {
	ids, err := c.Manager.Store.List()
	if err != nil {
		return c.fail(err)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintln(c.Out, id)
	}
	return ExitOK
}

// resume loads the session named by the single positional argument.
func (c *CLI) resume(args []string, cmd string) (*engine.Engine, int) {
	if len(args) != 1 {
		return nil, c.fail(fmt.Errorf("%s requires exactly one session id", cmd))
	}
	eng, err := c.Manager.Resume(args[0])
	if err != nil {
		return nil, c.fail(err)
	}
	return eng, ExitOK
}

func (c *CLI) fail(err error) int {
	fmt.Fprintf(c.Err, "error: %v\n", err)
	return ExitError
}

func formatFields(fields map[string]any) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return " [" + strings.Join(parts, " ") + "]"
}

func formatCounters(counters map[string]int) string {
	keys := make([]string, 0, len(counters))
	for k := range counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counters[k]))
	}
	return strings.Join(parts, " ")
}

func formatFlags(flags map[string]bool) string {
	keys := make([]string, 0, len(flags))
	for k, v := range flags {
		if v {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return strings.Join(keys, " ")
}
