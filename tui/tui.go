package tui

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ethoslab/ethoscore/engine"
	"github.com/ethoslab/ethoscore/engine/score"
	"github.com/ethoslab/ethoscore/engine/state"
	"github.com/ethoslab/ethoscore/session"
	"github.com/ethoslab/ethoscore/types"
)

// rawLine stores an unstyled output line with its classification,
// so we can re-wrap and re-style when the terminal is resized.
type rawLine struct {
	text    string
	kind    lineKind
	isInput bool // true for echoed input
}

// Model is the Bubble Tea model for interactive session play.
type Model struct {
	eng *engine.Engine
	mgr *session.Manager

	viewport viewport.Model
	input    textinput.Model
	history  *History

	rawLines []rawLine

	width    int
	height   int
	ready    bool
	quitting bool
	lastCmd  string
}

// outputMsg carries command output into the Update loop.
type outputMsg struct {
	input string // echoed input (empty for intro)
	lines []rawLine
}

// New creates a TUI model wired to a running session.
func New(eng *engine.Engine, mgr *session.Manager) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Focus()
	ti.CharLimit = 256
	ti.PromptStyle = styleInputPrompt

	return Model{
		eng:     eng,
		mgr:     mgr,
		input:   ti,
		history: NewHistory(100),
	}
}

// Run starts the Bubble Tea program.
func Run(eng *engine.Engine, mgr *session.Manager) error {
	m := New(eng, mgr)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err := p.Run()
	return err
}

// Init returns the initial command that produces the intro text.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.initialOutput())
}

func (m Model) initialOutput() tea.Cmd {
	return func() tea.Msg {
		sc := m.eng.Defs.Scenario
		var lines []rawLine
		lines = append(lines, rawLine{text: sc.Title + " v" + sc.Version})
		if sc.Description != "" {
			lines = append(lines, rawLine{})
			lines = append(lines, rawLine{text: sc.Description})
		}
		lines = append(lines, rawLine{})
		lines = append(lines, rawLine{
			text: fmt.Sprintf("Session %s (%s, seed %d). Type /help for commands.",
				m.eng.Session.SessionID, m.eng.Session.Variant, m.eng.Session.Seed),
			kind: kindSystem,
		})
		return outputMsg{lines: lines}
	}
}

// Update handles messages (key presses, window resize, command output).
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		vpHeight := m.height - 2 // 1 status bar + 1 input line
		if vpHeight < 1 {
			vpHeight = 1
		}

		if !m.ready {
			m.viewport = viewport.New(m.width, vpHeight)
			m.viewport.KeyMap = viewportKeyMap()
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = vpHeight
		}

		m.refreshViewport()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "enter":
			return m.handleEnter()

		case "up":
			if prev, ok := m.history.Prev(); ok {
				m.input.SetValue(prev)
				m.input.CursorEnd()
			}
			return m, nil

		case "down":
			if next, ok := m.history.Next(); ok {
				m.input.SetValue(next)
				m.input.CursorEnd()
			} else {
				m.input.SetValue("")
				m.history.ResetCursor()
			}
			return m, nil

		case "pgup", "pgdown":
			var vpCmd tea.Cmd
			m.viewport, vpCmd = m.viewport.Update(msg)
			return m, vpCmd
		}

	case outputMsg:
		m = m.appendOutput(msg)
	}

	var inputCmd tea.Cmd
	m.input, inputCmd = m.input.Update(msg)
	cmds = append(cmds, inputCmd)

	return m, tea.Batch(cmds...)
}

// handleEnter processes the submitted input line.
func (m Model) handleEnter() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.input.Value())
	m.input.SetValue("")

	if input == "" {
		return m, nil
	}

	m.history.Push(input)
	m.history.ResetCursor()

	// "again" / "g" repeats the last command.
	lower := strings.ToLower(input)
	if lower == "again" || lower == "g" {
		if m.lastCmd == "" {
			m = m.appendOutput(outputMsg{input: input, lines: []rawLine{{text: "Nothing to repeat.", kind: kindSystem}}})
			return m, nil
		}
		input = m.lastCmd
	} else {
		m.lastCmd = input
	}

	// Meta-commands.
	if strings.HasPrefix(input, "/") {
		output, quit := m.handleMeta(input)
		m = m.appendOutput(outputMsg{input: input, lines: output})
		if quit {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	}

	m = m.appendOutput(outputMsg{input: input, lines: m.execute(input)})
	return m, nil
}

// execute runs one simulation command: "advance" or "<action> [k=v ...]".
func (m *Model) execute(input string) []rawLine {
	parts := strings.Fields(input)
	cmd := parts[0]

	var result types.Result
	var err error
	synthetic := false

	if cmd == "advance" {
		result, err = m.eng.Advance()
		synthetic = true
	} else {
		rawArgs := map[string]string{}
		for _, pair := range parts[1:] {
			k, v, found := strings.Cut(pair, "=")
			if !found || k == "" {
				return []rawLine{{text: fmt.Sprintf("Arguments must be key=value, got %q.", pair), kind: kindRejected}}
			}
			rawArgs[k] = v
		}
		result, err = m.eng.Dispatch(cmd, rawArgs)
	}

	// The attempt is recorded even when it fails, so persist regardless.
	if commitErr := m.mgr.Commit(m.eng); commitErr != nil {
		return []rawLine{{text: "Persist failed: " + commitErr.Error(), kind: kindRejected}}
	}

	if err != nil {
		var blocked *types.RuleBlockedError
		if errors.As(err, &blocked) {
			return []rawLine{{text: "BLOCKED [" + blocked.RuleID + "]: " + blocked.Message, kind: kindBlocked}}
		}
		return []rawLine{{text: err.Error(), kind: kindRejected}}
	}

	var lines []rawLine
	kind := kindNarrative
	if synthetic {
		kind = kindSynthetic
		lines = append(lines, rawLine{
			text: fmt.Sprintf("Step %d/%d", m.eng.Session.Step, m.eng.Session.MaxSteps),
			kind: kindSystem,
		})
	}
	for _, line := range result.Output {
		lines = append(lines, rawLine{text: line, kind: kind})
	}
	return lines
}

// appendOutput adds lines to the transcript and refreshes the viewport.
func (m Model) appendOutput(msg outputMsg) Model {
	if msg.input != "" {
		m.rawLines = append(m.rawLines, rawLine{text: "> " + msg.input, isInput: true})
	}
	m.rawLines = append(m.rawLines, msg.lines...)

	// Blank line separator between turns.
	m.rawLines = append(m.rawLines, rawLine{})

	m.refreshViewport()
	return m
}

// refreshViewport re-wraps and re-styles all raw lines at the current
// width and updates the viewport content.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}

	width := m.width
	if width < 10 {
		width = 10
	}

	var styled []string
	for _, rl := range m.rawLines {
		if rl.text == "" {
			styled = append(styled, "")
			continue
		}

		wrapped := wordWrap(rl.text, width)

		if rl.isInput {
			styled = append(styled, stylePlayerInput.Render(wrapped))
		} else {
			styled = append(styled, renderLineKind(wrapped, rl.kind))
		}
	}

	m.viewport.SetContent(strings.Join(styled, "\n"))
	m.viewport.GotoBottom()
}

// wordWrap wraps text to fit within the given width, breaking at word
// boundaries.
func wordWrap(text string, width int) string {
	if width <= 0 || len(text) <= width {
		return text
	}

	var result strings.Builder
	words := strings.Fields(text)
	lineLen := 0

	for i, word := range words {
		wLen := len(word)

		if i == 0 {
			result.WriteString(word)
			lineLen = wLen
			continue
		}

		if lineLen+1+wLen > width {
			result.WriteString("\n")
			result.WriteString(word)
			lineLen = wLen
		} else {
			result.WriteString(" ")
			result.WriteString(word)
			lineLen += 1 + wLen
		}
	}

	return result.String()
}

// View renders the full TUI layout: viewport + status bar + input.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading..."
	}

	return m.viewport.View() + "\n" + m.renderStatusBar() + "\n" + m.input.View()
}

// handleMeta dispatches meta-commands. Returns output lines and quit flag.
func (m *Model) handleMeta(input string) ([]rawLine, bool) {
	parts := strings.Fields(input)
	cmd := parts[0]

	switch cmd {
	case "/quit", "/exit":
		return system("Goodbye."), true

	case "/help":
		return m.cmdHelp(), false

	case "/state":
		return m.cmdState(), false

	case "/score":
		return m.cmdScore(), false

	case "/log":
		return m.cmdLog(), false

	case "/actions":
		return m.cmdActions(), false

	default:
		return system(fmt.Sprintf("Unknown command: %s. Type /help for available commands.", cmd)), false
	}
}

func (m *Model) cmdHelp() []rawLine {
	help := []string{
		"System:",
		"  /state    — Dump entities, counters, flags",
		"  /score    — Full scoring artifact (JSON)",
		"  /log      — Action log",
		"  /actions  — Available actions and their arguments",
		"  /quit     — Exit (session stays persisted)",
		"",
		"Simulation commands:",
		"  <action> [k=v ...]  — Submit an action",
		"  do-nothing          — Record a deliberate no-op",
		"  advance             — Advance the clock one step",
		"  again (g)           — Repeat your last command",
		"",
		"Navigation: PgUp/PgDn to scroll, Up/Down for command history",
	}
	lines := make([]rawLine, 0, len(help))
	for _, h := range help {
		lines = append(lines, rawLine{text: h, kind: kindSystem})
	}
	return lines
}

func (m *Model) cmdState() []rawLine {
	s := m.eng.Session
	var lines []rawLine
	for _, ent := range state.ListEntities(s, "", "") {
		text := fmt.Sprintf("%s (%s) %s", ent.ID, ent.Kind, ent.Status)
		if len(ent.Fields) > 0 {
			keys := make([]string, 0, len(ent.Fields))
			for k := range ent.Fields {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			parts := make([]string, 0, len(keys))
			for _, k := range keys {
				parts = append(parts, fmt.Sprintf("%s=%v", k, ent.Fields[k]))
			}
			text += " [" + strings.Join(parts, " ") + "]"
		}
		lines = append(lines, rawLine{text: text, kind: kindSystem})
	}
	if len(s.Counters) > 0 {
		lines = append(lines, rawLine{text: fmt.Sprintf("Counters: %v", s.Counters), kind: kindSystem})
	}
	if len(s.Flags) > 0 {
		lines = append(lines, rawLine{text: fmt.Sprintf("Flags: %v", s.Flags), kind: kindSystem})
	}
	return lines
}

func (m *Model) cmdScore() []rawLine {
	full := score.FullScore(m.eng.Defs, m.eng.Session)
	data, err := json.MarshalIndent(full, "", "  ")
	if err != nil {
		return system("Score failed: " + err.Error())
	}
	var lines []rawLine
	for _, l := range strings.Split(string(data), "\n") {
		lines = append(lines, rawLine{text: l, kind: kindSystem})
	}
	return lines
}

func (m *Model) cmdLog() []rawLine {
	var lines []rawLine
	for _, rec := range m.eng.Session.Log {
		text := fmt.Sprintf("[%d.%d] %s %s", rec.Step, rec.Seq, rec.Action, rec.Outcome)
		if rec.Note != "" {
			text += " — " + rec.Note
		}
		kind := kindSystem
		switch {
		case rec.Outcome == types.OutcomeBlockedByRule:
			kind = kindBlocked
		case rec.Outcome == types.OutcomeRejected:
			kind = kindRejected
		case rec.Synthetic:
			kind = kindSynthetic
		}
		lines = append(lines, rawLine{text: text, kind: kind})
	}
	if len(lines) == 0 {
		return system("Log is empty.")
	}
	return lines
}

func (m *Model) cmdActions() []rawLine {
	names := make([]string, 0, len(m.eng.Defs.Actions))
	for name := range m.eng.Defs.Actions {
		names = append(names, name)
	}
	sort.Strings(names)

	var lines []rawLine
	for _, name := range names {
		def := m.eng.Defs.Actions[name]
		text := "  " + name
		for _, arg := range def.Args {
			spec := arg.Name + "=<" + arg.Type + ">"
			if !arg.Required {
				spec = "[" + spec + "]"
			}
			text += " " + spec
		}
		lines = append(lines, rawLine{text: text, kind: kindSystem})
	}
	lines = append(lines, rawLine{text: "  " + engine.DoNothing, kind: kindSystem})
	return lines
}

func system(text string) []rawLine {
	return []rawLine{{text: text, kind: kindSystem}}
}

// viewportKeyMap returns a viewport keymap with Up/Down disabled
// (we use those for input history).
func viewportKeyMap() viewport.KeyMap {
	return viewport.KeyMap{
		PageDown:     key.NewBinding(key.WithKeys("pgdown")),
		PageUp:       key.NewBinding(key.WithKeys("pgup")),
		HalfPageDown: key.NewBinding(key.WithKeys("ctrl+d")),
		HalfPageUp:   key.NewBinding(key.WithKeys("ctrl+u")),
		Up:           key.NewBinding(key.WithDisabled()),
		Down:         key.NewBinding(key.WithDisabled()),
	}
}
