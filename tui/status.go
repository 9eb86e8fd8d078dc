package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ethoslab/ethoscore/engine/score"
)

// renderStatusBar produces a full-width inverted status line showing
// scenario, variant, step progress, visible score, and session status.
func (m Model) renderStatusBar() string {
	s := m.eng.Session

	left := fmt.Sprintf(" %s | %s", m.eng.Defs.Scenario.Title, s.Variant)
	right := fmt.Sprintf("Score: %g | Step %d/%d ", score.Visible(m.eng.Defs, s), s.Step, s.MaxSteps)
	if s.Status != "active" {
		right = fmt.Sprintf("%s | %s", strings.ToUpper(string(s.Status)), right)
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}

	bar := left + strings.Repeat(" ", gap) + right
	return styleStatusBar.Width(m.width).Render(bar)
}
