package status

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/snapbooth/booth/internal/console/theme"
)

// Model holds the status bar state.
type Model struct {
	Connected    bool
	State        string
	SessionIndex int
	Health       string
	Indicator    string
	Clients      int
	Width        int
}

func New() Model {
	return Model{Health: "unknown", Indicator: "…"}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	if m.Connected {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Connected")
	} else {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Connecting...")
	}

	stateStr := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.StateColor(m.State)).
		Render(theme.StateLabel(m.State))

	sessionStr := fmt.Sprintf("session #%d", m.SessionIndex)

	healthStr := lipgloss.NewStyle().
		Foreground(theme.HealthColor(m.Health)).
		Render(fmt.Sprintf("backend %s %s", m.Indicator, m.Health))

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + stateStr + sep + sessionStr + sep + healthStr

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
