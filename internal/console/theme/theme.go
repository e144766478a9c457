// Package theme provides the Lip Gloss palette and reusable styles for the
// booth console. It is a leaf package with no internal imports.
package theme

import "github.com/charmbracelet/lipgloss"

// State colors.
var (
	ColorIdle      = lipgloss.Color("#6b7280")
	ColorWaiting   = lipgloss.Color("#7c3aed")
	ColorPrepare   = lipgloss.Color("#2563eb")
	ColorCountdown = lipgloss.Color("#d97706")
	ColorReview    = lipgloss.Color("#16a34a")
	ColorDefault   = lipgloss.Color("#9ca3af")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorBg      = lipgloss.Color("#111827")
	ColorFlash   = lipgloss.Color("#ffffff")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// StateColor returns the color for a booth state name.
func StateColor(state string) lipgloss.Color {
	switch state {
	case "idle":
		return ColorIdle
	case "waitForInput":
		return ColorWaiting
	case "prepareForCountdown":
		return ColorPrepare
	case "countdownSequence":
		return ColorCountdown
	case "review":
		return ColorReview
	default:
		return ColorDefault
	}
}

// StateLabel is the operator-facing name for a booth state.
func StateLabel(state string) string {
	switch state {
	case "idle":
		return "READY"
	case "waitForInput":
		return "STARTING"
	case "prepareForCountdown":
		return "GET READY"
	case "countdownSequence":
		return "COUNTDOWN"
	case "review":
		return "REVIEW"
	default:
		return "UNKNOWN"
	}
}

// HealthColor returns the color for a backend health status name.
func HealthColor(status string) lipgloss.Color {
	switch status {
	case "connected":
		return ColorHealthy
	case "unreachable":
		return ColorWarning
	case "transport_error":
		return ColorDanger
	default:
		return ColorDimmed
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
		Foreground(ColorDimmed)

	StyleError = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorDanger)

	StyleBig = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright).
		Padding(1, 4)
)
