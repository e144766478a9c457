// Package stage renders the guest-facing panel: prompts, countdown, review
// and the attract banner.
package stage

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/snapbooth/booth/internal/console/theme"
)

// Model is everything the panel shows. The app fills it from snapshots
// and events.
type Model struct {
	State       string
	Instruction string
	Shot        int
	Required    int
	Countdown   *int
	Final       bool

	Composing  bool
	Composite  bool
	PublishURL string
	QRText     string
	Error      string
	Attract    bool

	// Flash is the shot flash intensity in [0,1].
	Flash   float64
	Spinner string
	Width   int
	Height  int
}

func (m Model) View() string {
	var body string
	switch m.State {
	case "waitForInput":
		body = m.Spinner + " Warming up the camera..."
	case "idle":
		body = m.idle()
	case "prepareForCountdown":
		body = m.prepare()
	case "countdownSequence":
		body = m.countdown()
	case "review":
		body = m.review()
	default:
		body = theme.StyleDimmed.Render("Waiting for booth...")
	}

	if m.Error != "" && m.State != "review" {
		body = lipgloss.JoinVertical(lipgloss.Center, body, "", theme.StyleError.Render("⚠ "+m.Error))
	}

	width := m.Width
	if width < 40 {
		width = 40
	}
	style := theme.StyleBorder.
		Width(width - 2).
		Align(lipgloss.Center).
		Padding(1, 2)
	if m.Height > 8 {
		style = style.Height(m.Height - 2)
	}
	if m.Flash > 0.05 {
		style = style.Background(FlashColor(m.Flash)).BorderForeground(theme.ColorFlash)
	}
	return style.Render(body)
}

func (m Model) idle() string {
	title := theme.StyleBig.Render("📸  Press SPACE to start")
	if !m.Attract {
		return title
	}
	banner := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorReview).
		Render("✨ Step right up! Strike a pose and take home a photo strip ✨")
	return lipgloss.JoinVertical(lipgloss.Center, title, "", banner)
}

func (m Model) progress() string {
	if m.Required == 0 {
		return ""
	}
	return theme.StyleDimmed.Render(fmt.Sprintf("Photo %d of %d", m.Shot, m.Required))
}

func (m Model) prepare() string {
	instruction := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorPrepare).
		Render(m.Instruction)
	return lipgloss.JoinVertical(lipgloss.Center, theme.StyleBig.Render(instruction), m.progress())
}

func (m Model) countdown() string {
	value := "…"
	if m.Countdown != nil {
		value = strconv.Itoa(*m.Countdown)
	}
	if m.Final {
		value = "📷 SMILE!"
	}
	number := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorCountdown).
		Padding(1, 4).
		Render(value)
	return lipgloss.JoinVertical(lipgloss.Center, number, m.progress())
}

func (m Model) review() string {
	lines := []string{}
	switch {
	case m.Composite:
		lines = append(lines, theme.StyleBig.Render("🎉 Your photo strip is ready!"))
	case m.Composing:
		lines = append(lines, m.Spinner+" Putting your photos together...")
	}

	switch {
	case m.PublishURL != "":
		if m.QRText != "" {
			lines = append(lines, "", m.QRText)
		}
		lines = append(lines, theme.StyleDimmed.Render("Scan to download: "+m.PublishURL))
	case m.Error != "":
		lines = append(lines, "", theme.StyleError.Render("⚠ "+m.Error))
	case m.Composite:
		lines = append(lines, "", m.Spinner+" Uploading...")
	}

	lines = append(lines, "", theme.StyleDimmed.Render("press d when done"))
	return lipgloss.JoinVertical(lipgloss.Center, strings.Join(lines, "\n"))
}

// FlashColor maps a flash intensity to a grey between the console
// background and white.
func FlashColor(intensity float64) lipgloss.Color {
	if intensity < 0 {
		intensity = 0
	}
	if intensity > 1 {
		intensity = 1
	}
	base := 0x11
	v := base + int(float64(0xff-base)*intensity)
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", v, v, v))
}
