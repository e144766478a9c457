package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/snapbooth/booth/internal/console/client"
)

func helpMarkdown(cfg *client.PresentationConfig) string {
	var b strings.Builder
	b.WriteString("# Booth console\n\n")
	b.WriteString("| Key | Action |\n|---|---|\n")
	b.WriteString("| `space` | start a session while the booth is ready |\n")
	b.WriteString("| `d` | finish reviewing and return to ready |\n")
	b.WriteString("| `h` | toggle this help |\n")
	b.WriteString("| `q` | quit the console (the booth keeps running) |\n\n")
	b.WriteString("Any other key counts as activity and postpones the attract loop.\n")

	if cfg != nil {
		b.WriteString("\n## This booth\n\n")
		fmt.Fprintf(&b, "- **%d** photos per session\n", cfg.PhotoCount)
		fmt.Fprintf(&b, "- **%d** second countdown\n", cfg.CountdownSeconds)
		if cfg.HealthEnabled {
			b.WriteString("- backend health: ✅ connected, ❌ unreachable, ⛔️ no answer\n")
		}
	}
	return b.String()
}

// renderHelp renders the help page for a terminal of the given width.
func renderHelp(cfg *client.PresentationConfig, width int) string {
	md := helpMarkdown(cfg)
	if width < 40 {
		width = 40
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}
