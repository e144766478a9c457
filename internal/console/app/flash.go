package app

import (
	"math"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
)

const flashFPS = 60

type flashFrameMsg struct{}

// Flash is the shot flash: a critically damped spring that snaps to full
// brightness and settles back to zero.
type Flash struct {
	spring harmonica.Spring
	pos    float64
	vel    float64
	active bool
}

func NewFlash() Flash {
	return Flash{spring: harmonica.NewSpring(harmonica.FPS(flashFPS), 8.0, 1.0)}
}

// Fire restarts the flash at full brightness.
func (f *Flash) Fire() tea.Cmd {
	f.pos, f.vel = 1, 0
	if f.active {
		return nil
	}
	f.active = true
	return flashFrame()
}

// Step advances one frame and reports whether another frame is needed.
func (f *Flash) Step() bool {
	if !f.active {
		return false
	}
	f.pos, f.vel = f.spring.Update(f.pos, f.vel, 0)
	if math.Abs(f.pos) < 0.01 && math.Abs(f.vel) < 0.01 {
		f.pos, f.vel = 0, 0
		f.active = false
	}
	return f.active
}

// Intensity is the current brightness in [0,1].
func (f Flash) Intensity() float64 {
	return math.Max(0, math.Min(1, f.pos))
}

func (f Flash) Active() bool {
	return f.active
}

func flashFrame() tea.Cmd {
	return tea.Tick(time.Second/flashFPS, func(time.Time) tea.Msg {
		return flashFrameMsg{}
	})
}
