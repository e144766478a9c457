// Package app is the booth operator console: a Bubble Tea program that
// follows the booth over its websocket and sends inputs over HTTP.
package app

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/snapbooth/booth/internal/booth"
	"github.com/snapbooth/booth/internal/console/client"
	"github.com/snapbooth/booth/internal/console/theme"
	"github.com/snapbooth/booth/internal/console/views/stage"
	"github.com/snapbooth/booth/internal/console/views/status"
	"github.com/snapbooth/booth/internal/monitor"
	"github.com/snapbooth/booth/internal/qr"
	"github.com/snapbooth/booth/internal/session"
)

type configMsg struct {
	cfg *client.PresentationConfig
	err error
}

type inputResultMsg struct {
	input booth.Input
	res   *client.InputResult
	err   error
}

// Model is the root Bubble Tea model.
type Model struct {
	ws     *client.WSClient
	http   *client.HTTPClient
	ctx    context.Context
	cancel context.CancelFunc

	keys   KeyMap
	help   help.Model
	width  int
	height int

	statusBar status.Model
	stage     stage.Model
	spinner   spinner.Model
	flash     Flash

	config   *client.PresentationConfig
	qr       *qr.Renderer
	showHelp bool
	notice   string

	connected bool
}

// New creates the root model. Either client may be nil in tests.
func New(ws *client.WSClient, http *client.HTTPClient) Model {
	ctx, cancel := context.WithCancel(context.Background())
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		ws:        ws,
		http:      http,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		help:      help.New(),
		statusBar: status.New(),
		spinner:   sp,
		flash:     NewFlash(),
	}
}

// Init starts the WebSocket connection and fetches the booth config.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick}
	if m.ws != nil {
		cmds = append(cmds, m.ws.Listen(m.ctx))
	}
	if m.http != nil {
		cmds = append(cmds, m.fetchConfig())
	}
	return tea.Batch(cmds...)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.stage.Width = msg.Width
		m.stage.Height = msg.Height - 6
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.stage.Spinner = m.spinner.View()
		return m, cmd

	case flashFrameMsg:
		more := m.flash.Step()
		m.stage.Flash = m.flash.Intensity()
		if more {
			return m, flashFrame()
		}
		return m, nil

	case configMsg:
		if msg.err != nil {
			m.notice = "config: " + msg.err.Error()
			return m, nil
		}
		m.config = msg.cfg
		if r, err := qr.NewRenderer(msg.cfg.QR); err == nil {
			m.qr = r
		}
		return m, nil

	case inputResultMsg:
		switch {
		case msg.err != nil:
			m.notice = "input failed: " + msg.err.Error()
		case !msg.res.Accepted && msg.input.Type != booth.InputActivity:
			m.notice = string(msg.input.Type) + " ignored while " + theme.StateLabel(msg.res.State)
		default:
			m.notice = ""
		}
		return m, nil

	case client.WSConnectedMsg:
		m.connected = true
		m.statusBar.Connected = true
		return m, m.ws.ReadLoop(m.ctx)

	case client.WSDisconnectedMsg:
		m.connected = false
		m.statusBar.Connected = false
		return m, m.ws.Listen(m.ctx)

	case client.WSSnapshotMsg:
		m.applySnapshot(msg.Payload)
		return m, m.readNext()

	case client.WSEventMsg:
		cmd := m.applyEvent(msg.Event)
		return m, tea.Batch(cmd, m.readNext())
	}

	return m, nil
}

func (m Model) readNext() tea.Cmd {
	if m.ws == nil {
		return nil
	}
	return m.ws.ReadLoop(m.ctx)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		if key.Matches(msg, m.keys.Escape, m.keys.Help) {
			m.showHelp = false
		}
		if key.Matches(msg, m.keys.Quit) {
			m.cancel()
			return m, tea.Quit
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.Start):
		return m, m.send(booth.Input{Type: booth.InputStart})

	case key.Matches(msg, m.keys.Done):
		return m, m.send(booth.Input{Type: booth.InputDone})
	}

	return m, m.send(booth.Input{Type: booth.InputActivity})
}

func (m Model) send(in booth.Input) tea.Cmd {
	if m.http == nil {
		return nil
	}
	ctx := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		res, err := m.http.SendInput(ctx, in)
		return inputResultMsg{input: in, res: res, err: err}
	}
}

func (m Model) fetchConfig() tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		cfg, err := m.http.GetConfig(ctx)
		return configMsg{cfg: cfg, err: err}
	}
}

func (m *Model) applySnapshot(p client.SnapshotPayload) {
	st := p.Booth
	m.setHealth(p.Health.Status.String())

	m.statusBar.State = st.State.String()
	m.statusBar.SessionIndex = st.SessionIndex

	m.stage.State = st.State.String()
	m.stage.Instruction = st.Instruction
	m.stage.Countdown = st.Countdown
	m.stage.Composite = st.CompositeReady
	m.stage.Composing = st.State == session.Review && !st.CompositeReady
	if st.PublishURL != m.stage.PublishURL {
		m.stage.PublishURL = st.PublishURL
		m.stage.QRText = m.renderQR(st.PublishURL)
	}
	m.stage.Error = st.LastError
	if st.Session != nil {
		m.stage.Shot = st.Session.PhotoIndex
		m.stage.Required = st.Session.Required
	}
	if st.State != session.Idle {
		m.stage.Attract = false
	}
}

func (m *Model) applyEvent(e client.Event) tea.Cmd {
	state := e.State.String()
	m.statusBar.State = state
	m.statusBar.SessionIndex = e.SessionIndex
	m.stage.State = state

	switch e.Type {
	case session.EventState:
		switch e.State {
		case session.Idle:
			m.clearStage()
		case session.Review:
			m.stage.Countdown = nil
			m.stage.Final = false
			m.stage.Composing = !m.stage.Composite
		default:
			m.stage.Attract = false
		}

	case session.EventInstruction:
		m.stage.Instruction = e.Instruction
		m.stage.Shot = e.Shot
		m.stage.Required = e.Required
		m.stage.Countdown = nil
		m.stage.Final = false
		m.stage.Error = ""

	case session.EventTick:
		if e.Tick != nil {
			remaining := e.Tick.Remaining
			m.stage.Countdown = &remaining
			m.stage.Final = e.Tick.Final
		}

	case session.EventShot:
		m.stage.Shot = e.Shot
		m.stage.Required = e.Required
		return m.flash.Fire()

	case session.EventComposite:
		m.stage.Composite = true
		m.stage.Composing = false

	case session.EventPublish:
		m.stage.PublishURL = e.URL
		m.stage.QRText = e.QRText
		if m.stage.QRText == "" {
			m.stage.QRText = m.renderQR(e.URL)
		}

	case session.EventUploadError, session.EventError:
		m.stage.Error = e.Error
		m.stage.Composing = false

	case session.EventHealth:
		m.setHealth(e.Health)

	case session.EventAttract:
		m.stage.Attract = true

	case session.EventClear:
		m.clearStage()
	}
	return nil
}

func (m *Model) clearStage() {
	m.stage.Instruction = ""
	m.stage.Countdown = nil
	m.stage.Final = false
	m.stage.Composite = false
	m.stage.Composing = false
	m.stage.PublishURL = ""
	m.stage.QRText = ""
	m.stage.Error = ""
	m.stage.Attract = false
	m.stage.Shot = 0
}

func (m *Model) setHealth(name string) {
	m.statusBar.Health = name
	m.statusBar.Indicator = healthIndicator(name)
}

func (m Model) renderQR(url string) string {
	if url == "" || m.qr == nil {
		return ""
	}
	code, err := m.qr.Render(url)
	if err != nil {
		return ""
	}
	return code.Text
}

func healthIndicator(name string) string {
	for _, s := range []monitor.HealthStatus{monitor.Connected, monitor.Unreachable, monitor.TransportError} {
		if s.String() == name {
			return s.Indicator()
		}
	}
	return monitor.Unknown.Indicator()
}

// View renders the full console.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	if m.showHelp {
		return lipgloss.JoinVertical(lipgloss.Left,
			m.statusBar.View(),
			renderHelp(m.config, m.width),
			theme.StyleDimmed.Render("  esc: close help"),
		)
	}

	main := m.stage.View()
	if !m.connected {
		main = m.renderDisconnected()
	}

	sections := []string{m.statusBar.View(), main}
	if m.notice != "" {
		sections = append(sections, theme.StyleError.Render("  "+m.notice))
	}
	sections = append(sections, "  "+m.help.View(m.keys))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderDisconnected() string {
	width := m.width
	if width < 40 {
		width = 40
	}
	msg := lipgloss.JoinVertical(lipgloss.Center,
		theme.StyleError.Render("DISCONNECTED"),
		"",
		m.spinner.View()+" Reconnecting to the booth...",
	)
	return theme.StyleBorder.
		Width(width-2).
		Align(lipgloss.Center).
		Padding(1, 2).
		Render(msg)
}
