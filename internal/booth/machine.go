// Package booth runs the kiosk session state machine: it owns the current
// session, every timer and the hand-off to compositing and publishing.
package booth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/snapbooth/booth/internal/capture"
	"github.com/snapbooth/booth/internal/composite"
	"github.com/snapbooth/booth/internal/config"
	"github.com/snapbooth/booth/internal/countdown"
	"github.com/snapbooth/booth/internal/metrics"
	"github.com/snapbooth/booth/internal/qr"
	"github.com/snapbooth/booth/internal/session"
	"github.com/snapbooth/booth/internal/upload"
)

type Composer interface {
	Compose(ctx context.Context, layout composite.Layout, photos []capture.Frame) (*composite.Composite, error)
}

type Uploader interface {
	Upload(ctx context.Context, task upload.Task) (*upload.PublishResult, error)
}

type QRRenderer interface {
	Render(content string) (*qr.Code, error)
}

type Options struct {
	Booth        config.BoothConfig
	CameraConfig config.CameraConfig
	Layout       composite.Layout

	Camera   capture.Camera
	Composer Composer
	Uploader Uploader
	QR       QRRenderer // optional
	Notifier session.Notifier
	Namer    *upload.Namer
	Logger   logrus.FieldLogger
}

// Status is a point-in-time view of the machine for snapshots.
type Status struct {
	State          session.State     `json:"state"`
	Session        *session.Snapshot `json:"session,omitempty"`
	SessionIndex   int               `json:"sessionIndex"`
	Instruction    string            `json:"instruction,omitempty"`
	Countdown      *int              `json:"countdown,omitempty"`
	CompositeReady bool              `json:"compositeReady"`
	PublishURL     string            `json:"publishUrl,omitempty"`
	LastError      string            `json:"lastError,omitempty"`
}

// Machine is the booth's single session state machine. Every transition
// happens under mu. Work that outlives a transition (capture runs, timers,
// composite and upload results) carries the session generation it was
// started for and is dropped when the generation has moved on.
type Machine struct {
	opts   Options
	seq    *capture.Sequencer
	logger logrus.FieldLogger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	state        session.State
	sess         *session.Session
	gen          uint64
	running      uint64 // generation whose capture run is active
	sessionIndex int
	endSession   context.CancelFunc
	runDone      chan struct{}

	reviewTimer  *time.Timer
	attractTimer *time.Timer
	attractSeq   uint64

	instruction string
	countdown   *int
	composite   *composite.Composite
	publishURL  string
	lastError   string
}

func New(opts Options) *Machine {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Notifier == nil {
		opts.Notifier = session.NotifierFunc(func(session.Event) {})
	}
	if opts.Namer == nil {
		opts.Namer = upload.NewNamer()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Machine{
		opts:   opts,
		logger: opts.Logger.WithField("component", "booth"),
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
		state:  session.WaitForInput,
	}
	m.seq = capture.NewSequencer(capture.SequencerOptions{
		CountdownSeconds: opts.Booth.CountdownSeconds,
		TickInterval:     opts.Booth.TickInterval,
		SettleDelay:      opts.Booth.SettleDelay,
		Instructions:     opts.Booth.Instructions,
		CountdownCue:     opts.Booth.CountdownCue,
		FinalCue:         opts.Booth.FinalCue,
		Observer:         (*observer)(m),
	})
	return m
}

// Boot brings the camera up and then opens the booth. The booth opens even
// when the camera fails; the returned error is the *CameraStartError.
func (m *Machine) Boot(ctx context.Context) error {
	m.mu.Lock()
	m.publish(m.event(session.EventState))
	m.mu.Unlock()

	err := capture.Start(ctx, m.opts.Camera, capture.StartOptions{
		Driver:  m.opts.CameraConfig.Driver,
		Timeout: m.opts.CameraConfig.StartTimeout,
		Retries: m.opts.CameraConfig.StartRetries,
		Logger:  m.logger,
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.logger.WithError(err).Error("camera unavailable, opening booth anyway")
		m.lastError = err.Error()
		e := m.event(session.EventError)
		e.Error = err.Error()
		m.publish(e)
	}
	if m.state == session.WaitForInput {
		m.setState(session.Idle)
	}
	return err
}

// Handle routes one input. It reports whether the input caused a
// transition; inputs that do not apply to the current state are ignored.
func (m *Machine) Handle(in Input) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx.Err() != nil {
		return false
	}

	// Any input while Idle is activity.
	if m.state == session.Idle {
		m.armAttract()
	}

	switch in.normalize() {
	case InputStart:
		if m.state != session.Idle {
			return false
		}
		m.beginSession()
		return true

	case InputDone:
		if m.state != session.Review {
			return false
		}
		m.endReview("done")
		return true

	default:
		return false
	}
}

// Status returns the machine's current view.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		State:          m.state,
		SessionIndex:   m.sessionIndex,
		Instruction:    m.instruction,
		CompositeReady: m.composite != nil,
		PublishURL:     m.publishURL,
		LastError:      m.lastError,
	}
	if m.countdown != nil {
		v := *m.countdown
		st.Countdown = &v
	}
	if m.sess != nil {
		snap := m.sess.Snapshot()
		st.Session = &snap
	}
	return st
}

// ReportHealth publishes a backend reachability change in order with the
// machine's own events.
func (m *Machine) ReportHealth(status, lastError string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.event(session.EventHealth)
	e.Health = status
	e.Error = lastError
	m.publish(e)
}

// Close cancels the session and every timer, then waits for background
// work to drain.
func (m *Machine) Close() {
	m.mu.Lock()
	m.cancel()
	if m.endSession != nil {
		m.endSession()
		m.endSession = nil
	}
	stopTimer(&m.reviewTimer)
	stopTimer(&m.attractTimer)
	done := m.runDone
	m.mu.Unlock()

	if done != nil {
		<-done
	}
	m.wg.Wait()
}

// beginSession creates a fresh session and starts its capture run. Caller
// holds mu.
func (m *Machine) beginSession() {
	m.gen++
	m.sessionIndex++
	gen := m.gen

	m.sess = session.New(m.sessionIndex, m.opts.Booth.PhotoCount, m.now())
	m.clearTransient()
	m.lastError = ""

	ctx, cancel := context.WithCancel(m.ctx)
	m.endSession = cancel

	prev := m.runDone
	done := make(chan struct{})
	m.runDone = done

	m.logger.WithFields(logrus.Fields{
		"session":       m.sess.ID.String(),
		"session_index": m.sessionIndex,
	}).Info("session started")
	m.setState(session.PrepareForCountdown)

	go m.runSession(ctx, gen, prev, done)
}

func (m *Machine) runSession(ctx context.Context, gen uint64, prev <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	// The previous run may still be unwinding after an abort.
	if prev != nil {
		<-prev
	}

	m.mu.Lock()
	if m.gen != gen || !m.state.Capturing() {
		m.mu.Unlock()
		return
	}
	m.running = gen
	required := m.sess.Required
	m.mu.Unlock()

	err := m.seq.Run(ctx, required,
		func(ctx context.Context, shot int) error {
			return m.takeShot(ctx, gen, shot)
		},
		func() {
			m.completeCapture(ctx, gen)
		},
	)
	if err != nil {
		m.abort(gen, err)
	}
}

func (m *Machine) takeShot(ctx context.Context, gen uint64, shot int) error {
	snapCtx := ctx
	if d := m.opts.CameraConfig.SnapTimeout; d > 0 {
		var cancel context.CancelFunc
		snapCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	frame, err := m.opts.Camera.Snap(snapCtx)
	metrics.Shot(err)
	if err != nil {
		return fmt.Errorf("snap photo %d: %w", shot+1, err)
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return context.Canceled
	}
	idx, err := m.sess.Append(frame)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.countdown = nil
	e := m.event(session.EventShot)
	e.Shot = idx
	e.Cue = m.opts.Booth.CaptureCue
	e.Image = frame.DataURI()
	m.publish(e)
	m.mu.Unlock()

	m.uploadRaw(frame)
	return nil
}

// uploadRaw sends a single shot to the backend. Failures are logged only.
func (m *Machine) uploadRaw(frame capture.Frame) {
	if m.opts.Uploader == nil {
		return
	}
	task := upload.Task{
		Payload:     frame.Data,
		Filename:    m.opts.Namer.Raw(frame.Extension()),
		ContentType: frame.ContentType,
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		start := time.Now()
		_, err := m.opts.Uploader.Upload(m.ctx, task)
		metrics.Upload("raw", start, err)
		if err != nil {
			m.logger.WithError(err).WithField("filename", task.Filename).Warn("raw photo upload failed")
		}
	}()
}

func (m *Machine) completeCapture(ctx context.Context, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || !m.state.Capturing() {
		return
	}

	m.sess.Finalize()
	photos := m.sess.Photos()
	index := m.sess.Index
	m.instruction = ""
	m.countdown = nil
	m.setState(session.Review)
	m.armReview(gen)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.finish(ctx, gen, index, photos)
	}()
}

// finish composes the session's photos and publishes the composite.
func (m *Machine) finish(ctx context.Context, gen uint64, index int, photos []capture.Frame) {
	if m.opts.Composer == nil {
		return
	}

	start := time.Now()
	comp, err := m.opts.Composer.Compose(ctx, m.opts.Layout, photos)
	metrics.Compose(start, err)

	m.mu.Lock()
	if m.gen != gen || m.state != session.Review {
		m.mu.Unlock()
		return
	}
	if err != nil {
		m.logger.WithError(err).Error("composite failed")
		m.lastError = err.Error()
		e := m.event(session.EventError)
		e.Error = err.Error()
		m.publish(e)
		m.mu.Unlock()
		return
	}
	m.composite = comp
	e := m.event(session.EventComposite)
	e.Image = comp.DataURI()
	m.publish(e)
	m.mu.Unlock()

	if m.opts.Uploader == nil {
		return
	}

	// The upload is not tied to the session: the backend keeps the
	// composite even if the guest leaves before the QR code shows.
	filename := m.opts.Namer.Composite(index)
	start = time.Now()
	res, err := m.opts.Uploader.Upload(m.ctx, upload.Task{
		Payload:     comp.Data,
		Filename:    filename,
		ContentType: comp.ContentType,
		Publishable: true,
	})
	metrics.Upload("composite", start, err)

	var code *qr.Code
	if err == nil && m.opts.QR != nil {
		var qrErr error
		code, qrErr = m.opts.QR.Render(res.ImageURL)
		if qrErr != nil {
			m.logger.WithError(qrErr).Warn("qr render failed")
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.logger.WithError(err).WithField("filename", filename).Error("composite upload failed")
	}
	if m.gen != gen || m.state != session.Review {
		return
	}
	if err != nil {
		m.lastError = err.Error()
		e := m.event(session.EventUploadError)
		e.Error = err.Error()
		m.publish(e)
		return
	}

	m.publishURL = res.ImageURL
	e = m.event(session.EventPublish)
	e.URL = res.ImageURL
	if code != nil {
		e.QR = code.DataURI()
		e.QRText = code.Text
	}
	m.publish(e)
}

// abort ends a capture run that failed. Runs that ended because their
// session already moved on are ignored.
func (m *Machine) abort(gen uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || !m.state.Capturing() {
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, countdown.ErrStopped) {
		return
	}

	m.logger.WithError(err).Error("session aborted")
	m.lastError = err.Error()
	e := m.event(session.EventError)
	e.Error = err.Error()
	m.publish(e)

	m.dropSession()
	metrics.Session("aborted")
	m.setState(session.Idle)
}

// endReview returns from Review to Idle. Caller holds mu.
func (m *Machine) endReview(reason string) {
	m.logger.WithFields(logrus.Fields{
		"session": m.sess.ID.String(),
		"reason":  reason,
	}).Info("session finished")

	m.dropSession()
	metrics.Session("completed")
	m.publish(m.event(session.EventClear))
	m.setState(session.Idle)
}

// dropSession cancels the session's outstanding work and discards it.
// Caller holds mu.
func (m *Machine) dropSession() {
	if m.endSession != nil {
		m.endSession()
		m.endSession = nil
	}
	m.gen++
	m.sess = nil
	m.clearTransient()
}

func (m *Machine) clearTransient() {
	m.instruction = ""
	m.countdown = nil
	m.composite = nil
	m.publishURL = ""
}

// setState enters next, stopping timers the previous state owned. Caller
// holds mu.
func (m *Machine) setState(next session.State) {
	prev := m.state
	if prev == next {
		return
	}
	switch prev {
	case session.Review:
		stopTimer(&m.reviewTimer)
	case session.Idle:
		stopTimer(&m.attractTimer)
	}

	m.state = next
	metrics.Transition(prev.String(), next.String())
	m.logger.WithFields(logrus.Fields{
		"from": prev.String(),
		"to":   next.String(),
	}).Debug("state changed")
	m.publish(m.event(session.EventState))

	if next == session.Idle {
		m.armAttract()
	}
}

func (m *Machine) armReview(gen uint64) {
	stopTimer(&m.reviewTimer)
	if m.opts.Booth.ReviewTimeout <= 0 {
		return
	}
	m.reviewTimer = time.AfterFunc(m.opts.Booth.ReviewTimeout, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.gen != gen || m.state != session.Review {
			return
		}
		m.endReview("timeout")
	})
}

func (m *Machine) armAttract() {
	stopTimer(&m.attractTimer)
	if m.opts.Booth.AttractAfter <= 0 || m.ctx.Err() != nil {
		return
	}
	m.attractSeq++
	seq := m.attractSeq
	m.attractTimer = time.AfterFunc(m.opts.Booth.AttractAfter, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.attractSeq != seq || m.state != session.Idle {
			return
		}
		m.publish(m.event(session.EventAttract))
	})
}

func stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

// event builds an event stamped with the current state. Caller holds mu.
func (m *Machine) event(t session.EventType) session.Event {
	e := session.Event{
		Type:         t,
		State:        m.state,
		SessionIndex: m.sessionIndex,
		At:           m.now(),
	}
	if m.sess != nil {
		e.SessionID = m.sess.ID.String()
		e.Required = m.sess.Required
		e.Shot = m.sess.PhotoIndex()
	}
	return e
}

// publish hands e to the notifier. Caller holds mu, which keeps events in
// transition order.
func (m *Machine) publish(e session.Event) {
	m.opts.Notifier.Publish(e)
}

// observer receives sequencer progress on behalf of the machine.
type observer Machine

// current reports whether the calling run belongs to the live session.
// Caller holds mu.
func (o *observer) current() bool {
	m := (*Machine)(o)
	return m.running == m.gen && m.state.Capturing()
}

func (o *observer) Preparing(shot int, instruction string) {
	m := (*Machine)(o)
	m.mu.Lock()
	defer m.mu.Unlock()
	if !o.current() {
		return
	}
	m.setState(session.PrepareForCountdown)
	m.instruction = instruction
	m.countdown = nil

	e := m.event(session.EventInstruction)
	e.Shot = shot + 1
	e.Instruction = instruction
	m.publish(e)
}

func (o *observer) CountingDown(int) {
	m := (*Machine)(o)
	m.mu.Lock()
	defer m.mu.Unlock()
	if !o.current() {
		return
	}
	m.setState(session.CountdownSequence)
}

func (o *observer) Tick(shot int, tk countdown.Tick) {
	m := (*Machine)(o)
	m.mu.Lock()
	defer m.mu.Unlock()
	if !o.current() || m.state != session.CountdownSequence {
		return
	}
	remaining := tk.Remaining
	m.countdown = &remaining

	e := m.event(session.EventTick)
	e.Shot = shot + 1
	e.Tick = &tk
	e.Cue = tk.Cue
	m.publish(e)
}
