package capture

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/snapbooth/booth/internal/countdown"
)

// ErrBusy is returned by Run while another run is in progress.
var ErrBusy = errors.New("capture sequence already running")

// Observer receives progress notifications from a running sequence. Calls
// happen on the sequencer's goroutine, in order.
type Observer interface {
	// Preparing fires when a shot's settle period begins.
	Preparing(shot int, instruction string)
	// CountingDown fires when the settle period ends and the countdown begins.
	CountingDown(shot int)
	// Tick fires for each countdown update.
	Tick(shot int, tick countdown.Tick)
}

// SequencerOptions configures a Sequencer.
type SequencerOptions struct {
	CountdownSeconds int
	TickInterval     time.Duration
	SettleDelay      time.Duration
	Instructions     []string
	CountdownCue     string
	FinalCue         string
	Observer         Observer
}

// Sequencer runs the settle, countdown and shot cycle for each photo of a
// session.
type Sequencer struct {
	opts    SequencerOptions
	timer   *countdown.Timer
	running atomic.Bool

	// pick returns an index in [0, n). Replaced in tests.
	pick func(n int) int
}

func NewSequencer(opts SequencerOptions) *Sequencer {
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Sequencer{
		opts:  opts,
		timer: countdown.New(opts.TickInterval, opts.CountdownCue, opts.FinalCue),
		pick:  rand.IntN,
	}
}

// Run takes required shots. For each one it picks an instruction, waits the
// settle delay, counts down and calls onShot with the zero-based shot index.
// onComplete runs once after the last shot. A cancelled ctx or a failed onShot
// ends the run early without calling onComplete.
func (s *Sequencer) Run(ctx context.Context, required int, onShot func(ctx context.Context, shot int) error, onComplete func()) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer s.running.Store(false)

	for shot := 0; shot < required; shot++ {
		s.opts.Observer.Preparing(shot, s.instruction())

		if err := sleep(ctx, s.opts.SettleDelay); err != nil {
			return err
		}

		s.opts.Observer.CountingDown(shot)
		err := s.timer.Run(ctx, s.opts.CountdownSeconds, func(tk countdown.Tick) {
			s.opts.Observer.Tick(shot, tk)
		})
		if err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		if err := onShot(ctx, shot); err != nil {
			return err
		}
	}

	if onComplete != nil {
		onComplete()
	}
	return nil
}

// Running reports whether a run is in progress.
func (s *Sequencer) Running() bool {
	return s.running.Load()
}

func (s *Sequencer) instruction() string {
	if len(s.opts.Instructions) == 0 {
		return ""
	}
	return s.opts.Instructions[s.pick(len(s.opts.Instructions))]
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-timer.C:
		return nil
	}
}

type nopObserver struct{}

func (nopObserver) Preparing(int, string)    {}
func (nopObserver) CountingDown(int)         {}
func (nopObserver) Tick(int, countdown.Tick) {}
