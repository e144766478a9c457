// Package countdown implements the per-shot countdown: a fixed-interval tick
// loop that displays K, K-1, …, 0 and completes exactly once.
package countdown

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrPreempted is returned when a newer countdown replaced this one.
	ErrPreempted = errors.New("countdown preempted")
	// ErrStopped is returned when Stop cancelled the countdown.
	ErrStopped = errors.New("countdown stopped")
)

// Tick is one display update.
type Tick struct {
	Remaining int    `json:"remaining"`
	Final     bool   `json:"final"`
	Cue       string `json:"cue,omitempty"`
}

// Timer runs at most one countdown at a time. Starting a countdown cancels
// the active one; a cancelled countdown never completes.
type Timer struct {
	interval time.Duration
	cue      string
	finalCue string

	mu     sync.Mutex
	active *run
}

type run struct {
	cancel context.CancelCauseFunc
}

// New returns a Timer ticking every interval. cue accompanies every tick
// except the last, which carries finalCue (empty means no cue).
func New(interval time.Duration, cue, finalCue string) *Timer {
	return &Timer{interval: interval, cue: cue, finalCue: finalCue}
}

// Run counts down from seconds and blocks until the final tick has been
// delivered. It returns nil on completion, ErrPreempted if another countdown
// started meanwhile, ErrStopped after Stop, or the context error.
func (t *Timer) Run(ctx context.Context, seconds int, onTick func(Tick)) error {
	ctx, r := t.begin(ctx)
	defer r.cancel(nil)
	return t.loop(ctx, r, seconds, onTick)
}

// Start runs the countdown on its own goroutine. The countdown is registered
// before Start returns, so a following Start always preempts it. onDone fires
// exactly once if and only if the countdown completes.
func (t *Timer) Start(ctx context.Context, seconds int, onTick func(Tick), onDone func()) {
	ctx, r := t.begin(ctx)
	go func() {
		defer r.cancel(nil)
		if err := t.loop(ctx, r, seconds, onTick); err == nil && onDone != nil {
			onDone()
		}
	}()
}

// Stop cancels the active countdown, if any.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active != nil {
		t.active.cancel(ErrStopped)
		t.active = nil
	}
}

// Active reports whether a countdown is running.
func (t *Timer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active != nil
}

func (t *Timer) begin(parent context.Context) (context.Context, *run) {
	ctx, cancel := context.WithCancelCause(parent)
	r := &run{cancel: cancel}

	t.mu.Lock()
	if t.active != nil {
		t.active.cancel(ErrPreempted)
	}
	t.active = r
	t.mu.Unlock()

	return ctx, r
}

func (t *Timer) loop(ctx context.Context, r *run, seconds int, onTick func(Tick)) error {
	if seconds < 0 {
		seconds = 0
	}

	remaining := seconds
	if !t.emit(ctx, r, remaining, onTick) {
		return t.release(ctx, r)
	}

	if remaining > 0 {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		for remaining > 0 {
			select {
			case <-ctx.Done():
				return t.release(ctx, r)
			case <-ticker.C:
			}
			remaining--
			if !t.emit(ctx, r, remaining, onTick) {
				return t.release(ctx, r)
			}
		}
	}

	// Only the countdown still registered as active may complete. A
	// replacement that registered first wins.
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active != r {
		return ErrPreempted
	}
	t.active = nil
	return nil
}

func (t *Timer) emit(ctx context.Context, r *run, remaining int, onTick func(Tick)) bool {
	if ctx.Err() != nil {
		return false
	}
	t.mu.Lock()
	current := t.active == r
	t.mu.Unlock()
	if !current {
		return false
	}

	tk := Tick{Remaining: remaining, Final: remaining == 0, Cue: t.cue}
	if tk.Final {
		tk.Cue = t.finalCue
	}
	if onTick != nil {
		onTick(tk)
	}
	return true
}

func (t *Timer) release(ctx context.Context, r *run) error {
	t.mu.Lock()
	if t.active == r {
		t.active = nil
	}
	t.mu.Unlock()

	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	return ErrPreempted
}
