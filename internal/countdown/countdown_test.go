package countdown

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

const testInterval = 5 * time.Millisecond

type tickRecorder struct {
	mu    sync.Mutex
	ticks []Tick
}

func (r *tickRecorder) record(tk Tick) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, tk)
}

func (r *tickRecorder) snapshot() []Tick {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Tick(nil), r.ticks...)
}

func TestRunEmitsKPlusOneTicks(t *testing.T) {
	for _, k := range []int{0, 1, 3, 5} {
		timer := New(testInterval, "beep", "")
		rec := &tickRecorder{}

		if err := timer.Run(context.Background(), k, rec.record); err != nil {
			t.Fatalf("K=%d: Run() = %v, want nil", k, err)
		}

		ticks := rec.snapshot()
		if len(ticks) != k+1 {
			t.Fatalf("K=%d: got %d ticks, want %d", k, len(ticks), k+1)
		}
		for i, tk := range ticks {
			want := k - i
			if tk.Remaining != want {
				t.Errorf("K=%d: tick[%d].Remaining = %d, want %d", k, i, tk.Remaining, want)
			}
			final := i == k
			if tk.Final != final {
				t.Errorf("K=%d: tick[%d].Final = %v, want %v", k, i, tk.Final, final)
			}
			if final && tk.Cue != "" {
				t.Errorf("K=%d: final tick cue = %q, want none", k, tk.Cue)
			}
			if !final && tk.Cue != "beep" {
				t.Errorf("K=%d: tick[%d].Cue = %q, want beep", k, i, tk.Cue)
			}
		}
		if timer.Active() {
			t.Errorf("K=%d: timer still active after completion", k)
		}
	}
}

func TestFinalCueConfigurable(t *testing.T) {
	timer := New(testInterval, "beep", "shutter")
	rec := &tickRecorder{}
	if err := timer.Run(context.Background(), 2, rec.record); err != nil {
		t.Fatal(err)
	}
	ticks := rec.snapshot()
	if got := ticks[len(ticks)-1].Cue; got != "shutter" {
		t.Errorf("final cue = %q, want shutter", got)
	}
}

func TestStartCompletesOnceAfterZero(t *testing.T) {
	timer := New(testInterval, "beep", "")
	rec := &tickRecorder{}
	done := make(chan []Tick, 4)

	timer.Start(context.Background(), 3, rec.record, func() {
		done <- rec.snapshot()
	})

	select {
	case ticks := <-done:
		if len(ticks) != 4 || ticks[3].Remaining != 0 {
			t.Fatalf("completion fired before reaching zero: %+v", ticks)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("countdown never completed")
	}

	select {
	case <-done:
		t.Fatal("completion fired twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSecondStartPreemptsFirst(t *testing.T) {
	timer := New(testInterval, "beep", "")
	first := make(chan struct{}, 1)
	second := make(chan struct{}, 1)

	timer.Start(context.Background(), 3, nil, func() { first <- struct{}{} })
	timer.Start(context.Background(), 2, nil, func() { second <- struct{}{} })

	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("second countdown never completed")
	}

	select {
	case <-first:
		t.Fatal("preempted countdown completed")
	case <-time.After(10 * testInterval):
	}
}

func TestRunReturnsPreempted(t *testing.T) {
	timer := New(20*time.Millisecond, "beep", "")
	started := make(chan struct{})
	errc := make(chan error, 1)

	go func() {
		errc <- timer.Run(context.Background(), 5, func(tk Tick) {
			if tk.Remaining == 5 {
				close(started)
			}
		})
	}()

	<-started
	done := make(chan struct{})
	timer.Start(context.Background(), 0, nil, func() { close(done) })

	select {
	case err := <-errc:
		if !errors.Is(err, ErrPreempted) {
			t.Fatalf("Run() = %v, want ErrPreempted", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("preempted Run never returned")
	}
	<-done
}

func TestStop(t *testing.T) {
	timer := New(20*time.Millisecond, "beep", "")
	started := make(chan struct{})
	errc := make(chan error, 1)

	go func() {
		errc <- timer.Run(context.Background(), 5, func(tk Tick) {
			if tk.Remaining == 5 {
				close(started)
			}
		})
	}()

	<-started
	timer.Stop()

	if err := <-errc; !errors.Is(err, ErrStopped) {
		t.Fatalf("Run() = %v, want ErrStopped", err)
	}
	if timer.Active() {
		t.Error("timer active after Stop")
	}
}

func TestContextCancel(t *testing.T) {
	timer := New(20*time.Millisecond, "beep", "")
	ctx, cancel := context.WithCancel(context.Background())
	rec := &tickRecorder{}

	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	err := timer.Run(ctx, 10, rec.record)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() = %v, want context.Canceled", err)
	}
	for _, tk := range rec.snapshot() {
		if tk.Final {
			t.Fatal("cancelled countdown reached its final tick")
		}
	}
}
