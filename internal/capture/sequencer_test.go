package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/snapbooth/booth/internal/countdown"
)

type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) add(s string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, s)
}

func (o *recordingObserver) Preparing(shot int, instruction string) {
	o.add(fmt.Sprintf("prepare %d %s", shot, instruction))
}

func (o *recordingObserver) CountingDown(shot int) {
	o.add(fmt.Sprintf("countdown %d", shot))
}

func (o *recordingObserver) Tick(shot int, tk countdown.Tick) {
	o.add(fmt.Sprintf("tick %d %d", shot, tk.Remaining))
}

func (o *recordingObserver) list() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...)
}

func testSequencer(obs Observer) *Sequencer {
	s := NewSequencer(SequencerOptions{
		CountdownSeconds: 2,
		TickInterval:     2 * time.Millisecond,
		SettleDelay:      2 * time.Millisecond,
		Instructions:     []string{"Smile", "Wave"},
		CountdownCue:     "countdown",
		Observer:         obs,
	})
	s.pick = func(n int) int { return n - 1 }
	return s
}

func TestRunTakesEveryShotInOrder(t *testing.T) {
	obs := &recordingObserver{}
	s := testSequencer(obs)

	var shots []int
	completed := 0
	err := s.Run(context.Background(), 2,
		func(_ context.Context, shot int) error {
			obs.add(fmt.Sprintf("shot %d", shot))
			shots = append(shots, shot)
			return nil
		},
		func() { completed++ },
	)
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if completed != 1 {
		t.Errorf("onComplete called %d times, want 1", completed)
	}

	want := []string{
		"prepare 0 Wave", "countdown 0", "tick 0 2", "tick 0 1", "tick 0 0", "shot 0",
		"prepare 1 Wave", "countdown 1", "tick 1 2", "tick 1 1", "tick 1 0", "shot 1",
	}
	got := obs.list()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRunZeroRequiredCompletesImmediately(t *testing.T) {
	s := testSequencer(nil)
	completed := false
	err := s.Run(context.Background(), 0,
		func(context.Context, int) error { t.Fatal("unexpected shot"); return nil },
		func() { completed = true },
	)
	if err != nil || !completed {
		t.Fatalf("Run() = %v, completed = %v", err, completed)
	}
}

func TestRunBusy(t *testing.T) {
	s := testSequencer(nil)
	s.opts.SettleDelay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		errc <- s.Run(ctx, 1, func(context.Context, int) error { return nil }, nil)
	}()

	deadline := time.Now().Add(time.Second)
	for !s.Running() {
		if time.Now().After(deadline) {
			t.Fatal("first run never started")
		}
		time.Sleep(time.Millisecond)
	}

	if err := s.Run(ctx, 1, func(context.Context, int) error { return nil }, nil); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Run() = %v, want ErrBusy", err)
	}

	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("first Run() = %v, want context.Canceled", err)
	}
}

func TestRunCancelSkipsCompletion(t *testing.T) {
	s := testSequencer(nil)
	ctx, cancel := context.WithCancel(context.Background())

	shots := 0
	err := s.Run(ctx, 3,
		func(context.Context, int) error {
			shots++
			cancel()
			return nil
		},
		func() { t.Error("onComplete called after cancel") },
	)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() = %v, want context.Canceled", err)
	}
	if shots != 1 {
		t.Errorf("shots = %d, want 1", shots)
	}
}

func TestRunShotFailureStops(t *testing.T) {
	s := testSequencer(nil)
	boom := errors.New("lens cap on")

	err := s.Run(context.Background(), 2,
		func(context.Context, int) error { return boom },
		func() { t.Error("onComplete called after failed shot") },
	)
	if !errors.Is(err, boom) {
		t.Fatalf("Run() = %v, want %v", err, boom)
	}
	if s.Running() {
		t.Error("sequencer still running")
	}
}

type flakyCamera struct {
	failures int
	starts   int
}

func (c *flakyCamera) Start(context.Context) error {
	c.starts++
	if c.starts <= c.failures {
		return errors.New("device busy")
	}
	return nil
}

func (c *flakyCamera) Snap(context.Context) (Frame, error) {
	return Frame{}, nil
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestStartRetries(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		retries   int
		wantErr   bool
		wantCalls int
	}{
		{"first try", 0, 2, false, 1},
		{"recovers", 1, 2, false, 2},
		{"gives up", 5, 1, true, 2},
		{"no retries", 1, 0, true, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := &flakyCamera{failures: tt.failures}
			err := Start(context.Background(), cam, StartOptions{
				Driver:  "flaky",
				Timeout: time.Second,
				Retries: tt.retries,
				Logger:  quietLogger(),
			})

			if tt.wantErr {
				var startErr *CameraStartError
				if !errors.As(err, &startErr) {
					t.Fatalf("Start() = %v, want *CameraStartError", err)
				}
				if startErr.Driver != "flaky" {
					t.Errorf("Driver = %q", startErr.Driver)
				}
			} else if err != nil {
				t.Fatalf("Start() = %v", err)
			}
			if cam.starts != tt.wantCalls {
				t.Errorf("Start called %d times, want %d", cam.starts, tt.wantCalls)
			}
		})
	}
}

func TestFrameDataURI(t *testing.T) {
	f := Frame{Data: []byte("hi"), ContentType: "image/png"}
	if got, want := f.DataURI(), "data:image/png;base64,aGk="; got != want {
		t.Errorf("DataURI() = %q, want %q", got, want)
	}
	if f.Extension() != ".png" {
		t.Errorf("Extension() = %q", f.Extension())
	}
	if (Frame{ContentType: "image/jpeg"}).Extension() != ".jpg" {
		t.Error("jpeg extension")
	}
}
