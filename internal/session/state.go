package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/snapbooth/booth/internal/capture"
)

type State int

const (
	Idle State = iota
	WaitForInput
	PrepareForCountdown
	CountdownSequence
	Review
)

var stateNames = map[State]string{
	Idle:                "idle",
	WaitForInput:        "waitForInput",
	PrepareForCountdown: "prepareForCountdown",
	CountdownSequence:   "countdownSequence",
	Review:              "review",
}

var stateFromName = map[string]State{
	"idle":                Idle,
	"waitForInput":        WaitForInput,
	"prepareForCountdown": PrepareForCountdown,
	"countdownSequence":   CountdownSequence,
	"review":              Review,
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	v, ok := stateFromName[name]
	if !ok {
		return fmt.Errorf("unknown state %q", name)
	}
	*s = v
	return nil
}

// Capturing reports whether a capture sequence runs in this state.
func (s State) Capturing() bool {
	return s == PrepareForCountdown || s == CountdownSequence
}

var (
	ErrFinalized   = errors.New("session is finalized")
	ErrSessionFull = errors.New("session already has every photo")
)

// Session is the working set of one booth visit. Photos are append-only and
// keep capture order. A Session is not safe for concurrent use; the booth
// machine is its only writer.
type Session struct {
	ID        ulid.ULID
	Index     int
	Required  int
	StartedAt time.Time

	photos    []capture.Frame
	finalized bool
}

// New starts session number index expecting required photos.
func New(index, required int, now time.Time) *Session {
	return &Session{
		ID:        ulid.Make(),
		Index:     index,
		Required:  required,
		StartedAt: now,
		photos:    make([]capture.Frame, 0, required),
	}
}

// Append stores the next photo and returns the new photo index.
func (s *Session) Append(f capture.Frame) (int, error) {
	if s.finalized {
		return len(s.photos), ErrFinalized
	}
	if len(s.photos) >= s.Required {
		return len(s.photos), ErrSessionFull
	}
	s.photos = append(s.photos, f)
	return len(s.photos), nil
}

// PhotoIndex is the number of photos captured so far.
func (s *Session) PhotoIndex() int {
	return len(s.photos)
}

// Complete reports whether every required photo has been captured.
func (s *Session) Complete() bool {
	return len(s.photos) >= s.Required
}

// Photos returns the captured photos in capture order.
func (s *Session) Photos() []capture.Frame {
	out := make([]capture.Frame, len(s.photos))
	copy(out, s.photos)
	return out
}

// Finalize makes the session read-only.
func (s *Session) Finalize() {
	s.finalized = true
}

func (s *Session) Finalized() bool {
	return s.finalized
}

// Snapshot is the JSON view of a Session.
type Snapshot struct {
	ID         string    `json:"id"`
	Index      int       `json:"index"`
	Required   int       `json:"required"`
	PhotoIndex int       `json:"photoIndex"`
	StartedAt  time.Time `json:"startedAt"`
	Finalized  bool      `json:"finalized"`
}

func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		ID:         s.ID.String(),
		Index:      s.Index,
		Required:   s.Required,
		PhotoIndex: len(s.photos),
		StartedAt:  s.StartedAt,
		Finalized:  s.finalized,
	}
}
