package session

import (
	"time"

	"github.com/snapbooth/booth/internal/countdown"
)

// EventType classifies booth notifications.
type EventType string

const (
	EventState       EventType = "state"        // machine entered State
	EventInstruction EventType = "instruction"  // a shot is being prepared
	EventTick        EventType = "tick"         // countdown update
	EventShot        EventType = "shot"         // a photo was captured
	EventComposite   EventType = "composite"    // composite ready for review
	EventPublish     EventType = "publish"      // composite published, URL and QR attached
	EventUploadError EventType = "upload_error" // composite could not be published
	EventError       EventType = "error"        // session aborted
	EventHealth      EventType = "health"       // backend reachability changed
	EventAttract     EventType = "attract"      // idle long enough to show the attract loop
	EventClear       EventType = "clear"        // drop transient review UI
)

// Event carries one notification to presentation layers.
type Event struct {
	Type         EventType       `json:"type"`
	State        State           `json:"state"`
	SessionID    string          `json:"sessionId,omitempty"`
	SessionIndex int             `json:"sessionIndex,omitempty"`
	Shot         int             `json:"shot,omitempty"` // 1-based
	Required     int             `json:"required,omitempty"`
	Instruction  string          `json:"instruction,omitempty"`
	Tick         *countdown.Tick `json:"tick,omitempty"`
	Cue          string          `json:"cue,omitempty"`
	Image        string          `json:"image,omitempty"` // data URI
	URL          string          `json:"url,omitempty"`
	QR           string          `json:"qr,omitempty"`     // PNG data URI
	QRText       string          `json:"qrText,omitempty"` // terminal rendering
	Health       string          `json:"health,omitempty"`
	Error        string          `json:"error,omitempty"`
	At           time.Time       `json:"at"`
}

// Notifier receives booth events. Implementations must not block.
type Notifier interface {
	Publish(Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Publish(e Event) { f(e) }
