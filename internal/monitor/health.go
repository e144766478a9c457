package monitor

import (
	"encoding/json"
	"fmt"
	"time"
)

// HealthStatus is the backend reachability as seen by the last poll.
type HealthStatus int

const (
	Unknown HealthStatus = iota // no poll has completed yet
	Connected
	Unreachable    // the backend answered with a non-2xx status
	TransportError // the request never got an answer
)

var healthNames = map[HealthStatus]string{
	Unknown:        "unknown",
	Connected:      "connected",
	Unreachable:    "unreachable",
	TransportError: "transport_error",
}

func (s HealthStatus) String() string {
	if name, ok := healthNames[s]; ok {
		return name
	}
	return "unknown"
}

// Indicator is the glyph kiosk screens show for the status.
func (s HealthStatus) Indicator() string {
	switch s {
	case Connected:
		return "✅"
	case Unreachable:
		return "❌"
	case TransportError:
		return "⛔️"
	default:
		return "…"
	}
}

func (s HealthStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *HealthStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for status, n := range healthNames {
		if n == name {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown health status %q", name)
}

// HealthCheckError records why a poll failed.
type HealthCheckError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *HealthCheckError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("health check %s: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("health check %s: status %d", e.Endpoint, e.StatusCode)
}

func (e *HealthCheckError) Unwrap() error {
	return e.Err
}

// Health is a point-in-time view of the monitor.
type Health struct {
	Status    HealthStatus `json:"status"`
	Indicator string       `json:"indicator"`
	CheckedAt time.Time    `json:"checkedAt"`
	LastError string       `json:"lastError,omitempty"`
}
