// Package metrics holds the booth's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionCounterVec = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booth_state_transitions_total",
			Help: "A count of state machine transitions.",
		},
		[]string{"from", "to"},
	)

	sessionCounterVec = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booth_sessions_total",
			Help: "A count of finished sessions by outcome.",
		},
		[]string{"outcome"},
	)

	shotCounterVec = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booth_shots_total",
			Help: "A count of camera snaps.",
		},
		[]string{"status"},
	)

	composeDurationVec = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "booth_compose_duration_seconds",
			Help:    "Time spent assembling composites.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)

	uploadDurationVec = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "booth_upload_duration_seconds",
			Help:    "Time spent uploading photos.",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"kind", "status"},
	)

	storedCounterVec = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booth_backend_photos_total",
			Help: "A count of photos received by the publish backend.",
		},
		[]string{"kind", "status"},
	)

	healthGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "booth_backend_healthy",
			Help: "1 when the last backend health check succeeded.",
		},
	)
)

// Transition records a state change.
func Transition(from, to string) {
	transitionCounterVec.WithLabelValues(from, to).Inc()
}

// Session records a session leaving the machine: "completed" or "aborted".
func Session(outcome string) {
	sessionCounterVec.WithLabelValues(outcome).Inc()
}

// Shot records a camera snap.
func Shot(err error) {
	shotCounterVec.WithLabelValues(status(err)).Inc()
}

// Compose records a composite assembly that began at start.
func Compose(start time.Time, err error) {
	composeDurationVec.WithLabelValues(status(err)).Observe(time.Since(start).Seconds())
}

// Upload records an upload of kind "raw" or "composite".
func Upload(kind string, start time.Time, err error) {
	uploadDurationVec.WithLabelValues(kind, status(err)).Observe(time.Since(start).Seconds())
}

// Stored records a photo received by the backend, "raw" or "published".
func Stored(kind string, err error) {
	storedCounterVec.WithLabelValues(kind, status(err)).Inc()
}

// Health records the backend reachability.
func Health(healthy bool) {
	if healthy {
		healthGauge.Set(1)
		return
	}
	healthGauge.Set(0)
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
