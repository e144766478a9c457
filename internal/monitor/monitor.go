// Package monitor polls the backend's health endpoint and samples host
// resources for the status surface.
package monitor

import (
	"context"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/snapbooth/booth/internal/config"
)

// Monitor polls the health endpoint on its own schedule, independent of the
// booth session.
type Monitor struct {
	endpoint string
	interval time.Duration
	client   *http.Client
	logger   logrus.FieldLogger

	health atomic.Pointer[Health]

	mu       sync.Mutex
	onChange []func(prev, next Health)
}

func New(cfg config.HealthConfig, logger logrus.FieldLogger) *Monitor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	m := &Monitor{
		endpoint: cfg.Endpoint,
		interval: cfg.Interval,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   logger.WithField("component", "health"),
	}
	m.health.Store(&Health{Status: Unknown, Indicator: Unknown.Indicator()})
	return m
}

// OnChange registers fn to run whenever the status changes. Hooks run on
// the polling goroutine.
func (m *Monitor) OnChange(fn func(prev, next Health)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

// Health returns the latest result.
func (m *Monitor) Health() Health {
	return *m.health.Load()
}

// Run polls immediately and then waits interval after each completed poll,
// until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.WithFields(logrus.Fields{
		"endpoint": m.endpoint,
		"interval": m.interval,
	}).Info("health monitor started")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("health monitor stopped")
			return
		case <-timer.C:
		}
		m.Poll(ctx)
		if ctx.Err() != nil {
			m.logger.Info("health monitor stopped")
			return
		}
		timer.Reset(m.interval)
	}
}

// Start runs the monitor on its own goroutine. The returned stop function
// cancels polling and waits for the goroutine to exit.
func (m *Monitor) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

// Poll performs one health check and records the result.
func (m *Monitor) Poll(ctx context.Context) Health {
	next := Health{CheckedAt: time.Now()}

	status, err := m.check(ctx)
	if err != nil && ctx.Err() != nil {
		// Shutting down; keep the last real result.
		return m.Health()
	}
	next.Status = status
	next.Indicator = status.Indicator()
	if err != nil {
		next.LastError = err.Error()
	}

	prev := m.health.Swap(&next)
	if prev.Status != next.Status {
		entry := m.logger.WithFields(logrus.Fields{
			"from": prev.Status.String(),
			"to":   next.Status.String(),
		})
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Info("backend health changed")

		m.mu.Lock()
		hooks := append([]func(prev, next Health){}, m.onChange...)
		m.mu.Unlock()
		for _, fn := range hooks {
			fn(*prev, next)
		}
	}
	return next
}

func (m *Monitor) check(ctx context.Context) (HealthStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.endpoint, nil)
	if err != nil {
		return TransportError, &HealthCheckError{Endpoint: m.endpoint, Err: err}
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return TransportError, &HealthCheckError{Endpoint: m.endpoint, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Unreachable, &HealthCheckError{Endpoint: m.endpoint, StatusCode: resp.StatusCode}
	}
	return Connected, nil
}
