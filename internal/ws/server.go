package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/snapbooth/booth/internal/booth"
	"github.com/snapbooth/booth/internal/config"
	"github.com/snapbooth/booth/internal/monitor"
)

// Controller is the booth surface the server drives.
type Controller interface {
	Handle(in booth.Input) bool
	Status() booth.Status
}

// HealthSource reports backend reachability.
type HealthSource interface {
	Health() monitor.Health
}

// PresentationConfig is what a presentation client needs to render the
// booth: session shape, cue names and QR styling.
type PresentationConfig struct {
	PhotoCount       int             `json:"photoCount"`
	CountdownSeconds int             `json:"countdownSeconds"`
	CountdownCue     string          `json:"countdownCue,omitempty"`
	CaptureCue       string          `json:"captureCue,omitempty"`
	FinalCue         string          `json:"finalCue,omitempty"`
	Slots            []config.Slot   `json:"slots"`
	QR               config.QRConfig `json:"qr"`
	HealthEnabled    bool            `json:"healthEnabled"`
}

type StatusResponse struct {
	Booth   booth.Status       `json:"booth"`
	Health  monitor.Health     `json:"health"`
	Host    *monitor.HostStats `json:"host,omitempty"`
	Clients int                `json:"clients"`
}

type Server struct {
	config         *config.Config
	controller     Controller
	health         HealthSource
	broadcaster    *Broadcaster
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	logger         logrus.FieldLogger
}

func NewServer(cfg *config.Config, controller Controller, health HealthSource, broadcaster *Broadcaster, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		config:         cfg,
		controller:     controller,
		health:         health,
		broadcaster:    broadcaster,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		logger:         logger.WithField("component", "http"),
	}

	for _, origin := range cfg.Server.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

// Snapshot is the payload pushed to websocket clients.
func (s *Server) Snapshot() SnapshotPayload {
	return SnapshotPayload{
		Booth:  s.controller.Status(),
		Health: s.healthNow(),
	}
}

func (s *Server) healthNow() monitor.Health {
	if s.health == nil {
		return monitor.Health{Status: monitor.Unknown, Indicator: monitor.Unknown.Indicator()}
	}
	return s.health.Health()
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/input", s.handleInput)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.Handle("/metrics", promhttp.Handler())
}

// Handler returns the full route set wrapped in security headers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return securityHeaders(mux)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("ws upgrade error")
		return
	}

	c, err := s.broadcaster.AddClient(conn)
	if err != nil {
		s.logger.WithField("remote", r.RemoteAddr).Warn("ws connection refused: limit reached")
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}
	s.logger.WithField("remote", r.RemoteAddr).Info("websocket client connected")

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			s.logger.WithField("remote", r.RemoteAddr).Info("websocket client disconnected")
		}()
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := StatusResponse{
		Booth:   s.controller.Status(),
		Health:  s.healthNow(),
		Clients: s.broadcaster.ClientCount(),
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	host, err := monitor.SampleHost(ctx, s.config.Backend.BackupDir)
	if err != nil {
		s.logger.WithError(err).Debug("host sample incomplete")
	}
	resp.Host = &host

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var in booth.Input
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096))
	if err := dec.Decode(&in); err != nil {
		http.Error(w, "invalid input", http.StatusBadRequest)
		return
	}
	switch in.Type {
	case booth.InputStart, booth.InputDone, booth.InputActivity:
	case booth.InputKey:
		if in.Key == "" {
			http.Error(w, "key input requires key", http.StatusBadRequest)
			return
		}
	default:
		http.Error(w, "unknown input type", http.StatusBadRequest)
		return
	}

	accepted := s.controller.Handle(in)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted": accepted,
		"state":    s.controller.Status().State,
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, PresentationConfig{
		PhotoCount:       s.config.Booth.PhotoCount,
		CountdownSeconds: s.config.Booth.CountdownSeconds,
		CountdownCue:     s.config.Booth.CountdownCue,
		CaptureCue:       s.config.Booth.CaptureCue,
		FinalCue:         s.config.Booth.FinalCue,
		Slots:            s.config.Composite.Slots,
		QR:               s.config.QR,
		HealthEnabled:    s.config.Health.Enabled,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}

	if host == r.Host {
		return true
	}

	if strings.HasPrefix(host, "localhost:") || host == "localhost" {
		return true
	}
	if strings.HasPrefix(host, "127.0.0.1:") || host == "127.0.0.1" {
		return true
	}
	if strings.HasPrefix(host, "[::1]:") || host == "::1" {
		return true
	}

	return false
}

// ListenAndServe serves handler on addr until ctx is cancelled, then shuts
// down gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, logger logrus.FieldLogger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", addr).Info("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
