package publish

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/snapbooth/booth/internal/metrics"
)

const defaultMaxUploadSize = 32 << 20

type uploadResponse struct {
	ImageURL string `json:"imageUrl,omitempty"`
}

// Server accepts kiosk uploads.
type Server struct {
	store         *LocalStore
	publisher     Publisher
	maxUploadSize int64
	logger        logrus.FieldLogger
	tracer        trace.Tracer
}

func NewServer(store *LocalStore, publisher Publisher, maxUploadSize int64, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if maxUploadSize <= 0 {
		maxUploadSize = defaultMaxUploadSize
	}
	return &Server{
		store:         store,
		publisher:     publisher,
		maxUploadSize: maxUploadSize,
		logger:        logger.WithField("component", "backend"),
		tracer:        otel.Tracer("github.com/snapbooth/booth/internal/publish"),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/upload", s.handleUpload)
	mux.HandleFunc("/api/healthcheck", s.handleHealthcheck)
	mux.Handle("/photos/", http.StripPrefix("/photos/", http.FileServer(http.Dir(s.store.Dir()))))
	return mux
}

func (s *Server) handleHealthcheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, span := s.tracer.Start(r.Context(), "backend.upload")
	defer span.End()
	fail := func(status int, msg string, err error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		s.logger.WithError(err).WithField("status", status).Warn(msg)
		http.Error(w, msg, status)
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)
	if err := r.ParseMultipartForm(s.maxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(http.StatusRequestEntityTooLarge, "photo too large", err)
			return
		}
		fail(http.StatusBadRequest, "invalid multipart body", err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("photo")
	if err != nil {
		fail(http.StatusBadRequest, "missing photo", err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		fail(http.StatusBadRequest, "unreadable photo", err)
		return
	}

	name := r.FormValue("filename")
	if name == "" {
		name = header.Filename
	}
	remote, _ := strconv.ParseBool(r.FormValue("uploadToRemote"))
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	span.SetAttributes(
		attribute.String("upload.filename", name),
		attribute.Bool("upload.publish", remote),
		attribute.Int("upload.bytes", len(data)),
	)

	kind := "raw"
	if remote {
		kind = "published"
	}

	path, err := s.store.Save(name, data)
	if err != nil {
		metrics.Stored(kind, err)
		if errors.Is(err, ErrBadFilename) {
			fail(http.StatusBadRequest, "invalid filename", err)
			return
		}
		fail(http.StatusInternalServerError, "failed to store photo", err)
		return
	}
	logger := s.logger.WithFields(logrus.Fields{
		"filename": name,
		"path":     path,
		"bytes":    len(data),
	})

	var resp uploadResponse
	if remote {
		start := time.Now()
		url, err := s.publisher.Publish(ctx, name, contentType, data)
		if err != nil {
			metrics.Stored(kind, err)
			fail(http.StatusBadGateway, "failed to publish photo", err)
			return
		}
		resp.ImageURL = url
		logger = logger.WithFields(logrus.Fields{
			"url":      url,
			"duration": time.Since(start).String(),
		})
	}
	metrics.Stored(kind, nil)
	logger.Info("photo received")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
