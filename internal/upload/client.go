// Package upload hands photos to the publish backend.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Task is one photo to upload. Publishable tasks are pushed to public
// storage by the backend, which answers with the public URL.
type Task struct {
	Payload     []byte
	Filename    string
	ContentType string
	Publishable bool
}

// PublishResult is the backend's answer for a publishable task.
type PublishResult struct {
	ImageURL string `json:"imageUrl"`
}

// UploadError reports a failed upload. StatusCode is zero when the request
// never got a response.
type UploadError struct {
	Filename   string
	StatusCode int
	Err        error
}

func (e *UploadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upload %s: status %d: %v", e.Filename, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upload %s: %v", e.Filename, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

type Client struct {
	endpoint string
	http     *http.Client
	logger   logrus.FieldLogger
	tracer   trace.Tracer
}

func New(endpoint string, timeout time.Duration, logger logrus.FieldLogger) *Client {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
		logger:   logger.WithField("component", "upload"),
		tracer:   otel.Tracer("github.com/snapbooth/booth/internal/upload"),
	}
}

// Upload posts task as multipart/form-data with the photo, filename and
// uploadToRemote fields. It makes a single attempt. For publishable tasks
// the returned result carries the public URL; otherwise it is empty.
func (c *Client) Upload(ctx context.Context, task Task) (*PublishResult, error) {
	ctx, span := c.tracer.Start(ctx, "upload.post", trace.WithAttributes(
		attribute.String("upload.filename", task.Filename),
		attribute.Bool("upload.publishable", task.Publishable),
		attribute.Int("upload.bytes", len(task.Payload)),
	))
	defer span.End()

	result, err := c.upload(ctx, task)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
		return nil, err
	}
	return result, nil
}

func (c *Client) upload(ctx context.Context, task Task) (*PublishResult, error) {
	fail := func(status int, err error) (*PublishResult, error) {
		return nil, &UploadError{Filename: task.Filename, StatusCode: status, Err: err}
	}

	body, contentType, err := encodeForm(task)
	if err != nil {
		return fail(0, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return fail(0, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return fail(0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fail(resp.StatusCode, fmt.Errorf("backend rejected upload: %s", strings.TrimSpace(string(msg))))
	}

	if !task.Publishable {
		_, _ = io.Copy(io.Discard, resp.Body)
		c.logger.WithField("filename", task.Filename).Debug("photo uploaded")
		return &PublishResult{}, nil
	}

	var result PublishResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fail(resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	if result.ImageURL == "" {
		return fail(resp.StatusCode, fmt.Errorf("response has no imageUrl"))
	}

	c.logger.WithFields(logrus.Fields{
		"filename": task.Filename,
		"url":      result.ImageURL,
	}).Info("photo published")
	return &result, nil
}

func encodeForm(task Task) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	ct := task.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="photo"; filename=%q`, task.Filename))
	h.Set("Content-Type", ct)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(task.Payload); err != nil {
		return nil, "", err
	}

	if err := w.WriteField("filename", task.Filename); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("uploadToRemote", strconv.FormatBool(task.Publishable)); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
