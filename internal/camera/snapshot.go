package camera

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/snapbooth/booth/internal/capture"
)

const maxFrameSize = 32 << 20

// Snapshot captures stills from an IP camera's HTTP snapshot endpoint.
type Snapshot struct {
	url    string
	client *http.Client
	logger logrus.FieldLogger
}

func NewSnapshot(url string, timeout time.Duration, logger logrus.FieldLogger) *Snapshot {
	return &Snapshot{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Start fetches one frame to prove the endpoint answers with an image.
func (s *Snapshot) Start(ctx context.Context) error {
	_, err := s.Snap(ctx)
	return err
}

func (s *Snapshot) Snap(ctx context.Context) (capture.Frame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return capture.Frame{}, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return capture.Frame{}, fmt.Errorf("snapshot request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return capture.Frame{}, fmt.Errorf("snapshot request: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameSize))
	if err != nil {
		return capture.Frame{}, fmt.Errorf("snapshot read: %w", err)
	}
	ct, err := imageType(resp.Header.Get("Content-Type"), data)
	if err != nil {
		return capture.Frame{}, err
	}
	s.logger.WithField("bytes", len(data)).Debug("snapshot captured")
	return capture.Frame{Data: data, ContentType: ct, TakenAt: time.Now()}, nil
}

// imageType resolves the frame's media type from the declared header,
// falling back to content sniffing.
func imageType(declared string, data []byte) (string, error) {
	if mt, _, err := mime.ParseMediaType(declared); err == nil && isImage(mt) {
		return mt, nil
	}
	if len(data) == 0 {
		return "", fmt.Errorf("camera returned an empty frame")
	}
	if mt := http.DetectContentType(data); isImage(mt) {
		return mt, nil
	}
	return "", fmt.Errorf("camera returned non-image data")
}

func isImage(mt string) bool {
	return len(mt) > 6 && mt[:6] == "image/"
}
