// Package capture sequences timed photo captures against a Camera.
package capture

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"
)

// Camera is the capture device capability. Implementations live in
// internal/camera and internal/mock.
type Camera interface {
	// Start prepares the device. It may block until the device is ready or
	// ctx expires.
	Start(ctx context.Context) error
	// Snap captures the current frame as an encoded image.
	Snap(ctx context.Context) (Frame, error)
}

// Frame is one captured, encoded image.
type Frame struct {
	Data        []byte    `json:"-"`
	ContentType string    `json:"contentType"`
	TakenAt     time.Time `json:"takenAt"`
}

// DataURI renders the frame as a data: URI.
func (f Frame) DataURI() string {
	ct := f.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	return "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(f.Data)
}

// Extension returns the file extension matching the frame's content type.
func (f Frame) Extension() string {
	switch f.ContentType {
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}

// CameraStartError reports that the capture device failed to initialize.
type CameraStartError struct {
	Driver string
	Err    error
}

func (e *CameraStartError) Error() string {
	return fmt.Sprintf("camera %s failed to start: %v", e.Driver, e.Err)
}

func (e *CameraStartError) Unwrap() error {
	return e.Err
}
