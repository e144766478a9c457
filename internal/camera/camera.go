// Package camera holds the capture device drivers selected by configuration.
package camera

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/snapbooth/booth/internal/capture"
	"github.com/snapbooth/booth/internal/config"
	"github.com/snapbooth/booth/internal/mock"
)

// New builds the camera named by cfg.Driver.
func New(cfg config.CameraConfig, logger logrus.FieldLogger) (capture.Camera, error) {
	logger = logger.WithField("driver", cfg.Driver)

	switch cfg.Driver {
	case "", "mock":
		return mock.NewCamera(1280, 960, 0), nil
	case "snapshot":
		if cfg.SnapshotURL == "" {
			return nil, fmt.Errorf("camera: snapshot driver requires snapshot_url")
		}
		return NewSnapshot(cfg.SnapshotURL, cfg.SnapTimeout, logger), nil
	case "command":
		if len(cfg.Command) == 0 {
			return nil, fmt.Errorf("camera: command driver requires command")
		}
		return NewCommand(cfg.Command, logger), nil
	default:
		return nil, fmt.Errorf("camera: unknown driver %q", cfg.Driver)
	}
}
