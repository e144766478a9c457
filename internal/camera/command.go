package camera

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/snapbooth/booth/internal/capture"
)

// Command captures by running an external program that writes one image to
// stdout, e.g. gphoto2 --capture-image-and-download --stdout.
type Command struct {
	argv   []string
	logger logrus.FieldLogger
}

func NewCommand(argv []string, logger logrus.FieldLogger) *Command {
	return &Command{argv: append([]string(nil), argv...), logger: logger}
}

// Start checks the capture program is installed.
func (c *Command) Start(ctx context.Context) error {
	if _, err := exec.LookPath(c.argv[0]); err != nil {
		return fmt.Errorf("capture command: %w", err)
	}
	return ctx.Err()
}

func (c *Command) Snap(ctx context.Context) (capture.Frame, error) {
	cmd := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			c.logger.WithFields(logrus.Fields{
				"error":  err,
				"stderr": string(exitErr.Stderr),
			}).Error("capture command failed")
		}
		return capture.Frame{}, fmt.Errorf("capture command: %w", err)
	}

	ct, err := imageType("", output)
	if err != nil {
		return capture.Frame{}, err
	}
	return capture.Frame{Data: output, ContentType: ct, TakenAt: time.Now()}, nil
}
