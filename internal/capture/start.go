package capture

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// StartOptions controls how Start retries a camera that fails to come up.
type StartOptions struct {
	Driver  string
	Timeout time.Duration // per attempt
	Retries int
	Logger  logrus.FieldLogger
}

// Start brings the camera up, retrying with exponential backoff. The returned
// error is always a *CameraStartError.
func Start(ctx context.Context, cam Camera, opts StartOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithField("driver", opts.Driver)

	retries := opts.Retries
	if retries < 0 {
		retries = 0
	}

	boff := backoff.WithContext(backoff.WithMaxRetries(&backoff.ExponentialBackOff{
		InitialInterval:     250 * time.Millisecond,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         5 * time.Second,
		MaxElapsedTime:      0,
		Clock:               backoff.SystemClock,
	}, uint64(retries)), ctx)
	boff.Reset()

	err := backoff.RetryNotify(
		func() error {
			attemptCtx := ctx
			if opts.Timeout > 0 {
				var cancel context.CancelFunc
				attemptCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
				defer cancel()
			}
			err := cam.Start(attemptCtx)
			if err != nil && ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		},
		boff,
		func(err error, next time.Duration) {
			logger.WithError(err).WithField("retry_in", next).Warn("camera start failed, retrying")
		},
	)
	if err != nil {
		return &CameraStartError{Driver: opts.Driver, Err: err}
	}
	logger.Info("camera started")
	return nil
}
