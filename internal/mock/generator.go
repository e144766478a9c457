// Package mock provides a synthetic camera for development and demo booths
// that have no capture hardware attached.
package mock

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sync"
	"time"

	"github.com/snapbooth/booth/internal/capture"
)

// ErrNotStarted is returned by Snap before Start.
var ErrNotStarted = errors.New("mock camera not started")

var palette = []color.RGBA{
	{R: 0xe6, G: 0x39, B: 0x46, A: 0xff},
	{R: 0x2a, G: 0x9d, B: 0x8f, A: 0xff},
	{R: 0xe9, G: 0xc4, B: 0x6a, A: 0xff},
	{R: 0x45, G: 0x7b, B: 0x9d, A: 0xff},
	{R: 0xf4, G: 0xa2, B: 0x61, A: 0xff},
	{R: 0x6d, G: 0x59, B: 0x7a, A: 0xff},
}

// Camera generates solid-colour frames with a progress stripe, cycling
// through a fixed palette on every snap.
type Camera struct {
	width, height int
	warmup        time.Duration
	now           func() time.Time

	mu      sync.Mutex
	started bool
	frame   int
}

// NewCamera returns a synthetic camera producing width x height frames.
// warmup delays Start the way real devices take time to come up.
func NewCamera(width, height int, warmup time.Duration) *Camera {
	if width <= 0 {
		width = 640
	}
	if height <= 0 {
		height = 480
	}
	return &Camera{width: width, height: height, warmup: warmup, now: time.Now}
}

func (c *Camera) Start(ctx context.Context) error {
	if c.warmup > 0 {
		timer := time.NewTimer(c.warmup)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
	return nil
}

func (c *Camera) Snap(ctx context.Context) (capture.Frame, error) {
	if err := ctx.Err(); err != nil {
		return capture.Frame{}, err
	}

	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return capture.Frame{}, ErrNotStarted
	}
	n := c.frame
	c.frame++
	c.mu.Unlock()

	img := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: palette[n%len(palette)]}, image.Point{}, draw.Src)

	// A white stripe along the bottom edge whose length marks the frame
	// number, so consecutive frames of the same colour stay distinguishable.
	stripe := c.height / 20
	if stripe < 1 {
		stripe = 1
	}
	length := c.width * (n%10 + 1) / 10
	draw.Draw(img, image.Rect(0, c.height-stripe, length, c.height), image.White, image.Point{}, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return capture.Frame{}, err
	}
	return capture.Frame{Data: buf.Bytes(), ContentType: "image/png", TakenAt: c.now()}, nil
}
