// Package composite assembles session photos onto a template image.
package composite

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/image/draw"

	"github.com/snapbooth/booth/internal/capture"
	"github.com/snapbooth/booth/internal/config"
)

// Layout places photo i into Slots[i] on top of Template. An empty Template
// composes onto a white canvas just large enough for the slots.
type Layout struct {
	Template string
	Slots    []image.Rectangle
}

func LayoutFromConfig(cfg config.CompositeConfig) Layout {
	l := Layout{Template: cfg.Template, Slots: make([]image.Rectangle, len(cfg.Slots))}
	for i, s := range cfg.Slots {
		l.Slots[i] = image.Rect(s.X, s.Y, s.X+s.Width, s.Y+s.Height)
	}
	return l
}

// Composite is a finished, encoded composite image.
type Composite struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

func (c *Composite) DataURI() string {
	return "data:" + c.ContentType + ";base64," + base64.StdEncoding.EncodeToString(c.Data)
}

type Options struct {
	HTTPClient    *http.Client
	Interpolation string // nearest, approxbilinear, bilinear, catmullrom
	Logger        logrus.FieldLogger
}

type Composer struct {
	client *http.Client
	scaler draw.Interpolator
	logger logrus.FieldLogger
	tracer trace.Tracer

	// decode turns photo index's frame into an image. Replaced in tests to
	// control completion order.
	decode func(ctx context.Context, index int, f capture.Frame) (image.Image, error)
}

func New(opts Options) *Composer {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Composer{
		client: client,
		scaler: interpolator(opts.Interpolation),
		logger: logger.WithField("component", "composite"),
		tracer: otel.Tracer("github.com/snapbooth/booth/internal/composite"),
		decode: decodeFrame,
	}
}

func interpolator(name string) draw.Interpolator {
	switch name {
	case "nearest":
		return draw.NearestNeighbor
	case "approxbilinear":
		return draw.ApproxBiLinear
	case "bilinear":
		return draw.BiLinear
	default:
		return draw.CatmullRom
	}
}

func decodeFrame(_ context.Context, _ int, f capture.Frame) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(f.Data))
	return img, err
}

type decoded struct {
	index int
	img   image.Image
	err   error
}

// Compose draws photos into layout and returns the encoded result. The
// template and every photo load concurrently; photos are drawn as they
// finish and the composite is encoded once the last one lands. Any load
// failure aborts with a *TemplateLoadError or *PhotoLoadError.
func (c *Composer) Compose(ctx context.Context, layout Layout, photos []capture.Frame) (*Composite, error) {
	if len(photos) != len(layout.Slots) {
		return nil, ErrLayoutMismatch
	}

	ctx, span := c.tracer.Start(ctx, "composite.compose", trace.WithAttributes(
		attribute.Int("composite.photos", len(photos)),
		attribute.String("composite.template", layout.Template),
	))
	defer span.End()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type templateResult struct {
		img image.Image
		err error
	}
	tmplCh := make(chan templateResult, 1)
	go func() {
		if layout.Template == "" {
			tmplCh <- templateResult{img: blankCanvas(layout.Slots)}
			return
		}
		img, err := c.loadTemplate(ctx, layout.Template)
		tmplCh <- templateResult{img: img, err: err}
	}()

	results := make(chan decoded, len(photos))
	for i, f := range photos {
		go func() {
			img, err := c.decode(ctx, i, f)
			results <- decoded{index: i, img: img, err: err}
		}()
	}

	var tmpl templateResult
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case tmpl = <-tmplCh:
	}
	if tmpl.err != nil {
		err := &TemplateLoadError{Template: layout.Template, Err: tmpl.err}
		span.RecordError(err)
		span.SetStatus(codes.Error, "template load failed")
		return nil, err
	}

	bounds := tmpl.img.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(canvas, canvas.Bounds(), tmpl.img, bounds.Min, draw.Src)

	drawn := 0
	for drawn < len(photos) {
		var r decoded
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r = <-results:
		}
		if r.err != nil {
			err := &PhotoLoadError{Index: r.index, Err: r.err}
			span.RecordError(err)
			span.SetStatus(codes.Error, "photo load failed")
			return nil, err
		}
		c.drawSlot(canvas, layout.Slots[r.index], r.img)
		drawn++
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode failed")
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"width":  canvas.Bounds().Dx(),
		"height": canvas.Bounds().Dy(),
		"bytes":  buf.Len(),
	}).Debug("composite assembled")

	return &Composite{
		Data:        buf.Bytes(),
		ContentType: "image/png",
		Width:       canvas.Bounds().Dx(),
		Height:      canvas.Bounds().Dy(),
	}, nil
}

func (c *Composer) drawSlot(canvas *image.RGBA, slot image.Rectangle, img image.Image) {
	src := img.Bounds()
	if src.Dx() == slot.Dx() && src.Dy() == slot.Dy() {
		draw.Draw(canvas, slot, img, src.Min, draw.Over)
		return
	}
	c.scaler.Scale(canvas, slot, img, src, draw.Over, nil)
}

func blankCanvas(slots []image.Rectangle) image.Image {
	var union image.Rectangle
	for _, s := range slots {
		union = union.Union(s)
	}
	canvas := image.NewRGBA(image.Rect(0, 0, union.Max.X, union.Max.Y))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	return canvas
}
