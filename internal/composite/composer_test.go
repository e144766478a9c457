package composite

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/snapbooth/booth/internal/capture"
	"github.com/snapbooth/booth/internal/config"
)

var (
	red   = color.RGBA{R: 0xff, A: 0xff}
	green = color.RGBA{G: 0xff, A: 0xff}
	blue  = color.RGBA{B: 0xff, A: 0xff}
	grey  = color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}
)

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encode(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func frame(t *testing.T, w, h int, c color.Color) capture.Frame {
	return capture.Frame{Data: encode(t, solid(w, h, c)), ContentType: "image/png"}
}

func writeTemplate(t *testing.T, w, h int, c color.Color) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "template.png")
	if err := os.WriteFile(path, encode(t, solid(w, h, c)), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testComposer() *Composer {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return New(Options{Logger: l})
}

func decodeComposite(t *testing.T, c *Composite) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(c.Data))
	if err != nil {
		t.Fatalf("composite is not a png: %v", err)
	}
	return img
}

func sameColor(a, b color.Color) bool {
	ar, ag, ab, aa := a.RGBA()
	br, bg, bb, ba := b.RGBA()
	return ar == br && ag == bg && ab == bb && aa == ba
}

// nearColor tolerates the rounding interpolating scalers introduce.
func nearColor(a, b color.Color) bool {
	ar, ag, ab, _ := a.RGBA()
	br, bg, bb, _ := b.RGBA()
	d := func(x, y uint32) uint32 {
		if x > y {
			return x - y
		}
		return y - x
	}
	const tol = 0x0400
	return d(ar, br) < tol && d(ag, bg) < tol && d(ab, bb) < tol
}

func TestComposeTwoSlots(t *testing.T) {
	layout := Layout{
		Template: writeTemplate(t, 200, 100, grey),
		Slots: []image.Rectangle{
			image.Rect(0, 0, 100, 100),
			image.Rect(100, 0, 200, 100),
		},
	}
	photos := []capture.Frame{frame(t, 100, 100, red), frame(t, 100, 100, blue)}

	out, err := testComposer().Compose(context.Background(), layout, photos)
	if err != nil {
		t.Fatalf("Compose() error: %v", err)
	}
	if out.Width != 200 || out.Height != 100 || out.ContentType != "image/png" {
		t.Errorf("unexpected composite %dx%d %s", out.Width, out.Height, out.ContentType)
	}

	img := decodeComposite(t, out)
	if c := img.At(50, 50); !sameColor(c, red) {
		t.Errorf("pixel (50,50) = %v, want red", c)
	}
	if c := img.At(150, 50); !sameColor(c, blue) {
		t.Errorf("pixel (150,50) = %v, want blue", c)
	}
}

func TestComposeScalesIntoSlot(t *testing.T) {
	layout := Layout{
		Template: writeTemplate(t, 100, 100, grey),
		Slots:    []image.Rectangle{image.Rect(10, 10, 60, 60)},
	}
	photos := []capture.Frame{frame(t, 400, 300, green)}

	out, err := testComposer().Compose(context.Background(), layout, photos)
	if err != nil {
		t.Fatal(err)
	}
	img := decodeComposite(t, out)
	if c := img.At(35, 35); !nearColor(c, green) {
		t.Errorf("slot centre = %v, want green", c)
	}
	if c := img.At(80, 80); !sameColor(c, grey) {
		t.Errorf("outside slot = %v, want template grey", c)
	}
}

func TestComposeBlankTemplate(t *testing.T) {
	layout := Layout{Slots: []image.Rectangle{image.Rect(10, 10, 30, 30)}}
	out, err := testComposer().Compose(context.Background(), layout, []capture.Frame{frame(t, 20, 20, red)})
	if err != nil {
		t.Fatal(err)
	}
	if out.Width != 30 || out.Height != 30 {
		t.Errorf("blank canvas = %dx%d, want 30x30", out.Width, out.Height)
	}
	img := decodeComposite(t, out)
	if c := img.At(2, 2); !sameColor(c, color.White) {
		t.Errorf("background = %v, want white", c)
	}
}

func TestComposeHTTPTemplate(t *testing.T) {
	body := encode(t, solid(40, 20, grey))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	layout := Layout{Template: srv.URL + "/frame.png", Slots: []image.Rectangle{image.Rect(0, 0, 20, 20)}}
	out, err := testComposer().Compose(context.Background(), layout, []capture.Frame{frame(t, 20, 20, red)})
	if err != nil {
		t.Fatal(err)
	}
	if out.Width != 40 || out.Height != 20 {
		t.Errorf("composite = %dx%d, want 40x20", out.Width, out.Height)
	}
}

func TestComposeFileURLTemplate(t *testing.T) {
	path := writeTemplate(t, 20, 20, grey)
	layout := Layout{Template: "file://" + path, Slots: []image.Rectangle{image.Rect(0, 0, 10, 10)}}
	if _, err := testComposer().Compose(context.Background(), layout, []capture.Frame{frame(t, 10, 10, red)}); err != nil {
		t.Fatal(err)
	}
}

// Photos finishing in any order must land in their own slots.
func TestComposeCompletionOrder(t *testing.T) {
	colors := []color.Color{red, green, blue}
	layout := Layout{
		Template: writeTemplate(t, 300, 100, grey),
		Slots: []image.Rectangle{
			image.Rect(0, 0, 100, 100),
			image.Rect(100, 0, 200, 100),
			image.Rect(200, 0, 300, 100),
		},
	}
	photos := make([]capture.Frame, len(colors))
	for i, c := range colors {
		photos[i] = frame(t, 100, 100, c)
	}

	perms := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	for _, perm := range perms {
		c := testComposer()
		// perm[i] is the finishing position of photo i.
		c.decode = func(ctx context.Context, index int, f capture.Frame) (image.Image, error) {
			time.Sleep(time.Duration(perm[index]) * 15 * time.Millisecond)
			return decodeFrame(ctx, index, f)
		}

		out, err := c.Compose(context.Background(), layout, photos)
		if err != nil {
			t.Fatalf("perm %v: %v", perm, err)
		}
		img := decodeComposite(t, out)
		for i, want := range colors {
			if got := img.At(i*100+50, 50); !sameColor(got, want) {
				t.Errorf("perm %v: slot %d = %v, want %v", perm, i, got, want)
			}
		}
	}
}

func TestComposeErrors(t *testing.T) {
	template := writeTemplate(t, 100, 100, grey)
	slot := []image.Rectangle{image.Rect(0, 0, 50, 50)}

	t.Run("missing template", func(t *testing.T) {
		layout := Layout{Template: filepath.Join(t.TempDir(), "nope.png"), Slots: slot}
		_, err := testComposer().Compose(context.Background(), layout, []capture.Frame{frame(t, 50, 50, red)})
		var tle *TemplateLoadError
		if !errors.As(err, &tle) {
			t.Fatalf("err = %v, want *TemplateLoadError", err)
		}
	})

	t.Run("template not an image", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "template.png")
		os.WriteFile(path, []byte("not a png"), 0o644)
		_, err := testComposer().Compose(context.Background(), Layout{Template: path, Slots: slot}, []capture.Frame{frame(t, 50, 50, red)})
		var tle *TemplateLoadError
		if !errors.As(err, &tle) {
			t.Fatalf("err = %v, want *TemplateLoadError", err)
		}
	})

	t.Run("template http error", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()
		_, err := testComposer().Compose(context.Background(), Layout{Template: srv.URL, Slots: slot}, []capture.Frame{frame(t, 50, 50, red)})
		var tle *TemplateLoadError
		if !errors.As(err, &tle) {
			t.Fatalf("err = %v, want *TemplateLoadError", err)
		}
	})

	t.Run("corrupt photo", func(t *testing.T) {
		layout := Layout{Template: template, Slots: []image.Rectangle{image.Rect(0, 0, 50, 50), image.Rect(50, 0, 100, 50)}}
		photos := []capture.Frame{frame(t, 50, 50, red), {Data: []byte("garbage")}}
		_, err := testComposer().Compose(context.Background(), layout, photos)
		var ple *PhotoLoadError
		if !errors.As(err, &ple) {
			t.Fatalf("err = %v, want *PhotoLoadError", err)
		}
		if ple.Index != 1 {
			t.Errorf("Index = %d, want 1", ple.Index)
		}
	})

	t.Run("layout mismatch", func(t *testing.T) {
		_, err := testComposer().Compose(context.Background(), Layout{Template: template, Slots: slot}, nil)
		if !errors.Is(err, ErrLayoutMismatch) {
			t.Fatalf("err = %v, want ErrLayoutMismatch", err)
		}
	})
}

func TestLayoutFromConfig(t *testing.T) {
	l := LayoutFromConfig(config.CompositeConfig{
		Template: "frame.png",
		Slots:    []config.Slot{{X: 43, Y: 68, Width: 988, Height: 652}},
	})
	if l.Template != "frame.png" || len(l.Slots) != 1 {
		t.Fatalf("unexpected layout %+v", l)
	}
	if want := image.Rect(43, 68, 1031, 720); l.Slots[0] != want {
		t.Errorf("slot = %v, want %v", l.Slots[0], want)
	}
}

func TestCompositeDataURI(t *testing.T) {
	c := &Composite{Data: []byte("hi"), ContentType: "image/png"}
	if got, want := c.DataURI(), "data:image/png;base64,aGk="; got != want {
		t.Errorf("DataURI() = %q, want %q", got, want)
	}
}
