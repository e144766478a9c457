package qr

import (
	"bytes"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/snapbooth/booth/internal/config"
)

func TestRender(t *testing.T) {
	r, err := NewRenderer(config.QRConfig{Size: 200, ErrorCorrection: "medium", Foreground: "#000000", Background: "#ffffff"})
	if err != nil {
		t.Fatal(err)
	}

	code, err := r.Render("https://example.com/p/abc.png")
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(code.PNG))
	if err != nil {
		t.Fatalf("PNG output does not decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 200 {
		t.Errorf("size = %v, want 200x200", b)
	}
	if code.Text == "" {
		t.Error("terminal rendering is empty")
	}
	if !strings.HasPrefix(code.DataURI(), "data:image/png;base64,") {
		t.Errorf("DataURI() = %q", code.DataURI()[:30])
	}
}

func TestRenderEmpty(t *testing.T) {
	r, _ := NewRenderer(config.QRConfig{})
	if _, err := r.Render(""); err == nil {
		t.Fatal("expected error for empty content")
	}
}

func TestNewRendererValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.QRConfig
	}{
		{"bad level", config.QRConfig{ErrorCorrection: "extreme"}},
		{"bad foreground", config.QRConfig{Foreground: "black"}},
		{"bad background", config.QRConfig{Background: "#zzzzzz"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRenderer(tt.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParseHex(t *testing.T) {
	c, err := parseHex("#ff8000", color.Black)
	if err != nil {
		t.Fatal(err)
	}
	if c != (color.RGBA{R: 0xff, G: 0x80, B: 0x00, A: 0xff}) {
		t.Errorf("parseHex = %v", c)
	}
}
