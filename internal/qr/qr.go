// Package qr renders published photo URLs as QR codes.
package qr

import (
	"encoding/base64"
	"fmt"
	"image/color"
	"strconv"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/snapbooth/booth/internal/config"
)

// Code is a rendered QR code.
type Code struct {
	Content string
	PNG     []byte
	Text    string // half-block rendering for terminals
}

func (c *Code) DataURI() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(c.PNG)
}

type Renderer struct {
	size       int
	level      qrcode.RecoveryLevel
	foreground color.Color
	background color.Color
}

func NewRenderer(cfg config.QRConfig) (*Renderer, error) {
	level, err := parseLevel(cfg.ErrorCorrection)
	if err != nil {
		return nil, err
	}
	fg, err := parseHex(cfg.Foreground, color.Black)
	if err != nil {
		return nil, fmt.Errorf("qr foreground: %w", err)
	}
	bg, err := parseHex(cfg.Background, color.White)
	if err != nil {
		return nil, fmt.Errorf("qr background: %w", err)
	}
	size := cfg.Size
	if size <= 0 {
		size = 200
	}
	return &Renderer{size: size, level: level, foreground: fg, background: bg}, nil
}

// Render encodes content. An empty content is an error.
func (r *Renderer) Render(content string) (*Code, error) {
	if content == "" {
		return nil, fmt.Errorf("qr: empty content")
	}
	q, err := qrcode.New(content, r.level)
	if err != nil {
		return nil, fmt.Errorf("qr: %w", err)
	}
	q.ForegroundColor = r.foreground
	q.BackgroundColor = r.background

	png, err := q.PNG(r.size)
	if err != nil {
		return nil, fmt.Errorf("qr: %w", err)
	}
	return &Code{Content: content, PNG: png, Text: q.ToSmallString(false)}, nil
}

func parseLevel(s string) (qrcode.RecoveryLevel, error) {
	switch strings.ToLower(s) {
	case "low":
		return qrcode.Low, nil
	case "", "medium":
		return qrcode.Medium, nil
	case "high":
		return qrcode.High, nil
	case "highest":
		return qrcode.Highest, nil
	default:
		return 0, fmt.Errorf("unknown qr error correction %q", s)
	}
}

func parseHex(s string, fallback color.Color) (color.Color, error) {
	if s == "" {
		return fallback, nil
	}
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return nil, fmt.Errorf("invalid colour %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid colour %q", s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
