package renderer

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"strconv"

	"labelgen/internal/labeldoc"
)

// MockClient satisfies the Render contract for tests and local dev without
// a real rasterizer: it emits a minimal valid PNG with the document
// canvas's aspect ratio, scaled down to at most 64 px wide, colored with
// the document's background hex when parseable.
// Element z-order, text transforms, and fit/clip semantics are the real
// rasterizer's job (spec.md §4.5) and out of scope for this stand-in.
type MockClient struct{}

// Render implements Client.
func (MockClient) Render(ctx context.Context, doc labeldoc.Document, opts Options) ([]byte, error) {
	w, h := int(doc.Canvas.Width), int(doc.Canvas.Height)
	if w <= 0 {
		w = 750
	}
	if h <= 0 {
		h = 1125
	}
	// Scale down for speed; the mock never needs print resolution.
	const maxDim = 64
	if w > maxDim {
		h = h * maxDim / w
		w = maxDim
	}
	if h < 1 {
		h = 1
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	bg := parseHexOr(doc.Canvas.Background, color.RGBA{255, 255, 255, 255})
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, bg)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func parseHexOr(hex string, fallback color.RGBA) color.RGBA {
	if len(hex) != 7 || hex[0] != '#' {
		return fallback
	}
	v, err := strconv.ParseUint(hex[1:], 16, 32)
	if err != nil {
		return fallback
	}
	return color.RGBA{R: uint8(v >> 16 & 0xFF), G: uint8(v >> 8 & 0xFF), B: uint8(v & 0xFF), A: 255}
}
