package renderer

import (
	"bytes"
	"context"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labelgen/internal/labeldoc"
)

func docWithCanvas(w, h float64, bg string) labeldoc.Document {
	return labeldoc.Document{
		Version: labeldoc.Version,
		Canvas:  labeldoc.Canvas{Width: w, Height: h, DPI: 300, Background: bg},
	}
}

func TestMockRenderReturnsPNGMagic(t *testing.T) {
	out, err := MockClient{}.Render(context.Background(), docWithCanvas(750, 1125, "#112233"), Options{})
	require.NoError(t, err)
	require.True(t, len(out) >= len(PNGMagic))
	assert.True(t, bytes.Equal(out[:len(PNGMagic)], PNGMagic))
}

func TestMockRenderDecodesAndScalesDown(t *testing.T) {
	out, err := MockClient{}.Render(context.Background(), docWithCanvas(1500, 2250, "#ff0000"), Options{})
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	b := img.Bounds()
	assert.LessOrEqual(t, b.Dx(), 64)
	assert.Greater(t, b.Dx(), 0)
	assert.Greater(t, b.Dy(), 0)
}

func TestMockRenderUsesBackgroundColor(t *testing.T) {
	out, err := MockClient{}.Render(context.Background(), docWithCanvas(100, 100, "#336699"), Options{})
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	r, g, b, _ := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(0x33), r>>8)
	assert.Equal(t, uint32(0x66), g>>8)
	assert.Equal(t, uint32(0x99), b>>8)
}

func TestMockRenderFallsBackOnBadHex(t *testing.T) {
	out, err := MockClient{}.Render(context.Background(), docWithCanvas(100, 100, "not-a-color"), Options{})
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	r, g, b, _ := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xff), r>>8)
	assert.Equal(t, uint32(0xff), g>>8)
	assert.Equal(t, uint32(0xff), b>>8)
}

func TestMockRenderHandlesZeroCanvas(t *testing.T) {
	out, err := MockClient{}.Render(context.Background(), docWithCanvas(0, 0, "#000000"), Options{})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, PNGMagic))
}
