package imagestore

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memGateway is a minimal in-memory AssetGateway for tests.
type memGateway struct {
	mu     sync.Mutex
	assets map[string]Asset
}

func newMemGateway() *memGateway {
	return &memGateway{assets: map[string]Asset{}}
}

func key(generationID, assetID string) string { return generationID + "/" + assetID }

func (g *memGateway) GetAsset(ctx context.Context, generationID, assetID string) (Asset, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	a, ok := g.assets[key(generationID, assetID)]
	return a, ok, nil
}

func (g *memGateway) UpsertAsset(ctx context.Context, a Asset) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.assets[key(a.GenerationID, a.AssetID)] = a
	return nil
}

func (g *memGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.assets)
}

func pngBytes(t *testing.T, r, gc, bl byte) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: r, G: gc, B: bl, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestUploadReturnsChecksumAndURL(t *testing.T) {
	gw := newMemGateway()
	blob := NewMemBlob("https://cdn.test")
	store := New(gw, blob)

	data := pngBytes(t, 10, 20, 30)
	a, err := store.Upload(context.Background(), "gen-1", "asset-1", data, "", "a vineyard", "mock-v1", nil)
	require.NoError(t, err)
	assert.Equal(t, Checksum(data), a.Checksum)
	assert.Equal(t, FormatPNG, a.Format)
	assert.Equal(t, 4, a.Width)
	assert.Equal(t, 4, a.Height)
	assert.Equal(t, "https://cdn.test/content/"+a.Checksum+".png", a.URL)
}

func TestUploadPerSlotIdempotence(t *testing.T) {
	gw := newMemGateway()
	blob := NewMemBlob("https://cdn.test")
	store := New(gw, blob)
	data := pngBytes(t, 1, 2, 3)

	a1, err := store.Upload(context.Background(), "gen-1", "asset-1", data, "", "p", "m", nil)
	require.NoError(t, err)
	a2, err := store.Upload(context.Background(), "gen-1", "asset-1", data, "", "p", "m", nil)
	require.NoError(t, err)

	assert.Equal(t, a1.URL, a2.URL)
	assert.Equal(t, 1, gw.count())
	assert.Equal(t, 1, blob.Count())
}

func TestUploadPerContentDedupAcrossSlots(t *testing.T) {
	gw := newMemGateway()
	blob := NewMemBlob("https://cdn.test")
	store := New(gw, blob)
	data := pngBytes(t, 9, 9, 9)

	a1, err := store.Upload(context.Background(), "gen-1", "asset-1", data, "", "p", "m", nil)
	require.NoError(t, err)
	a2, err := store.Upload(context.Background(), "gen-2", "asset-7", data, "", "p", "m", nil)
	require.NoError(t, err)

	assert.Equal(t, a1.URL, a2.URL)
	assert.Equal(t, 2, gw.count())   // two distinct (generation, asset) rows
	assert.Equal(t, 1, blob.Count()) // one storage object
}

func TestUploadRejectsUnsupportedFormat(t *testing.T) {
	gw := newMemGateway()
	blob := NewMemBlob("https://cdn.test")
	store := New(gw, blob)

	_, err := store.Upload(context.Background(), "gen-1", "asset-1", []byte("not an image"), "", "p", "m", nil)
	assert.Error(t, err)
}

func TestContentPathEndsInChecksumAndFormat(t *testing.T) {
	data := pngBytes(t, 4, 5, 6)
	sum := Checksum(data)
	assert.Equal(t, "content/"+sum+".png", ContentPath(sum, FormatPNG))
}

func TestNormalizeFormatRecognizesWebP(t *testing.T) {
	format, ok := normalizeFormat("webp")
	require.True(t, ok)
	assert.Equal(t, FormatWebP, format)

	format, ok = normalizeFormat("WEBP")
	require.True(t, ok)
	assert.Equal(t, FormatWebP, format)
}
