package imageadapter

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
)

// MockAdapter returns deterministic, valid PNG bytes with the asset id
// burned into a pixel-derived seed so repeated calls for the same id are
// byte-identical — required for the orchestrator idempotence property in
// spec.md §8. Used for offline development and tests; HTTPAdapter in
// production dials out over HTTP instead (see http.go).
type MockAdapter struct{}

// Generate implements Adapter.
func (MockAdapter) Generate(ctx context.Context, spec Spec) ([]byte, Meta, error) {
	if !spec.Purpose.Valid() {
		return nil, Meta{}, &Error{Kind: ErrInvalidInput, Message: fmt.Sprintf("unknown purpose %q", spec.Purpose)}
	}
	if spec.Aspect == "" {
		spec.Aspect = Aspect1x1
	}
	if !spec.Aspect.Valid() {
		return nil, Meta{}, &Error{Kind: ErrInvalidInput, Message: fmt.Sprintf("unknown aspect %q", spec.Aspect)}
	}

	w, h := spec.Aspect.dimensions()
	// Scale down for test/dev speed; real renders use full resolution.
	const scale = 8
	img := image.NewRGBA(image.Rect(0, 0, w/scale, h/scale))
	seed := fnv32(spec.ID)
	fill := color.RGBA{
		R: uint8(seed),
		G: uint8(seed >> 8),
		B: uint8(seed >> 16),
		A: 255,
	}
	for y := 0; y < img.Bounds().Dy(); y++ {
		for x := 0; x < img.Bounds().Dx(); x++ {
			img.Set(x, y, fill)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, Meta{}, fmt.Errorf("mock adapter: encode png: %w", err)
	}

	seed64 := int64(seed)
	return buf.Bytes(), Meta{
		Model:  "mock-diffusion-v1",
		Width:  w,
		Height: h,
		Seed:   &seed64,
	}, nil
}

func fnv32(s string) uint32 {
	const prime32 = 16777619
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}
