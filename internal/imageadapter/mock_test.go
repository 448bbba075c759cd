package imageadapter

import (
	"bytes"
	"context"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockAdapterGeneratesValidPNG(t *testing.T) {
	a := MockAdapter{}
	data, meta, err := a.Generate(context.Background(), Spec{ID: "bg-1", Purpose: PurposeBackground, Prompt: "a vineyard at dusk", Aspect: Aspect3x4})
	require.NoError(t, err)
	assert.Equal(t, "mock-diffusion-v1", meta.Model)
	assert.True(t, len(data) > 8)
	assert.True(t, bytes.HasPrefix(data, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}))

	_, err = png.Decode(bytes.NewReader(data))
	assert.NoError(t, err)
}

func TestMockAdapterIsDeterministic(t *testing.T) {
	a := MockAdapter{}
	d1, _, err := a.Generate(context.Background(), Spec{ID: "same-id", Purpose: PurposeDecoration, Aspect: Aspect1x1})
	require.NoError(t, err)
	d2, _, err := a.Generate(context.Background(), Spec{ID: "same-id", Purpose: PurposeDecoration, Aspect: Aspect1x1})
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}

func TestMockAdapterRejectsUnknownPurpose(t *testing.T) {
	a := MockAdapter{}
	_, _, err := a.Generate(context.Background(), Spec{ID: "x", Purpose: "bogus", Aspect: Aspect1x1})
	require.Error(t, err)
	var adapterErr *Error
	require.ErrorAs(t, err, &adapterErr)
	assert.Equal(t, ErrInvalidInput, adapterErr.Kind)
}
