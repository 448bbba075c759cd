package persistence

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labelgen/internal/imagestore"
)

func openTestGateway(t *testing.T) *Gateway {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	g, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func TestInsertAndGetSubmission(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()

	sub := Submission{
		ID: "sub-1", ProducerName: "Château Test", WineName: "Grand Cru",
		Vintage: "2020", Variety: "Cabernet Sauvignon", Region: "Bordeaux",
		Appellation: "Médoc", Style: StyleClassic, CreatedAt: time.Now(),
	}
	require.NoError(t, g.InsertSubmission(ctx, sub))

	got, err := g.GetSubmission(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, sub.ProducerName, got.ProducerName)
	assert.Equal(t, StyleClassic, got.Style)
}

func TestInsertSubmissionRejectsInvalidStyle(t *testing.T) {
	g := openTestGateway(t)
	err := g.InsertSubmission(context.Background(), Submission{ID: "s", Style: "nonsense"})
	assert.Error(t, err)
}

func TestGenerationLifecycle(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()
	require.NoError(t, g.InsertSubmission(ctx, Submission{ID: "sub-1", Style: StyleModern, CreatedAt: time.Now()}))
	require.NoError(t, g.InsertGeneration(ctx, Generation{ID: "gen-1", SubmissionID: "sub-1"}))

	gen, err := g.GetGeneration(ctx, "gen-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, gen.Status)

	gen.Status = StatusProcessing
	gen.Phase = PhaseDesignScheme
	require.NoError(t, g.UpdateGeneration(ctx, gen))

	gen2, err := g.GetGeneration(ctx, "gen-1")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, gen2.Status)
	assert.Equal(t, PhaseDesignScheme, gen2.Phase)

	now := time.Now()
	gen2.Status = StatusCompleted
	gen2.Description = json.RawMessage(`{"version":"1"}`)
	gen2.CompletedAt = &now
	require.NoError(t, g.UpdateGeneration(ctx, gen2))

	final, err := g.GetGeneration(ctx, "gen-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.JSONEq(t, `{"version":"1"}`, string(final.Description))
	require.NotNil(t, final.CompletedAt)
}

func TestStepClaimIsIdempotentOnceCompleted(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()
	require.NoError(t, g.InsertSubmission(ctx, Submission{ID: "sub-1", Style: StyleModern, CreatedAt: time.Now()}))
	require.NoError(t, g.InsertGeneration(ctx, Generation{ID: "gen-1", SubmissionID: "sub-1"}))
	require.NoError(t, g.UpsertStep(ctx, "gen-1", PhaseDesignScheme))

	attempt, err := g.ClaimStep(ctx, "gen-1", PhaseDesignScheme)
	require.NoError(t, err)
	assert.Equal(t, 1, attempt)

	require.NoError(t, g.CompleteStep(ctx, "gen-1", PhaseDesignScheme, json.RawMessage(`{}`)))

	_, err = g.ClaimStep(ctx, "gen-1", PhaseDesignScheme)
	assert.ErrorIs(t, err, ErrStepAlreadyCompleted)
}

func TestStepRetryIncrementsAttempt(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()
	require.NoError(t, g.InsertSubmission(ctx, Submission{ID: "sub-1", Style: StyleModern, CreatedAt: time.Now()}))
	require.NoError(t, g.InsertGeneration(ctx, Generation{ID: "gen-1", SubmissionID: "sub-1"}))
	require.NoError(t, g.UpsertStep(ctx, "gen-1", PhaseDesignScheme))

	a1, err := g.ClaimStep(ctx, "gen-1", PhaseDesignScheme)
	require.NoError(t, err)
	assert.Equal(t, 1, a1)
	require.NoError(t, g.FailStep(ctx, "gen-1", PhaseDesignScheme, "transient"))

	a2, err := g.ClaimStep(ctx, "gen-1", PhaseDesignScheme)
	require.NoError(t, err)
	assert.Equal(t, 2, a2)

	a3, err := g.ClaimStep(ctx, "gen-1", PhaseDesignScheme)
	require.NoError(t, err)
	assert.Equal(t, 3, a3)
}

func TestUpsertStepIsIdempotentOnConflict(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()
	require.NoError(t, g.InsertSubmission(ctx, Submission{ID: "sub-1", Style: StyleModern, CreatedAt: time.Now()}))
	require.NoError(t, g.InsertGeneration(ctx, Generation{ID: "gen-1", SubmissionID: "sub-1"}))

	require.NoError(t, g.UpsertStep(ctx, "gen-1", PhaseDesignScheme))
	attempt, err := g.ClaimStep(ctx, "gen-1", PhaseDesignScheme)
	require.NoError(t, err)
	assert.Equal(t, 1, attempt)

	// Re-upserting (e.g. a duplicate job delivery re-entering the stage
	// loop) must not reset the row that's already in progress.
	require.NoError(t, g.UpsertStep(ctx, "gen-1", PhaseDesignScheme))
	step, err := g.GetStep(ctx, "gen-1", PhaseDesignScheme)
	require.NoError(t, err)
	assert.Equal(t, 1, step.Attempt)
	assert.Equal(t, StepProcessing, step.Status)
}

func TestAssetGatewayRoundTrip(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()
	require.NoError(t, g.InsertSubmission(ctx, Submission{ID: "sub-1", Style: StyleModern, CreatedAt: time.Now()}))
	require.NoError(t, g.InsertGeneration(ctx, Generation{ID: "gen-1", SubmissionID: "sub-1"}))

	_, ok, err := g.GetAsset(ctx, "gen-1", "asset-1")
	require.NoError(t, err)
	assert.False(t, ok)

	seed := int64(42)
	asset := imagestore.Asset{
		GenerationID: "gen-1", AssetID: "asset-1", URL: "https://cdn.test/content/abc.png",
		Width: 512, Height: 768, Format: imagestore.FormatPNG, Checksum: "abc",
		Prompt: "a vineyard", Model: "mock-v1", Seed: &seed,
	}
	require.NoError(t, g.UpsertAsset(ctx, asset))

	got, ok, err := g.GetAsset(ctx, "gen-1", "asset-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, asset.URL, got.URL)
	require.NotNil(t, got.Seed)
	assert.Equal(t, int64(42), *got.Seed)

	list, err := g.ListAssets(ctx, "gen-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
