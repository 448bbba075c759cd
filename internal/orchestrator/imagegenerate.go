package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"labelgen/internal/imageadapter"
	"labelgen/internal/imagestore"
	"labelgen/internal/labeldoc"
	"labelgen/internal/persistence"
)

// runImageGenerate fans out one C3+C4 call per prompt in bounded
// concurrent batches, collecting results into a slice pre-sized and
// indexed by prompt position so the output order matches the input prompt
// order regardless of completion order (spec.md §5 "Ordering guarantees").
// A single asset's failure is recorded and the stage continues; the stage
// as a whole succeeds only if every prompt yielded an asset.
func (o *Orchestrator) runImageGenerate(ctx context.Context, generationID string, job Job, doc *labeldoc.Document, assets *[]imagestore.Asset) (json.RawMessage, error) {
	step, err := o.db.GetStep(ctx, generationID, persistence.PhaseImagePrompts)
	if err != nil {
		return nil, &StageError{Stage: persistence.PhaseImageGenerate, Kind: KindDatabase, Message: "load image-prompts output", Cause: err}
	}
	var prompts imagePromptsOutput
	if err := json.Unmarshal(step.Output, &prompts); err != nil {
		return nil, &StageError{Stage: persistence.PhaseImageGenerate, Kind: KindValidation, Message: "decode image-prompts output", Cause: err}
	}

	deduped := dedupPromptsByID(prompts.Prompts)

	results := make([]imagestore.Asset, len(deduped))
	stageErrs := make([]error, len(deduped))

	sem := semaphore.NewWeighted(int64(o.cfg.MaxImageConcurrency))
	g, gctx := errgroup.WithContext(ctx)

	for i, p := range deduped {
		i, p := i, p
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			asset, genErr := o.generateOneAsset(gctx, generationID, p)
			if genErr != nil {
				stageErrs[i] = genErr
				return nil
			}
			results[i] = asset
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &StageError{Stage: persistence.PhaseImageGenerate, Kind: KindAdapter, Message: "image generation cancelled", Cause: err}
	}

	var out []imagestore.Asset
	var failures []string
	for i, a := range results {
		if stageErrs[i] != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", deduped[i].ID, stageErrs[i]))
			continue
		}
		out = append(out, a)
	}
	if len(failures) > 0 {
		return nil, &StageError{Stage: persistence.PhaseImageGenerate, Kind: KindAdapter, Message: fmt.Sprintf("%d/%d prompts failed: %v", len(failures), len(deduped), failures)}
	}

	*assets = out
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, &StageError{Stage: persistence.PhaseImageGenerate, Kind: KindValidation, Message: "marshal generated assets", Cause: err}
	}
	return raw, nil
}

func (o *Orchestrator) generateOneAsset(ctx context.Context, generationID string, p imagePrompt) (imagestore.Asset, error) {
	spec := imageadapter.Spec{
		ID:      p.ID,
		Purpose: imageadapter.Purpose(p.Purpose),
		Prompt:  p.Prompt,
		Aspect:  imageadapter.Aspect(p.Aspect),
	}

	var data []byte
	var meta imageadapter.Meta
	err := retryRetryable(ctx, defaultBackoff(), isRetryableAdapterError, func() error {
		var genErr error
		data, meta, genErr = o.adapter.Generate(ctx, spec)
		return genErr
	})
	if err != nil {
		return imagestore.Asset{}, err
	}

	asset, err := o.store.Upload(ctx, generationID, p.ID, data, "", p.Prompt, meta.Model, meta.Seed)
	if err != nil {
		return imagestore.Asset{}, err
	}
	return asset, nil
}

func isRetryableAdapterError(err error) bool {
	var adapterErr *imageadapter.Error
	if !errors.As(err, &adapterErr) {
		return false
	}
	return adapterErr.Retryable()
}

// dedupPromptsByID keeps the first prompt for any duplicate id, per
// spec.md §4.8's tie-break policy, preserving stable insertion order.
func dedupPromptsByID(prompts []imagePrompt) []imagePrompt {
	seen := map[string]bool{}
	out := make([]imagePrompt, 0, len(prompts))
	for _, p := range prompts {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		out = append(out, p)
	}
	return out
}
