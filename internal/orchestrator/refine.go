package orchestrator

import (
	"context"
	"encoding/json"

	"labelgen/internal/editmapper"
	"labelgen/internal/labeldoc"
	"labelgen/internal/persistence"
	"labelgen/internal/renderer"
	"labelgen/internal/visionrefiner"
)

// refineOutput is the refine stage's persisted output: the final document
// plus how many iterations ran and how many edits were actually applied
// across all of them (the applied-edits counter listed under DESIGN.md's
// Open Questions; it counts edits that survived validation AND were
// structurally applicable, not merely proposed).
type refineOutput struct {
	Document      labeldoc.Document `json:"document"`
	Iterations    int               `json:"iterations"`
	AppliedEdits  int               `json:"appliedEdits"`
}

// runRefine iterates (C6 vision critique -> C7 resolve/validate/apply ->
// C5 render -> C4 upload) up to maxIterations times, feeding each
// iteration's output document into the next as input, and stopping early
// the moment an iteration proposes zero operations (spec.md §4.8).
func (o *Orchestrator) runRefine(ctx context.Context, generationID string, job Job, doc *labeldoc.Document) (json.RawMessage, error) {
	submission := visionrefiner.Submission{
		ProducerName: job.Submission.ProducerName,
		WineName:     job.Submission.WineName,
		Vintage:      job.Submission.Vintage,
		Variety:      job.Submission.Variety,
		Region:       job.Submission.Region,
		Appellation:  job.Submission.Appellation,
		Style:        visionrefiner.Style(job.Submission.Style),
	}

	totalApplied := 0
	iterations := 0

	for i := 0; i < o.cfg.MaxIterations; i++ {
		step, err := o.db.GetStep(ctx, generationID, persistence.PhaseRender)
		if err != nil {
			return nil, &StageError{Stage: persistence.PhaseRefine, Kind: KindDatabase, Message: "load render output", Cause: err}
		}
		var prevRender renderOutput
		if err := json.Unmarshal(step.Output, &prevRender); err != nil {
			return nil, &StageError{Stage: persistence.PhaseRefine, Kind: KindValidation, Message: "decode render output", Cause: err}
		}

		proposal, err := o.refiner.ProposeEdits(ctx, submission, *doc, prevRender.PreviewURL)
		if err != nil {
			return nil, &StageError{Stage: persistence.PhaseRefine, Kind: KindModel, Message: "vision refiner call failed", Cause: err}
		}
		iterations++

		if len(proposal.Operations) == 0 {
			break
		}

		resolved := o.mapper.Resolve(*doc, proposal)
		validated := o.mapper.Validate(resolved)
		updated, applied := editmapper.Apply(*doc, validated.ValidEdits)
		totalApplied += len(applied)

		*doc = updated

		png, err := o.render.Render(ctx, *doc, renderer.Options{})
		if err != nil {
			return nil, &StageError{Stage: persistence.PhaseRefine, Kind: KindAdapter, Message: "re-render after refine", Cause: err}
		}
		asset, err := o.uploadPreview(ctx, generationID, png)
		if err != nil {
			return nil, err
		}

		renderOut := renderOutput{PreviewURL: asset.URL, Width: asset.Width, Height: asset.Height, Format: string(asset.Format)}
		renderRaw, err := json.Marshal(renderOut)
		if err != nil {
			return nil, &StageError{Stage: persistence.PhaseRefine, Kind: KindValidation, Message: "marshal re-render output", Cause: err}
		}
		if err := o.db.CompleteStep(ctx, generationID, persistence.PhaseRender, renderRaw); err != nil {
			return nil, &StageError{Stage: persistence.PhaseRefine, Kind: KindDatabase, Message: "persist re-render output", Cause: err}
		}
	}

	out := refineOutput{Document: *doc, Iterations: iterations, AppliedEdits: totalApplied}
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, &StageError{Stage: persistence.PhaseRefine, Kind: KindValidation, Message: "marshal refine output", Cause: err}
	}
	return raw, nil
}
