package orchestrator

import (
	"context"
	"encoding/json"

	"labelgen/internal/labeldoc"
	"labelgen/internal/persistence"
)

const imagePromptsPromptTemplate = `Given this label design scheme, propose up to 5 image prompts for the
generated imagery this label needs.

Style: {style}
Producer: {producer}
Wine: {wine}
Design scheme (JSON): {designScheme}

Reply with JSON: {"expectedPrompts": N, "prompts": [{"id","purpose","prompt","aspect"}, ...]}
where N == len(prompts) exactly, purpose is one of background/foreground/decoration,
and aspect is one of 1:1, 3:2, 4:3, 16:9, 2:3, 3:4.`

func (o *Orchestrator) runImagePrompts(ctx context.Context, generationID string, job Job, doc *labeldoc.Document) (json.RawMessage, error) {
	schemeJSON, err := json.Marshal(*doc)
	if err != nil {
		return nil, &StageError{Stage: persistence.PhaseImagePrompts, Kind: KindValidation, Message: "marshal design scheme for prompt", Cause: err}
	}

	vars := submissionVars(job.Submission)
	vars["designScheme"] = string(schemeJSON)

	value, err := o.harness.InvokeStructured(ctx, string(persistence.PhaseImagePrompts), o.modelFor(persistence.PhaseImagePrompts),
		imagePromptsPromptTemplate, vars, imagePromptsSchema{}, nil, nil)
	if err != nil {
		return nil, &StageError{Stage: persistence.PhaseImagePrompts, Kind: KindModel, Message: "image-prompts call failed", Cause: err}
	}

	out, ok := value.(imagePromptsOutput)
	if !ok {
		return nil, &StageError{Stage: persistence.PhaseImagePrompts, Kind: KindValidation, Message: "unexpected image-prompts schema result type"}
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return nil, &StageError{Stage: persistence.PhaseImagePrompts, Kind: KindValidation, Message: "marshal image-prompts output", Cause: err}
	}
	return raw, nil
}
