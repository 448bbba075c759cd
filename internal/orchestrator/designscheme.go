package orchestrator

import (
	"context"
	"encoding/json"

	"labelgen/internal/labeldoc"
	"labelgen/internal/persistence"
)

const designSchemePromptTemplate = `Design a label scheme for a wine label.

Producer: {producer}
Wine: {wine}
Vintage: {vintage}
Variety: {variety}
Region: {region}
Appellation: {appellation}
Style: {style}

Reply with a JSON document matching the label schema: canvas, palette,
typography must be fully populated. assets and elements must both be
empty arrays — they are populated by a later stage.`

func (o *Orchestrator) runDesignScheme(ctx context.Context, generationID string, job Job, doc *labeldoc.Document) (json.RawMessage, error) {
	vars := submissionVars(job.Submission)

	value, err := o.harness.InvokeStructured(ctx, string(persistence.PhaseDesignScheme), o.modelFor(persistence.PhaseDesignScheme),
		designSchemePromptTemplate, vars, designSchemeSchema{}, nil, nil)
	if err != nil {
		return nil, &StageError{Stage: persistence.PhaseDesignScheme, Kind: KindModel, Message: "design-scheme call failed", Cause: err}
	}

	result, ok := value.(labeldoc.Document)
	if !ok {
		return nil, &StageError{Stage: persistence.PhaseDesignScheme, Kind: KindValidation, Message: "unexpected design-scheme schema result type"}
	}

	*doc = result
	out, err := json.Marshal(result)
	if err != nil {
		return nil, &StageError{Stage: persistence.PhaseDesignScheme, Kind: KindValidation, Message: "marshal design-scheme output", Cause: err}
	}
	return out, nil
}

func submissionVars(s persistence.Submission) map[string]string {
	return map[string]string{
		"producer":    s.ProducerName,
		"wine":        s.WineName,
		"vintage":     s.Vintage,
		"variety":     s.Variety,
		"region":      s.Region,
		"appellation": s.Appellation,
		"style":       string(s.Style),
	}
}
