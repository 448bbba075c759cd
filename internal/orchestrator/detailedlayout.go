package orchestrator

import (
	"context"
	"encoding/json"

	"labelgen/internal/imagestore"
	"labelgen/internal/labeldoc"
	"labelgen/internal/persistence"
)

const detailedLayoutPromptTemplate = `Produce the full detailed layout for this wine label.

Style: {style}
Producer: {producer}
Wine: {wine}
Vintage: {vintage}
Variety: {variety}
Region: {region}
Appellation: {appellation}
Design scheme (JSON): {designScheme}
Generated assets (JSON): {assets}

Reply with the complete label document JSON: canvas, palette, typography
carried over from the design scheme, plus fully populated assets and
elements. Every image element must reference a declared asset id. Every
declared asset must be referenced by at least one element. Element and
asset ids must be unique.`

func (o *Orchestrator) runDetailedLayout(ctx context.Context, generationID string, job Job, doc *labeldoc.Document, assets []imagestore.Asset) (json.RawMessage, error) {
	schemeJSON, err := json.Marshal(*doc)
	if err != nil {
		return nil, &StageError{Stage: persistence.PhaseDetailedLayout, Kind: KindValidation, Message: "marshal design scheme", Cause: err}
	}
	assetsJSON, err := json.Marshal(assets)
	if err != nil {
		return nil, &StageError{Stage: persistence.PhaseDetailedLayout, Kind: KindValidation, Message: "marshal generated assets", Cause: err}
	}

	vars := submissionVars(job.Submission)
	vars["designScheme"] = string(schemeJSON)
	vars["assets"] = string(assetsJSON)

	value, err := o.harness.InvokeStructured(ctx, string(persistence.PhaseDetailedLayout), o.modelFor(persistence.PhaseDetailedLayout),
		detailedLayoutPromptTemplate, vars, detailedLayoutSchema{}, nil, nil)
	if err != nil {
		return nil, &StageError{Stage: persistence.PhaseDetailedLayout, Kind: KindModel, Message: "detailed-layout call failed", Cause: err}
	}

	result, ok := value.(labeldoc.Document)
	if !ok {
		return nil, &StageError{Stage: persistence.PhaseDetailedLayout, Kind: KindValidation, Message: "unexpected detailed-layout schema result type"}
	}

	*doc = result
	out, err := json.Marshal(result)
	if err != nil {
		return nil, &StageError{Stage: persistence.PhaseDetailedLayout, Kind: KindValidation, Message: "marshal detailed-layout output", Cause: err}
	}
	return out, nil
}
