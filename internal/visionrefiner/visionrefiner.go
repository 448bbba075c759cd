// Package visionrefiner is the C6 vision refiner: it shows a rendered
// preview of the current label document to a multimodal model alongside
// the submission and document, and asks for a bounded set of edits that
// would improve it. Edits carry semantic element ids ("year-text") that
// need not match the document's real ids; resolving that gap is C7's job.
package visionrefiner

import (
	"context"
	"encoding/json"
	"fmt"

	"labelgen/internal/labeldoc"
	"labelgen/internal/llmharness"
)

// OpType enumerates the closed set of proposable edit variants.
type OpType string

const (
	OpUpdatePalette    OpType = "update_palette"
	OpUpdateTypography OpType = "update_typography"
	OpUpdateElement    OpType = "update_element"
	OpAddElement       OpType = "add_element"
	OpRemoveElement    OpType = "remove_element"
)

func (t OpType) Valid() bool {
	switch t {
	case OpUpdatePalette, OpUpdateTypography, OpUpdateElement, OpAddElement, OpRemoveElement:
		return true
	}
	return false
}

// ElementProperty enumerates properties update_element may target.
type ElementProperty string

const (
	PropBounds   ElementProperty = "bounds"
	PropFontSize ElementProperty = "fontSize"
	PropColor    ElementProperty = "color"
	PropText     ElementProperty = "text"
	PropOpacity  ElementProperty = "opacity"
	PropRotation ElementProperty = "rotation"
)

// TypographyProperty enumerates properties update_typography may target.
type TypographyProperty string

const (
	TypoFamily        TypographyProperty = "family"
	TypoWeight        TypographyProperty = "weight"
	TypoStyle         TypographyProperty = "style"
	TypoLetterSpacing TypographyProperty = "letterSpacing"
)

// Operation is a single proposed edit, a tagged union over OpType. Only
// the fields relevant to Type are populated; the rest are zero values.
type Operation struct {
	Type OpType `json:"type"`

	// update_palette
	Target string `json:"target,omitempty"` // palette role or "primary"/"secondary" for typography

	// update_element / update_typography
	ElementID string          `json:"elementId,omitempty"`
	Property  string          `json:"property,omitempty"`
	Value     json.RawMessage `json:"value,omitempty"`

	// add_element
	Element *labeldoc.Element `json:"element,omitempty"`

	// remove_element reuses ElementID.
}

// Proposal is the refiner's structured output.
type Proposal struct {
	Operations []Operation `json:"operations"`
	Reasoning  string      `json:"reasoning,omitempty"`
	Confidence *float64    `json:"confidence,omitempty"`
}

// proposalSchema validates the raw JSON returned by the model into a
// Proposal, enforcing the closed operation-type set. The ≤10 cap on
// operations is enforced downstream by the edit mapper/validator (C7),
// which truncates and records the excess as rejected rather than failing
// the whole stage — a model that overshoots the cap still yields a
// usable proposal.
type proposalSchema struct{}

func (proposalSchema) Validate(raw json.RawMessage) (any, []string) {
	var p Proposal
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, []string{"invalid JSON shape: " + err.Error()}
	}
	var problems []string
	for i, op := range p.Operations {
		if !op.Type.Valid() {
			problems = append(problems, fmt.Sprintf("operations[%d].type: unknown operation %q", i, op.Type))
			continue
		}
		if op.Type != OpAddElement && op.Type != OpRemoveElement && op.Type != OpUpdatePalette && op.ElementID == "" && op.Target == "" {
			problems = append(problems, fmt.Sprintf("operations[%d]: missing target/elementId", i))
		}
	}
	if p.Confidence != nil && (*p.Confidence < 0 || *p.Confidence > 1) {
		problems = append(problems, "confidence: out of [0,1]")
	}
	if len(problems) > 0 {
		return nil, problems
	}
	return p, nil
}

// Refiner proposes edits against a rendered preview.
type Refiner struct {
	Harness *llmharness.Harness
	Model   string
}

// New builds a Refiner.
func New(h *llmharness.Harness, model string) *Refiner {
	return &Refiner{Harness: h, Model: model}
}

const systemPrompt = `You are a meticulous wine-label design critic. You are shown a rendered ` +
	`preview of a label alongside its structural document. Propose up to 10 concrete edits ` +
	`that would most improve the design. Respond with JSON only: ` +
	`{"operations":[...],"reasoning":"...","confidence":0.0}`

const userPromptTemplate = `Submission:
producer: {producer}
wine name: {wineName}
vintage: {vintage}
variety: {variety}
region: {region}
appellation: {appellation}
style: {style}

Current document (JSON):
{document}

A rendered preview of this document is attached as an image.`

// ProposeEdits implements the propose_edits contract (spec.md §4.6).
func (r *Refiner) ProposeEdits(ctx context.Context, submission Submission, doc labeldoc.Document, previewURL string) (Proposal, error) {
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return Proposal{}, fmt.Errorf("visionrefiner: marshal document: %w", err)
	}

	vars := map[string]string{
		"producer":    submission.ProducerName,
		"wineName":    submission.WineName,
		"vintage":     submission.Vintage,
		"variety":     submission.Variety,
		"region":      submission.Region,
		"appellation": submission.Appellation,
		"style":       string(submission.Style),
		"document":    string(docJSON),
	}

	out, err := r.Harness.InvokeStructuredMultimodal(ctx, "refine", r.Model, systemPrompt, userPromptTemplate, vars, previewURL, proposalSchema{})
	if err != nil {
		return Proposal{}, err
	}
	p, ok := out.(Proposal)
	if !ok {
		return Proposal{}, fmt.Errorf("visionrefiner: unexpected schema output type %T", out)
	}
	return p, nil
}

// Submission is the subset of the wine submission the refiner needs as
// prompt context. Defined locally rather than imported from the
// orchestrator to keep this package free of an orchestrator dependency.
type Submission struct {
	ProducerName string
	WineName     string
	Vintage      string
	Variety      string
	Region       string
	Appellation  string
	Style        Style
}

// Style mirrors the submission style enum (spec.md §3) without importing
// the orchestrator package.
type Style string

const (
	StyleClassic Style = "classic"
	StyleModern  Style = "modern"
	StyleElegant Style = "elegant"
	StyleFunky   Style = "funky"
)
