package orchestrator

import (
	"encoding/json"
	"fmt"

	"labelgen/internal/labeldoc"
)

// designSchemeSchema validates a design-scheme stage reply: a full
// document with empty assets/elements (spec.md §4.8).
type designSchemeSchema struct{}

func (designSchemeSchema) Validate(raw json.RawMessage) (any, []string) {
	var doc labeldoc.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, []string{fmt.Sprintf("invalid document json: %v", err)}
	}
	issues := labeldoc.ValidateDesignScheme(doc)
	if len(issues) == 0 {
		return doc, nil
	}
	return nil, issueStrings(issues)
}

// imagePrompt is one requested prompt from the image-prompts stage.
type imagePrompt struct {
	ID      string `json:"id"`
	Purpose string `json:"purpose"`
	Prompt  string `json:"prompt"`
	Aspect  string `json:"aspect"`
}

type imagePromptsOutput struct {
	ExpectedPrompts int           `json:"expectedPrompts"`
	Prompts         []imagePrompt `json:"prompts"`
}

// imagePromptsSchema validates the image-prompts stage reply: at most 5
// prompts, expectedPrompts must equal len(prompts) exactly — a mismatch is
// rejected so the harness forces a repair retry (spec.md §4.8 tie-break
// policy), not silently truncated or padded.
type imagePromptsSchema struct{}

func (imagePromptsSchema) Validate(raw json.RawMessage) (any, []string) {
	var out imagePromptsOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, []string{fmt.Sprintf("invalid prompts json: %v", err)}
	}
	var problems []string
	if len(out.Prompts) > 5 {
		problems = append(problems, "at most 5 prompts allowed")
	}
	if out.ExpectedPrompts != len(out.Prompts) {
		problems = append(problems, fmt.Sprintf("expectedPrompts=%d disagrees with len(prompts)=%d", out.ExpectedPrompts, len(out.Prompts)))
	}
	for i, p := range out.Prompts {
		if p.ID == "" {
			problems = append(problems, fmt.Sprintf("prompts[%d].id missing", i))
		}
		if p.Prompt == "" {
			problems = append(problems, fmt.Sprintf("prompts[%d].prompt missing", i))
		}
	}
	if len(problems) > 0 {
		return nil, problems
	}
	return out, nil
}

// detailedLayoutSchema validates the detailed-layout stage reply: a full
// document with elements/assets populated and every cross-reference
// invariant holding.
type detailedLayoutSchema struct{}

func (detailedLayoutSchema) Validate(raw json.RawMessage) (any, []string) {
	var doc labeldoc.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, []string{fmt.Sprintf("invalid document json: %v", err)}
	}
	issues := labeldoc.ValidateDetailedLayout(doc, 1)
	if len(issues) == 0 {
		return doc, nil
	}
	return nil, issueStrings(issues)
}

func issueStrings(issues []labeldoc.Issue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.String()
	}
	return out
}
