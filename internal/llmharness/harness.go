// Package llmharness renders prompt templates against a text model,
// extracts structured JSON from its free-form reply through a layered
// strategy, and retries with a short repair message when the reply does not
// satisfy the caller's schema.
package llmharness

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// maxRepairRetries bounds the number of repair round-trips per invocation,
// per spec.md §4.2 step 5 ("Maximum two retries").
const maxRepairRetries = 2

// Schema validates a decoded JSON value and reports issues in the same
// path+message shape labeldoc uses, so callers can feed output straight
// into labeldoc.Issue-shaped reporting when useful. It is intentionally
// narrow: callers hand the harness a small Validate implementation rather than a reflective
// schema language, since every call site here already owns a concrete Go
// type to unmarshal into.
type Schema interface {
	// Validate unmarshals raw into the schema's target type and returns a
	// human-readable list of problems (empty means valid) plus the decoded
	// value on success.
	Validate(raw json.RawMessage) (value any, problems []string)
}

// TextModel is the underlying chat/completion transport. Production and
// mock implementations live in provider.go.
type TextModel interface {
	// Complete sends a system+user prompt pair and returns the raw model
	// reply text.
	Complete(ctx context.Context, model, systemPrompt, userPrompt string) (string, error)
}

// MultimodalModel is a TextModel that can also attach an image to the
// user turn, for the vision refiner's preview-critique calls. A TextModel
// that also implements this interface is used for multimodal stages;
// otherwise InvokeStructuredMultimodal falls back to the text-only Complete.
type MultimodalModel interface {
	TextModel
	CompleteWithImage(ctx context.Context, model, systemPrompt, userPrompt, imageURL string) (string, error)
}

// StageFailed is raised when a stage's output could not be coerced into its
// schema after the repair retries are exhausted, per spec.md §4.2 step 6.
type StageFailed struct {
	Stage      string
	Reason     string
	RawExcerpt string
}

func (e *StageFailed) Error() string {
	return fmt.Sprintf("stage %s failed: %s", e.Stage, e.Reason)
}

// BadInput is raised when a supplied input fails its input schema, per
// spec.md §4.2 step 2.
type BadInput struct {
	Stage   string
	Reason  string
}

func (e *BadInput) Error() string {
	return fmt.Sprintf("stage %s: bad input: %s", e.Stage, e.Reason)
}

// Harness is the C2 structured-LLM call harness.
type Harness struct {
	model TextModel
	log   *zap.Logger
}

// New builds a Harness over the given transport.
func New(model TextModel, log *zap.Logger) *Harness {
	if log == nil {
		log = zap.NewNop()
	}
	return &Harness{model: model, log: log}
}

// InvokeStructured renders promptTemplate against vars, optionally
// validates input against inputSchema, calls the model, and returns a
// value that satisfies outputSchema — retrying with a repair message up to
// maxRepairRetries times. modelName selects which underlying model the
// stage uses (configured per-stage, per spec.md §4.2).
func (h *Harness) InvokeStructured(
	ctx context.Context,
	stageName string,
	modelName string,
	promptTemplate string,
	vars map[string]string,
	outputSchema Schema,
	inputSchema Schema,
	input json.RawMessage,
) (any, error) {
	if inputSchema != nil {
		if _, problems := inputSchema.Validate(input); len(problems) > 0 {
			return nil, &BadInput{Stage: stageName, Reason: fmt.Sprintf("%v", problems)}
		}
	}

	complete := func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
		return h.model.Complete(ctx, modelName, systemPrompt, userPrompt)
	}
	return h.invokeWithCompleter(ctx, stageName, promptTemplate, vars, outputSchema, complete)
}

// InvokeStructuredMultimodal is InvokeStructured's vision-capable sibling:
// it attaches imageURL to the user turn on every attempt when the
// underlying transport supports it, falling back to text-only otherwise.
// There is no separate input schema here — the vision refiner's only
// input is the current document and submission, already embedded in
// promptTemplate by the caller.
func (h *Harness) InvokeStructuredMultimodal(
	ctx context.Context,
	stageName string,
	modelName string,
	systemPrompt string,
	promptTemplate string,
	vars map[string]string,
	imageURL string,
	outputSchema Schema,
) (any, error) {
	mm, ok := h.model.(MultimodalModel)
	complete := func(ctx context.Context, sysPrompt, userPrompt string) (string, error) {
		if ok {
			return mm.CompleteWithImage(ctx, modelName, sysPrompt, userPrompt, imageURL)
		}
		return h.model.Complete(ctx, modelName, sysPrompt, userPrompt)
	}
	return h.invokeWithCompleterSystem(ctx, stageName, systemPrompt, promptTemplate, vars, outputSchema, complete)
}

type completer func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

func (h *Harness) invokeWithCompleter(
	ctx context.Context,
	stageName string,
	promptTemplate string,
	vars map[string]string,
	outputSchema Schema,
	complete completer,
) (any, error) {
	systemPrompt := fmt.Sprintf("You are generating structured output for the %q stage. Reply with JSON only.", stageName)
	return h.invokeWithCompleterSystem(ctx, stageName, systemPrompt, promptTemplate, vars, outputSchema, complete)
}

func (h *Harness) invokeWithCompleterSystem(
	ctx context.Context,
	stageName string,
	systemPrompt string,
	promptTemplate string,
	vars map[string]string,
	outputSchema Schema,
	complete completer,
) (any, error) {
	prompt := RenderTemplate(promptTemplate, vars)

	var lastRaw string
	var lastProblems []string

	for attempt := 0; attempt <= maxRepairRetries; attempt++ {
		userPrompt := prompt
		if attempt > 0 {
			userPrompt = repairPrompt(prompt, lastRaw, lastProblems)
		}

		reply, err := complete(ctx, systemPrompt, userPrompt)
		if err != nil {
			return nil, fmt.Errorf("stage %s: model call: %w", stageName, err)
		}
		lastRaw = reply

		raw, extractErr := ExtractJSON(reply)
		if extractErr != nil {
			lastProblems = []string{extractErr.Error()}
			h.log.Warn("json extraction failed", zap.String("stage", stageName), zap.Int("attempt", attempt), zap.Error(extractErr))
			continue
		}

		value, problems := outputSchema.Validate(raw)
		if len(problems) == 0 {
			return value, nil
		}
		lastProblems = problems
		h.log.Warn("schema validation failed", zap.String("stage", stageName), zap.Int("attempt", attempt), zap.Strings("problems", problems))
	}

	excerpt := lastRaw
	if len(excerpt) > 512 {
		excerpt = excerpt[:512]
	}
	return nil, &StageFailed{Stage: stageName, Reason: fmt.Sprintf("%v", lastProblems), RawExcerpt: excerpt}
}

func repairPrompt(original, lastReply string, problems []string) string {
	return fmt.Sprintf(
		"%s\n\nYour previous reply did not match the required schema.\nPrevious reply:\n%s\n\nProblems:\n- %s\n\nReply again with corrected JSON only.",
		original, lastReply, joinLines(problems),
	)
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n- "
		}
		out += l
	}
	return out
}
