// Package orchestrator drives a label generation through its six fixed
// stages, persisting input/output at each step so a crash mid-stage
// resumes from the first non-completed step rather than restarting.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"labelgen/internal/editmapper"
	"labelgen/internal/imageadapter"
	"labelgen/internal/imagestore"
	"labelgen/internal/labeldoc"
	"labelgen/internal/llmharness"
	"labelgen/internal/persistence"
	"labelgen/internal/renderer"
	"labelgen/internal/visionrefiner"
)

// StageErrorKind classifies why a stage failed, for logging and for the
// generation's terminal error message, and for stage-level retry:
// isRetryableStageErr never retries KindValidation or KindDatabase.
type StageErrorKind string

const (
	KindValidation StageErrorKind = "validation"
	KindModel      StageErrorKind = "model"
	KindAdapter    StageErrorKind = "adapter"
	KindStorage    StageErrorKind = "storage"
	KindDatabase   StageErrorKind = "database"
	KindTimeout    StageErrorKind = "timeout"
)

// StageError is a typed stage failure: a kind plus free-form context,
// used instead of ad-hoc fmt.Errorf strings so the dispatcher can surface
// a structured reason without parsing error text.
type StageError struct {
	Stage   persistence.Phase
	Kind    StageErrorKind
	Message string
	Cause   error
}

func (e *StageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("stage %s (%s): %s: %v", e.Stage, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("stage %s (%s): %s", e.Stage, e.Kind, e.Message)
}

func (e *StageError) Unwrap() error { return e.Cause }

// Job is the orchestrator's input: the submission being turned into a
// label, read once at the start of a run.
type Job struct {
	Submission persistence.Submission
}

// Config bundles the pipeline tunables from spec.md §4.8/§5, read once at
// startup and treated as read-only thereafter.
type Config struct {
	StageModels         map[string]string
	MaxIterations       int
	MaxImageConcurrency int
}

// Orchestrator is the C8 stage state machine.
type Orchestrator struct {
	db       *persistence.Gateway
	harness  *llmharness.Harness
	adapter  imageadapter.Adapter
	store    *imagestore.Store
	render   renderer.Client
	refiner  *visionrefiner.Refiner
	mapper   *editmapper.Mapper
	cfg      Config
	log      *zap.Logger
}

// New builds an Orchestrator wiring together every upstream collaborator.
func New(
	db *persistence.Gateway,
	harness *llmharness.Harness,
	adapter imageadapter.Adapter,
	store *imagestore.Store,
	render renderer.Client,
	refiner *visionrefiner.Refiner,
	mapper *editmapper.Mapper,
	cfg Config,
	log *zap.Logger,
) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 2
	}
	if cfg.MaxImageConcurrency <= 0 {
		cfg.MaxImageConcurrency = 3
	}
	return &Orchestrator{db: db, harness: harness, adapter: adapter, store: store, render: render, refiner: refiner, mapper: mapper, cfg: cfg, log: log}
}

func (o *Orchestrator) modelFor(stage persistence.Phase) string {
	if m, ok := o.cfg.StageModels[string(stage)]; ok {
		return m
	}
	return "default"
}

// Run drives generationID through every stage in order, per spec.md
// §4.8. It is safe to call twice for the same generation id: completed
// steps are skipped (persistence.ErrStepAlreadyCompleted), and the
// generation's final status/description end up identical given
// deterministic adapters.
func (o *Orchestrator) Run(ctx context.Context, generationID string, job Job) error {
	gen, err := o.db.GetGeneration(ctx, generationID)
	if err != nil {
		return fmt.Errorf("orchestrator: load generation: %w", err)
	}

	if gen.Status == persistence.StatusPending {
		gen.Status = persistence.StatusProcessing
		if err := o.db.UpdateGeneration(ctx, gen); err != nil {
			return fmt.Errorf("orchestrator: mark processing: %w", err)
		}
	} else if gen.Status == persistence.StatusCompleted || gen.Status == persistence.StatusFailed {
		return nil
	}

	var doc labeldoc.Document
	var assets []imagestore.Asset

	for _, stage := range persistence.Stages {
		if err := o.db.UpsertStep(ctx, generationID, stage); err != nil {
			return fmt.Errorf("orchestrator: upsert step %s: %w", stage, err)
		}

		if err := o.runStageWithRetry(ctx, gen, stage, job, &doc, &assets); err != nil {
			return err
		}
	}

	docBytes, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("orchestrator: marshal final document: %w", err)
	}

	renderStep, err := o.db.GetStep(ctx, generationID, persistence.PhaseRender)
	if err != nil {
		return fmt.Errorf("orchestrator: load final render output: %w", err)
	}
	var preview renderOutput
	if len(renderStep.Output) > 0 {
		if err := json.Unmarshal(renderStep.Output, &preview); err != nil {
			return fmt.Errorf("orchestrator: decode final render output: %w", err)
		}
	}

	gen.Status = persistence.StatusCompleted
	gen.Phase = persistence.PhaseRefine
	gen.Description = docBytes
	gen.PreviewURL = preview.PreviewURL
	gen.PreviewWidth = preview.Width
	gen.PreviewHeight = preview.Height
	gen.PreviewFormat = preview.Format
	now := nowFunc()
	gen.CompletedAt = &now
	if err := o.db.UpdateGeneration(ctx, gen); err != nil {
		return fmt.Errorf("orchestrator: mark completed: %w", err)
	}
	return nil
}

// maxStageAttempts bounds how many times a single stage is reclaimed and
// re-executed after a retryable failure before the generation is marked
// terminally failed (spec.md §8 scenario 2: two transient failures then a
// success, attempt counter ends at 3).
const maxStageAttempts = 3

// runStageWithRetry claims and executes one stage, reclaiming (and
// incrementing the persisted attempt counter) up to maxStageAttempts times
// when the failure is retryable. A non-retryable failure, or exhausting
// all attempts, marks the generation failed and returns the error.
func (o *Orchestrator) runStageWithRetry(ctx context.Context, gen persistence.Generation, stage persistence.Phase, job Job, doc *labeldoc.Document, assets *[]imagestore.Asset) error {
	backoff := defaultBackoff()

	for attemptNum := 1; attemptNum <= maxStageAttempts; attemptNum++ {
		attempt, err := o.db.ClaimStep(ctx, gen.ID, stage)
		if err == persistence.ErrStepAlreadyCompleted {
			if _, loadErr := o.loadCompletedStage(ctx, gen.ID, stage, doc, assets); loadErr != nil {
				return loadErr
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("orchestrator: claim step %s: %w", stage, err)
		}

		o.log.Info("stage starting", zap.String("generation", gen.ID), zap.String("stage", string(stage)), zap.Int("attempt", attempt))

		output, stageErr := o.runStage(ctx, gen.ID, stage, job, doc, assets)
		if stageErr == nil {
			if err := o.db.CompleteStep(ctx, gen.ID, stage, output); err != nil {
				return fmt.Errorf("orchestrator: complete step %s: %w", stage, err)
			}
			return nil
		}

		retryable := isRetryableStageErr(stageErr)
		if !retryable || attemptNum == maxStageAttempts {
			o.failGeneration(ctx, gen, stage, stageErr)
			return stageErr
		}

		_ = o.db.FailStep(ctx, gen.ID, stage, stageErr.Error())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff.delay(attemptNum - 1)):
		}
	}
	return fmt.Errorf("orchestrator: stage %s exhausted retries without result", stage)
}

// isRetryableStageErr reports whether a stage failure is worth reclaiming
// and re-executing. Bad-input/validation failures are the caller's fault
// and never self-resolve; so is a model reply the harness could not coerce
// into its schema after its own repair retries (llmharness.StageFailed).
// Database failures here mean our own infrastructure is broken rather
// than a transient upstream hiccup. Other model, adapter, storage and
// timeout failures are assumed transient.
func isRetryableStageErr(err error) bool {
	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		return true
	}
	var failed *llmharness.StageFailed
	var badInput *llmharness.BadInput
	if errors.As(err, &failed) || errors.As(err, &badInput) {
		return false
	}
	switch stageErr.Kind {
	case KindValidation, KindDatabase:
		return false
	default:
		return true
	}
}

// loadCompletedStage repopulates in-memory state (doc, assets) from a step
// already marked completed by a prior run or a racing worker, so
// resumption after stage N doesn't re-execute stages 1..N-1.
func (o *Orchestrator) loadCompletedStage(ctx context.Context, generationID string, stage persistence.Phase, doc *labeldoc.Document, assets *[]imagestore.Asset) (json.RawMessage, error) {
	step, err := o.db.GetStep(ctx, generationID, stage)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load completed step %s: %w", stage, err)
	}
	switch stage {
	case persistence.PhaseDesignScheme, persistence.PhaseDetailedLayout:
		if len(step.Output) > 0 {
			if err := json.Unmarshal(step.Output, doc); err != nil {
				return nil, fmt.Errorf("orchestrator: decode stored document for %s: %w", stage, err)
			}
		}
	case persistence.PhaseRefine:
		if len(step.Output) > 0 {
			var out refineOutput
			if err := json.Unmarshal(step.Output, &out); err != nil {
				return nil, fmt.Errorf("orchestrator: decode stored refine output: %w", err)
			}
			*doc = out.Document
		}
	case persistence.PhaseImageGenerate:
		if len(step.Output) > 0 {
			if err := json.Unmarshal(step.Output, assets); err != nil {
				return nil, fmt.Errorf("orchestrator: decode stored assets: %w", err)
			}
		}
	}
	return step.Output, nil
}

func (o *Orchestrator) failGeneration(ctx context.Context, gen persistence.Generation, stage persistence.Phase, stageErr error) {
	_ = o.db.FailStep(ctx, gen.ID, stage, stageErr.Error())
	gen.Status = persistence.StatusFailed
	gen.Phase = stage
	gen.Error = stageErr.Error()
	if err := o.db.UpdateGeneration(ctx, gen); err != nil {
		o.log.Error("failed to persist generation failure", zap.Error(err), zap.String("generation", gen.ID))
	}
}

// stageTimeout returns the default per-stage deadline from spec.md §5:
// 30s for LLM/render stages, 60s for image generation.
func stageTimeout(stage persistence.Phase) time.Duration {
	if stage == persistence.PhaseImageGenerate {
		return 60 * time.Second
	}
	return 30 * time.Second
}

func (o *Orchestrator) runStage(ctx context.Context, generationID string, stage persistence.Phase, job Job, doc *labeldoc.Document, assets *[]imagestore.Asset) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, stageTimeout(stage))
	defer cancel()

	out, err := o.dispatchStage(ctx, generationID, stage, job, doc, assets)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, &StageError{Stage: stage, Kind: KindTimeout, Message: "timeout", Cause: err}
	}
	return out, err
}

func (o *Orchestrator) dispatchStage(ctx context.Context, generationID string, stage persistence.Phase, job Job, doc *labeldoc.Document, assets *[]imagestore.Asset) (json.RawMessage, error) {
	switch stage {
	case persistence.PhaseDesignScheme:
		return o.runDesignScheme(ctx, generationID, job, doc)
	case persistence.PhaseImagePrompts:
		return o.runImagePrompts(ctx, generationID, job, doc)
	case persistence.PhaseImageGenerate:
		return o.runImageGenerate(ctx, generationID, job, doc, assets)
	case persistence.PhaseDetailedLayout:
		return o.runDetailedLayout(ctx, generationID, job, doc, *assets)
	case persistence.PhaseRender:
		return o.runRender(ctx, generationID, doc)
	case persistence.PhaseRefine:
		return o.runRefine(ctx, generationID, job, doc)
	default:
		return nil, &StageError{Stage: stage, Kind: KindValidation, Message: fmt.Sprintf("unknown stage %q", stage)}
	}
}

// nowFunc exists so tests could substitute a fixed clock; production uses
// time.Now. Declared as a var rather than calling time.Now directly at
// every call site keeps the completion-timestamp logic in one place.
var nowFunc = defaultNow
