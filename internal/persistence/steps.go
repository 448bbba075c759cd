package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// StepStatus is the closed per-stage lifecycle state (spec.md §3).
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepProcessing StepStatus = "processing"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
)

// GenerationStep is one (generation, stage) row (spec.md §3).
type GenerationStep struct {
	GenerationID string
	Step         Phase
	Status       StepStatus
	Attempt      int
	Input        json.RawMessage
	Output       json.RawMessage
	Error        string
}

// UpsertStep inserts a pending step row if one does not already exist
// for (generationID, step); a unique-violation on the existing row is
// treated as "row exists, proceed" per spec.md §4.10, so this is a plain
// INSERT OR IGNORE rather than an error path.
func (g *Gateway) UpsertStep(ctx context.Context, generationID string, step Phase) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO label_generation_steps (generation_id, step, status, attempt, started_at, input, output, error)
		VALUES (?, ?, ?, 0, ?, NULL, NULL, NULL)
		ON CONFLICT(generation_id, step) DO NOTHING
	`, generationID, string(step), string(StepPending), now)
	if err != nil {
		return fmt.Errorf("persistence: upsert step: %w", err)
	}
	return nil
}

// SetStepInput records a step's input payload before execution, so a
// crash mid-stage can be resumed from the persisted input.
func (g *Gateway) SetStepInput(ctx context.Context, generationID string, step Phase, input json.RawMessage) error {
	_, err := g.db.ExecContext(ctx, `
		UPDATE label_generation_steps SET input = ? WHERE generation_id = ? AND step = ?
	`, string(input), generationID, string(step))
	if err != nil {
		return fmt.Errorf("persistence: set step input: %w", err)
	}
	return nil
}

// ErrStepAlreadyCompleted is returned by ClaimStep when a concurrent
// worker has already finished this step — the caller should skip to the
// next stage (spec.md §4.8 step 2b).
var ErrStepAlreadyCompleted = errors.New("persistence: step already completed")

// ClaimStep atomically increments a step's attempt counter and marks it
// processing, clearing any prior error, and returns the new attempt
// number. If the step is already completed it returns
// ErrStepAlreadyCompleted without modifying the row — idempotent
// resumption under at-least-once delivery (spec.md §4.8 step 2b).
func (g *Gateway) ClaimStep(ctx context.Context, generationID string, step Phase) (int, error) {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("persistence: claim step: begin tx: %w", err)
	}
	defer tx.Rollback()

	var status string
	var attempt int
	row := tx.QueryRowContext(ctx, `
		SELECT status, attempt FROM label_generation_steps WHERE generation_id = ? AND step = ?
	`, generationID, string(step))
	if err := row.Scan(&status, &attempt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("persistence: claim step: no such step row (generation=%s step=%s)", generationID, step)
		}
		return 0, fmt.Errorf("persistence: claim step: %w", err)
	}

	if StepStatus(status) == StepCompleted {
		return attempt, ErrStepAlreadyCompleted
	}

	attempt++
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, `
		UPDATE label_generation_steps SET status = ?, attempt = ?, started_at = ?, error = NULL
		WHERE generation_id = ? AND step = ?
	`, string(StepProcessing), attempt, now, generationID, string(step)); err != nil {
		return 0, fmt.Errorf("persistence: claim step: update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("persistence: claim step: commit: %w", err)
	}
	return attempt, nil
}

// CompleteStep records a step's output and marks it completed.
func (g *Gateway) CompleteStep(ctx context.Context, generationID string, step Phase, output json.RawMessage) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := g.db.ExecContext(ctx, `
		UPDATE label_generation_steps SET status = ?, output = ?, completed_at = ?
		WHERE generation_id = ? AND step = ?
	`, string(StepCompleted), string(output), now, generationID, string(step))
	if err != nil {
		return fmt.Errorf("persistence: complete step: %w", err)
	}
	return nil
}

// FailStep records a step's failure. The row stays claimable, so a later
// ClaimStep can start another attempt.
func (g *Gateway) FailStep(ctx context.Context, generationID string, step Phase, reason string) error {
	_, err := g.db.ExecContext(ctx, `
		UPDATE label_generation_steps SET status = ?, error = ? WHERE generation_id = ? AND step = ?
	`, string(StepFailed), reason, generationID, string(step))
	if err != nil {
		return fmt.Errorf("persistence: fail step: %w", err)
	}
	return nil
}

// GetStep fetches one step row.
func (g *Gateway) GetStep(ctx context.Context, generationID string, step Phase) (GenerationStep, error) {
	row := g.db.QueryRowContext(ctx, `
		SELECT generation_id, step, status, attempt, input, output, error
		FROM label_generation_steps WHERE generation_id = ? AND step = ?
	`, generationID, string(step))
	var s GenerationStep
	var stepName, status string
	var input, output, errMsg sql.NullString
	if err := row.Scan(&s.GenerationID, &stepName, &status, &s.Attempt, &input, &output, &errMsg); err != nil {
		return GenerationStep{}, err
	}
	s.Step = Phase(stepName)
	s.Status = StepStatus(status)
	if input.Valid {
		s.Input = json.RawMessage(input.String)
	}
	if output.Valid {
		s.Output = json.RawMessage(output.String)
	}
	s.Error = errMsg.String
	return s, nil
}

// ListSteps returns all step rows for a generation, in insertion order.
func (g *Gateway) ListSteps(ctx context.Context, generationID string) ([]GenerationStep, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT generation_id, step, status, attempt, input, output, error
		FROM label_generation_steps WHERE generation_id = ? ORDER BY id ASC
	`, generationID)
	if err != nil {
		return nil, fmt.Errorf("persistence: list steps: %w", err)
	}
	defer rows.Close()

	var out []GenerationStep
	for rows.Next() {
		var s GenerationStep
		var stepName, status string
		var input, output, errMsg sql.NullString
		if err := rows.Scan(&s.GenerationID, &stepName, &status, &s.Attempt, &input, &output, &errMsg); err != nil {
			return nil, fmt.Errorf("persistence: list steps: scan: %w", err)
		}
		s.Step = Phase(stepName)
		s.Status = StepStatus(status)
		if input.Valid {
			s.Input = json.RawMessage(input.String)
		}
		if output.Valid {
			s.Output = json.RawMessage(output.String)
		}
		s.Error = errMsg.String
		out = append(out, s)
	}
	return out, rows.Err()
}
