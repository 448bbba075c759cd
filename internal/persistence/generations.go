package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Status is the closed generation lifecycle state (spec.md §3).
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Phase is the closed set of pipeline stages a generation can be
// currently executing, or "" when none is active.
type Phase string

const (
	PhaseDesignScheme   Phase = "design-scheme"
	PhaseImagePrompts   Phase = "image-prompts"
	PhaseImageGenerate  Phase = "image-generate"
	PhaseDetailedLayout Phase = "detailed-layout"
	PhaseRender         Phase = "render"
	PhaseRefine         Phase = "refine"
)

// Stages lists the six pipeline stages in their fixed execution order
// (spec.md §2, §4.8).
var Stages = []Phase{PhaseDesignScheme, PhaseImagePrompts, PhaseImageGenerate, PhaseDetailedLayout, PhaseRender, PhaseRefine}

// Generation is the mutable per-submission generation record (spec.md
// §3). DesignScheme and Description carry opaque JSON documents — the
// orchestrator (which owns labeldoc.Document) marshals/unmarshals them;
// this package stores and retrieves bytes without interpreting them.
type Generation struct {
	ID            string
	SubmissionID  string
	Status        Status
	Phase         Phase
	DesignScheme  json.RawMessage
	Description   json.RawMessage
	PreviewURL    string
	PreviewWidth  int
	PreviewHeight int
	PreviewFormat string
	Error         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

// InsertGeneration creates a new generation row in status=pending.
func (g *Gateway) InsertGeneration(ctx context.Context, gen Generation) error {
	if gen.ID == "" || gen.SubmissionID == "" {
		return fmt.Errorf("persistence: generation id and submission id required")
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO label_generations (id, submission_id, status, phase, created_at, updated_at)
		VALUES (?, ?, ?, '', ?, ?)
	`, gen.ID, gen.SubmissionID, string(StatusPending), now, now)
	if err != nil {
		return fmt.Errorf("persistence: insert generation: %w", err)
	}
	return nil
}

// UpdateGeneration overwrites the mutable fields of a generation row.
// Callers pass the full desired state; UpdateGeneration does not merge
// partial updates, mirroring the orchestrator's single-writer-per-stage
// discipline.
func (g *Gateway) UpdateGeneration(ctx context.Context, gen Generation) error {
	now := time.Now().UTC().Format(time.RFC3339)
	var completedAt any
	if gen.CompletedAt != nil {
		completedAt = gen.CompletedAt.UTC().Format(time.RFC3339)
	}
	_, err := g.db.ExecContext(ctx, `
		UPDATE label_generations SET
			status = ?, phase = ?, design_scheme = ?, description = ?,
			preview_url = ?, preview_width = ?, preview_height = ?, preview_format = ?,
			error = ?, updated_at = ?, completed_at = ?
		WHERE id = ?
	`, string(gen.Status), string(gen.Phase), nullableJSON(gen.DesignScheme), nullableJSON(gen.Description),
		nullableString(gen.PreviewURL), nullableInt(gen.PreviewWidth), nullableInt(gen.PreviewHeight), nullableString(gen.PreviewFormat),
		nullableString(gen.Error), now, completedAt, gen.ID)
	if err != nil {
		return fmt.Errorf("persistence: update generation: %w", err)
	}
	return nil
}

// GetGeneration fetches a generation by id.
func (g *Gateway) GetGeneration(ctx context.Context, id string) (Generation, error) {
	row := g.db.QueryRowContext(ctx, `
		SELECT id, submission_id, status, phase, design_scheme, description,
			preview_url, preview_width, preview_height, preview_format,
			error, created_at, updated_at, completed_at
		FROM label_generations WHERE id = ?
	`, id)

	var gen Generation
	var phase, designScheme, description, previewURL, previewFormat, errMsg sql.NullString
	var previewWidth, previewHeight sql.NullInt64
	var created, updated string
	var completedAt sql.NullString

	if err := row.Scan(&gen.ID, &gen.SubmissionID, &gen.Status, &phase, &designScheme, &description,
		&previewURL, &previewWidth, &previewHeight, &previewFormat,
		&errMsg, &created, &updated, &completedAt); err != nil {
		return Generation{}, err
	}

	gen.Phase = Phase(phase.String)
	if designScheme.Valid && designScheme.String != "" {
		gen.DesignScheme = json.RawMessage(designScheme.String)
	}
	if description.Valid && description.String != "" {
		gen.Description = json.RawMessage(description.String)
	}
	gen.PreviewURL = previewURL.String
	gen.PreviewWidth = int(previewWidth.Int64)
	gen.PreviewHeight = int(previewHeight.Int64)
	gen.PreviewFormat = previewFormat.String
	gen.Error = errMsg.String
	gen.CreatedAt, _ = time.Parse(time.RFC3339, created)
	gen.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	if completedAt.Valid && completedAt.String != "" {
		t, _ := time.Parse(time.RFC3339, completedAt.String)
		gen.CompletedAt = &t
	}
	return gen, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}
