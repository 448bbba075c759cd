package persistence

import (
	"context"
	"fmt"
	"time"
)

// Style mirrors the submission style enum (spec.md §3).
type Style string

const (
	StyleClassic Style = "classic"
	StyleModern  Style = "modern"
	StyleElegant Style = "elegant"
	StyleFunky   Style = "funky"
)

func (s Style) Valid() bool {
	switch s {
	case StyleClassic, StyleModern, StyleElegant, StyleFunky:
		return true
	}
	return false
}

// Submission is the immutable wine submission record (spec.md §3).
type Submission struct {
	ID           string
	ProducerName string
	WineName     string
	Vintage      string
	Variety      string
	Region       string
	Appellation  string
	Style        Style
	CreatedAt    time.Time
}

// InsertSubmission persists a new submission. Submissions are immutable
// once written, so this is a plain INSERT, not an upsert.
func (g *Gateway) InsertSubmission(ctx context.Context, s Submission) error {
	if s.ID == "" {
		return fmt.Errorf("persistence: submission id required")
	}
	if !s.Style.Valid() {
		return fmt.Errorf("persistence: invalid style %q", s.Style)
	}
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO wine_label_submissions
			(id, producer_name, wine_name, vintage, variety, region, appellation, style, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.ProducerName, s.WineName, s.Vintage, s.Variety, s.Region, s.Appellation, string(s.Style), s.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("persistence: insert submission: %w", err)
	}
	return nil
}

// GetSubmission fetches a submission by id.
func (g *Gateway) GetSubmission(ctx context.Context, id string) (Submission, error) {
	row := g.db.QueryRowContext(ctx, `
		SELECT id, producer_name, wine_name, vintage, variety, region, appellation, style, created_at
		FROM wine_label_submissions WHERE id = ?
	`, id)
	var s Submission
	var style, created string
	if err := row.Scan(&s.ID, &s.ProducerName, &s.WineName, &s.Vintage, &s.Variety, &s.Region, &s.Appellation, &style, &created); err != nil {
		return Submission{}, err
	}
	s.Style = Style(style)
	s.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return s, nil
}
