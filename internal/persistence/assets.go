package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"labelgen/internal/imagestore"
)

// GetAsset implements imagestore.AssetGateway.
func (g *Gateway) GetAsset(ctx context.Context, generationID, assetID string) (imagestore.Asset, bool, error) {
	row := g.db.QueryRowContext(ctx, `
		SELECT generation_id, asset_id, url, width, height, format, checksum, prompt, model, seed
		FROM label_assets WHERE generation_id = ? AND asset_id = ?
	`, generationID, assetID)

	var a imagestore.Asset
	var format string
	var prompt, model sql.NullString
	var seed sql.NullInt64
	err := row.Scan(&a.GenerationID, &a.AssetID, &a.URL, &a.Width, &a.Height, &format, &a.Checksum, &prompt, &model, &seed)
	if errors.Is(err, sql.ErrNoRows) {
		return imagestore.Asset{}, false, nil
	}
	if err != nil {
		return imagestore.Asset{}, false, fmt.Errorf("persistence: get asset: %w", err)
	}
	a.Format = imagestore.Format(format)
	a.Prompt = prompt.String
	a.Model = model.String
	if seed.Valid {
		v := seed.Int64
		a.Seed = &v
	}
	return a, true, nil
}

// UpsertAsset implements imagestore.AssetGateway. The unique violation
// on (generation_id, asset_id) is the expected idempotent-retry path, not
// an error — an ON CONFLICT DO UPDATE makes re-running the same upload
// for the same slot harmless, per spec.md §4.10.
func (g *Gateway) UpsertAsset(ctx context.Context, a imagestore.Asset) error {
	var seed any
	if a.Seed != nil {
		seed = *a.Seed
	}
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO label_assets
			(generation_id, asset_id, url, width, height, format, checksum, prompt, model, seed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(generation_id, asset_id) DO UPDATE SET
			url=excluded.url, width=excluded.width, height=excluded.height,
			format=excluded.format, checksum=excluded.checksum,
			prompt=excluded.prompt, model=excluded.model, seed=excluded.seed
	`, a.GenerationID, a.AssetID, a.URL, a.Width, a.Height, string(a.Format), a.Checksum, a.Prompt, a.Model, seed)
	if err != nil {
		return fmt.Errorf("persistence: upsert asset: %w", err)
	}
	return nil
}

// ListAssets returns every asset row for a generation, for status
// responses and debugging.
func (g *Gateway) ListAssets(ctx context.Context, generationID string) ([]imagestore.Asset, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT generation_id, asset_id, url, width, height, format, checksum, prompt, model, seed
		FROM label_assets WHERE generation_id = ?
	`, generationID)
	if err != nil {
		return nil, fmt.Errorf("persistence: list assets: %w", err)
	}
	defer rows.Close()

	var out []imagestore.Asset
	for rows.Next() {
		var a imagestore.Asset
		var format string
		var prompt, model sql.NullString
		var seed sql.NullInt64
		if err := rows.Scan(&a.GenerationID, &a.AssetID, &a.URL, &a.Width, &a.Height, &format, &a.Checksum, &prompt, &model, &seed); err != nil {
			return nil, fmt.Errorf("persistence: list assets: scan: %w", err)
		}
		a.Format = imagestore.Format(format)
		a.Prompt = prompt.String
		a.Model = model.String
		if seed.Valid {
			v := seed.Int64
			a.Seed = &v
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
