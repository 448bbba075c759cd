// Package imagestore implements the content-addressable image store: it
// deduplicates both per logical slot (generation, asset) and per content
// (identical bytes share one storage object), per spec.md §4.4.
package imagestore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/webp"
)

// Format is the closed set of accepted image formats.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPG  Format = "jpg"
	FormatWebP Format = "webp"
)

// Asset is the persisted record for one (generation, asset) slot.
type Asset struct {
	GenerationID string
	AssetID      string
	URL          string
	Width        int
	Height       int
	Format       Format
	Checksum     string // sha256 hex, 64 chars
	Prompt       string
	Model        string
	Seed         *int64
}

// AssetGateway is the persistence slice of C10 that C4 depends on: looking
// up and upserting the (generation, asset) -> asset record mapping.
type AssetGateway interface {
	// GetAsset returns the existing asset record for (generationID,
	// assetID), or ok=false if none exists.
	GetAsset(ctx context.Context, generationID, assetID string) (Asset, bool, error)
	// UpsertAsset atomically inserts-or-updates the asset record. The
	// upsert is atomic: no row referencing a not-yet-uploaded URL is ever
	// visible to a concurrent reader, per spec.md §4.4 step 5.
	UpsertAsset(ctx context.Context, a Asset) error
}

// Blob is the storage backend that persists bytes at a content-addressed
// path and resolves a path to a public URL. Local-disk and in-memory
// implementations live in blob.go; production deployments would back this
// with an object-store bucket (spec.md §6's "label-images" bucket
// contract), which is out of scope here per spec.md §1.
type Blob interface {
	// Put writes bytes at path. A write to a path that already holds
	// identical content (or a concurrent write races to the same path) must
	// be treated as success, never an error — content paths are immutable
	// by construction (spec.md §4.4 step 4).
	Put(ctx context.Context, path string, data []byte) error
	// PublicURL resolves a storage path to the URL callers should use.
	PublicURL(path string) string
}

// Store is the C4 content-addressable image store.
type Store struct {
	gateway AssetGateway
	blob    Blob
}

// New builds a Store over the given persistence gateway and blob backend.
func New(gateway AssetGateway, blob Blob) *Store {
	return &Store{gateway: gateway, blob: blob}
}

// Upload implements the six-step algorithm from spec.md §4.4:
//  1. compute checksum if not supplied
//  2. decode bytes to discover format/width/height
//  3. per-slot idempotence: return existing URL if (generationID, assetID)
//     already holds this exact content
//  4. per-content dedup: write (or confirm) the content-addressed object
//  5. atomically upsert the asset record
//  6. return the public URL + metadata
func (s *Store) Upload(ctx context.Context, generationID, assetID string, data []byte, checksum, prompt, model string, seed *int64) (Asset, error) {
	if checksum == "" {
		checksum = Checksum(data)
	}

	format, width, height, err := sniff(data)
	if err != nil {
		return Asset{}, fmt.Errorf("imagestore: %w", err)
	}

	if existing, ok, err := s.gateway.GetAsset(ctx, generationID, assetID); err != nil {
		return Asset{}, fmt.Errorf("imagestore: lookup existing asset: %w", err)
	} else if ok && existing.Checksum == checksum {
		return existing, nil
	}

	path := ContentPath(checksum, format)
	if err := s.blob.Put(ctx, path, data); err != nil {
		return Asset{}, fmt.Errorf("imagestore: write content object: %w", err)
	}

	asset := Asset{
		GenerationID: generationID,
		AssetID:      assetID,
		URL:          s.blob.PublicURL(path),
		Width:        width,
		Height:       height,
		Format:       format,
		Checksum:     checksum,
		Prompt:       prompt,
		Model:        model,
		Seed:         seed,
	}
	if err := s.gateway.UpsertAsset(ctx, asset); err != nil {
		return Asset{}, fmt.Errorf("imagestore: upsert asset record: %w", err)
	}
	return asset, nil
}

// Checksum returns the lowercase hex SHA-256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ContentPath returns the content-addressed storage path for a checksum +
// format pair, per spec.md §4.4/§6: "content/{sha256_hex}.{ext}".
func ContentPath(checksum string, format Format) string {
	return fmt.Sprintf("content/%s.%s", checksum, format)
}

func sniff(data []byte) (Format, int, int, error) {
	cfg, formatName, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", 0, 0, fmt.Errorf("decode image: %w", err)
	}
	format, ok := normalizeFormat(formatName)
	if !ok {
		return "", 0, 0, fmt.Errorf("unsupported image format %q", formatName)
	}
	return format, cfg.Width, cfg.Height, nil
}

func normalizeFormat(name string) (Format, bool) {
	switch strings.ToLower(name) {
	case "png":
		return FormatPNG, true
	case "jpeg", "jpg":
		return FormatJPG, true
	case "webp":
		return FormatWebP, true
	default:
		return "", false
	}
}
