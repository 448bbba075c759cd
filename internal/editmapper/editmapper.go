// Package editmapper is the C7 edit mapper/validator: it resolves the
// vision refiner's semantic element ids onto the document's real element
// ids, translates proposed values (nearest palette role, relative font
// sizes, bounds deltas), validates and clamps the result, and applies it
// immutably to produce a new document.
package editmapper

import (
	"fmt"
	"log"
	"math"
	"regexp"
	"strconv"
	"strings"

	"labelgen/internal/labeldoc"
	"labelgen/internal/visionrefiner"
)

// maxDelta bounds per-edit move/resize deltas (spec.md §4.7).
const maxDelta = 0.2

// maxEdits bounds the number of edits applied per refinement iteration
// (spec.md §4.7).
const maxEdits = 10

// EditKind enumerates the closed internal edit algebra, post semantic-id
// resolution (spec.md §4.7).
type EditKind string

const (
	EditMove           EditKind = "move"
	EditResize         EditKind = "resize"
	EditRecolor        EditKind = "recolor"
	EditReorder        EditKind = "reorder"
	EditUpdateFontSize EditKind = "update_font_size"
	EditSetText        EditKind = "set_text"
	EditSetOpacity     EditKind = "set_opacity"
	EditSetRotation    EditKind = "set_rotation"
	EditAddElement     EditKind = "add_element"
	EditRemoveElement  EditKind = "remove_element"
	EditUpdatePalette  EditKind = "update_palette"
	EditUpdateTypo     EditKind = "update_typography"
)

// Edit is one resolved, internal-algebra edit ready for validation and
// application.
type Edit struct {
	Kind EditKind

	ElementID string // move, resize, recolor, reorder, update_font_size, set_text, set_opacity, set_rotation, remove_element

	DX, DY float64 // move
	DW, DH float64 // resize; also carried by a move built from a bounds edit

	Role labeldoc.PaletteRole // recolor, update_palette target

	Z int // reorder

	FontSize float64 // update_font_size

	Text string // set_text

	Opacity float64 // set_opacity

	Rotation float64 // set_rotation

	Element *labeldoc.Element // add_element

	PaletteTarget labeldoc.PaletteRole // update_palette
	PaletteHex    string               // update_palette

	TypoTarget   string // update_typography: "primary" | "secondary"
	TypoProperty string // family | weight | style | letterSpacing
	TypoValue    string

	// Clamped records whether a delta on this edit was clamped from the
	// proposed value rather than rejected outright.
	Clamped bool
}

// Rejected is an edit that could not be resolved, translated, or
// validated, paired with a human-readable reason (spec.md §4.7, §8
// scenario 4).
type Rejected struct {
	Operation visionrefiner.Operation
	Reason    string
}

// Result is the outcome of Resolve: the edits ready to apply plus any
// operations that were dropped or rejected along the way.
type Result struct {
	ValidEdits   []Edit
	ClampedEdits []Edit
	RejectedEdits []Rejected
}

// Mapper resolves and validates a vision refiner's proposal against a
// document.
type Mapper struct {
	Logger *log.Logger
}

// New builds a Mapper. A nil Logger falls back to log.Default().
func New(logger *log.Logger) *Mapper {
	if logger == nil {
		logger = log.Default()
	}
	return &Mapper{Logger: logger}
}

// aliasTable maps common semantic synonyms to a ranked list of canonical
// element ids to try, per spec.md §4.7 step 2.
var aliasTable = map[string][]string{
	"year-text":      {"vintage", "year", "vintage_text"},
	"year":           {"vintage", "year"},
	"winery-name":    {"producer", "producer_text", "winery"},
	"winery":         {"producer", "producer_text"},
	"producer-name":  {"producer", "producer_text"},
	"wine-name":      {"wine_name", "name", "title"},
	"appellation":    {"region", "region_text", "appellation"},
	"region-text":    {"region", "region_text"},
	"variety-text":   {"variety", "grape", "variety_text"},
	"grape-variety":  {"variety", "grape"},
	"style-text":     {"style"},
}

// concept is a fuzzy-match target used in resolution step 3.
type concept struct {
	name        string
	contentRe   *regexp.Regexp
	idKeywords  []string
}

var concepts = []concept{
	{name: "vintage", contentRe: regexp.MustCompile(`^(19|20)\d{2}$`), idKeywords: []string{"vintage", "year"}},
	{name: "producer", contentRe: nil, idKeywords: []string{"producer", "winery"}},
	{name: "region", contentRe: nil, idKeywords: []string{"region", "appellation"}},
	{name: "variety", contentRe: nil, idKeywords: []string{"variety", "grape"}},
}

// resolveElementID implements the four-step resolution cascade from
// spec.md §4.7. Returns the resolved id and true, or "" and false if
// unresolved.
func resolveElementID(doc labeldoc.Document, semanticID string) (string, bool) {
	// 1. Direct match.
	if el, _ := doc.ElementByID(semanticID); el != nil {
		return semanticID, true
	}

	// 2. Alias lookup.
	if candidates, ok := aliasTable[semanticID]; ok {
		for _, c := range candidates {
			if el, _ := doc.ElementByID(c); el != nil {
				return c, true
			}
		}
	}

	// 3. Fuzzy match by concept.
	lowered := strings.ToLower(semanticID)
	for _, c := range concepts {
		if !strings.Contains(lowered, c.name) {
			continue
		}
		for _, el := range doc.Elements {
			if el.Type != labeldoc.ElementText || el.Text == nil {
				continue
			}
			for _, kw := range c.idKeywords {
				if strings.Contains(strings.ToLower(el.ID), kw) {
					return el.ID, true
				}
			}
			if c.contentRe != nil && c.contentRe.MatchString(el.Text.Text) {
				return el.ID, true
			}
		}
	}

	return "", false
}

// nearestPaletteRole projects a hex color onto the nearest palette role
// by Euclidean distance in RGB (spec.md §4.7).
func nearestPaletteRole(palette labeldoc.Palette, hex string) (labeldoc.PaletteRole, error) {
	target, err := parseHexRGB(hex)
	if err != nil {
		return "", err
	}

	best := labeldoc.RolePrimary
	bestDist := math.MaxFloat64
	for _, role := range labeldoc.AllPaletteRoles {
		roleHex, ok := palette.RoleHex(role)
		if !ok || roleHex == "" {
			continue
		}
		rgb, err := parseHexRGB(roleHex)
		if err != nil {
			continue
		}
		d := rgbDistance(target, rgb)
		if d < bestDist {
			bestDist = d
			best = role
		}
	}
	return best, nil
}

type rgb struct{ r, g, b float64 }

func parseHexRGB(hex string) (rgb, error) {
	if len(hex) != 7 || hex[0] != '#' {
		return rgb{}, fmt.Errorf("invalid hex color %q", hex)
	}
	v, err := strconv.ParseUint(hex[1:], 16, 32)
	if err != nil {
		return rgb{}, fmt.Errorf("invalid hex color %q: %w", hex, err)
	}
	return rgb{
		r: float64(v >> 16 & 0xFF),
		g: float64(v >> 8 & 0xFF),
		b: float64(v & 0xFF),
	}, nil
}

func rgbDistance(a, b rgb) float64 {
	dr, dg, db := a.r-b.r, a.g-b.g, a.b-b.b
	return math.Sqrt(dr*dr + dg*dg + db*db)
}

// parseRelativeFontSize parses a fontSize value like "larger", "smaller",
// "+4", "-2", or an absolute "24" relative to current, per spec.md §4.7.
func parseRelativeFontSize(value string, current float64) (float64, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "larger":
		return current + 4, nil
	case "smaller":
		return math.Max(1, current-4), nil
	}
	v := strings.TrimSpace(value)
	if strings.HasPrefix(v, "+") || strings.HasPrefix(v, "-") {
		delta, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid relative fontSize %q: %w", value, err)
		}
		return math.Max(1, current+delta), nil
	}
	abs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid fontSize %q: %w", value, err)
	}
	return abs, nil
}
