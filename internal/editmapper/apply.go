package editmapper

import (
	"strconv"

	"labelgen/internal/labeldoc"
)

// Applied pairs a successfully-applied edit with the element it touched,
// for the orchestrator's "applied edits" observability counter.
type Applied struct {
	Edit Edit
}

// Apply deep-copies doc and applies every edit in edits, in order,
// returning the new document plus the edits that actually took effect.
// An edit whose target no longer exists (e.g. removed earlier in the
// same batch) is skipped rather than erroring — Resolve/Validate already
// guaranteed these edits were well-formed against the pre-batch document.
func Apply(doc labeldoc.Document, edits []Edit) (labeldoc.Document, []Applied) {
	out := doc.Clone()
	var applied []Applied

	for _, e := range edits {
		if applyOne(&out, e) {
			applied = append(applied, Applied{Edit: e})
		}
	}

	return out, applied
}

// minDim is the smallest width/height clampBounds will leave an element
// at; resize deltas that would collapse an element to zero or negative
// size instead bottom out here rather than producing an invisible or
// inverted box.
const minDim = 0.001

// clampBounds enforces the final-position invariant from spec.md §4.7:
// after a move or resize, every element ends up with x,y >= 0 and
// x+w <= 1, y+h <= 1. Width and height are clamped into (0,1] first
// (the "resize: symmetric clamp" rule), then x/y are clamped against
// the resulting extent (the "move: final clamp" rule) — running both
// clamps unconditionally keeps move and resize edits, which only ever
// touch one pair of fields, correct with a single shared function.
func clampBounds(b *labeldoc.Bounds) {
	b.W = clampDim(b.W)
	b.H = clampDim(b.H)

	if b.X < 0 {
		b.X = 0
	}
	if max := 1 - b.W; b.X > max {
		b.X = max
	}
	if b.Y < 0 {
		b.Y = 0
	}
	if max := 1 - b.H; b.Y > max {
		b.Y = max
	}
}

func clampDim(d float64) float64 {
	if d > 1 {
		return 1
	}
	if d < minDim {
		return minDim
	}
	return d
}

func applyOne(doc *labeldoc.Document, e Edit) bool {
	switch e.Kind {
	case EditMove:
		el, idx := doc.ElementByID(e.ElementID)
		if el == nil {
			return false
		}
		b := &doc.Elements[idx].Bounds
		b.X += e.DX
		b.Y += e.DY
		b.W += e.DW
		b.H += e.DH
		clampBounds(b)
		return true

	case EditResize:
		el, idx := doc.ElementByID(e.ElementID)
		if el == nil {
			return false
		}
		b := &doc.Elements[idx].Bounds
		b.W += e.DW
		b.H += e.DH
		clampBounds(b)
		return true

	case EditRecolor:
		el, idx := doc.ElementByID(e.ElementID)
		if el == nil {
			return false
		}
		switch doc.Elements[idx].Type {
		case labeldoc.ElementText:
			if el.Text == nil {
				return false
			}
			doc.Elements[idx].Text.Color = e.Role
		case labeldoc.ElementShape:
			if el.Shape == nil {
				return false
			}
			doc.Elements[idx].Shape.Color = e.Role
		default:
			return false
		}
		return true

	case EditReorder:
		el, idx := doc.ElementByID(e.ElementID)
		if el == nil {
			return false
		}
		doc.Elements[idx].Z = e.Z
		return true

	case EditUpdateFontSize:
		el, idx := doc.ElementByID(e.ElementID)
		if el == nil || el.Text == nil {
			return false
		}
		doc.Elements[idx].Text.FontSize = e.FontSize
		return true

	case EditSetText:
		el, idx := doc.ElementByID(e.ElementID)
		if el == nil || el.Text == nil {
			return false
		}
		doc.Elements[idx].Text.Text = e.Text
		return true

	case EditSetOpacity:
		el, idx := doc.ElementByID(e.ElementID)
		if el == nil || el.Image == nil {
			return false
		}
		doc.Elements[idx].Image.Opacity = e.Opacity
		return true

	case EditSetRotation:
		el, idx := doc.ElementByID(e.ElementID)
		if el == nil {
			return false
		}
		switch doc.Elements[idx].Type {
		case labeldoc.ElementImage:
			if el.Image == nil {
				return false
			}
			doc.Elements[idx].Image.Rotation = e.Rotation
		case labeldoc.ElementShape:
			if el.Shape == nil {
				return false
			}
			doc.Elements[idx].Shape.Rotation = e.Rotation
		default:
			return false
		}
		return true

	case EditAddElement:
		if e.Element == nil {
			return false
		}
		if el, _ := doc.ElementByID(e.Element.ID); el != nil {
			return false
		}
		doc.Elements = append(doc.Elements, *e.Element)
		return true

	case EditRemoveElement:
		el, idx := doc.ElementByID(e.ElementID)
		if el == nil {
			return false
		}
		doc.Elements = append(doc.Elements[:idx], doc.Elements[idx+1:]...)
		return true

	case EditUpdatePalette:
		switch e.PaletteTarget {
		case labeldoc.RolePrimary:
			doc.Palette.Primary = e.PaletteHex
		case labeldoc.RoleSecondary:
			doc.Palette.Secondary = e.PaletteHex
		case labeldoc.RoleAccent:
			doc.Palette.Accent = e.PaletteHex
		case labeldoc.RoleBackground:
			doc.Palette.Background = e.PaletteHex
		default:
			return false
		}
		return true

	case EditUpdateTypo:
		font := &doc.Typography.Primary
		if e.TypoTarget == "secondary" {
			font = &doc.Typography.Secondary
		}
		switch e.TypoProperty {
		case "family":
			font.Family = e.TypoValue
		case "style":
			font.Style = labeldoc.FontStyle(e.TypoValue)
		case "weight":
			w, err := strconv.Atoi(e.TypoValue)
			if err != nil {
				return false
			}
			font.Weight = w
		case "letterSpacing":
			ls, err := strconv.ParseFloat(e.TypoValue, 64)
			if err != nil {
				return false
			}
			font.LetterSpacing = ls
		default:
			return false
		}
		return true

	default:
		return false
	}
}
