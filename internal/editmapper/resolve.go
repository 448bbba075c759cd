package editmapper

import (
	"encoding/json"
	"fmt"

	"labelgen/internal/labeldoc"
	"labelgen/internal/visionrefiner"
)

// boundsDelta is the JSON shape of an update_element{property:"bounds"}
// value: a move/resize delta, not an absolute rect (spec.md §4.7).
type boundsDelta struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
	DW float64 `json:"dw"`
	DH float64 `json:"dh"`
}

// Resolve walks a vision refiner proposal, resolving semantic element ids
// and translating values into the internal edit algebra. It never
// returns an error: operations it cannot resolve or parse are recorded
// in Result.RejectedEdits with a reason instead (spec.md §4.7 step 4,
// "never crash").
func (m *Mapper) Resolve(doc labeldoc.Document, proposal visionrefiner.Proposal) Result {
	var result Result

	for _, op := range proposal.Operations {
		edit, reason, ok := m.resolveOne(doc, op)
		if !ok {
			result.RejectedEdits = append(result.RejectedEdits, Rejected{Operation: op, Reason: reason})
			m.Logger.Printf("editmapper: dropped operation %s: %s", op.Type, reason)
			continue
		}
		result.ValidEdits = append(result.ValidEdits, edit)
	}

	return result
}

func (m *Mapper) resolveOne(doc labeldoc.Document, op visionrefiner.Operation) (Edit, string, bool) {
	switch op.Type {
	case visionrefiner.OpUpdatePalette:
		return resolveUpdatePalette(op)

	case visionrefiner.OpUpdateTypography:
		return resolveUpdateTypography(op)

	case visionrefiner.OpAddElement:
		if op.Element == nil {
			return Edit{}, "add_element missing element payload", false
		}
		cp := *op.Element
		return Edit{Kind: EditAddElement, Element: &cp}, "", true

	case visionrefiner.OpRemoveElement:
		id, ok := resolveElementID(doc, op.ElementID)
		if !ok {
			return Edit{}, fmt.Sprintf("unresolved element id %q", op.ElementID), false
		}
		return Edit{Kind: EditRemoveElement, ElementID: id}, "", true

	case visionrefiner.OpUpdateElement:
		return m.resolveUpdateElement(doc, op)

	default:
		return Edit{}, fmt.Sprintf("unknown operation type %q", op.Type), false
	}
}

func resolveUpdatePalette(op visionrefiner.Operation) (Edit, string, bool) {
	role := labeldoc.PaletteRole(op.Target)
	var hex string
	if err := json.Unmarshal(op.Value, &hex); err != nil {
		return Edit{}, "update_palette value is not a hex string", false
	}
	return Edit{Kind: EditUpdatePalette, PaletteTarget: role, PaletteHex: hex}, "", true
}

func resolveUpdateTypography(op visionrefiner.Operation) (Edit, string, bool) {
	if op.Target != "primary" && op.Target != "secondary" {
		return Edit{}, fmt.Sprintf("update_typography target must be primary|secondary, got %q", op.Target), false
	}
	var value string
	if err := json.Unmarshal(op.Value, &value); err != nil {
		return Edit{}, "update_typography value is not a string", false
	}
	return Edit{Kind: EditUpdateTypo, TypoTarget: op.Target, TypoProperty: op.Property, TypoValue: value}, "", true
}

func (m *Mapper) resolveUpdateElement(doc labeldoc.Document, op visionrefiner.Operation) (Edit, string, bool) {
	id, ok := resolveElementID(doc, op.ElementID)
	if !ok {
		return Edit{}, fmt.Sprintf("unresolved element id %q", op.ElementID), false
	}
	el, _ := doc.ElementByID(id)
	if el == nil {
		return Edit{}, fmt.Sprintf("resolved id %q not found in document", id), false
	}

	switch visionrefiner.ElementProperty(op.Property) {
	case visionrefiner.PropBounds:
		var d boundsDelta
		if err := json.Unmarshal(op.Value, &d); err != nil {
			return Edit{}, "bounds value malformed", false
		}
		// A bounds edit that carries both a translation and a size delta
		// is not split: both are folded into one EditMove, which Validate
		// clamps and Apply applies as a single move-plus-resize.
		return Edit{Kind: EditMove, ElementID: id, DX: d.DX, DY: d.DY, DW: d.DW, DH: d.DH}, "", true

	case visionrefiner.PropFontSize:
		if el.Type != labeldoc.ElementText || el.Text == nil {
			return Edit{}, "fontSize only applies to text elements", false
		}
		var raw string
		if err := json.Unmarshal(op.Value, &raw); err != nil {
			return Edit{}, "fontSize value is not a string", false
		}
		fs, err := parseRelativeFontSize(raw, el.Text.FontSize)
		if err != nil {
			return Edit{}, err.Error(), false
		}
		return Edit{Kind: EditUpdateFontSize, ElementID: id, FontSize: fs}, "", true

	case visionrefiner.PropColor:
		var hex string
		if err := json.Unmarshal(op.Value, &hex); err != nil {
			return Edit{}, "color value is not a hex string", false
		}
		role, err := nearestPaletteRole(doc.Palette, hex)
		if err != nil {
			return Edit{}, err.Error(), false
		}
		return Edit{Kind: EditRecolor, ElementID: id, Role: role}, "", true

	case visionrefiner.PropText:
		if el.Type != labeldoc.ElementText {
			return Edit{}, "text property only applies to text elements", false
		}
		var text string
		if err := json.Unmarshal(op.Value, &text); err != nil {
			return Edit{}, "text value is not a string", false
		}
		return Edit{Kind: EditSetText, ElementID: id, Text: text}, "", true

	case visionrefiner.PropOpacity:
		if el.Type != labeldoc.ElementImage {
			return Edit{}, "opacity property only applies to image elements", false
		}
		var v float64
		if err := json.Unmarshal(op.Value, &v); err != nil {
			return Edit{}, "opacity value is not a number", false
		}
		return Edit{Kind: EditSetOpacity, ElementID: id, Opacity: v}, "", true

	case visionrefiner.PropRotation:
		var v float64
		if err := json.Unmarshal(op.Value, &v); err != nil {
			return Edit{}, "rotation value is not a number", false
		}
		return Edit{Kind: EditSetRotation, ElementID: id, Rotation: v}, "", true

	default:
		return Edit{}, fmt.Sprintf("unknown element property %q", op.Property), false
	}
}
