package editmapper

import (
	"encoding/json"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labelgen/internal/labeldoc"
	"labelgen/internal/visionrefiner"
)

func sampleDoc() labeldoc.Document {
	return labeldoc.Document{
		Version: "1",
		Canvas:  labeldoc.Canvas{Width: 750, Height: 1125, DPI: 300, Background: "#ffffff"},
		Palette: labeldoc.Palette{
			Primary:    "#1a1a1a",
			Secondary:  "#4A4A4A",
			Accent:     "#b08d57",
			Background: "#ffffff",
		},
		Elements: []labeldoc.Element{
			{
				Type:   labeldoc.ElementText,
				ID:     "producer_text",
				Bounds: labeldoc.Bounds{X: 0.1, Y: 0.1, W: 0.8, H: 0.15},
				Z:      10,
				Text:   &labeldoc.TextElement{Text: "Clos du Vent", Font: "primary", Color: labeldoc.RolePrimary, Align: labeldoc.AlignCenter, FontSize: 24, LineHeight: 1.2, MaxLines: 1, TextTransform: labeldoc.TransformNone},
			},
			{
				Type:   labeldoc.ElementText,
				ID:     "vintage",
				Bounds: labeldoc.Bounds{X: 0.1, Y: 0.3, W: 0.3, H: 0.1},
				Z:      20,
				Text:   &labeldoc.TextElement{Text: "2020", Font: "secondary", Color: labeldoc.RolePrimary, Align: labeldoc.AlignLeft, FontSize: 18, LineHeight: 1.1, MaxLines: 1, TextTransform: labeldoc.TransformNone},
			},
		},
	}
}

func rawJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestResolveSemanticIDMappingViaAliasTable(t *testing.T) {
	doc := sampleDoc()
	m := New(log.Default())

	prop := visionrefiner.Proposal{
		Operations: []visionrefiner.Operation{
			{Type: visionrefiner.OpUpdateElement, ElementID: "year-text", Property: "color", Value: rawJSON(t, "#4A4A4A")},
		},
	}

	r := m.Resolve(doc, prop)
	require.Len(t, r.ValidEdits, 1)
	assert.Empty(t, r.RejectedEdits)
	assert.Equal(t, EditRecolor, r.ValidEdits[0].Kind)
	assert.Equal(t, "vintage", r.ValidEdits[0].ElementID)
	assert.Equal(t, labeldoc.RoleSecondary, r.ValidEdits[0].Role)
}

func TestResolveUnknownElementIsDropped(t *testing.T) {
	doc := sampleDoc()
	m := New(log.Default())

	prop := visionrefiner.Proposal{
		Operations: []visionrefiner.Operation{
			{Type: visionrefiner.OpUpdateElement, ElementID: "totally-unknown-thing", Property: "color", Value: rawJSON(t, "#000000")},
		},
	}

	r := m.Resolve(doc, prop)
	assert.Empty(t, r.ValidEdits)
	require.Len(t, r.RejectedEdits, 1)
}

func TestValidateOverLimitTruncatesToMaxEdits(t *testing.T) {
	doc := sampleDoc()
	m := New(log.Default())

	var ops []visionrefiner.Operation
	for i := 0; i < 15; i++ {
		ops = append(ops, visionrefiner.Operation{
			Type: visionrefiner.OpUpdateElement, ElementID: "vintage", Property: "color", Value: rawJSON(t, "#1a1a1a"),
		})
	}
	resolved := m.Resolve(doc, visionrefiner.Proposal{Operations: ops})
	require.Len(t, resolved.ValidEdits, 15)

	validated := m.Validate(resolved)
	assert.Len(t, validated.ValidEdits, maxEdits)
	assert.Len(t, validated.RejectedEdits, 5)
	for _, rej := range validated.RejectedEdits {
		assert.Contains(t, rej.Reason, "Exceeded maximum edits limit")
	}
}

func TestValidateClampsMoveDelta(t *testing.T) {
	doc := sampleDoc()
	m := New(log.Default())

	boundsVal := rawJSON(t, boundsDelta{DX: 0.5, DY: 0.5})
	prop := visionrefiner.Proposal{
		Operations: []visionrefiner.Operation{
			{Type: visionrefiner.OpUpdateElement, ElementID: "producer_text", Property: "bounds", Value: boundsVal},
		},
	}

	resolved := m.Resolve(doc, prop)
	require.Len(t, resolved.ValidEdits, 1)

	validated := m.Validate(resolved)
	require.Len(t, validated.ValidEdits, 1)
	require.Len(t, validated.ClampedEdits, 1)
	assert.True(t, validated.ValidEdits[0].Clamped)
	assert.Equal(t, maxDelta, validated.ValidEdits[0].DX)
	assert.Equal(t, maxDelta, validated.ValidEdits[0].DY)
}

func TestApplyMovesAndStaysWithinCanvasAfterClamp(t *testing.T) {
	doc := sampleDoc()
	m := New(log.Default())

	boundsVal := rawJSON(t, boundsDelta{DX: 0.5, DY: 0.5})
	prop := visionrefiner.Proposal{
		Operations: []visionrefiner.Operation{
			{Type: visionrefiner.OpUpdateElement, ElementID: "producer_text", Property: "bounds", Value: boundsVal},
		},
	}
	resolved := m.Resolve(doc, prop)
	validated := m.Validate(resolved)

	updated, applied := Apply(doc, validated.ValidEdits)
	require.Len(t, applied, 1)

	el, _ := updated.ElementByID("producer_text")
	require.NotNil(t, el)
	// producer_text is W=0.8, so x=0.1+maxDelta=0.3 would put x+w at 1.1;
	// the final clamp pulls x back down to 1-w=0.2. y+h=0.3+0.15=0.45
	// stays within the canvas, so y is untouched.
	assert.InDelta(t, 1-el.Bounds.W, el.Bounds.X, 1e-9)
	assert.InDelta(t, 0.1+maxDelta, el.Bounds.Y, 1e-9)
	assert.LessOrEqual(t, el.Bounds.X+el.Bounds.W, 1.0+1e-9)
	assert.LessOrEqual(t, el.Bounds.Y+el.Bounds.H, 1.0+1e-9)

	// Original document must be untouched (immutable apply).
	orig, _ := doc.ElementByID("producer_text")
	assert.Equal(t, 0.1, orig.Bounds.X)
}

// TestApplyMoveNearCanvasEdgeClampsFinalBounds exercises an element that
// starts close enough to the canvas edge that even a single clamped delta
// (maxDelta=0.2) would push it out of [0,1] without the final-bounds
// clamp in apply.go.
func TestApplyMoveNearCanvasEdgeClampsFinalBounds(t *testing.T) {
	doc := sampleDoc()
	doc.Elements = append(doc.Elements, labeldoc.Element{
		Type:   labeldoc.ElementShape,
		ID:     "edge-badge",
		Bounds: labeldoc.Bounds{X: 0.85, Y: 0.85, W: 0.1, H: 0.1},
		Z:      30,
		Shape:  &labeldoc.ShapeElement{Shape: labeldoc.ShapeRect, Color: labeldoc.RoleAccent},
	})

	edits := []Edit{{Kind: EditMove, ElementID: "edge-badge", DX: maxDelta, DY: maxDelta}}
	updated, applied := Apply(doc, edits)
	require.Len(t, applied, 1)

	el, _ := updated.ElementByID("edge-badge")
	require.NotNil(t, el)
	assert.InDelta(t, 1-el.Bounds.W, el.Bounds.X, 1e-9)
	assert.InDelta(t, 1-el.Bounds.H, el.Bounds.Y, 1e-9)
	assert.GreaterOrEqual(t, el.Bounds.X, 0.0)
	assert.GreaterOrEqual(t, el.Bounds.Y, 0.0)
	assert.LessOrEqual(t, el.Bounds.X+el.Bounds.W, 1.0+1e-9)
	assert.LessOrEqual(t, el.Bounds.Y+el.Bounds.H, 1.0+1e-9)
}

// TestApplyResizeClampsWidthAndHeightWithinCanvas covers the resize side
// of the same invariant: a resize delta that would grow an element past
// the canvas edge is clamped, not just the per-edit delta magnitude.
func TestApplyResizeClampsWidthAndHeightWithinCanvas(t *testing.T) {
	doc := sampleDoc()
	doc.Elements = append(doc.Elements, labeldoc.Element{
		Type:   labeldoc.ElementShape,
		ID:     "edge-badge",
		Bounds: labeldoc.Bounds{X: 0.85, Y: 0.85, W: 0.1, H: 0.1},
		Z:      30,
		Shape:  &labeldoc.ShapeElement{Shape: labeldoc.ShapeRect, Color: labeldoc.RoleAccent},
	})

	edits := []Edit{{Kind: EditResize, ElementID: "edge-badge", DW: maxDelta, DH: maxDelta}}
	updated, applied := Apply(doc, edits)
	require.Len(t, applied, 1)

	el, _ := updated.ElementByID("edge-badge")
	require.NotNil(t, el)
	assert.LessOrEqual(t, el.Bounds.W, 1.0+1e-9)
	assert.LessOrEqual(t, el.Bounds.H, 1.0+1e-9)
	assert.LessOrEqual(t, el.Bounds.X+el.Bounds.W, 1.0+1e-9)
	assert.LessOrEqual(t, el.Bounds.Y+el.Bounds.H, 1.0+1e-9)
}

func TestApplyRecolorUpdatesTextElement(t *testing.T) {
	doc := sampleDoc()
	edits := []Edit{{Kind: EditRecolor, ElementID: "vintage", Role: labeldoc.RoleAccent}}
	updated, applied := Apply(doc, edits)
	require.Len(t, applied, 1)
	el, _ := updated.ElementByID("vintage")
	assert.Equal(t, labeldoc.RoleAccent, el.Text.Color)
}

func TestApplyAddAndRemoveElement(t *testing.T) {
	doc := sampleDoc()
	newEl := labeldoc.Element{Type: labeldoc.ElementShape, ID: "divider", Bounds: labeldoc.Bounds{X: 0, Y: 0.5, W: 1, H: 0.01}, Z: 5, Shape: &labeldoc.ShapeElement{Shape: labeldoc.ShapeLine, Color: labeldoc.RoleAccent}}
	edits := []Edit{
		{Kind: EditAddElement, Element: &newEl},
		{Kind: EditRemoveElement, ElementID: "vintage"},
	}
	updated, applied := Apply(doc, edits)
	require.Len(t, applied, 2)

	removed, _ := updated.ElementByID("vintage")
	assert.Nil(t, removed)
	added, _ := updated.ElementByID("divider")
	require.NotNil(t, added)
}

func TestNearestPaletteRolePicksClosestByRGBDistance(t *testing.T) {
	doc := sampleDoc()
	role, err := nearestPaletteRole(doc.Palette, "#fefefe")
	require.NoError(t, err)
	assert.Equal(t, labeldoc.RoleBackground, role)
}

func TestParseRelativeFontSize(t *testing.T) {
	v, err := parseRelativeFontSize("larger", 20)
	require.NoError(t, err)
	assert.Equal(t, 24.0, v)

	v, err = parseRelativeFontSize("+4", 20)
	require.NoError(t, err)
	assert.Equal(t, 24.0, v)

	v, err = parseRelativeFontSize("18", 20)
	require.NoError(t, err)
	assert.Equal(t, 18.0, v)
}
