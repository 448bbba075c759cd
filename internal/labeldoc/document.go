// Package labeldoc defines the versioned label document model and the
// schema-driven validator that gates whether a document is renderable.
package labeldoc

import "encoding/json"

// Version is the only document schema version this package understands.
const Version = "1"

// Style is the closed set of submission styles that drive design-scheme
// generation.
type Style string

const (
	StyleClassic Style = "classic"
	StyleModern  Style = "modern"
	StyleElegant Style = "elegant"
	StyleFunky   Style = "funky"
)

// Document is the declarative description of a printable label: canvas,
// palette, typography, referenced assets, and positioned elements.
type Document struct {
	Version    string       `json:"version"`
	Canvas     Canvas       `json:"canvas"`
	Palette    Palette      `json:"palette"`
	Typography Typography   `json:"typography"`
	Assets     []Asset      `json:"assets"`
	Elements   []Element    `json:"elements"`
}

// Canvas is the physical page the document renders onto.
type Canvas struct {
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	DPI        float64 `json:"dpi"`
	Background string  `json:"background"`
}

// Temperature and Contrast are closed palette descriptors.
type Temperature string
type Contrast string

const (
	TemperatureWarm    Temperature = "warm"
	TemperatureCool    Temperature = "cool"
	TemperatureNeutral Temperature = "neutral"

	ContrastHigh   Contrast = "high"
	ContrastMedium Contrast = "medium"
	ContrastLow    Contrast = "low"
)

// PaletteRole names one of the four color roles a text/shape element can be
// colored by, rather than by raw hex value.
type PaletteRole string

const (
	RolePrimary    PaletteRole = "primary"
	RoleSecondary  PaletteRole = "secondary"
	RoleAccent     PaletteRole = "accent"
	RoleBackground PaletteRole = "background"
)

// AllPaletteRoles lists the closed set of palette roles in a stable order,
// used by nearest-role color projection (C7) and validation.
var AllPaletteRoles = []PaletteRole{RolePrimary, RoleSecondary, RoleAccent, RoleBackground}

// Palette is the label's four-color-role scheme plus its temperature/contrast
// descriptors.
type Palette struct {
	Primary     string      `json:"primary"`
	Secondary   string      `json:"secondary"`
	Accent      string      `json:"accent"`
	Background  string      `json:"background"`
	Temperature Temperature `json:"temperature"`
	Contrast    Contrast    `json:"contrast"`
}

// RoleHex returns the hex value bound to a palette role.
func (p Palette) RoleHex(role PaletteRole) (string, bool) {
	switch role {
	case RolePrimary:
		return p.Primary, true
	case RoleSecondary:
		return p.Secondary, true
	case RoleAccent:
		return p.Accent, true
	case RoleBackground:
		return p.Background, true
	default:
		return "", false
	}
}

// FontStyle is the closed set of font styles.
type FontStyle string

const (
	FontStyleNormal FontStyle = "normal"
	FontStyleItalic FontStyle = "italic"
)

// Font describes one of the document's two typefaces.
type Font struct {
	Family        string    `json:"family"`
	Weight        int       `json:"weight"`
	Style         FontStyle `json:"style"`
	LetterSpacing float64   `json:"letterSpacing"`
}

// Emphasis, Prominence and Display are closed hierarchy descriptors.
type Emphasis string
type Prominence string
type Display string

const (
	EmphasisDominant Emphasis = "dominant"
	EmphasisBalanced Emphasis = "balanced"
	EmphasisSubtle   Emphasis = "subtle"

	ProminenceFeatured Prominence = "featured"
	ProminenceStandard Prominence = "standard"
	ProminenceMinimal  Prominence = "minimal"

	DisplayProminent Display = "prominent"
	DisplayIntegrated Display = "integrated"
	DisplaySubtle     Display = "subtle"
)

// Hierarchy captures the relative visual weight of the three anchor fields.
type Hierarchy struct {
	ProducerEmphasis  Emphasis   `json:"producerEmphasis"`
	VintageProminence Prominence `json:"vintageProminence"`
	RegionDisplay     Display    `json:"regionDisplay"`
}

// Typography bundles the two fonts and their hierarchy rules.
type Typography struct {
	Primary   Font      `json:"primary"`
	Secondary Font      `json:"secondary"`
	Hierarchy Hierarchy `json:"hierarchy"`
}

// Asset is a generated image referenced by id from image elements.
type Asset struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Bounds is a normalized [0,1] bounding box.
type Bounds struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// ElementType discriminates the Element sum type.
type ElementType string

const (
	ElementText  ElementType = "text"
	ElementImage ElementType = "image"
	ElementShape ElementType = "shape"
)

// Align, TextTransform, Fit and ShapeKind are closed element descriptors.
type Align string
type TextTransform string
type Fit string
type ShapeKind string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
	AlignRight  Align = "right"

	TransformUppercase TextTransform = "uppercase"
	TransformLowercase TextTransform = "lowercase"
	TransformNone      TextTransform = "none"

	FitContain Fit = "contain"
	FitCover   Fit = "cover"
	FitFill    Fit = "fill"

	ShapeRect ShapeKind = "rect"
	ShapeLine ShapeKind = "line"
)

// Element is the tagged union of text/image/shape elements. Exactly one of
// Text/Image/Shape is populated, selected by Type.
type Element struct {
	Type   ElementType `json:"type"`
	ID     string      `json:"id"`
	Bounds Bounds      `json:"bounds"`
	Z      int         `json:"z"`

	Text  *TextElement  `json:"text,omitempty"`
	Image *ImageElement `json:"image,omitempty"`
	Shape *ShapeElement `json:"shape,omitempty"`
}

// TextElement is the variant-specific payload of a text element.
type TextElement struct {
	Text          string        `json:"text"`
	Font          string        `json:"font"` // "primary" | "secondary"
	Color         PaletteRole   `json:"color"`
	Align         Align         `json:"align"`
	FontSize      float64       `json:"fontSize"`
	LineHeight    float64       `json:"lineHeight"`
	MaxLines      int           `json:"maxLines"`
	TextTransform TextTransform `json:"textTransform"`
}

// ImageElement is the variant-specific payload of an image element.
type ImageElement struct {
	AssetID  string  `json:"assetId"`
	Fit      Fit     `json:"fit"`
	Opacity  float64 `json:"opacity"`
	Rotation float64 `json:"rotation"`
}

// ShapeElement is the variant-specific payload of a shape element.
type ShapeElement struct {
	Shape       ShapeKind   `json:"shape"`
	Color       PaletteRole `json:"color"`
	StrokeWidth float64     `json:"strokeWidth"`
	Rotation    float64     `json:"rotation"`
}

// Clone returns a deep copy of the document, used by C7's immutable Apply.
func (d Document) Clone() Document {
	// json round-trip keeps this correct as fields are added to the model,
	// at the cost of an allocation; documents are small (tens of elements).
	raw, err := json.Marshal(d)
	if err != nil {
		panic("labeldoc: clone marshal: " + err.Error())
	}
	var out Document
	if err := json.Unmarshal(raw, &out); err != nil {
		panic("labeldoc: clone unmarshal: " + err.Error())
	}
	return out
}

// ElementByID returns the element with the given id, if present.
func (d Document) ElementByID(id string) (*Element, int) {
	for i := range d.Elements {
		if d.Elements[i].ID == id {
			return &d.Elements[i], i
		}
	}
	return nil, -1
}

// AssetByID returns the asset with the given id, if present.
func (d Document) AssetByID(id string) (*Asset, bool) {
	for i := range d.Assets {
		if d.Assets[i].ID == id {
			return &d.Assets[i], true
		}
	}
	return nil, false
}
