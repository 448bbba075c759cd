package labeldoc

import (
	"fmt"
	"regexp"
)

// IssueCode enumerates the closed set of validation failure codes.
type IssueCode string

const (
	CodeTooBig           IssueCode = "too_big"
	CodeTooSmall         IssueCode = "too_small"
	CodeBadEnum          IssueCode = "bad_enum"
	CodeMissingRequired  IssueCode = "missing_required"
	CodeUnknownAssetRef  IssueCode = "unknown_asset_ref"
	CodeUnreferencedAsset IssueCode = "unreferenced_asset"
)

// Issue is a single validation failure: a dotted path into the document and
// a code identifying the kind of failure.
type Issue struct {
	Path string    `json:"path"`
	Code IssueCode `json:"code"`
	Msg  string    `json:"msg,omitempty"`
}

func (i Issue) String() string {
	if i.Msg == "" {
		return fmt.Sprintf("%s: %s", i.Path, i.Code)
	}
	return fmt.Sprintf("%s: %s (%s)", i.Path, i.Code, i.Msg)
}

type issues []Issue

func (is *issues) add(path string, code IssueCode, msg string) {
	*is = append(*is, Issue{Path: path, Code: code, Msg: msg})
}

var hexColorRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Validate runs the full invariant set appropriate for a finished,
// detailed-layout document: canvas/palette/typography populated, every
// image element resolves to a declared asset, every asset referenced at
// least once, and element ids unique. It is equivalent to calling
// ValidateDetailedLayout with requiredMinAssets=0.
func Validate(doc Document) []Issue {
	return ValidateDetailedLayout(doc, 0)
}

// ValidateDesignScheme validates the narrower design-scheme stage output:
// canvas/palette/typography must be fully populated, but assets and
// elements must both be empty (the detailed-layout stage populates them).
func ValidateDesignScheme(doc Document) []Issue {
	var is issues
	validateCore(doc, &is)
	if len(doc.Assets) != 0 {
		is.add("assets", CodeMissingRequired, "design-scheme output must have empty assets")
	}
	if len(doc.Elements) != 0 {
		is.add("elements", CodeMissingRequired, "design-scheme output must have empty elements")
	}
	return is
}

// ValidateDetailedLayout validates a fully populated document: core fields,
// element/asset invariants, and cross-references. requiredMinAssets, when
// > 0, additionally requires at least that many declared assets.
func ValidateDetailedLayout(doc Document, requiredMinAssets int) []Issue {
	var is issues
	validateCore(doc, &is)

	if requiredMinAssets > 0 && len(doc.Assets) < requiredMinAssets {
		is.add("assets", CodeMissingRequired, fmt.Sprintf("expected at least %d assets", requiredMinAssets))
	}

	seenAssetIDs := map[string]bool{}
	for i, a := range doc.Assets {
		path := fmt.Sprintf("assets.%d", i)
		if a.ID == "" {
			is.add(path+".id", CodeMissingRequired, "")
			continue
		}
		if seenAssetIDs[a.ID] {
			is.add(path+".id", CodeBadEnum, "duplicate asset id")
		}
		seenAssetIDs[a.ID] = true
		if a.Width <= 0 {
			is.add(path+".width", CodeTooSmall, "")
		}
		if a.Height <= 0 {
			is.add(path+".height", CodeTooSmall, "")
		}
	}

	seenElementIDs := map[string]bool{}
	referencedAssets := map[string]bool{}
	for i, el := range doc.Elements {
		path := fmt.Sprintf("elements.%d", i)
		if el.ID == "" {
			is.add(path+".id", CodeMissingRequired, "")
		} else if seenElementIDs[el.ID] {
			is.add(path+".id", CodeBadEnum, "duplicate element id")
		}
		seenElementIDs[el.ID] = true

		validateBounds(path+".bounds", el.Bounds, &is)
		if el.Z < 0 || el.Z > 1000 {
			is.add(path+".z", badRange(el.Z > 1000), "z must be in [0,1000]")
		}

		switch el.Type {
		case ElementText:
			validateTextElement(path, el.Text, &is)
		case ElementImage:
			validateImageElement(path, el.Image, doc, seenAssetIDs, referencedAssets, &is)
		case ElementShape:
			validateShapeElement(path, el.Shape, &is)
		default:
			is.add(path+".type", CodeBadEnum, string(el.Type))
		}
	}

	for _, a := range doc.Assets {
		if a.ID != "" && !referencedAssets[a.ID] {
			is.add(fmt.Sprintf("assets.%s", a.ID), CodeUnreferencedAsset, "")
		}
	}

	return is
}

func badRange(tooBig bool) IssueCode {
	if tooBig {
		return CodeTooBig
	}
	return CodeTooSmall
}

func validateCore(doc Document, is *issues) {
	if doc.Version != Version {
		is.add("version", CodeBadEnum, doc.Version)
	}
	validateCanvas(doc.Canvas, is)
	validatePalette(doc.Palette, is)
	validateTypography(doc.Typography, is)
}

func validateCanvas(c Canvas, is *issues) {
	if c.Width <= 0 {
		is.add("canvas.width", CodeTooSmall, "")
	}
	if c.Height <= 0 {
		is.add("canvas.height", CodeTooSmall, "")
	}
	if c.DPI <= 0 {
		is.add("canvas.dpi", CodeTooSmall, "")
	}
	if c.Background == "" {
		is.add("canvas.background", CodeMissingRequired, "")
	}
}

func validatePalette(p Palette, is *issues) {
	for _, field := range []struct {
		name, val string
	}{
		{"primary", p.Primary}, {"secondary", p.Secondary},
		{"accent", p.Accent}, {"background", p.Background},
	} {
		if field.val == "" {
			is.add("palette."+field.name, CodeMissingRequired, "")
		} else if !hexColorRe.MatchString(field.val) {
			is.add("palette."+field.name, CodeBadEnum, field.val)
		}
	}
	switch p.Temperature {
	case TemperatureWarm, TemperatureCool, TemperatureNeutral:
	default:
		is.add("palette.temperature", CodeBadEnum, string(p.Temperature))
	}
	switch p.Contrast {
	case ContrastHigh, ContrastMedium, ContrastLow:
	default:
		is.add("palette.contrast", CodeBadEnum, string(p.Contrast))
	}
}

func validateTypography(t Typography, is *issues) {
	validateFont("typography.primary", t.Primary, is)
	validateFont("typography.secondary", t.Secondary, is)

	switch t.Hierarchy.ProducerEmphasis {
	case EmphasisDominant, EmphasisBalanced, EmphasisSubtle:
	default:
		is.add("typography.hierarchy.producerEmphasis", CodeBadEnum, string(t.Hierarchy.ProducerEmphasis))
	}
	switch t.Hierarchy.VintageProminence {
	case ProminenceFeatured, ProminenceStandard, ProminenceMinimal:
	default:
		is.add("typography.hierarchy.vintageProminence", CodeBadEnum, string(t.Hierarchy.VintageProminence))
	}
	switch t.Hierarchy.RegionDisplay {
	case DisplayProminent, DisplayIntegrated, DisplaySubtle:
	default:
		is.add("typography.hierarchy.regionDisplay", CodeBadEnum, string(t.Hierarchy.RegionDisplay))
	}
}

func validateFont(path string, f Font, is *issues) {
	if f.Family == "" {
		is.add(path+".family", CodeMissingRequired, "")
	}
	if f.Weight < 100 {
		is.add(path+".weight", CodeTooSmall, "")
	} else if f.Weight > 900 {
		is.add(path+".weight", CodeTooBig, "")
	}
	switch f.Style {
	case FontStyleNormal, FontStyleItalic:
	default:
		is.add(path+".style", CodeBadEnum, string(f.Style))
	}
}

func validateBounds(path string, b Bounds, is *issues) {
	check := func(name string, v float64) {
		if v < 0 {
			is.add(path+"."+name, CodeTooSmall, "")
		} else if v > 1 {
			is.add(path+"."+name, CodeTooBig, "")
		}
	}
	check("x", b.X)
	check("y", b.Y)
	check("w", b.W)
	check("h", b.H)
}

func validateTextElement(path string, t *TextElement, is *issues) {
	if t == nil {
		is.add(path+".text", CodeMissingRequired, "text payload missing")
		return
	}
	if t.Text == "" {
		is.add(path+".text.text", CodeMissingRequired, "")
	}
	if t.Font != "primary" && t.Font != "secondary" {
		is.add(path+".text.font", CodeBadEnum, t.Font)
	}
	if _, ok := validPaletteRole(t.Color); !ok {
		is.add(path+".text.color", CodeBadEnum, string(t.Color))
	}
	switch t.Align {
	case AlignLeft, AlignCenter, AlignRight:
	default:
		is.add(path+".text.align", CodeBadEnum, string(t.Align))
	}
	if t.FontSize <= 0 {
		is.add(path+".text.fontSize", CodeTooSmall, "")
	}
	if t.LineHeight <= 0 {
		is.add(path+".text.lineHeight", CodeTooSmall, "")
	}
	if t.MaxLines < 1 {
		is.add(path+".text.maxLines", CodeTooSmall, "")
	} else if t.MaxLines > 10 {
		is.add(path+".text.maxLines", CodeTooBig, "")
	}
	switch t.TextTransform {
	case TransformUppercase, TransformLowercase, TransformNone:
	default:
		is.add(path+".text.textTransform", CodeBadEnum, string(t.TextTransform))
	}
}

func validateImageElement(path string, img *ImageElement, doc Document, seenAssetIDs, referenced map[string]bool, is *issues) {
	if img == nil {
		is.add(path+".image", CodeMissingRequired, "image payload missing")
		return
	}
	if img.AssetID == "" {
		is.add(path+".image.assetId", CodeMissingRequired, "")
	} else if !seenAssetIDs[img.AssetID] {
		is.add(path+".image.assetId", CodeUnknownAssetRef, img.AssetID)
	} else {
		referenced[img.AssetID] = true
	}
	switch img.Fit {
	case FitContain, FitCover, FitFill:
	default:
		is.add(path+".image.fit", CodeBadEnum, string(img.Fit))
	}
	if img.Opacity < 0 || img.Opacity > 1 {
		is.add(path+".image.opacity", badRange(img.Opacity > 1), "")
	}
	if img.Rotation < -180 || img.Rotation > 180 {
		is.add(path+".image.rotation", badRange(img.Rotation > 180), "")
	}
	_ = doc
}

func validateShapeElement(path string, s *ShapeElement, is *issues) {
	if s == nil {
		is.add(path+".shape", CodeMissingRequired, "shape payload missing")
		return
	}
	switch s.Shape {
	case ShapeRect, ShapeLine:
	default:
		is.add(path+".shape.shape", CodeBadEnum, string(s.Shape))
	}
	if _, ok := validPaletteRole(s.Color); !ok {
		is.add(path+".shape.color", CodeBadEnum, string(s.Color))
	}
	if s.StrokeWidth < 0 || s.StrokeWidth > 20 {
		is.add(path+".shape.strokeWidth", badRange(s.StrokeWidth > 20), "")
	}
	if s.Rotation < -180 || s.Rotation > 180 {
		is.add(path+".shape.rotation", badRange(s.Rotation > 180), "")
	}
}

func validPaletteRole(r PaletteRole) (PaletteRole, bool) {
	for _, role := range AllPaletteRoles {
		if role == r {
			return role, true
		}
	}
	return "", false
}

// OK reports whether the issue list is empty — "ok | list<issue>" per
// spec.md §4.1.
func OK(is []Issue) bool {
	return len(is) == 0
}
