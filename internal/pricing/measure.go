package pricing

import (
	"strings"
	"unicode"

	"github.com/product-designer/backend/internal/models"
)

// Measured property names.
const (
	PropTextLength      = "textLength"
	PropLinesLength     = "linesLength"
	PropFontSize        = "fontSize"
	PropImageWidth      = "imageWidth"
	PropImageHeight     = "imageHeight"
	PropImageSize       = "imageSize"
	PropImageSizeScaled = "imageSizeScaled"
	PropCanvasSize      = "canvasSize"
	PropCoverage        = "coverage"
	PropElementsLength  = "elementsLength"
	PropColorsLength    = "colorsLength"
)

// loopOnce lists the properties measured over the whole target set instead of
// per target element.
var loopOnce = map[string]bool{
	PropElementsLength: true,
	PropColorsLength:   true,
}

// Target is an element together with the view that owns it.
type Target struct {
	Element *models.Element
	View    *models.View
}

// Size is the measured value of compound properties.
type Size map[string]float64

// Measure computes a per-element property. ok is false when the property does
// not apply to the element.
func Measure(property string, t Target) (any, bool) {
	el := t.Element
	switch property {
	case PropTextLength:
		if !el.IsText() {
			return nil, false
		}
		n := 0
		for _, r := range el.Params.Text {
			if !unicode.IsSpace(r) {
				n++
			}
		}
		return float64(n), true
	case PropLinesLength:
		if !el.IsText() {
			return nil, false
		}
		return float64(len(strings.Split(el.Params.Text, "\n"))), true
	case PropFontSize:
		if !el.IsText() {
			return nil, false
		}
		return el.Params.FontSize, true
	case PropImageWidth:
		if !el.IsImage() {
			return nil, false
		}
		return el.Params.Width, true
	case PropImageHeight:
		if !el.IsImage() {
			return nil, false
		}
		return el.Params.Height, true
	case PropImageSize:
		if !el.IsImage() {
			return nil, false
		}
		return Size{"width": el.Params.Width, "height": el.Params.Height}, true
	case PropImageSizeScaled:
		if !el.IsImage() {
			return nil, false
		}
		w, h := el.ScaledSize()
		return Size{"width": w, "height": h}, true
	case PropCanvasSize:
		if t.View == nil {
			return nil, false
		}
		return Size{"width": t.View.Options.StageWidth, "height": t.View.Options.StageHeight}, true
	case PropCoverage:
		if t.View == nil {
			return nil, false
		}
		area := coverageArea(t.View)
		if area.Area() == 0 {
			return nil, false
		}
		covered := area.Intersect(el.BoundingRect()).Area()
		return covered / area.Area() * 100, true
	}
	return nil, false
}

// MeasureSet computes a property over a whole target set.
func MeasureSet(property string, targets []Target) (any, bool) {
	switch property {
	case PropElementsLength:
		return float64(len(targets)), true
	case PropColorsLength:
		seen := map[string]bool{}
		for _, t := range targets {
			for _, c := range usedColors(t.Element) {
				seen[strings.ToLower(c)] = true
			}
		}
		return float64(len(seen)), true
	}
	return nil, false
}

func usedColors(el *models.Element) []string {
	var out []string
	if len(el.Params.SvgFill) > 0 {
		out = append(out, el.Params.SvgFill...)
	} else if el.Params.Fill != "" && el.Params.Fill != "none" {
		out = append(out, el.Params.Fill)
	}
	return out
}

func coverageArea(v *models.View) models.Rect {
	if v.Options.PrintingBox != nil {
		return *v.Options.PrintingBox
	}
	return v.StageRect()
}
