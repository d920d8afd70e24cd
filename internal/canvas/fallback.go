package canvas

import (
	"strings"
	"unicode/utf8"

	"github.com/product-designer/backend/internal/models"
)

// ApproxMeasurer estimates text size from character counts. It is used when
// no font is available to measure with.
type ApproxMeasurer struct {
	// CharWidth is the average advance as a fraction of the font size.
	CharWidth float64
}

// MeasureText implements Measurer.
func (m ApproxMeasurer) MeasureText(text string, style TextStyle) (float64, float64) {
	cw := m.CharWidth
	if cw <= 0 {
		cw = 0.6
	}
	size := style.FontSize
	if size <= 0 {
		size = 18
	}
	lh := style.LineHeight
	if lh <= 0 {
		lh = 1.2
	}
	lines := strings.Split(text, "\n")
	widest := 0.0
	for _, line := range lines {
		n := utf8.RuneCountInString(line)
		w := float64(n)*size*cw + float64(max(n-1, 0))*style.LetterSpacing
		widest = max(widest, w)
	}
	return widest, float64(len(lines)) * size * lh
}

// NopEngine satisfies Engine without drawing anything.
type NopEngine struct{}

// Colorize implements Colorizable.
func (NopEngine) Colorize(*models.Element, Fill) error {
	return nil
}

// Clip implements Clippable.
func (NopEngine) Clip(*models.Element, *models.Rect) error {
	return nil
}

// Snapshot implements Snapshotter.
func (NopEngine) Snapshot(*models.View, SnapshotOptions) ([]byte, error) {
	return nil, nil
}

// Vectorize implements VectorSerializer.
func (NopEngine) Vectorize(*models.View, SVGOptions) (string, error) {
	return "", nil
}
