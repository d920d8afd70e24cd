package render

import (
	"strings"
	"unicode/utf8"

	"github.com/gogpu/gg/text"
	"github.com/product-designer/backend/internal/canvas"
)

const (
	defaultFontSize   = 18.0
	defaultLineHeight = 1.2
)

// Measurer measures text with the registered fonts.
type Measurer struct {
	fonts *FontRegistry
}

// NewMeasurer returns a Measurer backed by fonts.
func NewMeasurer(fonts *FontRegistry) *Measurer {
	return &Measurer{fonts: fonts}
}

// MeasureText implements canvas.Measurer. The height is the number of lines
// times the font size times the line height, matching how text blocks are
// laid out when drawn.
func (m *Measurer) MeasureText(s string, style canvas.TextStyle) (float64, float64) {
	size, lh := styleSize(style.FontSize, style.LineHeight)
	face := m.fonts.Face(style.FontFamily, size)

	lines := strings.Split(s, "\n")
	widest := 0.0
	for _, line := range lines {
		w, _ := text.Measure(line, face)
		if n := utf8.RuneCountInString(line); n > 1 {
			w += float64(n-1) * style.LetterSpacing
		}
		widest = max(widest, w)
	}
	return widest, float64(len(lines)) * size * lh
}

func styleSize(size, lineHeight float64) (float64, float64) {
	if size <= 0 {
		size = defaultFontSize
	}
	if lineHeight <= 0 {
		lineHeight = defaultLineHeight
	}
	return size, lineHeight
}

var _ canvas.Measurer = (*Measurer)(nil)
