package designer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/product-designer/backend/internal/canvas"
	"github.com/product-designer/backend/internal/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var textKeys = []string{
	"text", "maxLength", "maxLines", "textTransform", "fontSize", "fontFamily",
	"widthFontSize", "minFontSize", "maxFontSize", "lineHeight", "letterSpacing", "curved",
}

// normalizeText sanitizes the text content and re-derives the font size and
// the measured text box.
func (s *Stage) normalizeText(el *models.Element, in models.Params) {
	touched := false
	for _, k := range textKeys {
		if in.Has(k) {
			touched = true
			break
		}
	}
	if !touched {
		return
	}
	p := el.Params

	text := p.Text
	if t, ok := in.String("text"); ok {
		text = t
	}
	text = stripChars(text, s.opts.DisallowedChars)

	maxLength := p.MaxLength
	if f, ok := in.Float("maxLength"); ok {
		maxLength = int(f)
	}
	if maxLength > 0 && utf8.RuneCountInString(text) > maxLength {
		text = string([]rune(text)[:maxLength])
	}

	maxLines := p.MaxLines
	if f, ok := in.Float("maxLines"); ok {
		maxLines = int(f)
	}
	if maxLines > 0 {
		if lines := strings.Split(text, "\n"); len(lines) > maxLines {
			text = strings.Join(lines[:maxLines], "\n")
		}
	}

	transform := p.TextTransform
	if t, ok := in.String("textTransform"); ok {
		transform = t
	}
	text = transformCase(text, transform)

	if text != p.Text || in.Has("text") {
		in["text"] = text
	}

	style := canvas.TextStyle{
		FontFamily:    pick(in, "fontFamily", p.FontFamily),
		FontSize:      pickFloat(in, "fontSize", p.FontSize),
		LineHeight:    pickFloat(in, "lineHeight", p.LineHeight),
		LetterSpacing: pickFloat(in, "letterSpacing", p.LetterSpacing),
	}

	size := style.FontSize
	if target := pickFloat(in, "widthFontSize", p.WidthFontSize); target > 0 && text != "" {
		if w, _ := s.measurer.MeasureText(text, style); w > 0 {
			size = size * target / w
		}
	}
	if lo := pickFloat(in, "minFontSize", p.MinFontSize); lo > 0 && size < lo {
		size = lo
	}
	if hi := pickFloat(in, "maxFontSize", p.MaxFontSize); hi > 0 && size > hi {
		size = hi
	}
	if size != p.FontSize || in.Has("fontSize") {
		in["fontSize"] = size
	}

	style.FontSize = size
	w, h := s.measurer.MeasureText(text, style)
	in["width"], in["height"] = w, h
}

// measureText refreshes the text box of a committed element.
func (s *Stage) measureText(el *models.Element) {
	p := &el.Params
	p.Width, p.Height = s.measurer.MeasureText(p.Text, canvas.TextStyle{
		FontFamily:    p.FontFamily,
		FontSize:      p.FontSize,
		LineHeight:    p.LineHeight,
		LetterSpacing: p.LetterSpacing,
	})
}

func stripChars(text, disallowed string) string {
	if disallowed == "" {
		return text
	}
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(disallowed, r) {
			return -1
		}
		return r
	}, text)
}

func transformCase(text, mode string) string {
	switch mode {
	case "uppercase":
		return cases.Upper(language.Und).String(text)
	case "lowercase":
		return cases.Lower(language.Und).String(text)
	case "capitalize":
		return cases.Title(language.Und).String(text)
	}
	return text
}

// curvePath describes the arc text is laid out along.
func curvePath(radius float64, reverse bool) string {
	if radius <= 0 {
		radius = 80
	}
	sweep := 1
	if reverse {
		sweep = 0
	}
	return fmt.Sprintf("M %g 0 A %g %g 0 0 %d %g 0", -radius, radius, radius, sweep, radius)
}

func pick(in models.Params, key, fallback string) string {
	if v, ok := in.String(key); ok {
		return v
	}
	return fallback
}

func pickFloat(in models.Params, key string, fallback float64) float64 {
	if v, ok := in.Float(key); ok {
		return v
	}
	return fallback
}
