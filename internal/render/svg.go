package render

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/product-designer/backend/internal/canvas"
	"github.com/product-designer/backend/internal/models"
)

var (
	xmlEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	svgFillRe = regexp.MustCompile(`fill="[^"]*"`)
)

// Vectorize implements canvas.VectorSerializer.
func (e *Engine) Vectorize(v *models.View, opts canvas.SVGOptions) (string, error) {
	vb := opts.ViewBox
	if vb.Width <= 0 || vb.Height <= 0 {
		vb = v.StageRect()
	}
	if vb.Width <= 0 || vb.Height <= 0 {
		return "", fmt.Errorf("empty view box for view %d", v.Index)
	}
	width, height := opts.Width, opts.Height
	if width <= 0 || height <= 0 {
		width, height = vb.Width, vb.Height
	}

	var defs, body strings.Builder
	e.writeFontFaces(&defs, opts.FontFamilies)

	if opts.Background != "" {
		fmt.Fprintf(&body, `<rect x="%s" y="%s" width="%s" height="%s" fill="%s"/>`,
			num(vb.X), num(vb.Y), num(vb.Width), num(vb.Height), esc(opts.Background))
	}
	for _, el := range v.Elements {
		if !el.Params.Visible {
			continue
		}
		e.writeElement(&defs, &body, el)
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" version="1.1" width="%s" height="%s" viewBox="%s %s %s %s">`,
		num(width), num(height), num(vb.X), num(vb.Y), num(vb.Width), num(vb.Height))
	if defs.Len() > 0 {
		b.WriteString("<defs>")
		b.WriteString(defs.String())
		b.WriteString("</defs>")
	}
	b.WriteString(body.String())
	b.WriteString("</svg>")
	return b.String(), nil
}

func (e *Engine) writeFontFaces(defs *strings.Builder, families []string) {
	var css strings.Builder
	for _, family := range families {
		data, format, ok := e.fonts.Data(family)
		if !ok {
			Logger().Debug("font not embedded", "family", family)
			continue
		}
		mime := "font/ttf"
		if format == "opentype" {
			mime = "font/otf"
		}
		fmt.Fprintf(&css, "@font-face{font-family:'%s';src:url(data:%s;base64,%s) format('%s');}",
			family, mime, base64.StdEncoding.EncodeToString(data), format)
	}
	if css.Len() > 0 {
		defs.WriteString(`<style type="text/css"><![CDATA[`)
		defs.WriteString(css.String())
		defs.WriteString("]]></style>")
	}
}

func (e *Engine) writeElement(defs, body *strings.Builder, el *models.Element) {
	p := el.Params
	id := esc(el.ID)

	clipped := false
	if r, ok := e.ClipOf(el.ID); ok {
		fmt.Fprintf(defs, `<clipPath id="clip-%s" clipPathUnits="userSpaceOnUse"><rect x="%s" y="%s" width="%s" height="%s"/></clipPath>`,
			id, num(r.X), num(r.Y), num(r.Width), num(r.Height))
		fmt.Fprintf(body, `<g clip-path="url(#clip-%s)">`, id)
		clipped = true
	}

	sx, sy := p.ScaleX, p.ScaleY
	if p.FlipX {
		sx = -sx
	}
	if p.FlipY {
		sy = -sy
	}
	fmt.Fprintf(body, `<g id="%s" transform="translate(%s %s) rotate(%s) scale(%s %s)"`,
		id, num(p.X), num(p.Y), num(p.Angle), num(sx), num(sy))
	if p.Opacity < 1 {
		fmt.Fprintf(body, ` opacity="%s"`, num(p.Opacity))
	}
	if sh := p.Shadow; sh != nil && sh.Color != "" {
		fmt.Fprintf(defs, `<filter id="shadow-%s" x="-50%%" y="-50%%" width="200%%" height="200%%"><feDropShadow dx="%s" dy="%s" stdDeviation="%s" flood-color="%s"/></filter>`,
			id, num(sh.OffsetX), num(sh.OffsetY), num(sh.Blur/2), esc(sh.Color))
		fmt.Fprintf(body, ` filter="url(#shadow-%s)"`, id)
	}
	body.WriteString(">")

	if el.IsText() {
		e.writeText(defs, body, el)
	} else {
		e.writeImage(defs, body, el)
	}

	body.WriteString("</g>")
	if clipped {
		body.WriteString("</g>")
	}
}

func (e *Engine) writeImage(defs, body *strings.Builder, el *models.Element) {
	p := el.Params
	id := esc(el.ID)
	fill, _ := e.FillOf(el.ID)

	href := imageHref(el.Source, fill)
	fmt.Fprintf(body, `<image x="%s" y="%s" width="%s" height="%s" preserveAspectRatio="none" xlink:href="%s"`,
		num(-p.Width/2), num(-p.Height/2), num(p.Width), num(p.Height), esc(href))
	switch fill.Kind {
	case canvas.FillSolid:
		fmt.Fprintf(defs, `<filter id="fill-%s" x="0" y="0" width="1" height="1"><feFlood flood-color="%s"/><feComposite in2="SourceAlpha" operator="in"/></filter>`,
			id, esc(fill.Color))
		fmt.Fprintf(body, ` filter="url(#fill-%s)"`, id)
	case canvas.FillPattern:
		fmt.Fprintf(defs, `<pattern id="pattern-%s" patternUnits="userSpaceOnUse" width="%s" height="%s"><image width="%s" height="%s" xlink:href="%s"/></pattern>`,
			id, num(p.Width), num(p.Height), num(p.Width), num(p.Height), esc(assetHref(fill.Pattern)))
		fmt.Fprintf(defs, `<mask id="mask-%s" mask-type="alpha"><image x="%s" y="%s" width="%s" height="%s" preserveAspectRatio="none" xlink:href="%s"/></mask>`,
			id, num(-p.Width/2), num(-p.Height/2), num(p.Width), num(p.Height), esc(href))
		body.WriteString("/>")
		fmt.Fprintf(body, `<rect x="%s" y="%s" width="%s" height="%s" fill="url(#pattern-%s)" mask="url(#mask-%s)"`,
			num(-p.Width/2), num(-p.Height/2), num(p.Width), num(p.Height), id, id)
	}
	body.WriteString("/>")
}

// imageHref returns a reference a standalone SVG viewer can resolve. Inline
// SVG markup becomes a data URI, recolored path by path for multi fills.
func imageHref(source string, fill canvas.Fill) string {
	trimmed := strings.TrimSpace(source)
	if !strings.HasPrefix(trimmed, "<svg") && !strings.HasPrefix(trimmed, "<?xml") {
		return assetHref(source)
	}
	if fill.Kind == canvas.FillMultiPath && len(fill.Colors) > 0 {
		trimmed = RecolorSVG(trimmed, fill.Colors)
	}
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(trimmed))
}

// assetHref rewrites upload references to the asset download route.
func assetHref(source string) string {
	if id, ok := strings.CutPrefix(source, "upload://"); ok {
		return "/api/assets/" + id + "/raw"
	}
	return source
}

// RecolorSVG replaces the fill attributes of markup in document order with
// colors. Fills beyond len(colors) are left as they are.
func RecolorSVG(markup string, colors []string) string {
	i := 0
	return svgFillRe.ReplaceAllStringFunc(markup, func(m string) string {
		if i >= len(colors) {
			return m
		}
		c := colors[i]
		i++
		return `fill="` + esc(c) + `"`
	})
}

func (e *Engine) writeText(defs, body *strings.Builder, el *models.Element) {
	p := el.Params
	id := esc(el.ID)
	size, lineHeight := styleSize(p.FontSize, p.LineHeight)
	fill := p.Fill
	if fill == "" {
		fill = "#000000"
	}
	family := p.FontFamily
	if family == "" {
		family = DefaultFamily
	}

	fmt.Fprintf(body, `<text font-family="%s" font-size="%s" fill="%s"`, esc(family), num(size), esc(fill))
	if p.FontWeight != "" {
		fmt.Fprintf(body, ` font-weight="%s"`, esc(p.FontWeight))
	}
	if p.FontStyle != "" {
		fmt.Fprintf(body, ` font-style="%s"`, esc(p.FontStyle))
	}
	if p.Stroke != "" && p.StrokeWidth > 0 {
		fmt.Fprintf(body, ` stroke="%s" stroke-width="%s"`, esc(p.Stroke), num(p.StrokeWidth))
	}
	if p.LetterSpacing != 0 {
		fmt.Fprintf(body, ` letter-spacing="%s"`, num(p.LetterSpacing))
	}

	if p.Curved && p.CurvePath != "" {
		fmt.Fprintf(defs, `<path id="curve-%s" d="%s" fill="none"/>`, id, esc(p.CurvePath))
		fmt.Fprintf(body, `><textPath xlink:href="#curve-%s" startOffset="50%%" text-anchor="middle">%s</textPath></text>`,
			id, esc(p.Text))
		return
	}

	anchor, x := "start", -p.Width/2
	switch p.TextAlign {
	case "center":
		anchor, x = "middle", 0
	case "right":
		anchor, x = "end", p.Width/2
	}
	fmt.Fprintf(body, ` text-anchor="%s" dominant-baseline="text-before-edge">`, anchor)
	step := size * lineHeight
	top := -p.Height / 2
	for i, line := range strings.Split(p.Text, "\n") {
		fmt.Fprintf(body, `<tspan x="%s" y="%s">%s</tspan>`, num(x), num(top+float64(i)*step), esc(line))
	}
	body.WriteString("</text>")
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func esc(s string) string {
	return xmlEscaper.Replace(s)
}
