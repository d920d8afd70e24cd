package assets

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// SVGInfo is the geometry and palette of an SVG document.
type SVGInfo struct {
	Width  float64
	Height float64
	// Colors lists the distinct fill colors of shape elements in document order.
	Colors []string
}

var shapeElements = map[string]bool{
	"path": true, "rect": true, "circle": true, "ellipse": true,
	"polygon": true, "polyline": true, "line": true, "text": true,
}

// LooksLikeSVG reports whether data starts like an SVG document.
func LooksLikeSVG(data []byte) bool {
	head := bytes.TrimSpace(data)
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.HasPrefix(head, []byte("<svg")) ||
		(bytes.HasPrefix(head, []byte("<?xml")) && bytes.Contains(head, []byte("<svg")))
}

// ParseSVG reads the size of the root svg element and the fills of its
// shapes. The size comes from width/height, falling back to the viewBox.
func ParseSVG(r io.Reader) (SVGInfo, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false

	var info SVGInfo
	seen := make(map[string]bool)
	rooted := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return SVGInfo{}, fmt.Errorf("parsing svg: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		name := strings.ToLower(start.Name.Local)
		if !rooted {
			if name != "svg" {
				return SVGInfo{}, fmt.Errorf("root element is %q, not svg", start.Name.Local)
			}
			rooted = true
			info.Width, info.Height = svgSize(start.Attr)
			continue
		}
		if !shapeElements[name] {
			continue
		}
		fill := shapeFill(start.Attr)
		if fill == "" || fill == "none" || seen[fill] {
			continue
		}
		seen[fill] = true
		info.Colors = append(info.Colors, fill)
	}
	if !rooted {
		return SVGInfo{}, errors.New("no svg element")
	}
	if info.Width <= 0 || info.Height <= 0 {
		return SVGInfo{}, errors.New("svg has no usable size")
	}
	return info, nil
}

func svgSize(attrs []xml.Attr) (float64, float64) {
	var w, h float64
	var viewBox string
	for _, a := range attrs {
		switch a.Name.Local {
		case "width":
			w = parseLength(a.Value)
		case "height":
			h = parseLength(a.Value)
		case "viewBox":
			viewBox = a.Value
		}
	}
	if (w <= 0 || h <= 0) && viewBox != "" {
		parts := strings.FieldsFunc(viewBox, func(r rune) bool { return r == ' ' || r == ',' })
		if len(parts) == 4 {
			vw, _ := strconv.ParseFloat(parts[2], 64)
			vh, _ := strconv.ParseFloat(parts[3], 64)
			if w <= 0 {
				w = vw
			}
			if h <= 0 {
				h = vh
			}
		}
	}
	return w, h
}

// parseLength accepts plain numbers and px values. Percentages and other
// units are treated as absent.
func parseLength(s string) float64 {
	s = strings.TrimSuffix(strings.TrimSpace(s), "px")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func shapeFill(attrs []xml.Attr) string {
	for _, a := range attrs {
		if a.Name.Local == "fill" {
			return strings.ToLower(strings.TrimSpace(a.Value))
		}
	}
	for _, a := range attrs {
		if a.Name.Local != "style" {
			continue
		}
		for _, decl := range strings.Split(a.Value, ";") {
			k, v, ok := strings.Cut(decl, ":")
			if ok && strings.TrimSpace(k) == "fill" {
				return strings.ToLower(strings.TrimSpace(v))
			}
		}
	}
	return ""
}
