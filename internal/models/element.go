// Package models contains domain types for the product designer.
package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// ElementType discriminates the scene element variants.
type ElementType string

const (
	ElementTypeImage ElementType = "image"
	ElementTypeText  ElementType = "text"
)

// Valid reports whether t is a known element type.
func (t ElementType) Valid() bool {
	return t == ElementTypeImage || t == ElementTypeText
}

// BoundingMode selects how a bounding region restricts an element.
type BoundingMode string

const (
	BoundingNone    BoundingMode = ""
	BoundingClip    BoundingMode = "clipping"
	BoundingLimit   BoundingMode = "limitModification"
	BoundingFlagOut BoundingMode = "inside"
)

// ElementState is the lifecycle position of an element.
type ElementState string

const (
	StateUnattached ElementState = "unattached"
	StateAttached   ElementState = "attached"
	StateCommitted  ElementState = "committed"
	StateReplaced   ElementState = "replaced"
	StateRemoved    ElementState = "removed"
)

// Rect is an axis-aligned rectangle in scene units. X/Y is the top-left corner.
type Rect struct {
	X            float64 `json:"x" yaml:"x"`
	Y            float64 `json:"y" yaml:"y"`
	Width        float64 `json:"width" yaml:"width"`
	Height       float64 `json:"height" yaml:"height"`
	BorderRadius float64 `json:"borderRadius,omitempty" yaml:"borderRadius,omitempty"`
}

// Right returns the x coordinate of the right edge.
func (r Rect) Right() float64 { return r.X + r.Width }

// Bottom returns the y coordinate of the bottom edge.
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Contains reports whether o lies fully inside r. A small epsilon absorbs
// floating point noise from rotated bounds.
func (r Rect) Contains(o Rect) bool {
	const eps = 1e-6
	return o.X >= r.X-eps && o.Y >= r.Y-eps &&
		o.Right() <= r.Right()+eps && o.Bottom() <= r.Bottom()+eps
}

// Intersect returns the overlapping part of r and o, or an empty rect.
func (r Rect) Intersect(o Rect) Rect {
	x0 := math.Max(r.X, o.X)
	y0 := math.Max(r.Y, o.Y)
	x1 := math.Min(r.Right(), o.Right())
	y1 := math.Min(r.Bottom(), o.Bottom())
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Area returns width*height.
func (r Rect) Area() float64 { return r.Width * r.Height }

// BoundingBox is either an explicit rectangle or a reference to the title of
// another element in the same view.
type BoundingBox struct {
	Rect *Rect
	Ref  string
}

// MarshalJSON encodes a reference as a string and a rectangle as an object.
func (b BoundingBox) MarshalJSON() ([]byte, error) {
	if b.Rect != nil {
		return json.Marshal(b.Rect)
	}
	return json.Marshal(b.Ref)
}

// UnmarshalJSON accepts either a title string or a rectangle object.
func (b *BoundingBox) UnmarshalJSON(data []byte) error {
	var ref string
	if err := json.Unmarshal(data, &ref); err == nil {
		*b = BoundingBox{Ref: ref}
		return nil
	}
	var r Rect
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("bounding box must be a title or a rect: %w", err)
	}
	*b = BoundingBox{Rect: &r}
	return nil
}

// Shadow is a drop shadow attached to an element.
type Shadow struct {
	Color   string  `json:"color"`
	Blur    float64 `json:"blur"`
	OffsetX float64 `json:"offsetX"`
	OffsetY float64 `json:"offsetY"`
}

// CharStyle styles a run of characters inside a text element.
type CharStyle struct {
	Start      int    `json:"start"`
	End        int    `json:"end"`
	Fill       string `json:"fill,omitempty"`
	FontWeight string `json:"fontWeight,omitempty"`
	FontStyle  string `json:"fontStyle,omitempty"`
	Underline  bool   `json:"underline,omitempty"`
}

// Parameters is the resolved attribute set of an element.
// X and Y address the element center; Width and Height are the unscaled size.
type Parameters struct {
	ID string `json:"id"`

	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	ScaleX  float64 `json:"scaleX"`
	ScaleY  float64 `json:"scaleY"`
	Angle   float64 `json:"angle"`
	FlipX   bool    `json:"flipX"`
	FlipY   bool    `json:"flipY"`
	Opacity float64 `json:"opacity"`
	Z       int     `json:"z"`
	Visible bool    `json:"visible"`

	Draggable   bool `json:"draggable"`
	Resizable   bool `json:"resizable"`
	Rotatable   bool `json:"rotatable"`
	Removable   bool `json:"removable"`
	Copyable    bool `json:"copyable"`
	ZChangeable bool `json:"zChangeable"`
	Locked      bool `json:"locked"`

	LockMovementX bool `json:"lockMovementX"`
	LockMovementY bool `json:"lockMovementY"`
	LockScalingX  bool `json:"lockScalingX"`
	LockScalingY  bool `json:"lockScalingY"`
	LockRotation  bool `json:"lockRotation"`
	ResizeControl bool `json:"resizeControl"`
	RotateControl bool `json:"rotateControl"`
	RemoveControl bool `json:"removeControl"`
	CopyControl   bool `json:"copyControl"`

	AutoCenter        bool `json:"autoCenter,omitempty"`
	AutoSelect        bool `json:"autoSelect,omitempty"`
	Topped            bool `json:"topped,omitempty"`
	Fixed             bool `json:"fixed,omitempty"`
	ExcludeFromExport bool `json:"excludeFromExport,omitempty"`
	IsCustom          bool `json:"isCustom,omitempty"`
	IsInitial         bool `json:"isInitial,omitempty"`

	Price             float64            `json:"price"`
	ColorPrices       map[string]float64 `json:"colorPrices,omitempty"`
	CurrentColorPrice float64            `json:"currentColorPrice"`

	Fill           string   `json:"fill"`
	Colors         []string `json:"colors,omitempty"`
	Pattern        string   `json:"pattern,omitempty"`
	SvgFill        []string `json:"svgFill,omitempty"`
	ColorLinkGroup string   `json:"colorLinkGroup,omitempty"`
	TextLinkGroup  string   `json:"textLinkGroup,omitempty"`

	BoundingBox     *BoundingBox `json:"boundingBox,omitempty"`
	BoundingBoxMode BoundingMode `json:"boundingBoxMode,omitempty"`
	ScaleMode       string       `json:"scaleMode,omitempty"`
	ResizeToW       float64      `json:"resizeToW,omitempty"`
	ResizeToH       float64      `json:"resizeToH,omitempty"`

	ReplaceKey string `json:"replace,omitempty"`

	UploadZone          bool   `json:"uploadZone,omitempty"`
	UploadZoneScaleMode string `json:"uploadZoneScaleMode,omitempty"`
	UploadZoneMovable   bool   `json:"uploadZoneMovable,omitempty"`
	UploadZoneRemovable bool   `json:"uploadZoneRemovable,omitempty"`
	AddToUploadZone     string `json:"addToUploadZone,omitempty"`
	InUploadZone        string `json:"inUploadZone,omitempty"`

	Shadow *Shadow `json:"shadow,omitempty"`

	// text variant
	Text              string      `json:"text,omitempty"`
	FontFamily        string      `json:"fontFamily,omitempty"`
	FontSize          float64     `json:"fontSize,omitempty"`
	MinFontSize       float64     `json:"minFontSize,omitempty"`
	MaxFontSize       float64     `json:"maxFontSize,omitempty"`
	MaxLength         int         `json:"maxLength,omitempty"`
	MaxLines          int         `json:"maxLines,omitempty"`
	TextTransform     string      `json:"textTransform,omitempty"`
	WidthFontSize     float64     `json:"widthFontSize,omitempty"`
	TextAlign         string      `json:"textAlign,omitempty"`
	LineHeight        float64     `json:"lineHeight,omitempty"`
	LetterSpacing     float64     `json:"letterSpacing,omitempty"`
	FontWeight        string      `json:"fontWeight,omitempty"`
	FontStyle         string      `json:"fontStyle,omitempty"`
	Stroke            string      `json:"stroke,omitempty"`
	StrokeWidth       float64     `json:"strokeWidth,omitempty"`
	TextBox           bool        `json:"textBox,omitempty"`
	Editable          bool        `json:"editable,omitempty"`
	Curved            bool        `json:"curved,omitempty"`
	CurveRadius       float64     `json:"curveRadius,omitempty"`
	CurveSpacing      float64     `json:"curveSpacing,omitempty"`
	CurveReverse      bool        `json:"curveReverse,omitempty"`
	CurvePath         string      `json:"curvePath,omitempty"`
	TextPlaceholder   bool        `json:"textPlaceholder,omitempty"`
	NumberPlaceholder bool        `json:"numberPlaceholder,omitempty"`
	CharStyles        []CharStyle `json:"charStyles,omitempty"`

	// image variant
	Filter string `json:"filter,omitempty"`
	Crop   *Rect  `json:"crop,omitempty"`
}

// Transform is the movable part of an element's geometry.
type Transform struct {
	X      float64
	Y      float64
	ScaleX float64
	ScaleY float64
	Angle  float64
}

// Runtime holds per-element engine state that is never serialized.
type Runtime struct {
	State       ElementState
	OutOfBounds bool
	BorderColor string
	ClipRegion  *Rect
	LastValid   *Transform
	Fresh       bool
}

// Element is a single text or image object placed in a view.
type Element struct {
	ID      string
	Type    ElementType
	Title   string
	Source  string
	View    int
	Params  Parameters
	Runtime Runtime
}

// Transform returns the current movable geometry.
func (e *Element) Transform() Transform {
	p := e.Params
	return Transform{X: p.X, Y: p.Y, ScaleX: p.ScaleX, ScaleY: p.ScaleY, Angle: p.Angle}
}

// SetTransform moves, scales and rotates the element.
func (e *Element) SetTransform(t Transform) {
	e.Params.X, e.Params.Y = t.X, t.Y
	e.Params.ScaleX, e.Params.ScaleY = t.ScaleX, t.ScaleY
	e.Params.Angle = t.Angle
}

// SetPosition moves the element center to x,y.
func (e *Element) SetPosition(x, y float64) {
	e.Params.X, e.Params.Y = x, y
}

// ScaledSize returns the width and height after scaling, before rotation.
func (e *Element) ScaledSize() (float64, float64) {
	return e.Params.Width * math.Abs(e.Params.ScaleX), e.Params.Height * math.Abs(e.Params.ScaleY)
}

// BoundingRect returns the axis-aligned rectangle enclosing the rotated,
// scaled element.
func (e *Element) BoundingRect() Rect {
	w, h := e.ScaledSize()
	rad := e.Params.Angle * math.Pi / 180
	cos, sin := math.Abs(math.Cos(rad)), math.Abs(math.Sin(rad))
	bw := w*cos + h*sin
	bh := w*sin + h*cos
	return Rect{X: e.Params.X - bw/2, Y: e.Params.Y - bh/2, Width: bw, Height: bh}
}

// IsText reports whether the element is the text variant.
func (e *Element) IsText() bool { return e.Type == ElementTypeText }

// IsImage reports whether the element is the image variant.
func (e *Element) IsImage() bool { return e.Type == ElementTypeImage }

// Committed reports whether the element finished its creation pipeline.
func (e *Element) Committed() bool { return e.Runtime.State == StateCommitted }

// ElementPrice returns base price plus the price of the current color.
func (e *Element) ElementPrice() float64 {
	return e.Params.Price + e.Params.CurrentColorPrice
}

// ColorPriceFor returns the configured price of a fill color, matching hex
// values case-insensitively.
func (e *Element) ColorPriceFor(fill string) float64 {
	if len(e.Params.ColorPrices) == 0 || fill == "" {
		return 0
	}
	want := strings.ToLower(fill)
	for color, price := range e.Params.ColorPrices {
		if strings.ToLower(color) == want {
			return price
		}
	}
	return 0
}

// ElementJSON is the wire and snapshot form of an element.
type ElementJSON struct {
	Type       ElementType `json:"type" yaml:"type" msgpack:"type"`
	Source     string      `json:"source" yaml:"source" msgpack:"source"`
	Title      string      `json:"title" yaml:"title" msgpack:"title"`
	Parameters Params      `json:"parameters" yaml:"parameters" msgpack:"parameters"`
}

// JSON serializes the element including its id inside the parameters.
func (e *Element) JSON() (ElementJSON, error) {
	params, err := ParamsOf(e.Params)
	if err != nil {
		return ElementJSON{}, fmt.Errorf("serializing element %s: %w", e.ID, err)
	}
	params["id"] = e.ID
	return ElementJSON{Type: e.Type, Source: e.Source, Title: e.Title, Parameters: params}, nil
}

// ElementFromJSON rebuilds an element from its serialized form without
// running any lifecycle rules.
func ElementFromJSON(ej ElementJSON, view int) (*Element, error) {
	data, err := json.Marshal(ej.Parameters)
	if err != nil {
		return nil, err
	}
	var params Parameters
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, fmt.Errorf("decoding parameters of %q: %w", ej.Title, err)
	}
	return &Element{
		ID:      params.ID,
		Type:    ej.Type,
		Title:   ej.Title,
		Source:  ej.Source,
		View:    view,
		Params:  params,
		Runtime: Runtime{State: StateCommitted},
	}, nil
}

// Clone returns a deep copy of the element.
func (e *Element) Clone() *Element {
	out := *e
	p := &out.Params
	if e.Params.ColorPrices != nil {
		p.ColorPrices = make(map[string]float64, len(e.Params.ColorPrices))
		for k, v := range e.Params.ColorPrices {
			p.ColorPrices[k] = v
		}
	}
	p.Colors = append([]string(nil), e.Params.Colors...)
	p.SvgFill = append([]string(nil), e.Params.SvgFill...)
	p.CharStyles = append([]CharStyle(nil), e.Params.CharStyles...)
	if b := e.Params.BoundingBox; b != nil {
		bb := *b
		if b.Rect != nil {
			r := *b.Rect
			bb.Rect = &r
		}
		p.BoundingBox = &bb
	}
	if e.Params.Shadow != nil {
		sh := *e.Params.Shadow
		p.Shadow = &sh
	}
	if e.Params.Crop != nil {
		c := *e.Params.Crop
		p.Crop = &c
	}
	if e.Runtime.ClipRegion != nil {
		r := *e.Runtime.ClipRegion
		out.Runtime.ClipRegion = &r
	}
	if e.Runtime.LastValid != nil {
		t := *e.Runtime.LastValid
		out.Runtime.LastValid = &t
	}
	return &out
}
