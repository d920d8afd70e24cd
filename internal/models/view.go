package models

import "fmt"

// OutputSize is the physical print size of a view.
type OutputSize struct {
	Width  float64 `json:"width" yaml:"width"`   // mm
	Height float64 `json:"height" yaml:"height"` // mm
	DPI    int     `json:"dpi,omitempty" yaml:"dpi,omitempty"`
}

// ViewOptions is the view-level configuration, including the per-type
// default parameter layers used when elements are created.
type ViewOptions struct {
	StageWidth               float64     `json:"stageWidth" yaml:"stageWidth"`
	StageHeight              float64     `json:"stageHeight" yaml:"stageHeight"`
	PrintingBox              *Rect       `json:"printingBox,omitempty" yaml:"printingBox,omitempty"`
	Output                   *OutputSize `json:"output,omitempty" yaml:"output,omitempty"`
	BackgroundColor          string      `json:"backgroundColor,omitempty" yaml:"backgroundColor,omitempty"`
	MaxPrice                 float64     `json:"maxPrice,omitempty" yaml:"maxPrice,omitempty"`
	Optional                 bool        `json:"optional,omitempty" yaml:"optional,omitempty"`
	UsePrintingBoxAsBounding bool        `json:"usePrintingBoxAsBounding,omitempty" yaml:"usePrintingBoxAsBounding,omitempty"`

	ElementParameters     Params `json:"elementParameters,omitempty" yaml:"elementParameters,omitempty"`
	ImageParameters       Params `json:"imageParameters,omitempty" yaml:"imageParameters,omitempty"`
	TextParameters        Params `json:"textParameters,omitempty" yaml:"textParameters,omitempty"`
	CustomImageParameters Params `json:"customImageParameters,omitempty" yaml:"customImageParameters,omitempty"`
	CustomTextParameters  Params `json:"customTextParameters,omitempty" yaml:"customTextParameters,omitempty"`
}

// TypeLayer returns the default layer for an element type and provenance.
func (o ViewOptions) TypeLayer(t ElementType, custom bool) Params {
	switch {
	case t == ElementTypeImage && custom:
		return o.CustomImageParameters
	case t == ElementTypeImage:
		return o.ImageParameters
	case t == ElementTypeText && custom:
		return o.CustomTextParameters
	default:
		return o.TextParameters
	}
}

// View is one canvas-worth of elements plus its configuration and price.
type View struct {
	Index      int
	Title      string
	Thumbnail  string
	Mask       string
	Locked     bool
	Options    ViewOptions
	Elements   []*Element
	TotalPrice float64
	TruePrice  float64
	Zoom       float64
}

// NewView creates an empty view at zoom 1.
func NewView(index int, title string, opts ViewOptions) *View {
	return &View{
		Index:    index,
		Title:    title,
		Options:  opts,
		Elements: make([]*Element, 0),
		Zoom:     1,
	}
}

// ElementByID returns the element with the given id.
func (v *View) ElementByID(id string) (*Element, int) {
	for i, el := range v.Elements {
		if el.ID == id {
			return el, i
		}
	}
	return nil, -1
}

// ElementByTitle returns the first element with the given title.
func (v *View) ElementByTitle(title string) *Element {
	for _, el := range v.Elements {
		if el.Title == title {
			return el
		}
	}
	return nil
}

// HasCustomElements reports whether the user added content to the view.
func (v *View) HasCustomElements() bool {
	for _, el := range v.Elements {
		if el.Params.IsCustom {
			return true
		}
	}
	return false
}

// StageRect returns the full canvas rectangle.
func (v *View) StageRect() Rect {
	return Rect{Width: v.Options.StageWidth, Height: v.Options.StageHeight}
}

// ViewJSON is the wire form of a view.
type ViewJSON struct {
	Title     string        `json:"title" yaml:"title" msgpack:"title"`
	Thumbnail string        `json:"thumbnail,omitempty" yaml:"thumbnail,omitempty" msgpack:"thumbnail"`
	Elements  []ElementJSON `json:"elements" yaml:"elements" msgpack:"elements"`
	Options   ViewOptions   `json:"options" yaml:"options" msgpack:"options"`
	Mask      string        `json:"mask,omitempty" yaml:"mask,omitempty" msgpack:"mask"`
	Locked    bool          `json:"locked,omitempty" yaml:"locked,omitempty" msgpack:"locked"`
	Price     float64       `json:"price,omitempty" yaml:"-" msgpack:"price"`
}

// JSON serializes the view with its elements in z order.
func (v *View) JSON() (ViewJSON, error) {
	out := ViewJSON{
		Title:     v.Title,
		Thumbnail: v.Thumbnail,
		Options:   v.Options,
		Mask:      v.Mask,
		Locked:    v.Locked,
		Price:     v.TruePrice,
		Elements:  make([]ElementJSON, 0, len(v.Elements)),
	}
	for _, el := range v.Elements {
		ej, err := el.JSON()
		if err != nil {
			return ViewJSON{}, fmt.Errorf("view %d: %w", v.Index, err)
		}
		out.Elements = append(out.Elements, ej)
	}
	return out, nil
}

// ProductDef is a product as loaded from the catalog or a saved design.
type ProductDef struct {
	ID    string     `json:"id,omitempty" yaml:"id,omitempty" msgpack:"id"`
	Title string     `json:"title" yaml:"title" msgpack:"title"`
	Views []ViewJSON `json:"views" yaml:"views" msgpack:"views"`
}

// Product is the ordered set of views currently loaded.
type Product struct {
	ID    string
	Title string
	Views []*View
}
