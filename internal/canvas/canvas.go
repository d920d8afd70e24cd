// Package canvas declares the capability surface the designer core consumes:
// a drawing engine (colorize, clip, snapshot, vector serialization), an asset
// loader and a text measurer. Concrete implementations live in render and
// assets; tests use the fakes in testutil.
package canvas

import (
	"context"

	"github.com/product-designer/backend/internal/models"
)

// FillKind selects which colorize strategy the engine applies.
type FillKind string

const (
	FillSolid     FillKind = "solid"
	FillMultiPath FillKind = "multiPath"
	FillPattern   FillKind = "pattern"
	FillNone      FillKind = "none"
)

// Fill describes a colorize request.
type Fill struct {
	Kind    FillKind
	Color   string
	Colors  []string
	Pattern string
}

// Asset is the decoded visual payload of an image element.
type Asset struct {
	Width  float64
	Height float64
	Format string
	Size   int64
	// Colors holds the distinct fill colors of a vector asset, in path order.
	Colors []string
}

// TextStyle carries the attributes needed to measure a text block.
type TextStyle struct {
	FontFamily    string
	FontSize      float64
	LineHeight    float64
	LetterSpacing float64
}

// SnapshotOptions controls a raster snapshot of a view.
type SnapshotOptions struct {
	Format     string // "png" or "jpeg"
	Quality    int
	Multiplier float64
	Background string
	Watermark  string
	Region     *models.Rect
}

// SVGOptions controls vector serialization of a view.
type SVGOptions struct {
	ViewBox      models.Rect
	Width        float64
	Height       float64
	Background   string
	FontFamilies []string
}

// Colorizable applies fills to an element.
type Colorizable interface {
	Colorize(el *models.Element, fill Fill) error
}

// Clippable attaches or clears a persistent clip region.
type Clippable interface {
	Clip(el *models.Element, region *models.Rect) error
}

// Snapshotter renders a view to an encoded raster image.
type Snapshotter interface {
	Snapshot(v *models.View, opts SnapshotOptions) ([]byte, error)
}

// VectorSerializer renders a view to SVG markup.
type VectorSerializer interface {
	Vectorize(v *models.View, opts SVGOptions) (string, error)
}

// Engine is the full drawing capability surface.
type Engine interface {
	Colorizable
	Clippable
	Snapshotter
	VectorSerializer
}

// Loader resolves an element source into its visual payload.
type Loader interface {
	Load(ctx context.Context, source string) (Asset, error)
}

// Measurer reports the unscaled size of a text block.
type Measurer interface {
	MeasureText(text string, style TextStyle) (width, height float64)
}

// Movable is satisfied by scene elements.
type Movable interface {
	Transform() models.Transform
	SetTransform(models.Transform)
	BoundingRect() models.Rect
}

// Serializable is satisfied by scene elements.
type Serializable interface {
	JSON() (models.ElementJSON, error)
}

var (
	_ Movable      = (*models.Element)(nil)
	_ Serializable = (*models.Element)(nil)
)
