// Package render draws views with gogpu/gg and serializes them to SVG.
// It implements canvas.Engine and canvas.Measurer.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"regexp"
	"strings"
	"sync"

	"github.com/gogpu/gg"
	"github.com/product-designer/backend/internal/canvas"
	"github.com/product-designer/backend/internal/models"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// ErrInvalidColor is returned by Colorize for colors that are not hex.
var ErrInvalidColor = errors.New("invalid color")

const defaultJPEGQuality = 90

var hexColorRe = regexp.MustCompile(`^#([0-9a-fA-F]{3,4}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)

// ImageSource decodes the pixels of an image element source.
type ImageSource interface {
	Image(ctx context.Context, source string) (image.Image, error)
}

// Engine keeps per-element fill and clip state and draws views on demand.
type Engine struct {
	fonts  *FontRegistry
	images ImageSource

	mu    sync.RWMutex
	fills map[string]canvas.Fill
	clips map[string]models.Rect
}

// NewEngine creates an engine. images may be nil, in which case image
// elements are drawn as flat placeholders.
func NewEngine(fonts *FontRegistry, images ImageSource) *Engine {
	return &Engine{
		fonts:  fonts,
		images: images,
		fills:  make(map[string]canvas.Fill),
		clips:  make(map[string]models.Rect),
	}
}

// Colorize implements canvas.Colorizable.
func (e *Engine) Colorize(el *models.Element, fill canvas.Fill) error {
	switch fill.Kind {
	case canvas.FillNone:
		e.mu.Lock()
		delete(e.fills, el.ID)
		e.mu.Unlock()
		return nil
	case canvas.FillSolid:
		if !ValidColor(fill.Color) {
			return fmt.Errorf("%w: %q", ErrInvalidColor, fill.Color)
		}
	case canvas.FillMultiPath:
		for _, c := range fill.Colors {
			if !ValidColor(c) {
				return fmt.Errorf("%w: %q", ErrInvalidColor, c)
			}
		}
	case canvas.FillPattern:
		if fill.Pattern == "" {
			return errors.New("pattern fill without source")
		}
	default:
		return fmt.Errorf("unknown fill kind %q", fill.Kind)
	}
	e.mu.Lock()
	e.fills[el.ID] = fill
	e.mu.Unlock()
	return nil
}

// Clip implements canvas.Clippable. A nil region removes the clip.
func (e *Engine) Clip(el *models.Element, region *models.Rect) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if region == nil {
		delete(e.clips, el.ID)
		return nil
	}
	e.clips[el.ID] = *region
	return nil
}

// Forget drops the state kept for the given elements.
func (e *Engine) Forget(ids ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range ids {
		delete(e.fills, id)
		delete(e.clips, id)
	}
}

// FillOf returns the fill applied to an element.
func (e *Engine) FillOf(id string) (canvas.Fill, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	f, ok := e.fills[id]
	return f, ok
}

// ClipOf returns the clip region attached to an element.
func (e *Engine) ClipOf(id string) (models.Rect, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.clips[id]
	return r, ok
}

// ValidColor reports whether s is a #rgb, #rgba, #rrggbb or #rrggbbaa color.
func ValidColor(s string) bool {
	return hexColorRe.MatchString(s)
}

// Snapshot implements canvas.Snapshotter.
func (e *Engine) Snapshot(v *models.View, opts canvas.SnapshotOptions) ([]byte, error) {
	mult := opts.Multiplier
	if mult <= 0 {
		mult = 1
	}
	area := v.StageRect()
	if opts.Region != nil {
		area = *opts.Region
	}
	w := int(math.Ceil(area.Width * mult))
	h := int(math.Ceil(area.Height * mult))
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("empty snapshot area %vx%v", area.Width, area.Height)
	}

	format := strings.ToLower(opts.Format)
	bg := opts.Background
	if bg == "" && (format == "jpeg" || format == "jpg") {
		bg = "#ffffff"
	}

	dc := gg.NewContext(w, h)
	defer dc.Close()
	if ValidColor(bg) {
		dc.ClearWithColor(gg.Hex(bg))
	}

	frame := frame{area: area, mult: mult, bounds: image.Rect(0, 0, w, h)}
	for _, el := range v.Elements {
		if !el.Params.Visible || el.Params.Opacity <= 0 {
			continue
		}
		local := e.localBitmap(el, mult)
		if local == nil {
			continue
		}
		e.compose(dc, local, el, frame)
	}

	if opts.Watermark != "" {
		e.drawWatermark(dc, opts.Watermark, w, h)
	}

	var buf bytes.Buffer
	switch format {
	case "jpeg", "jpg":
		q := opts.Quality
		if q <= 0 || q > 100 {
			q = defaultJPEGQuality
		}
		if err := dc.EncodeJPEG(&buf, q); err != nil {
			return nil, fmt.Errorf("encoding jpeg: %w", err)
		}
	default:
		if err := dc.EncodePNG(&buf); err != nil {
			return nil, fmt.Errorf("encoding png: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// frame maps scene coordinates onto the output bitmap.
type frame struct {
	area   models.Rect
	mult   float64
	bounds image.Rectangle
}

func (f frame) point(x, y float64) (float64, float64) {
	return (x - f.area.X) * f.mult, (y - f.area.Y) * f.mult
}

func (f frame) rect(r models.Rect) image.Rectangle {
	x0, y0 := f.point(r.X, r.Y)
	x1, y1 := f.point(r.Right(), r.Bottom())
	return image.Rect(int(math.Floor(x0)), int(math.Floor(y0)), int(math.Ceil(x1)), int(math.Ceil(y1)))
}

// localBitmap returns the unrotated, unflipped pixels of an element.
func (e *Engine) localBitmap(el *models.Element, mult float64) image.Image {
	if el.IsText() {
		return e.textBitmap(el, mult)
	}
	fill, _ := e.FillOf(el.ID)
	img := e.loadImage(el.Source)
	if img == nil {
		Logger().Debug("drawing placeholder", "element", el.ID, "source", el.Source)
		c := color.NRGBA{R: 0xdd, G: 0xdd, B: 0xdd, A: 0xff}
		if fill.Kind == canvas.FillSolid {
			c = nrgba(fill.Color)
		}
		px := image.NewNRGBA(image.Rect(0, 0, 1, 1))
		px.SetNRGBA(0, 0, c)
		return px
	}
	if crop := el.Params.Crop; crop != nil {
		r := image.Rect(int(crop.X), int(crop.Y), int(crop.Right()), int(crop.Bottom())).Add(img.Bounds().Min)
		if sub, ok := img.(interface {
			SubImage(image.Rectangle) image.Image
		}); ok && !r.Intersect(img.Bounds()).Empty() {
			img = sub.SubImage(r.Intersect(img.Bounds()))
		}
	}
	switch fill.Kind {
	case canvas.FillSolid:
		img = tint(img, nrgba(fill.Color))
	case canvas.FillPattern:
		if pat := e.loadImage(fill.Pattern); pat != nil {
			img = patternize(img, pat)
		}
	}
	return img
}

func (e *Engine) loadImage(source string) image.Image {
	if e.images == nil || source == "" {
		return nil
	}
	img, err := e.images.Image(context.Background(), source)
	if err != nil {
		Logger().Debug("image unavailable", "source", source, "error", err)
		return nil
	}
	return img
}

func (e *Engine) textBitmap(el *models.Element, mult float64) image.Image {
	p := el.Params
	sx, sy := math.Abs(p.ScaleX), math.Abs(p.ScaleY)
	lw := int(math.Ceil(p.Width * sx * mult))
	lh := int(math.Ceil(p.Height * sy * mult))
	if lw <= 0 || lh <= 0 || p.Text == "" {
		return nil
	}
	size, lineHeight := styleSize(p.FontSize, p.LineHeight)
	size *= sy * mult
	step := size * lineHeight

	dc := gg.NewContext(lw, lh)
	defer dc.Close()
	face := e.fonts.Face(p.FontFamily, size)
	dc.SetFont(face)
	fill := p.Fill
	if !ValidColor(fill) {
		fill = "#000000"
	}
	c := gg.Hex(fill)
	dc.SetRGBA(c.R, c.G, c.B, c.A)

	m := face.Metrics()
	pad := (step - (m.Ascent + m.Descent)) / 2
	for i, line := range strings.Split(p.Text, "\n") {
		adv := face.Advance(line)
		x := 0.0
		switch p.TextAlign {
		case "center":
			x = (float64(lw) - adv) / 2
		case "right":
			x = float64(lw) - adv
		}
		dc.DrawString(line, x, float64(i)*step+pad+m.Ascent)
	}
	return dc.Image()
}

// compose places a local bitmap onto dc with the element's scale, flip and
// rotation, honoring its clip region.
func (e *Engine) compose(dc *gg.Context, local image.Image, el *models.Element, f frame) {
	w, h := el.ScaledSize()
	w, h = w*f.mult, h*f.mult
	sb := local.Bounds()
	if w <= 0 || h <= 0 || sb.Empty() {
		return
	}

	box := f.rect(el.BoundingRect())
	if box.Empty() {
		return
	}
	visible := box.Intersect(f.bounds)
	if r, ok := e.ClipOf(el.ID); ok {
		visible = visible.Intersect(f.rect(r))
	}
	if visible.Empty() {
		return
	}

	a := w / float64(sb.Dx())
	d := h / float64(sb.Dy())
	if el.Params.FlipX != (el.Params.ScaleX < 0) {
		a = -a
	}
	if el.Params.FlipY != (el.Params.ScaleY < 0) {
		d = -d
	}
	rad := el.Params.Angle * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	cx, cy := f.point(el.Params.X, el.Params.Y)
	cx -= float64(box.Min.X)
	cy -= float64(box.Min.Y)
	mx := float64(sb.Min.X) + float64(sb.Dx())/2
	my := float64(sb.Min.Y) + float64(sb.Dy())/2

	s2d := f64.Aff3{
		cos * a, -sin * d, cx - cos*a*mx + sin*d*my,
		sin * a, cos * d, cy - sin*a*mx - cos*d*my,
	}
	dst := image.NewRGBA(image.Rect(0, 0, box.Dx(), box.Dy()))
	xdraw.BiLinear.Transform(dst, s2d, local, sb, xdraw.Over, nil)

	src := visible.Sub(box.Min)
	dc.DrawImageEx(gg.ImageBufFromImage(dst), gg.DrawImageOptions{
		X:         float64(visible.Min.X),
		Y:         float64(visible.Min.Y),
		DstWidth:  float64(visible.Dx()),
		DstHeight: float64(visible.Dy()),
		SrcRect:   &src,
		Opacity:   math.Min(el.Params.Opacity, 1),
	})
}

func (e *Engine) drawWatermark(dc *gg.Context, mark string, w, h int) {
	size := math.Max(float64(min(w, h))/12, 8)
	dc.SetFont(e.fonts.Face(DefaultFamily, size))
	dc.SetRGBA(0.5, 0.5, 0.5, 0.35)
	dc.DrawStringAnchored(mark, float64(w)/2, float64(h)/2, 0.5, 0.5)
}

func nrgba(hex string) color.NRGBA {
	c := gg.Hex(hex)
	return color.NRGBA{
		R: uint8(math.Round(c.R * 255)),
		G: uint8(math.Round(c.G * 255)),
		B: uint8(math.Round(c.B * 255)),
		A: uint8(math.Round(c.A * 255)),
	}
}

// tint replaces every pixel color with c, keeping the source alpha.
func tint(src image.Image, c color.NRGBA) image.Image {
	b := src.Bounds()
	out := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			_, _, _, a := src.At(x, y).RGBA()
			out.SetNRGBA(x, y, color.NRGBA{R: c.R, G: c.G, B: c.B, A: uint8(uint32(c.A) * (a >> 8) / 0xff)})
		}
	}
	return out
}

// patternize paints a tiled pattern through the alpha of src.
func patternize(src, pattern image.Image) image.Image {
	b := src.Bounds()
	pb := pattern.Bounds()
	out := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			_, _, _, a := src.At(x, y).RGBA()
			px := pb.Min.X + (x-b.Min.X)%pb.Dx()
			py := pb.Min.Y + (y-b.Min.Y)%pb.Dy()
			pc := color.NRGBAModel.Convert(pattern.At(px, py)).(color.NRGBA)
			pc.A = uint8(uint32(pc.A) * (a >> 8) / 0xff)
			out.SetNRGBA(x, y, pc)
		}
	}
	return out
}

var _ canvas.Engine = (*Engine)(nil)
