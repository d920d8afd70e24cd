package designer

import (
	"sort"
	"strings"

	"github.com/product-designer/backend/internal/canvas"
	"github.com/product-designer/backend/internal/models"
)

// RasterOptions controls Rasterize.
type RasterOptions struct {
	Format          string // "png" (default) or "jpeg"
	Quality         int
	Multiplier      float64
	HideExcluded    bool
	PrintingBoxOnly bool
	Watermark       string
	Background      string
}

// VectorOptions controls Vectorize.
type VectorOptions struct {
	PrintingBoxOnly bool
	// BleedMM grows the printing box on every side; it is converted to scene
	// units through the ratio of the output size to the printing box.
	BleedMM      float64
	Transparent  bool
	EmbedFonts   bool
	HideExcluded bool
}

// Rasterize renders a view to an encoded image. Visibility and zoom changes
// made for the export are always restored.
func (s *Stage) Rasterize(view int, opts RasterOptions) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.view(view)
	if err != nil {
		return nil, err
	}

	restore := prepareExport(v, opts.HideExcluded)
	defer restore()

	so := canvas.SnapshotOptions{
		Format:     opts.Format,
		Quality:    opts.Quality,
		Multiplier: opts.Multiplier,
		Background: opts.Background,
		Watermark:  opts.Watermark,
	}
	if so.Format == "" {
		so.Format = "png"
	}
	if so.Background == "" {
		so.Background = v.Options.BackgroundColor
	}
	if opts.PrintingBoxOnly && v.Options.PrintingBox != nil {
		r := *v.Options.PrintingBox
		so.Region = &r
	}
	return s.engine.Snapshot(v, so)
}

// Vectorize renders a view to SVG markup.
func (s *Stage) Vectorize(view int, opts VectorOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.view(view)
	if err != nil {
		return "", err
	}

	restore := prepareExport(v, opts.HideExcluded)
	defer restore()

	box := ExportBox(v, opts)
	so := canvas.SVGOptions{
		ViewBox: box,
		Width:   box.Width,
		Height:  box.Height,
	}
	if bg := v.Options.BackgroundColor; !opts.Transparent && bg != "" && bg != "transparent" {
		so.Background = bg
	}
	if opts.EmbedFonts {
		so.FontFamilies = usedFonts(v)
	}
	return s.engine.Vectorize(v, so)
}

// ExportBox returns the viewBox of a vector export.
func ExportBox(v *models.View, opts VectorOptions) models.Rect {
	pb := v.Options.PrintingBox
	if !opts.PrintingBoxOnly || pb == nil {
		return v.StageRect()
	}
	box := *pb
	box.BorderRadius = 0
	if out := v.Options.Output; out != nil && out.Width > 0 && opts.BleedMM > 0 {
		bleed := opts.BleedMM * (pb.Width / out.Width)
		box.X -= bleed
		box.Y -= bleed
		box.Width += 2 * bleed
		box.Height += 2 * bleed
	}
	return box
}

// prepareExport applies the transient export state and returns the function
// that undoes it.
func prepareExport(v *models.View, hideExcluded bool) func() {
	zoom := v.Zoom
	v.Zoom = 1
	var hidden []*models.Element
	if hideExcluded {
		for _, el := range v.Elements {
			if el.Params.ExcludeFromExport && el.Params.Visible {
				el.Params.Visible = false
				hidden = append(hidden, el)
			}
		}
	}
	return func() {
		for _, el := range hidden {
			el.Params.Visible = true
		}
		v.Zoom = zoom
	}
}

func usedFonts(v *models.View) []string {
	seen := map[string]bool{}
	for _, el := range v.Elements {
		if el.IsText() && el.Params.Visible && el.Params.FontFamily != "" {
			seen[strings.TrimSpace(el.Params.FontFamily)] = true
		}
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// SetZoom sets the display zoom of a view.
func (s *Stage) SetZoom(view int, zoom float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.view(view)
	if err != nil {
		return err
	}
	if zoom <= 0 {
		zoom = 1
	}
	v.Zoom = zoom
	return nil
}

// Zoom returns the display zoom of a view.
func (s *Stage) Zoom(view int) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.view(view)
	if err != nil {
		return 0, err
	}
	return v.Zoom, nil
}
