package designer

import (
	"math"

	"github.com/product-designer/backend/internal/models"
)

// BoundingRegion returns the effective bounding region of an element, or nil
// when it has none or its reference cannot be resolved.
func (s *Stage) BoundingRegion(id string) (*models.Rect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, v, err := s.element(id)
	if err != nil {
		return nil, err
	}
	return s.regionOf(v, el, el.Params.BoundingBox), nil
}

// regionOf resolves a bounding descriptor against the view. self is never
// used as its own reference.
func (s *Stage) regionOf(v *models.View, self *models.Element, bb *models.BoundingBox) *models.Rect {
	if bb == nil {
		return nil
	}
	if bb.Rect != nil {
		r := *bb.Rect
		return &r
	}
	if bb.Ref == "" {
		return nil
	}
	ref := v.ElementByTitle(bb.Ref)
	if ref == nil || ref == self {
		Logger().Debug("bounding reference not found", "ref", bb.Ref, "view", v.Index)
		return nil
	}
	r := ref.BoundingRect()
	return &r
}

// checkContainment enforces the element's bounding mode against its region.
func (s *Stage) checkContainment(v *models.View, el *models.Element) {
	region := s.regionOf(v, el, el.Params.BoundingBox)
	mode := el.Params.BoundingBoxMode

	if el.Runtime.ClipRegion != nil && (mode != models.BoundingClip || region == nil) {
		el.Runtime.ClipRegion = nil
		s.clip(el, nil)
	}
	if region == nil {
		return
	}

	switch mode {
	case models.BoundingClip:
		el.Runtime.ClipRegion = region
		s.clip(el, region)

	case models.BoundingLimit:
		if region.Contains(el.BoundingRect()) {
			t := el.Transform()
			el.Runtime.LastValid = &t
			return
		}
		if lv := el.Runtime.LastValid; lv != nil {
			el.SetTransform(*lv)
			if region.Contains(el.BoundingRect()) {
				return
			}
		}
		fitInside(el, *region)
		t := el.Transform()
		el.Runtime.LastValid = &t

	case models.BoundingFlagOut:
		out := !region.Contains(el.BoundingRect())
		if out {
			el.Runtime.BorderColor = s.opts.OutBoundsColor
		} else {
			el.Runtime.BorderColor = s.opts.InBoundsColor
		}
		if out == el.Runtime.OutOfBounds {
			return
		}
		el.Runtime.OutOfBounds = out
		if out {
			s.notifyElement(models.NotifyElementOut, el, nil)
		} else {
			s.notifyElement(models.NotifyElementIn, el, nil)
		}
	}
}

func (s *Stage) clip(el *models.Element, region *models.Rect) {
	if err := s.engine.Clip(el, region); err != nil {
		Logger().Warn("clip failed", "id", el.ID, "title", el.Title, "view", el.View, "error", err)
	}
}

// fitInside scales el down until it fits the region and then translates it
// inside.
func fitInside(el *models.Element, region models.Rect) {
	br := el.BoundingRect()
	if br.Width > region.Width || br.Height > region.Height {
		f := math.Min(region.Width/br.Width, region.Height/br.Height)
		el.Params.ScaleX *= f
		el.Params.ScaleY *= f
		br = el.BoundingRect()
	}
	dx, dy := 0.0, 0.0
	if br.X < region.X {
		dx = region.X - br.X
	} else if br.Right() > region.Right() {
		dx = region.Right() - br.Right()
	}
	if br.Y < region.Y {
		dy = region.Y - br.Y
	} else if br.Bottom() > region.Bottom() {
		dy = region.Bottom() - br.Bottom()
	}
	el.SetPosition(el.Params.X+dx, el.Params.Y+dy)
}
