package designer

import (
	"slices"
	"strings"

	"github.com/product-designer/backend/internal/models"
)

type colorGroup struct {
	members map[string]int // element id -> view index
	colors  []string
}

// linkRegistry tracks color link groups and their available colors.
type linkRegistry struct {
	policy ColorLinkPolicy
	groups map[string]*colorGroup
}

func newLinkRegistry(policy ColorLinkPolicy) *linkRegistry {
	return &linkRegistry{policy: policy, groups: make(map[string]*colorGroup)}
}

func (r *linkRegistry) add(el *models.Element) {
	key := el.Params.ColorLinkGroup
	if key == "" {
		return
	}
	g, ok := r.groups[key]
	if !ok {
		g = &colorGroup{members: make(map[string]int)}
		r.groups[key] = g
	}
	g.members[el.ID] = el.View
	if len(el.Params.Colors) == 0 {
		return
	}
	if r.policy == ColorLinkReplace {
		g.colors = append([]string(nil), el.Params.Colors...)
		return
	}
	for _, c := range el.Params.Colors {
		if !slices.ContainsFunc(g.colors, func(have string) bool { return strings.EqualFold(have, c) }) {
			g.colors = append(g.colors, c)
		}
	}
}

func (r *linkRegistry) remove(el *models.Element) {
	for key, g := range r.groups {
		delete(g.members, el.ID)
		if len(g.members) == 0 {
			delete(r.groups, key)
		}
	}
}

func (r *linkRegistry) colors(key string) []string {
	g, ok := r.groups[key]
	if !ok {
		return nil
	}
	return append([]string(nil), g.colors...)
}

// linkFill returns the fill of the first committed member of a color group.
func (s *Stage) linkFill(group string) (string, bool) {
	for _, v := range s.product.Views {
		for _, el := range v.Elements {
			if el.Committed() && el.Params.ColorLinkGroup == group && el.Params.Fill != "" {
				return el.Params.Fill, true
			}
		}
	}
	return "", false
}

// propagate pushes fill changes along color link groups and text changes
// along text link groups. Changes made by propagation do not propagate again.
func (s *Stage) propagate(el *models.Element, in models.Params) {
	if s.propagating {
		return
	}
	s.propagating = true
	defer func() { s.propagating = false }()

	if group := el.Params.ColorLinkGroup; group != "" && in.Has("fill") && !in.Has("pattern") {
		patch := models.Params{"fill": el.Params.Fill}
		for _, other := range s.groupMembers(el, func(o *models.Element) bool {
			return o.Params.ColorLinkGroup == group
		}) {
			s.applyOptions(other, patch, opPropagate)
		}
	}

	if group := el.Params.TextLinkGroup; group != "" && el.IsText() {
		patch := models.Params{}
		if in.Has("text") {
			patch["text"] = el.Params.Text
		}
		if len(s.opts.SharedTextAttributes) > 0 {
			current, err := models.ParamsOf(el.Params)
			if err == nil {
				for _, attr := range s.opts.SharedTextAttributes {
					if in.Has(attr) && current.Has(attr) {
						patch[attr] = current[attr]
					}
				}
			}
		}
		if len(patch) == 0 {
			return
		}
		for _, other := range s.groupMembers(el, func(o *models.Element) bool {
			return o.IsText() && o.Params.TextLinkGroup == group
		}) {
			s.applyOptions(other, patch, opPropagate)
		}
	}
}

func (s *Stage) groupMembers(el *models.Element, match func(*models.Element) bool) []*models.Element {
	var out []*models.Element
	for _, v := range s.product.Views {
		for _, o := range v.Elements {
			if o != el && o.Committed() && match(o) {
				out = append(out, o)
			}
		}
	}
	return out
}
