package designer

import "github.com/product-designer/backend/internal/models"

// moveZ places el at index z, then re-raises topped elements.
func (s *Stage) moveZ(v *models.View, el *models.Element, z int) {
	_, idx := v.ElementByID(el.ID)
	if idx < 0 {
		return
	}
	v.Elements = append(v.Elements[:idx], v.Elements[idx+1:]...)
	z = max(0, min(z, len(v.Elements)))
	v.Elements = append(v.Elements, nil)
	copy(v.Elements[z+1:], v.Elements[z:])
	v.Elements[z] = el
	s.normalizeZ(v)
}

// normalizeZ keeps topped elements above normal content and renumbers z
// positions without gaps.
func (s *Stage) normalizeZ(v *models.View) {
	ordered := make([]*models.Element, 0, len(v.Elements))
	var topped []*models.Element
	for _, el := range v.Elements {
		if el.Params.Topped {
			topped = append(topped, el)
			continue
		}
		ordered = append(ordered, el)
	}
	v.Elements = append(ordered, topped...)
	for i, el := range v.Elements {
		el.Params.Z = i
	}
}
