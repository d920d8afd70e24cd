package pricing

import (
	"github.com/product-designer/backend/internal/models"
)

// Compare evaluates measured <op> threshold. Compound measurements match only
// when every sub-key named by the threshold compares true; a scalar threshold
// is compared against every sub-key.
func Compare(op string, measured, threshold any) bool {
	switch m := measured.(type) {
	case Size:
		return compareSize(op, m, threshold)
	default:
		mv, ok := models.ToFloat(measured)
		if !ok {
			return false
		}
		tv, ok := models.ToFloat(threshold)
		if !ok {
			return false
		}
		return compareFloat(op, mv, tv)
	}
}

func compareSize(op string, m Size, threshold any) bool {
	if tv, ok := models.ToFloat(threshold); ok {
		if len(m) == 0 {
			return false
		}
		for _, v := range m {
			if !compareFloat(op, v, tv) {
				return false
			}
		}
		return true
	}

	var keys map[string]any
	switch t := threshold.(type) {
	case map[string]any:
		keys = t
	case models.Params:
		keys = t
	default:
		return false
	}
	if len(keys) == 0 {
		return false
	}
	for k, raw := range keys {
		mv, ok := m[k]
		if !ok {
			return false
		}
		tv, ok := models.ToFloat(raw)
		if !ok || !compareFloat(op, mv, tv) {
			return false
		}
	}
	return true
}

func compareFloat(op string, a, b float64) bool {
	switch op {
	case "=", "==":
		return a == b
	case "!=":
		return a != b
	case ">":
		return a > b
	case ">=":
		return a >= b
	case "<":
		return a < b
	case "<=":
		return a <= b
	}
	return false
}

// scalar collapses a measurement into one number for price functions.
// Compound sizes collapse to their area.
func scalar(measured any) float64 {
	if s, ok := measured.(Size); ok {
		w, h := s["width"], s["height"]
		return w * h
	}
	v, _ := models.ToFloat(measured)
	return v
}
