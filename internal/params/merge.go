// Package params resolves layered element parameters.
//
// Layers are applied from least to most specific. Nested objects are merged
// key by key; every other value, arrays included, is replaced outright by the
// more specific layer.
package params

import "github.com/product-designer/backend/internal/models"

// Merge folds the layers left to right into a new parameter set.
// The inputs are never modified.
func Merge(layers ...models.Params) models.Params {
	out := models.Params{}
	for _, layer := range layers {
		mergeInto(out, layer)
	}
	return out
}

// Resolve merges the type defaults, the view overrides and the element's own
// parameters, in that order.
func Resolve(typeDefaults, viewOverrides, elementOverrides models.Params) models.Params {
	return Merge(typeDefaults, viewOverrides, elementOverrides)
}

func mergeInto(dst, src models.Params) {
	for key, val := range src {
		srcObj, srcIsObj := asObject(val)
		if !srcIsObj {
			dst[key] = cloneLeaf(val)
			continue
		}
		dstObj, dstIsObj := asObject(dst[key])
		if !dstIsObj {
			dstObj = models.Params{}
		} else {
			dstObj = dstObj.Clone()
		}
		mergeInto(dstObj, srcObj)
		dst[key] = dstObj
	}
}

func asObject(v any) (models.Params, bool) {
	switch t := v.(type) {
	case models.Params:
		return t, true
	case map[string]any:
		return models.Params(t), true
	}
	return nil, false
}

func cloneLeaf(v any) any {
	return models.Params{"v": v}.Clone()["v"]
}
