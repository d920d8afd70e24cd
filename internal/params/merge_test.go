package params

import (
	"testing"

	"github.com/product-designer/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestMerge(t *testing.T) {
	t.Run("later layer wins on conflict", func(t *testing.T) {
		got := Merge(
			models.Params{"price": 1, "draggable": false},
			models.Params{"price": 2},
			models.Params{"draggable": true},
		)
		assert.Equal(t, models.Params{"price": 2, "draggable": true}, got)
	})

	t.Run("nested objects merge key by key", func(t *testing.T) {
		got := Resolve(
			models.Params{"shadow": map[string]any{"color": "#000", "blur": 5.0}},
			nil,
			models.Params{"shadow": map[string]any{"blur": 10.0}},
		)
		assert.Equal(t, models.Params{"color": "#000", "blur": 10.0}, got["shadow"])
	})

	t.Run("arrays are replaced", func(t *testing.T) {
		got := Merge(
			models.Params{"colors": []any{"#fff", "#000"}},
			models.Params{"colors": []any{"#f00"}},
		)
		assert.Equal(t, []any{"#f00"}, got["colors"])
	})

	t.Run("object replaced by primitive", func(t *testing.T) {
		got := Merge(
			models.Params{"boundingBox": map[string]any{"x": 1.0}},
			models.Params{"boundingBox": "Base"},
		)
		assert.Equal(t, "Base", got["boundingBox"])
	})

	t.Run("inputs are not modified", func(t *testing.T) {
		base := models.Params{"shadow": map[string]any{"color": "#000"}}
		_ = Merge(base, models.Params{"shadow": map[string]any{"color": "#fff"}})
		assert.Equal(t, "#000", base["shadow"].(map[string]any)["color"])
	})
}

func TestMergeIdempotent(t *testing.T) {
	layers := []struct {
		name string
		a, b models.Params
	}{
		{"flat", models.Params{"x": 1.0, "y": 2.0}, models.Params{"y": 3.0, "z": true}},
		{"nested", models.Params{"shadow": map[string]any{"blur": 1.0}}, models.Params{"shadow": map[string]any{"color": "#fff"}, "colors": []any{"#000"}}},
		{"empty b", models.Params{"fill": "#fff"}, models.Params{}},
	}
	for _, tc := range layers {
		t.Run(tc.name, func(t *testing.T) {
			once := Resolve(tc.a, tc.b, nil)
			twice := Resolve(once, tc.b, nil)
			assert.Equal(t, once, twice)
		})
	}
}
