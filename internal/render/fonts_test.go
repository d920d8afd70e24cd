package render

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/product-designer/backend/internal/canvas"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"
)

func TestFontRegistryDefaults(t *testing.T) {
	r, err := NewFontRegistry()
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, []string{DefaultFamily}, r.Families())
	assert.True(t, r.Has("go"))
	assert.False(t, r.Has("Lobster"))

	data, format, ok := r.Data("GO")
	require.True(t, ok)
	assert.Equal(t, goregular.TTF, data)
	assert.Equal(t, "truetype", format)

	assert.NotNil(t, r.Face("Lobster", 12), "unknown families fall back")
	assert.Equal(t, r.Face("Go", 12), r.Face("go", 12))
}

func TestFontRegistryRejectsGarbage(t *testing.T) {
	r, err := NewFontRegistry()
	require.NoError(t, err)
	defer r.Close()

	assert.Error(t, r.Register("Broken", []byte("not a font")))
	assert.False(t, r.Has("Broken"))
}

func TestFontRegistryLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Brand.ttf"), goregular.TTF, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.otf"), []byte("junk"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("hi"), 0o644))

	r, err := NewFontRegistry()
	require.NoError(t, err)
	defer r.Close()

	n, err := r.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"Brand", DefaultFamily}, r.Families())

	_, err = r.LoadDir(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestFontRegistryFallback(t *testing.T) {
	r, err := NewFontRegistry()
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, r.Register("Brand", goregular.TTF))

	assert.Error(t, r.SetFallback("Lobster"))
	require.NoError(t, r.SetFallback("brand"))
	assert.Equal(t, r.Face("Brand", 14), r.Face("Lobster", 14))
}

func TestMeasurer(t *testing.T) {
	r, err := NewFontRegistry()
	require.NoError(t, err)
	defer r.Close()
	m := NewMeasurer(r)

	style := canvas.TextStyle{FontFamily: "Go", FontSize: 20, LineHeight: 1.5}
	short, h1 := m.MeasureText("ab", style)
	long, _ := m.MeasureText("abcdef", style)
	assert.Greater(t, short, 0.0)
	assert.Greater(t, long, short)
	assert.InDelta(t, 30, h1, 1e-9)

	wide, h2 := m.MeasureText("abcdef\nab", style)
	assert.InDelta(t, long, wide, 1e-9)
	assert.InDelta(t, 60, h2, 1e-9)

	spaced, _ := m.MeasureText("abcdef", canvas.TextStyle{FontFamily: "Go", FontSize: 20, LetterSpacing: 2})
	assert.InDelta(t, long+10, spaced, 1e-9)

	w, h := m.MeasureText("", canvas.TextStyle{})
	assert.Zero(t, w)
	assert.InDelta(t, 18*1.2, h, 1e-9)
}
