package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/product-designer/backend/internal/canvas"
	"github.com/product-designer/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapImages map[string]image.Image

func (m mapImages) Image(_ context.Context, source string) (image.Image, error) {
	img, ok := m[source]
	if !ok {
		return nil, errors.New("not found")
	}
	return img, nil
}

func solidImage(w, h int, c color.NRGBA) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

var blue = color.NRGBA{B: 0xff, A: 0xff}

func newTestEngine(t *testing.T, images ImageSource) *Engine {
	t.Helper()
	fonts, err := NewFontRegistry()
	require.NoError(t, err)
	t.Cleanup(fonts.Close)
	return NewEngine(fonts, images)
}

func square(id string, x, y, size float64) *models.Element {
	return &models.Element{
		ID: id, Type: models.ElementTypeImage, Title: id, Source: "blue",
		Params: models.Parameters{
			X: x, Y: y, Width: size, Height: size, ScaleX: 1, ScaleY: 1,
			Opacity: 1, Visible: true,
		},
	}
}

func stage(w, h float64, els ...*models.Element) *models.View {
	v := models.NewView(0, "Front", models.ViewOptions{StageWidth: w, StageHeight: h})
	v.Elements = append(v.Elements, els...)
	return v
}

func decodePNG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func rgb(img image.Image, x, y int) [3]uint8 {
	r, g, b, _ := img.At(x, y).RGBA()
	return [3]uint8{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)}
}

func assertColor(t *testing.T, want [3]uint8, img image.Image, x, y int) {
	t.Helper()
	got := rgb(img, x, y)
	for i := range want {
		assert.InDelta(t, want[i], got[i], 3, "pixel %d,%d = %v, want %v", x, y, got, want)
	}
}

var (
	white = [3]uint8{0xff, 0xff, 0xff}
	red   = [3]uint8{0xff, 0, 0}
	green = [3]uint8{0, 0xff, 0}
	pure  = [3]uint8{0, 0, 0xff}
)

func TestSnapshotBackground(t *testing.T) {
	e := newTestEngine(t, nil)
	out, err := e.Snapshot(stage(100, 50), canvas.SnapshotOptions{Background: "#ff0000"})
	require.NoError(t, err)

	img := decodePNG(t, out)
	assert.Equal(t, image.Rect(0, 0, 100, 50), img.Bounds())
	assertColor(t, red, img, 5, 5)
}

func TestSnapshotRegionAndMultiplier(t *testing.T) {
	e := newTestEngine(t, nil)
	out, err := e.Snapshot(stage(100, 100), canvas.SnapshotOptions{
		Region:     &models.Rect{X: 25, Y: 25, Width: 50, Height: 50},
		Multiplier: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 100), decodePNG(t, out).Bounds())
}

func TestSnapshotJPEG(t *testing.T) {
	e := newTestEngine(t, nil)
	out, err := e.Snapshot(stage(40, 30), canvas.SnapshotOptions{Format: "jpeg", Quality: 70})
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 40, 30), img.Bounds())
}

func TestSnapshotEmptyArea(t *testing.T) {
	e := newTestEngine(t, nil)
	_, err := e.Snapshot(stage(0, 0), canvas.SnapshotOptions{})
	assert.Error(t, err)
}

func TestSnapshotDrawsImages(t *testing.T) {
	e := newTestEngine(t, mapImages{"blue": solidImage(10, 10, blue)})
	el := square("a", 50, 50, 10)
	el.Params.ScaleX, el.Params.ScaleY = 4, 4

	out, err := e.Snapshot(stage(100, 100, el), canvas.SnapshotOptions{Background: "#ffffff"})
	require.NoError(t, err)
	img := decodePNG(t, out)

	assertColor(t, pure, img, 50, 50)
	assertColor(t, pure, img, 35, 35)
	assertColor(t, white, img, 5, 5)
	assertColor(t, white, img, 75, 50)
}

func TestSnapshotSkipsHiddenElements(t *testing.T) {
	e := newTestEngine(t, mapImages{"blue": solidImage(10, 10, blue)})
	el := square("a", 50, 50, 40)
	el.Params.Visible = false

	out, err := e.Snapshot(stage(100, 100, el), canvas.SnapshotOptions{Background: "#ffffff"})
	require.NoError(t, err)
	assertColor(t, white, decodePNG(t, out), 50, 50)
}

func TestSnapshotTintsSolidFill(t *testing.T) {
	e := newTestEngine(t, mapImages{"blue": solidImage(10, 10, blue)})
	el := square("a", 50, 50, 40)
	require.NoError(t, e.Colorize(el, canvas.Fill{Kind: canvas.FillSolid, Color: "#00ff00"}))

	out, err := e.Snapshot(stage(100, 100, el), canvas.SnapshotOptions{Background: "#ffffff"})
	require.NoError(t, err)
	assertColor(t, green, decodePNG(t, out), 50, 50)
}

func TestSnapshotPlaceholderUsesFill(t *testing.T) {
	e := newTestEngine(t, nil)
	el := square("a", 50, 50, 40)
	require.NoError(t, e.Colorize(el, canvas.Fill{Kind: canvas.FillSolid, Color: "#ff0000"}))

	out, err := e.Snapshot(stage(100, 100, el), canvas.SnapshotOptions{Background: "#ffffff"})
	require.NoError(t, err)
	assertColor(t, red, decodePNG(t, out), 50, 50)
}

func TestSnapshotHonorsClip(t *testing.T) {
	e := newTestEngine(t, mapImages{"blue": solidImage(10, 10, blue)})
	el := square("a", 50, 50, 40)
	require.NoError(t, e.Clip(el, &models.Rect{Width: 50, Height: 100}))

	out, err := e.Snapshot(stage(100, 100, el), canvas.SnapshotOptions{Background: "#ffffff"})
	require.NoError(t, err)
	img := decodePNG(t, out)
	assertColor(t, pure, img, 40, 50)
	assertColor(t, white, img, 60, 50)

	require.NoError(t, e.Clip(el, nil))
	_, ok := e.ClipOf("a")
	assert.False(t, ok)
}

func TestSnapshotRotates(t *testing.T) {
	e := newTestEngine(t, mapImages{"blue": solidImage(10, 10, blue)})
	el := square("a", 50, 50, 10)
	el.Params.Width, el.Params.Height = 60, 10
	el.Params.Angle = 90

	out, err := e.Snapshot(stage(100, 100, el), canvas.SnapshotOptions{Background: "#ffffff"})
	require.NoError(t, err)
	img := decodePNG(t, out)
	assertColor(t, pure, img, 50, 70)
	assertColor(t, white, img, 70, 50)
}

func TestSnapshotDrawsText(t *testing.T) {
	e := newTestEngine(t, nil)
	el := &models.Element{
		ID: "t", Type: models.ElementTypeText,
		Params: models.Parameters{
			X: 50, Y: 25, Width: 80, Height: 30, ScaleX: 1, ScaleY: 1,
			Opacity: 1, Visible: true, Text: "MMMM", FontSize: 24, Fill: "#000000",
		},
	}
	out, err := e.Snapshot(stage(100, 50, el), canvas.SnapshotOptions{Background: "#ffffff", Watermark: "PREVIEW"})
	require.NoError(t, err)

	img := decodePNG(t, out)
	dark := false
	for y := 10; y < 40 && !dark; y++ {
		for x := 10; x < 90; x++ {
			if c := rgb(img, x, y); c[0] < 0x40 {
				dark = true
				break
			}
		}
	}
	assert.True(t, dark, "expected glyph pixels")
}

func TestColorizeValidation(t *testing.T) {
	e := newTestEngine(t, nil)
	el := square("a", 0, 0, 10)

	assert.ErrorIs(t, e.Colorize(el, canvas.Fill{Kind: canvas.FillSolid, Color: "red"}), ErrInvalidColor)
	assert.ErrorIs(t, e.Colorize(el, canvas.Fill{Kind: canvas.FillMultiPath, Colors: []string{"#fff", "nope"}}), ErrInvalidColor)
	assert.Error(t, e.Colorize(el, canvas.Fill{Kind: canvas.FillPattern}))

	require.NoError(t, e.Colorize(el, canvas.Fill{Kind: canvas.FillSolid, Color: "#AbCdEf"}))
	f, ok := e.FillOf("a")
	require.True(t, ok)
	assert.Equal(t, "#AbCdEf", f.Color)

	require.NoError(t, e.Colorize(el, canvas.Fill{Kind: canvas.FillNone}))
	_, ok = e.FillOf("a")
	assert.False(t, ok)
}

func TestForget(t *testing.T) {
	e := newTestEngine(t, nil)
	el := square("a", 0, 0, 10)
	require.NoError(t, e.Colorize(el, canvas.Fill{Kind: canvas.FillSolid, Color: "#000"}))
	require.NoError(t, e.Clip(el, &models.Rect{Width: 1, Height: 1}))

	e.Forget("a")
	_, ok := e.FillOf("a")
	assert.False(t, ok)
	_, ok = e.ClipOf("a")
	assert.False(t, ok)
}
