package designer

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/product-designer/backend/internal/canvas"
	"github.com/product-designer/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitStarted(t *testing.T, h *harness, source string) {
	t.Helper()
	select {
	case got := <-h.loader.Started():
		require.Equal(t, source, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("load of %s never started", source)
	}
}

func canvasAsset(w, h float64) canvas.Asset {
	return canvas.Asset{Width: w, Height: h, Format: "png"}
}

func TestCreateImageLoadFailure(t *testing.T) {
	h := newHarness(t)
	h.loader.Fail("broken.png", errors.New("corrupt header"))

	_, err := h.stage.AddElement(context.Background(), 0, imageReq("Broken", "broken.png", nil))

	assert.ErrorIs(t, err, ErrAssetFailed)
	assert.Zero(t, h.stage.Loading())
	assert.Empty(t, titles(t, h.stage, 0))
	n, ok := h.events.last(models.NotifyElementFail)
	require.True(t, ok)
	assert.Equal(t, "Broken", n.Title)
	assert.Contains(t, n.Message, "corrupt header")
	assert.Zero(t, h.events.count(models.NotifyElementAdd))
}

func TestCreateImageCanceled(t *testing.T) {
	h := newHarness(t)
	release := h.loader.Block("slow.png")
	defer release()

	p := h.stage.Create(context.Background(), 0, imageReq("Slow", "slow.png", nil))
	waitStarted(t, h, "slow.png")
	assert.Equal(t, 1, h.stage.Loading())

	p.Cancel()
	_, err := p.Wait()

	assert.ErrorIs(t, err, ErrLoadCanceled)
	assert.Zero(t, h.stage.Loading())
	assert.Empty(t, titles(t, h.stage, 0))
}

func TestProductChangeAbandonsInFlightLoads(t *testing.T) {
	h := newHarness(t)
	release := h.loader.Block("slow.png")

	p := h.stage.Create(context.Background(), 0, imageReq("Slow", "slow.png", nil))
	waitStarted(t, h, "slow.png")

	require.NoError(t, h.stage.LoadProduct(context.Background(), testProduct()))
	release()
	_, err := p.Wait()

	assert.ErrorIs(t, err, ErrLoadCanceled)
	assert.Zero(t, h.stage.Loading())
	assert.Empty(t, titles(t, h.stage, 0))
}

func TestImageCommitsWithAssetSize(t *testing.T) {
	h := newHarness(t)
	id := h.add(t, 0, imageReq("Logo", "logo.png", models.Params{"x": 300.0, "y": 200.0}))

	el := h.get(t, id)
	assert.Equal(t, 100.0, el.Params.Width)
	assert.Equal(t, 50.0, el.Params.Height)
	assert.Equal(t, models.StateCommitted, el.Runtime.State)
	assert.Equal(t, []string{"logo.png"}, h.loader.Calls())
	assert.Equal(t, 1, h.events.count(models.NotifyElementAdd))
}

func TestCreateCentersElementsWithoutPosition(t *testing.T) {
	h := newHarness(t)
	id := h.add(t, 0, textReq("A", "a", nil))

	el := h.get(t, id)
	assert.Equal(t, 400.0, el.Params.X)
	assert.Equal(t, 300.0, el.Params.Y)

	id = h.add(t, 0, textReq("B", "b", models.Params{"boundingBox": models.Params{"x": 0.0, "y": 0.0, "width": 100.0, "height": 100.0}}))
	el = h.get(t, id)
	assert.Equal(t, 50.0, el.Params.X)
	assert.Equal(t, 50.0, el.Params.Y)
}

func TestRequestedIDIsKeptWhenFree(t *testing.T) {
	h := newHarness(t)
	id := h.add(t, 0, textReq("A", "a", models.Params{"id": "name-front"}))
	assert.Equal(t, "name-front", id)

	dup := h.add(t, 0, textReq("B", "b", models.Params{"id": "name-front"}))
	assert.NotEqual(t, "name-front", dup)
}

func TestReplaceGroupTakesOverPosition(t *testing.T) {
	h := newHarness(t)
	first := h.add(t, 0, imageReq("Logo A", "a.png", models.Params{"replace": "logo", "x": 100.0, "y": 100.0}))
	h.events.reset()

	second := h.add(t, 0, imageReq("Logo B", "b.png", models.Params{"replace": "logo"}))

	_, err := h.stage.Element(first)
	assert.ErrorIs(t, err, ErrElementNotFound)
	el := h.get(t, second)
	assert.Equal(t, 100.0, el.Params.X)
	assert.Equal(t, 100.0, el.Params.Y)
	assert.Equal(t, []string{"Logo B"}, titles(t, h.stage, 0))

	kinds := h.events.kinds()
	removed := slices.Index(kinds, models.NotifyElementRemove)
	added := slices.Index(kinds, models.NotifyElementAdd)
	require.NotEqual(t, -1, removed)
	require.NotEqual(t, -1, added)
	assert.Less(t, removed, added)
}

func TestReplaceInheritsScaleAndFill(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.ReplaceInheritScale = true
		o.ReplaceInheritFill = true
	})
	h.add(t, 0, imageReq("Logo A", "a.png", models.Params{"replace": "logo", "scale": 0.5, "fill": "#ff0000"}))
	second := h.add(t, 0, imageReq("Logo B", "b.png", models.Params{"replace": "logo"}))

	el := h.get(t, second)
	assert.Equal(t, 0.5, el.Params.ScaleX)
	assert.Equal(t, 0.5, el.Params.ScaleY)
	assert.Equal(t, "#ff0000", el.Params.Fill)
}

// zoneVisibleXorOccupied checks that an upload zone is hidden exactly when
// something occupies it.
func zoneVisibleXorOccupied(t *testing.T, s *Stage, zone string) {
	t.Helper()
	els, err := s.Elements(0)
	require.NoError(t, err)
	var (
		zoneEl   *models.Element
		occupied bool
	)
	for _, el := range els {
		if el.Title == zone {
			zoneEl = el
		}
		if el.Params.InUploadZone == zone {
			occupied = true
		}
	}
	require.NotNil(t, zoneEl)
	assert.NotEqual(t, zoneEl.Params.Visible, occupied)
}

func TestUploadZoneSlotting(t *testing.T) {
	h := newHarness(t)
	zoneID := h.add(t, 0, imageReq("Zone", "zone.png", models.Params{
		"uploadZone": true, "x": 400.0, "y": 300.0, "price": 3.0, "uploadZoneRemovable": true,
	}))
	zoneVisibleXorOccupied(t, h.stage, "Zone")

	photo1 := h.add(t, 0, imageReq("Photo 1", "photo1.png", models.Params{"isCustom": true, "addToUploadZone": "Zone"}))

	p1 := h.get(t, photo1)
	assert.Equal(t, "Zone", p1.Params.InUploadZone)
	assert.Equal(t, 400.0, p1.Params.X)
	assert.Equal(t, 300.0, p1.Params.Y)
	assert.Equal(t, 3.0, p1.Params.Price)
	assert.True(t, p1.Params.Removable)
	assert.False(t, p1.Params.Draggable)
	assert.Equal(t, models.BoundingClip, p1.Params.BoundingBoxMode)
	assert.False(t, h.get(t, zoneID).Params.Visible)
	zoneVisibleXorOccupied(t, h.stage, "Zone")

	var clip *models.Rect
	for _, c := range h.engine.Clipped() {
		if c.ElementID == photo1 {
			clip = c.Region
		}
	}
	require.NotNil(t, clip)
	assert.Equal(t, models.Rect{X: 350, Y: 275, Width: 100, Height: 50}, *clip)

	photo2 := h.add(t, 0, imageReq("Photo 2", "photo2.png", models.Params{"isCustom": true, "addToUploadZone": "Zone"}))
	_, err := h.stage.Element(photo1)
	assert.ErrorIs(t, err, ErrElementNotFound)
	assert.False(t, h.get(t, zoneID).Params.Visible)
	zoneVisibleXorOccupied(t, h.stage, "Zone")

	require.NoError(t, h.stage.Remove(photo2))
	assert.True(t, h.get(t, zoneID).Params.Visible)
	zoneVisibleXorOccupied(t, h.stage, "Zone")
}

func TestUploadZoneCoverScale(t *testing.T) {
	h := newHarness(t)
	h.loader.Set("zone.png", canvasAsset(200, 200))
	h.add(t, 0, imageReq("Zone", "zone.png", models.Params{"uploadZone": true, "uploadZoneScaleMode": "cover"}))

	id := h.add(t, 0, imageReq("Photo", "photo.png", models.Params{"isCustom": true, "addToUploadZone": "Zone"}))

	el := h.get(t, id)
	assert.Equal(t, 4.0, el.Params.ScaleX, "100x50 covers 200x200 at 4x")
}

func TestUploadConstraints(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.UploadMinWidth = 200 })

	_, err := h.stage.AddElement(context.Background(), 0, imageReq("Photo", "photo.png", models.Params{"isCustom": true}))
	assert.ErrorIs(t, err, ErrConstraintViolation)
	_, ok := h.events.last(models.NotifyError)
	assert.True(t, ok)

	_, err = h.stage.AddElement(context.Background(), 0, imageReq("Design", "design.png", nil))
	assert.NoError(t, err, "constraints only apply to custom uploads")
}

func TestDuplicateOffsetsCopy(t *testing.T) {
	h := newHarness(t)
	id := h.add(t, 0, textReq("Name", "Bob", models.Params{"x": 400.0, "y": 300.0, "fill": "#123456"}))

	copyID, err := h.stage.Duplicate(context.Background(), id)
	require.NoError(t, err)
	require.NotEqual(t, id, copyID)

	cp := h.get(t, copyID)
	assert.Equal(t, "Name", cp.Title)
	assert.Equal(t, "Bob", cp.Params.Text)
	assert.Equal(t, 430.0, cp.Params.X)
	assert.Equal(t, 330.0, cp.Params.Y)
	assert.Equal(t, "#123456", cp.Params.Fill)
	assert.Equal(t, 1, cp.Params.Z)

	assert.Eventually(t, func() bool { return h.stage.Selected() == copyID }, time.Second, 5*time.Millisecond)
}

func TestRemoveClearsSelection(t *testing.T) {
	h := newHarness(t)
	id := h.add(t, 0, textReq("A", "a", nil))
	require.NoError(t, h.stage.Select(id))
	assert.Equal(t, id, h.stage.Selected())

	require.NoError(t, h.stage.Remove(id))
	assert.Empty(t, h.stage.Selected())
	assert.Equal(t, 1, h.events.count(models.NotifyElementRemove))
}
