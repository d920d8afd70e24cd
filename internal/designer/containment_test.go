package designer

import (
	"testing"

	"github.com/product-designer/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pbParams() models.Params {
	return models.Params{"x": 200.0, "y": 100.0, "width": 400.0, "height": 400.0}
}

func TestFlagOutIsEdgeTriggered(t *testing.T) {
	h := newHarness(t)
	id := h.add(t, 0, textReq("Name", "Name", models.Params{
		"x": 400.0, "y": 300.0, "boundingBox": pbParams(), "boundingBoxMode": "inside",
	}))
	assert.Equal(t, "#005ede", h.get(t, id).Runtime.BorderColor)
	h.events.reset()

	require.NoError(t, h.stage.ApplyOptions(id, models.Params{"x": 100.0}))
	assert.Equal(t, 1, h.events.count(models.NotifyElementOut))
	el := h.get(t, id)
	assert.True(t, el.Runtime.OutOfBounds)
	assert.Equal(t, "#ff0000", el.Runtime.BorderColor)

	require.NoError(t, h.stage.ApplyOptions(id, models.Params{"x": 50.0}))
	assert.Equal(t, 1, h.events.count(models.NotifyElementOut))
	assert.Zero(t, h.events.count(models.NotifyElementIn))

	require.NoError(t, h.stage.ApplyOptions(id, models.Params{"x": 400.0}))
	assert.Equal(t, 1, h.events.count(models.NotifyElementIn))
	assert.False(t, h.get(t, id).Runtime.OutOfBounds)
}

func TestLimitModificationRevertsToLastValid(t *testing.T) {
	h := newHarness(t)
	id := h.add(t, 0, imageReq("Logo", "logo.png", models.Params{
		"x": 400.0, "y": 300.0, "boundingBox": pbParams(), "boundingBoxMode": "limitModification",
	}))

	require.NoError(t, h.stage.ApplyOptions(id, models.Params{"x": 50.0}))
	el := h.get(t, id)
	assert.Equal(t, 400.0, el.Params.X)

	require.NoError(t, h.stage.ApplyOptions(id, models.Params{"scale": 10.0}))
	el = h.get(t, id)
	assert.Equal(t, 1.0, el.Params.ScaleX)

	require.NoError(t, h.stage.ApplyOptions(id, models.Params{"x": 500.0}))
	assert.Equal(t, 500.0, h.get(t, id).Params.X, "valid moves are kept")
}

func TestLimitModificationFitsInitialPlacement(t *testing.T) {
	h := newHarness(t)
	id := h.add(t, 0, imageReq("Logo", "logo.png", models.Params{
		"x": 10.0, "y": 10.0, "boundingBox": pbParams(), "boundingBoxMode": "limitModification",
	}))

	el := h.get(t, id)
	assert.Equal(t, 250.0, el.Params.X)
	assert.Equal(t, 125.0, el.Params.Y)

	region, err := h.stage.BoundingRegion(id)
	require.NoError(t, err)
	require.NotNil(t, region)
	assert.True(t, region.Contains(el.BoundingRect()))
}

func TestAutoFitOnlyShrinksIntoRegion(t *testing.T) {
	h := newHarness(t)
	h.loader.Set("big.png", canvasAsset(800, 400))

	small := h.add(t, 0, imageReq("Small", "logo.png", models.Params{"boundingBox": pbParams()}))
	big := h.add(t, 0, imageReq("Big", "big.png", models.Params{"boundingBox": pbParams()}))

	assert.Equal(t, 1.0, h.get(t, small).Params.ScaleX)
	assert.Equal(t, 0.5, h.get(t, big).Params.ScaleX)

	explicit := h.add(t, 0, imageReq("Explicit", "big.png", models.Params{"boundingBox": pbParams(), "scale": 0.25}))
	assert.Equal(t, 0.25, h.get(t, explicit).Params.ScaleX)
}

func TestResizeToScalesBothWays(t *testing.T) {
	h := newHarness(t)
	id := h.add(t, 0, imageReq("Logo", "logo.png", models.Params{"resizeToW": 300.0}))

	assert.Equal(t, 3.0, h.get(t, id).Params.ScaleX)
}

func TestClippingFollowsPrintingBox(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.PrintingBoxAsBounding = true })
	id := h.add(t, 0, imageReq("Logo", "logo.png", nil))

	el := h.get(t, id)
	assert.Equal(t, models.BoundingClip, el.Params.BoundingBoxMode)
	require.NotNil(t, el.Runtime.ClipRegion)
	assert.Equal(t, *printingBox(), *el.Runtime.ClipRegion)
	assert.Equal(t, 400.0, el.Params.X, "placed at the printing box center")

	require.NoError(t, h.stage.ApplyOptions(id, models.Params{"boundingBoxMode": nil}))
	clips := h.engine.Clipped()
	require.NotEmpty(t, clips)
	assert.Nil(t, clips[len(clips)-1].Region)
	assert.Nil(t, h.get(t, id).Runtime.ClipRegion)
}

func TestBoundingReferenceFollowsTarget(t *testing.T) {
	h := newHarness(t)
	frame := h.add(t, 0, imageReq("Frame", "frame.png", models.Params{"x": 400.0, "y": 300.0}))
	name := h.add(t, 0, textReq("Name", "Hi", models.Params{"boundingBox": "Frame", "boundingBoxMode": "clipping"}))

	region, err := h.stage.BoundingRegion(name)
	require.NoError(t, err)
	require.NotNil(t, region)
	assert.Equal(t, models.Rect{X: 350, Y: 275, Width: 100, Height: 50}, *region)

	require.NoError(t, h.stage.ApplyOptions(frame, models.Params{"x": 500.0}))
	el := h.get(t, name)
	require.NotNil(t, el.Runtime.ClipRegion)
	assert.Equal(t, 450.0, el.Runtime.ClipRegion.X)
}

func TestUnresolvedBoundingReferenceIsIgnored(t *testing.T) {
	h := newHarness(t)
	id := h.add(t, 0, textReq("Name", "Hi", models.Params{"boundingBox": "Nowhere", "boundingBoxMode": "limitModification", "x": 5.0}))

	region, err := h.stage.BoundingRegion(id)
	require.NoError(t, err)
	assert.Nil(t, region)
	assert.Equal(t, 5.0, h.get(t, id).Params.X)
}

func TestRotatedBoundingRect(t *testing.T) {
	el := &models.Element{Params: models.Parameters{X: 100, Y: 100, Width: 100, Height: 50, ScaleX: 1, ScaleY: 1, Angle: 90}}
	r := el.BoundingRect()
	assert.InDelta(t, 50, r.Width, 1e-9)
	assert.InDelta(t, 100, r.Height, 1e-9)
	assert.InDelta(t, 75, r.X, 1e-9)
	assert.InDelta(t, 50, r.Y, 1e-9)
}

func TestUploadZoneShrinksOccupant(t *testing.T) {
	h := newHarness(t)
	h.loader.Set("slot.png", canvasAsset(50, 50))
	h.add(t, 0, imageReq("Slot", "slot.png", models.Params{"uploadZone": true, "x": 400.0, "y": 300.0}))

	id := h.add(t, 0, imageReq("Photo", "photo.png", models.Params{"isCustom": true, "addToUploadZone": "Slot"}))

	el := h.get(t, id)
	assert.Equal(t, 0.5, el.Params.ScaleX, "100x50 fits a 50x50 zone at half size")
	assert.Equal(t, 0.5, el.Params.ScaleY)
}

func TestLimitModificationKeepsAutoFitScale(t *testing.T) {
	h := newHarness(t)
	h.loader.Set("big.png", canvasAsset(800, 400))
	id := h.add(t, 0, imageReq("Big", "big.png", models.Params{
		"x": 400.0, "y": 300.0, "boundingBox": pbParams(), "boundingBoxMode": "limitModification",
	}))

	el := h.get(t, id)
	assert.Equal(t, 0.5, el.Params.ScaleX)
	assert.Equal(t, 400.0, el.Params.X, "the fitted image is already inside, nothing moves")
	require.NotNil(t, el.Runtime.LastValid)
	assert.Equal(t, 0.5, el.Runtime.LastValid.ScaleX)

	require.NoError(t, h.stage.ApplyOptions(id, models.Params{"scale": 1.0}))
	el = h.get(t, id)
	assert.Equal(t, 0.5, el.Params.ScaleX, "growing past the region snaps back")

	region, err := h.stage.BoundingRegion(id)
	require.NoError(t, err)
	require.NotNil(t, region)
	assert.True(t, region.Contains(el.BoundingRect()))
}
