package designer

import (
	"testing"

	"github.com/product-designer/backend/internal/models"
	"github.com/product-designer/backend/internal/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceChangeOnAdd(t *testing.T) {
	h := newHarness(t)
	h.add(t, 0, imageReq("Logo", "logo.png", models.Params{"price": 5.0}))

	n, ok := h.events.last(models.NotifyPriceChange)
	require.True(t, ok)
	assert.Equal(t, 5.0, n.Price)
	assert.Equal(t, 5.0, h.stage.TotalPrice(1).Total)
	assert.Equal(t, 10.0, h.stage.TotalPrice(2).Total)

	vp, err := h.stage.ViewPrice(0)
	require.NoError(t, err)
	assert.Equal(t, 5.0, vp)
}

func TestColorPrices(t *testing.T) {
	h := newHarness(t)
	id := h.add(t, 0, textReq("Name", "Bob", models.Params{"colorPrices": models.Params{"#FF0000": 2.0}}))
	assert.Zero(t, h.get(t, id).Params.CurrentColorPrice)

	require.NoError(t, h.stage.ApplyOptions(id, models.Params{"fill": "#ff0000"}))
	assert.Equal(t, 2.0, h.get(t, id).Params.CurrentColorPrice)
	assert.Equal(t, 2.0, h.stage.TotalPrice(1).Total)

	require.NoError(t, h.stage.ApplyOptions(id, models.Params{"fill": "#000000"}))
	assert.Zero(t, h.stage.TotalPrice(1).Total)
}

func TestOptionalViewChargedOnceCustomized(t *testing.T) {
	h := newHarness(t)
	h.add(t, 1, textReq("Back print", "b", models.Params{"price": 4.0}))
	assert.Zero(t, h.stage.TotalPrice(1).Total)

	h.add(t, 1, textReq("Custom", "c", models.Params{"price": 1.0, "isCustom": true}))
	assert.Equal(t, 5.0, h.stage.TotalPrice(1).Total)
}

func TestLockedElementsAreFree(t *testing.T) {
	h := newHarness(t)
	id := h.add(t, 0, textReq("Name", "Bob", models.Params{"price": 3.0}))
	require.NoError(t, h.stage.ApplyOptions(id, models.Params{"locked": true}))

	assert.Zero(t, h.stage.TotalPrice(1).Total)
}

func TestViewMaxPriceClamps(t *testing.T) {
	h := newHarness(t)
	h.add(t, 0, textReq("A", "a", models.Params{"price": 8.0}))
	h.add(t, 0, textReq("B", "b", models.Params{"price": 8.0}))
	assert.Equal(t, 16.0, h.stage.TotalPrice(1).Total)

	def := testProduct()
	def.Views[0].Options.MaxPrice = 10
	def.Views[0].Elements = []models.ElementJSON{
		textReq("A", "a", models.Params{"price": 8.0}),
		textReq("B", "b", models.Params{"price": 8.0}),
	}
	require.NoError(t, h.stage.LoadProduct(t.Context(), def))
	assert.Equal(t, 10.0, h.stage.TotalPrice(1).Total)
}

func TestPricingRulesContribute(t *testing.T) {
	h := newHarness(t)
	h.add(t, 0, textReq("Name", "Alexander", nil))
	h.events.reset()

	h.stage.SetPricingRules([]models.RuleGroup{{
		Target:   models.RuleTarget{Views: -1, Elements: pricing.SelectAllTexts},
		Property: pricing.PropTextLength,
		Type:     models.MatchAny,
		Rules:    []models.PriceRule{{Operator: ">", Value: 5, Price: 2}},
	}})

	assert.Equal(t, 2.0, h.stage.RulesPrice())
	assert.Equal(t, 2.0, h.stage.TotalPrice(1).Total)
	assert.Len(t, h.stage.PricingRules(), 1)
	n, ok := h.events.last(models.NotifyPriceChange)
	require.True(t, ok)
	assert.Equal(t, 2.0, n.Price)
}
