package pricing

import (
	"strings"
	"testing"

	"github.com/product-designer/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textElement(title, text string) *models.Element {
	return &models.Element{
		ID: title, Type: models.ElementTypeText, Title: title,
		Params:  models.Parameters{Text: text, FontSize: 20, ScaleX: 1, ScaleY: 1},
		Runtime: models.Runtime{State: models.StateCommitted},
	}
}

func imageElement(title string, w, h float64) *models.Element {
	return &models.Element{
		ID: title, Type: models.ElementTypeImage, Title: title,
		Params:  models.Parameters{Width: w, Height: h, ScaleX: 1, ScaleY: 1, IsCustom: true},
		Runtime: models.Runtime{State: models.StateCommitted},
	}
}

func viewWith(els ...*models.Element) *models.View {
	v := models.NewView(0, "Front", models.ViewOptions{StageWidth: 800, StageHeight: 600})
	v.Elements = append(v.Elements, els...)
	return v
}

func TestTextLengthRule(t *testing.T) {
	v := viewWith(textElement("Name", "abcdefghijkl"))
	group := models.RuleGroup{
		Target:   models.RuleTarget{Views: -1, Elements: SelectAllTexts},
		Property: PropTextLength,
		Type:     models.MatchAny,
		Rules:    []models.PriceRule{{Operator: ">", Value: 10, Price: 2}},
	}

	got := NewEngine().RulesPrice([]models.RuleGroup{group}, []*models.View{v})
	assert.Equal(t, 2.0, got)
}

func TestTextLengthIgnoresWhitespace(t *testing.T) {
	m, ok := Measure(PropTextLength, Target{Element: textElement("t", "ab c\nd ")})
	require.True(t, ok)
	assert.Equal(t, 4.0, m)
}

func TestMatchModes(t *testing.T) {
	v := viewWith(textElement("Name", "abcdefghijkl"))
	rules := []models.PriceRule{
		{Operator: ">", Value: 5, Price: 1},
		{Operator: ">", Value: 10, Price: 2},
		{Operator: "<", Value: 3, Price: 100},
	}

	t.Run("any takes the first match", func(t *testing.T) {
		g := models.RuleGroup{Target: models.RuleTarget{Views: -1}, Property: PropTextLength, Type: models.MatchAny, Rules: rules}
		assert.Equal(t, 1.0, NewEngine().GroupPrice(g, []*models.View{v}))
	})

	t.Run("all adds every match", func(t *testing.T) {
		g := models.RuleGroup{Target: models.RuleTarget{Views: -1}, Property: PropTextLength, Type: models.MatchAll, Rules: rules}
		assert.Equal(t, 3.0, NewEngine().GroupPrice(g, []*models.View{v}))
	})
}

func TestPerTargetAndLoopOnce(t *testing.T) {
	v := viewWith(
		imageElement("a", 100, 100),
		imageElement("b", 300, 200),
		textElement("c", "hello"),
	)
	views := []*models.View{v}
	e := NewEngine()

	perTarget := models.RuleGroup{
		Target:   models.RuleTarget{Views: -1, Elements: SelectCustomImages},
		Property: PropImageWidth,
		Rules:    []models.PriceRule{{Operator: ">=", Value: 100, Price: 5}},
	}
	assert.Equal(t, 10.0, e.GroupPrice(perTarget, views))

	once := models.RuleGroup{
		Target:   models.RuleTarget{Views: -1, Elements: SelectCustom},
		Property: PropElementsLength,
		Rules:    []models.PriceRule{{Operator: ">", Value: 1, Price: 7}},
	}
	assert.Equal(t, 7.0, e.GroupPrice(once, views))
}

func TestCompoundProperty(t *testing.T) {
	v := viewWith(imageElement("a", 300, 50))
	views := []*models.View{v}
	e := NewEngine()

	both := models.RuleGroup{
		Target:   models.RuleTarget{Views: -1},
		Property: PropImageSize,
		Rules:    []models.PriceRule{{Operator: ">", Value: map[string]any{"width": 200, "height": 40}, Price: 3}},
	}
	assert.Equal(t, 3.0, e.GroupPrice(both, views))

	oneFails := models.RuleGroup{
		Target:   models.RuleTarget{Views: -1},
		Property: PropImageSize,
		Rules:    []models.PriceRule{{Operator: ">", Value: map[string]any{"width": 200, "height": 60}, Price: 3}},
	}
	assert.Equal(t, 0.0, e.GroupPrice(oneFails, views))
}

func TestPriceFunctions(t *testing.T) {
	v := viewWith(textElement("Name", "abcdefghijkl"))
	e := NewEngine()
	g := models.RuleGroup{
		Target:   models.RuleTarget{Views: -1},
		Property: PropTextLength,
		Rules:    []models.PriceRule{{Operator: ">", Value: 10, Price: 0.5, PriceFn: "perUnitAbove"}},
	}
	assert.Equal(t, 1.0, e.GroupPrice(g, []*models.View{v}))

	e.Register("flat", func(models.PriceRule, float64) float64 { return 9 })
	g.Rules[0].PriceFn = "flat"
	assert.Equal(t, 9.0, e.GroupPrice(g, []*models.View{v}))
}

func TestViewPrice(t *testing.T) {
	a := imageElement("a", 10, 10)
	a.Params.Price = 4
	a.Params.CurrentColorPrice = 1
	b := imageElement("b", 10, 10)
	b.Params.Price = 3
	b.Params.Locked = true
	c := imageElement("c", 10, 10)
	c.Params.Price = 2
	c.Runtime.State = models.StateAttached

	v := viewWith(a, b, c)
	total, clamped := ViewPrice(v)
	assert.Equal(t, 5.0, total)
	assert.Equal(t, 5.0, clamped)

	v.Options.MaxPrice = 3
	_, clamped = ViewPrice(v)
	assert.Equal(t, 3.0, clamped)
}

func TestRemovingNeverIncreasesViewPrice(t *testing.T) {
	var els []*models.Element
	for i, p := range []float64{3, 0, 1.5, 7, 2.25} {
		el := imageElement(string(rune('a'+i)), 10, 10)
		el.Params.Price = p
		els = append(els, el)
	}
	for i := range els {
		before := viewWith(els...)
		_, pb := ViewPrice(before)

		rest := append(append([]*models.Element{}, els[:i]...), els[i+1:]...)
		after := viewWith(rest...)
		after.Options.MaxPrice = before.Options.MaxPrice
		_, pa := ViewPrice(after)
		assert.LessOrEqual(t, pa, pb)
	}
}

func TestTotal(t *testing.T) {
	a := imageElement("a", 10, 10)
	a.Params.Price = 10.25
	front := viewWith(a)

	back := models.NewView(1, "Back", models.ViewOptions{Optional: true})
	plain := textElement("t", "x")
	plain.Params.Price = 50
	back.Elements = append(back.Elements, plain)

	groups := []models.RuleGroup{{
		Target:   models.RuleTarget{Views: 0},
		Property: PropImageWidth,
		Rules:    []models.PriceRule{{Operator: "==", Value: 10, Price: 1}},
	}}

	got := NewEngine().Total([]*models.View{front, back}, groups, 3)
	assert.Equal(t, 0.0, got.Views[1], "optional view without custom content is free")
	assert.Equal(t, 1.0, got.Rules)
	assert.Equal(t, 33.75, got.Total)
	assert.Equal(t, 3, got.Quantity)
}

func TestLoadRules(t *testing.T) {
	t.Run("yaml list", func(t *testing.T) {
		doc := `
- target: {elements: "#allTexts"}
  property: textLength
  type: all
  rules:
    - {operator: ">", value: 10, price: 2}
`
		groups, err := LoadRulesFromReader(strings.NewReader(doc), "yaml")
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Equal(t, -1, groups[0].Target.Views)
		assert.Equal(t, models.MatchAll, groups[0].Type)
		assert.Equal(t, 2.0, groups[0].Rules[0].Price)
	})

	t.Run("json document", func(t *testing.T) {
		doc := `{"groups":[{"target":{"views":1,"elements":"Logo"},"property":"imageSize","rules":[{"operator":">=","value":{"width":100},"price":4}]}]}`
		groups, err := LoadRulesFromReader(strings.NewReader(doc), "json")
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Equal(t, 1, groups[0].Target.Views)
		assert.Equal(t, models.MatchAny, groups[0].Type)
	})

	t.Run("omitted target prices every view", func(t *testing.T) {
		for _, tc := range []struct{ format, doc string }{
			{"json", `[{"property":"textLength","rules":[{"operator":">","value":1,"price":2}]}]`},
			{"yaml", "- property: textLength\n  rules:\n    - {operator: \">\", value: 1, price: 2}\n"},
		} {
			groups, err := LoadRulesFromReader(strings.NewReader(tc.doc), tc.format)
			require.NoError(t, err, tc.format)
			require.Len(t, groups, 1)
			assert.Equal(t, -1, groups[0].Target.Views, tc.format)

			front := viewWith(textElement("a", "hello"))
			back := viewWith(textElement("b", "hello"))
			back.Index = 1
			assert.Equal(t, 4.0, NewEngine().RulesPrice(groups, []*models.View{front, back}), tc.format)
		}
	})

	t.Run("rejects unknown operator", func(t *testing.T) {
		doc := `[{"property":"fontSize","rules":[{"operator":"~","value":1,"price":1}]}]`
		_, err := LoadRulesFromReader(strings.NewReader(doc), "json")
		assert.Error(t, err)
	})
}
