package pricing

import (
	"strings"
	"sync"

	"github.com/product-designer/backend/internal/models"
)

// Element selectors understood by rule targets.
const (
	SelectAll          = "#all"
	SelectAllImages    = "#allImages"
	SelectAllTexts     = "#allTexts"
	SelectCustom       = "#custom"
	SelectAllCustom    = "#allCustom"
	SelectCustomImages = "#customImages"
	SelectCustomTexts  = "#customTexts"
)

// PriceFunc computes a rule's contribution from the measured value.
type PriceFunc func(rule models.PriceRule, measured float64) float64

// Engine evaluates pricing rule groups.
type Engine struct {
	mu    sync.RWMutex
	funcs map[string]PriceFunc
}

// NewEngine creates an engine with the built-in price functions registered.
func NewEngine() *Engine {
	e := &Engine{funcs: make(map[string]PriceFunc)}
	e.Register("perUnit", func(r models.PriceRule, measured float64) float64 {
		return r.Price * measured
	})
	e.Register("perUnitAbove", func(r models.PriceRule, measured float64) float64 {
		threshold, _ := models.ToFloat(r.Value)
		if measured <= threshold {
			return 0
		}
		return r.Price * (measured - threshold)
	})
	return e
}

// Register adds or replaces a named price function.
func (e *Engine) Register(name string, fn PriceFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.funcs[name] = fn
}

func (e *Engine) priceOf(rule models.PriceRule, measured any) float64 {
	if rule.PriceFn == "" {
		return rule.Price
	}
	e.mu.RLock()
	fn, ok := e.funcs[rule.PriceFn]
	e.mu.RUnlock()
	if !ok {
		return rule.Price
	}
	return fn(rule, scalar(measured))
}

// RulesPrice evaluates every group against the views and returns the sum of
// the contributions.
func (e *Engine) RulesPrice(groups []models.RuleGroup, views []*models.View) float64 {
	total := 0.0
	for _, g := range groups {
		total += e.GroupPrice(g, views)
	}
	return total
}

// GroupPrice evaluates one rule group.
func (e *Engine) GroupPrice(g models.RuleGroup, views []*models.View) float64 {
	targets := Targets(g.Target, views)

	if loopOnce[g.Property] {
		measured, ok := MeasureSet(g.Property, targets)
		if !ok {
			return 0
		}
		return e.evaluate(g, measured)
	}

	total := 0.0
	for _, t := range targets {
		measured, ok := Measure(g.Property, t)
		if !ok || measured == nil {
			continue
		}
		total += e.evaluate(g, measured)
	}
	return total
}

func (e *Engine) evaluate(g models.RuleGroup, measured any) float64 {
	sum := 0.0
	for _, rule := range g.Rules {
		if !Compare(rule.Operator, measured, rule.Value) {
			continue
		}
		sum += e.priceOf(rule, measured)
		if g.Type != models.MatchAll {
			break
		}
	}
	return sum
}

// Total computes the full price breakdown for a quantity.
func (e *Engine) Total(views []*models.View, groups []models.RuleGroup, quantity int) models.PriceBreakdown {
	if quantity < 1 {
		quantity = 1
	}
	out := models.PriceBreakdown{Views: make([]float64, len(views)), Quantity: quantity}
	sum := 0.0
	for i, v := range views {
		if !Chargeable(v) {
			continue
		}
		_, clamped := ViewPrice(v)
		out.Views[i] = clamped
		sum += clamped
	}
	out.Rules = e.RulesPrice(groups, views)
	out.Total = Round((sum + out.Rules) * float64(quantity))
	return out
}

// Targets resolves a rule target into the committed elements it selects.
func Targets(target models.RuleTarget, views []*models.View) []Target {
	var out []Target
	for _, v := range views {
		if target.Views >= 0 && v.Index != target.Views {
			continue
		}
		for _, el := range v.Elements {
			if el.Committed() && selects(target.Elements, el) {
				out = append(out, Target{Element: el, View: v})
			}
		}
	}
	return out
}

func selects(selector string, el *models.Element) bool {
	switch selector {
	case "", SelectAll:
		return true
	case SelectAllImages:
		return el.IsImage()
	case SelectAllTexts:
		return el.IsText()
	case SelectCustom, SelectAllCustom:
		return el.Params.IsCustom
	case SelectCustomImages:
		return el.Params.IsCustom && el.IsImage()
	case SelectCustomTexts:
		return el.Params.IsCustom && el.IsText()
	}
	if strings.HasPrefix(selector, "#") {
		return false
	}
	return el.Title == selector
}
