package designer

import (
	"github.com/product-designer/backend/internal/models"
	"github.com/product-designer/backend/internal/pricing"
)

// updatePrices refreshes every view's running total and fires priceChange
// when the product total moved.
func (s *Stage) updatePrices() {
	for _, v := range s.product.Views {
		v.TotalPrice, v.TruePrice = pricing.ViewPrice(v)
	}
	total := s.pricer.Total(s.product.Views, s.rules, 1).Total
	if total == s.total {
		return
	}
	s.total = total
	s.notify(models.Notification{Kind: models.NotifyPriceChange, View: -1, Price: total})
}

// ViewPrice returns a view's clamped price.
func (s *Stage) ViewPrice(view int) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.view(view)
	if err != nil {
		return 0, err
	}
	_, clamped := pricing.ViewPrice(v)
	return clamped, nil
}

// RulesPrice returns the contribution of the pricing rules.
func (s *Stage) RulesPrice() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pricer.RulesPrice(s.rules, s.product.Views)
}

// TotalPrice returns the price breakdown for a quantity.
func (s *Stage) TotalPrice(quantity int) models.PriceBreakdown {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pricer.Total(s.product.Views, s.rules, quantity)
}

// SetPricingRules replaces the rule groups evaluated for the total.
func (s *Stage) SetPricingRules(groups []models.RuleGroup) {
	_ = s.do(func() error {
		s.rules = append([]models.RuleGroup(nil), groups...)
		return nil
	})
}

// PricingRules returns the active rule groups.
func (s *Stage) PricingRules() []models.RuleGroup {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.RuleGroup(nil), s.rules...)
}
