// Package pricing computes view prices and evaluates declarative pricing
// rules against the live scene.
package pricing

import (
	"math"

	"github.com/product-designer/backend/internal/models"
)

// ViewPrice sums the committed, unlocked elements of a view. The second
// result is clamped to the view's max price when one is set.
func ViewPrice(v *models.View) (total, clamped float64) {
	for _, el := range v.Elements {
		if !el.Committed() || el.Params.Locked {
			continue
		}
		total += el.ElementPrice()
	}
	clamped = total
	if v.Options.MaxPrice > 0 && clamped > v.Options.MaxPrice {
		clamped = v.Options.MaxPrice
	}
	return total, clamped
}

// Chargeable reports whether a view's price counts towards the total.
// Optional views are only charged once they hold custom content.
func Chargeable(v *models.View) bool {
	return !v.Options.Optional || v.HasCustomElements()
}

// Round rounds to at most two decimal places.
func Round(x float64) float64 {
	return math.Round(x*100) / 100
}
