package checkout

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-checkout/internal/cart"
)

var basisPointsDivisor = decimal.NewFromInt(10000)

// taxCents applies a basis-point rate and rounds half up to whole cents.
func taxCents(subtotal, rateBPS int64) int64 {
	if subtotal <= 0 || rateBPS <= 0 {
		return 0
	}
	return decimal.NewFromInt(subtotal).
		Mul(decimal.NewFromInt(rateBPS)).
		Div(basisPointsDivisor).
		Round(0).
		IntPart()
}

func summarize(groups []cart.SellerGroup, rateBPS int64) Summary {
	var summary Summary
	for _, group := range groups {
		summary.Subtotal += group.SubtotalCents
		summary.ItemCount += group.Quantity
	}
	summary.Tax = taxCents(summary.Subtotal, rateBPS)
	summary.Total = summary.Subtotal + summary.Tax
	return summary
}
