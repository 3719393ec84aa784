package helpers

import (
	"github.com/angelmondragon/marketplace-checkout/internal/cart"
	"github.com/angelmondragon/marketplace-checkout/internal/inventory"
	"github.com/angelmondragon/marketplace-checkout/pkg/db/models"
)

// ValidateLines rejects the snapshot at the first hidden or short product.
// Line order is the snapshot order, so the reported product is deterministic.
func ValidateLines(lines []cart.Line) error {
	for _, line := range lines {
		product := productOf(line)
		if !line.Visible {
			return inventory.ProductUnavailable(product)
		}
		if line.Quantity > line.Stock {
			return inventory.InsufficientStock(product, line.Quantity)
		}
	}
	return nil
}

func productOf(line cart.Line) *models.Product {
	return &models.Product{
		ID:         line.ProductID,
		SellerID:   line.SellerID,
		Name:       line.ProductName,
		PriceCents: line.PriceCents,
		Stock:      line.Stock,
		Visible:    line.Visible,
	}
}
