package inventory

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-checkout/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
)

// ProductNotFound reports a product id the catalog does not know.
func ProductNotFound(productID uuid.UUID) *pkgerrors.Error {
	return pkgerrors.NewReason(pkgerrors.CodeNotFound, pkgerrors.ReasonProductNotFound, "product not found", map[string]any{
		"product_id": productID.String(),
	})
}

// ProductUnavailable reports a product hidden from sale.
func ProductUnavailable(p *models.Product) *pkgerrors.Error {
	return pkgerrors.NewReason(pkgerrors.CodeStateConflict, pkgerrors.ReasonProductUnavailable,
		fmt.Sprintf("product %s is not available", p.Name),
		map[string]any{
			"product_id":   p.ID.String(),
			"product_name": p.Name,
		})
}

// InsufficientStock names the product and what is left so callers can adjust.
func InsufficientStock(p *models.Product, requested int) *pkgerrors.Error {
	return pkgerrors.NewReason(pkgerrors.CodeConflict, pkgerrors.ReasonInsufficientStock,
		fmt.Sprintf("insufficient stock for %s: requested %d, available %d", p.Name, requested, p.Stock),
		map[string]any{
			"product_id":   p.ID.String(),
			"product_name": p.Name,
			"available":    p.Stock,
			"requested":    requested,
		})
}
