package cart

import (
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
)

// ItemNotFound reports a product the user does not hold in any cart.
func ItemNotFound(productID uuid.UUID) *pkgerrors.Error {
	return pkgerrors.NewReason(pkgerrors.CodeNotFound, pkgerrors.ReasonItemNotFound, "item not in cart", map[string]any{
		"product_id": productID.String(),
	})
}
