package orders

import (
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
)

// OrderNotFound reports a missing order, or one the caller may not see.
func OrderNotFound(orderID uuid.UUID) *pkgerrors.Error {
	return pkgerrors.NewReason(pkgerrors.CodeNotFound, pkgerrors.ReasonOrderNotFound, "order not found", map[string]any{
		"order_id": orderID.String(),
	})
}

// InvalidTransition reports a status change the lifecycle graph forbids.
func InvalidTransition(kind string, from, to string) *pkgerrors.Error {
	return pkgerrors.NewReason(pkgerrors.CodeStateConflict, pkgerrors.ReasonInvalidTransition,
		kind+" status transition not allowed", map[string]any{
			"from": from,
			"to":   to,
		})
}

// StatusChanged reports a transition that lost a race: another writer moved
// the row out of status from after it was read.
func StatusChanged(kind string, from, to string) *pkgerrors.Error {
	return pkgerrors.NewReason(pkgerrors.CodeStateConflict, pkgerrors.ReasonInvalidTransition,
		kind+" status changed concurrently", map[string]any{
			"from": from,
			"to":   to,
		})
}
