package orders

import (
	"github.com/angelmondragon/marketplace-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
)

// OrderPatch carries the order fields a caller wants to change. Status is
// the only mutable column of an order.
type OrderPatch struct {
	Status *enums.OrderStatus
}

// Validate rejects patches that name values outside the enum.
func (p OrderPatch) Validate() error {
	if p.Status == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "status is required")
	}
	if !p.Status.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid order status %q", string(*p.Status))
	}
	return nil
}

// Updates converts the patch into column/value pairs for a parameterized
// UPDATE.
func (p OrderPatch) Updates() map[string]any {
	updates := map[string]any{}
	if p.Status != nil {
		updates["status"] = string(*p.Status)
	}
	return updates
}

// PaymentPatch carries the payment fields a caller wants to change.
type PaymentPatch struct {
	Status *enums.PaymentStatus
}

func (p PaymentPatch) Validate() error {
	if p.Status == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment status is required")
	}
	if !p.Status.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid payment status %q", string(*p.Status))
	}
	return nil
}

func (p PaymentPatch) Updates() map[string]any {
	updates := map[string]any{}
	if p.Status != nil {
		updates["status"] = string(*p.Status)
	}
	return updates
}
