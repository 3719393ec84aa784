package checkout

import (
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
)

// InvalidPaymentMethod reports a payment method outside the supported set.
func InvalidPaymentMethod(raw string) *pkgerrors.Error {
	return pkgerrors.NewReason(pkgerrors.CodeValidation, pkgerrors.ReasonInvalidPaymentMethod,
		"payment method must be one of cod, bank_transfer",
		map[string]any{"payment_method": raw})
}

// EmptyCart reports a checkout with nothing to buy.
func EmptyCart() *pkgerrors.Error {
	return pkgerrors.NewReason(pkgerrors.CodeStateConflict, pkgerrors.ReasonEmptyCart, "cart is empty", nil)
}

// ParsePaymentMethod accepts the raw request value, ignoring case and
// surrounding whitespace.
func ParsePaymentMethod(raw string) (enums.PaymentMethod, error) {
	method, err := enums.ParsePaymentMethod(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		return "", InvalidPaymentMethod(raw)
	}
	return method, nil
}

// NormalizeSelection drops nil and duplicate ids while keeping order. A nil
// selection means the whole cart and is returned unchanged; an explicit
// empty selection stays empty.
func NormalizeSelection(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return nil
	}
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// NormalizeAddress trims the shipping address; blank means "do not persist".
func NormalizeAddress(raw string) string {
	return strings.TrimSpace(raw)
}
