package checkout

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-checkout/internal/cart"
)

// Input is a buyer's request to turn (part of) their cart into orders.
// A nil SelectedItems checks out the whole cart.
type Input struct {
	UserID          uuid.UUID
	PaymentMethod   string
	ShippingAddress string
	SelectedItems   []uuid.UUID
}

// OrderSummary describes one order created by a checkout.
type OrderSummary struct {
	OrderID   uuid.UUID `json:"orderId"`
	SellerID  uuid.UUID `json:"sellerId"`
	Total     int64     `json:"total"`
	ItemCount int       `json:"itemCount"`
}

// Result is returned once the checkout transaction has committed.
type Result struct {
	Orders      []OrderSummary `json:"orders"`
	TotalAmount int64          `json:"totalAmount"`
	OrderCount  int            `json:"orderCount"`
}

// Summary is the money block of the checkout preview.
type Summary struct {
	Subtotal  int64 `json:"subtotal"`
	Tax       int64 `json:"tax"`
	Total     int64 `json:"total"`
	ItemCount int   `json:"itemCount"`
}

// Preview shows what a checkout of the whole cart would produce.
type Preview struct {
	OrdersBySeller []cart.SellerGroup `json:"ordersBySeller"`
	Summary        Summary            `json:"summary"`
}
