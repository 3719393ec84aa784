package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-checkout/pkg/enums"
)

// OrderCreatedItem is one frozen line of a new order.
type OrderCreatedItem struct {
	ProductID  uuid.UUID `json:"product_id"`
	Name       string    `json:"name"`
	Quantity   int       `json:"quantity"`
	PriceCents int64     `json:"price_cents"`
}

// OrderCreatedEvent is emitted once per order written by checkout.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	UserID        uuid.UUID           `json:"user_id"`
	SellerID      uuid.UUID           `json:"seller_id"`
	TotalCents    int64               `json:"total_cents"`
	ItemCount     int                 `json:"item_count"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	Items         []OrderCreatedItem  `json:"items"`
	OrderDate     time.Time           `json:"order_date"`
}

// OrderStatusChangedEvent is emitted after a seller moves an order.
type OrderStatusChangedEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	UserID     uuid.UUID         `json:"user_id"`
	SellerID   uuid.UUID         `json:"seller_id"`
	FromStatus enums.OrderStatus `json:"from_status"`
	ToStatus   enums.OrderStatus `json:"to_status"`
	Restocked  bool              `json:"restocked,omitempty"`
}

// PaymentStatusChangedEvent is emitted after a payment record moves.
type PaymentStatusChangedEvent struct {
	OrderID    uuid.UUID           `json:"order_id"`
	PaymentID  uuid.UUID           `json:"payment_id"`
	FromStatus enums.PaymentStatus `json:"from_status"`
	ToStatus   enums.PaymentStatus `json:"to_status"`
}
