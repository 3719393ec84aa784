package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-checkout/pkg/db/models"
	"github.com/angelmondragon/marketplace-checkout/pkg/enums"
)

// ListFilters narrows an order listing.
type ListFilters struct {
	Status *enums.OrderStatus
}

// OrderSummary is one row of an order listing.
type OrderSummary struct {
	ID            uuid.UUID           `json:"orderId"`
	UserID        uuid.UUID           `json:"userId"`
	SellerID      uuid.UUID           `json:"sellerId"`
	SellerName    string              `json:"sellerName"`
	Status        enums.OrderStatus   `json:"status"`
	TotalCents    int64               `json:"total"`
	ItemCount     int                 `json:"itemCount"`
	PaymentMethod enums.PaymentMethod `json:"paymentMethod,omitempty"`
	PaymentStatus enums.PaymentStatus `json:"paymentStatus,omitempty"`
	OrderDate     time.Time           `json:"orderDate"`
}

// OrderList wraps a page of orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"cursor,omitempty"`
}

type ItemDetail struct {
	ProductID  uuid.UUID `json:"productId"`
	Name       string    `json:"name"`
	Quantity   int       `json:"quantity"`
	PriceCents int64     `json:"price"`
	LineTotal  int64     `json:"lineTotal"`
}

type PaymentDetail struct {
	ID          uuid.UUID           `json:"id"`
	Method      enums.PaymentMethod `json:"method"`
	AmountCents int64               `json:"amount"`
	Status      enums.PaymentStatus `json:"status"`
}

type ShipmentDetail struct {
	Carrier        string     `json:"carrier"`
	TrackingNumber *string    `json:"trackingNumber,omitempty"`
	Status         string     `json:"status"`
	ShippedAt      *time.Time `json:"shippedAt,omitempty"`
	DeliveredAt    *time.Time `json:"deliveredAt,omitempty"`
}

// OrderDetail is a single order joined with its items, payment and
// shipment. Shipment is nil until the tracking service writes one.
type OrderDetail struct {
	ID              uuid.UUID         `json:"orderId"`
	UserID          uuid.UUID         `json:"userId"`
	SellerID        uuid.UUID         `json:"sellerId"`
	SellerName      string            `json:"sellerName"`
	Status          enums.OrderStatus `json:"status"`
	TotalCents      int64             `json:"total"`
	ItemCount       int               `json:"itemCount"`
	ShippingAddress *string           `json:"shippingAddress,omitempty"`
	OrderDate       time.Time         `json:"orderDate"`
	Items           []ItemDetail      `json:"items"`
	Payment         *PaymentDetail    `json:"payment,omitempty"`
	Shipment        *ShipmentDetail   `json:"shipment,omitempty"`
}

func newOrderDetail(order models.Order, sellerName string) *OrderDetail {
	detail := &OrderDetail{
		ID:              order.ID,
		UserID:          order.UserID,
		SellerID:        order.SellerID,
		SellerName:      sellerName,
		Status:          order.Status,
		TotalCents:      order.TotalCents,
		ItemCount:       order.ItemCount,
		ShippingAddress: order.ShippingAddress,
		OrderDate:       order.OrderDate,
		Items:           make([]ItemDetail, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		detail.Items = append(detail.Items, ItemDetail{
			ProductID:  item.ProductID,
			Name:       item.ProductName,
			Quantity:   item.Quantity,
			PriceCents: item.PriceCents,
			LineTotal:  item.LineTotalCents(),
		})
	}
	if order.Payment != nil {
		detail.Payment = &PaymentDetail{
			ID:          order.Payment.ID,
			Method:      order.Payment.Method,
			AmountCents: order.Payment.AmountCents,
			Status:      order.Payment.Status,
		}
	}
	if order.Shipment != nil {
		detail.Shipment = &ShipmentDetail{
			Carrier:        order.Shipment.Carrier,
			TrackingNumber: order.Shipment.TrackingNumber,
			Status:         order.Shipment.Status,
			ShippedAt:      order.Shipment.ShippedAt,
			DeliveredAt:    order.Shipment.DeliveredAt,
		}
	}
	return detail
}
