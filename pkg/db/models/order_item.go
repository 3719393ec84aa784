package models

import "github.com/google/uuid"

// OrderItem freezes the product price and name at checkout time.
type OrderItem struct {
	OrderID     uuid.UUID `gorm:"column:order_id;type:uuid;primaryKey"`
	ProductID   uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	ProductName string    `gorm:"column:product_name;not null"`
	Quantity    int       `gorm:"column:quantity;not null"`
	PriceCents  int64     `gorm:"column:price_cents;not null"`
}

// LineTotalCents is quantity times the snapshot price.
func (i OrderItem) LineTotalCents() int64 {
	return int64(i.Quantity) * i.PriceCents
}
