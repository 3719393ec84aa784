package models

import (
	"time"

	"github.com/google/uuid"
)

// Shipment rows are written by the shipment tracking service.
type Shipment struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID  `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	Carrier        string     `gorm:"column:carrier;not null"`
	TrackingNumber *string    `gorm:"column:tracking_number"`
	Status         string     `gorm:"column:status;not null"`
	ShippedAt      *time.Time `gorm:"column:shipped_at"`
	DeliveredAt    *time.Time `gorm:"column:delivered_at"`
}
