package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-checkout/pkg/enums"
)

// Order is one seller's share of a checkout. Only Status changes after insert.
type Order struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID          uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	SellerID        uuid.UUID         `gorm:"column:seller_id;type:uuid;not null;index"`
	Status          enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'pending'"`
	TotalCents      int64             `gorm:"column:total_cents;not null"`
	ItemCount       int               `gorm:"column:item_count;not null"`
	ShippingAddress *string           `gorm:"column:shipping_address"`
	OrderDate       time.Time         `gorm:"column:order_date;not null"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
	Items           []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payment         *Payment          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Shipment        *Shipment         `gorm:"foreignKey:OrderID"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	if o.OrderDate.IsZero() {
		o.OrderDate = time.Now().UTC()
	}
	return nil
}
