package models

import (
	"time"

	"github.com/google/uuid"
)

// CartItem quantity is always positive; zero is modelled as absence.
type CartItem struct {
	CartID    uuid.UUID `gorm:"column:cart_id;type:uuid;primaryKey"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	Quantity  int       `gorm:"column:quantity;not null;check:cart_items_quantity_positive,quantity > 0"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
