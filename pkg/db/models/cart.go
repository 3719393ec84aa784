package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Cart groups one user's items from one seller. A row exists only while it
// has at least one CartItem.
type Cart struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID  `gorm:"column:user_id;type:uuid;not null;uniqueIndex:ux_carts_user_seller"`
	SellerID  uuid.UUID  `gorm:"column:seller_id;type:uuid;not null;uniqueIndex:ux_carts_user_seller"`
	Items     []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Cart) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
