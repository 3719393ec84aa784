package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product is catalog-owned. Stock is the one column checkout mutates.
type Product struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	SellerID   uuid.UUID `gorm:"column:seller_id;type:uuid;not null;index"`
	Name       string    `gorm:"column:name;not null"`
	PriceCents int64     `gorm:"column:price_cents;not null"`
	Stock      int       `gorm:"column:stock;not null;default:0;check:products_stock_non_negative,stock >= 0"`
	Visible    bool      `gorm:"column:visible;not null;default:true"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
