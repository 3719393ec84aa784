package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Seller is owned by the catalog service; checkout only reads it.
type Seller struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (s *Seller) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
