package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is the slice of the catalog row fulfillment touches: stock and sales counters.
type Product struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Title     string    `gorm:"column:title;not null"`
	Stock     int       `gorm:"column:stock;not null;default:0"`
	SoldCount int       `gorm:"column:sold_count;not null;default:0"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
