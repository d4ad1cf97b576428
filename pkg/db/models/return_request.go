package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-fulfillment/pkg/enums"
)

// ReturnRequest is a customer's request to send back one product from a
// delivered order. One request exists per (order, product).
type ReturnRequest struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	CustomerID    uuid.UUID          `gorm:"column:customer_id;type:uuid;not null"`
	OrderID       uuid.UUID          `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_return_requests_order_product"`
	ProductID     uuid.UUID          `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_return_requests_order_product"`
	Reason        string             `gorm:"column:reason;not null"`
	Status        enums.ReturnStatus `gorm:"column:status;type:return_status;not null"`
	ReturnWaybill *string            `gorm:"column:return_waybill"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns the identifier.
func (r *ReturnRequest) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
