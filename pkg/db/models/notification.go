package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-fulfillment/pkg/enums"
	"github.com/angelmondragon/storefront-fulfillment/pkg/types"
)

// Notification is both the in-app inbox entry and the delivery log row for a
// dispatched notification.
type Notification struct {
	ID             uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	RecipientID    *uuid.UUID             `gorm:"column:recipient_id;type:uuid"`
	RecipientEmail string                 `gorm:"column:recipient_email;not null"`
	Kind           enums.NotificationKind `gorm:"column:kind;type:notification_kind;not null"`
	OrderID        *uuid.UUID             `gorm:"column:order_id;type:uuid"`
	Title          string                 `gorm:"column:title;not null"`
	Message        string                 `gorm:"column:message;not null"`
	Data           types.JSONMap          `gorm:"column:data;type:jsonb"`
	Provider       *string                `gorm:"column:provider"`
	Delivered      bool                   `gorm:"column:delivered;not null;default:false"`
	LastError      *string                `gorm:"column:last_error"`
	ReadAt         *time.Time             `gorm:"column:read_at"`
	CreatedAt      time.Time              `gorm:"column:created_at;autoCreateTime"`
}

// BeforeCreate assigns the identifier.
func (n *Notification) BeforeCreate(*gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
