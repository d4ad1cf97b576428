package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-fulfillment/pkg/enums"
	"github.com/angelmondragon/storefront-fulfillment/pkg/types"
)

// Order is a customer purchase and its fulfillment state.
type Order struct {
	ID                    uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber           string              `gorm:"column:order_number;not null;uniqueIndex"`
	CustomerID            uuid.UUID           `gorm:"column:customer_id;type:uuid;not null"`
	CustomerEmail         string              `gorm:"column:customer_email;not null"`
	Items                 types.LineItems     `gorm:"column:items;type:jsonb;not null"`
	Subtotal              decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Tax                   decimal.Decimal     `gorm:"column:tax;type:numeric(12,2);not null"`
	ShippingFee           decimal.Decimal     `gorm:"column:shipping_fee;type:numeric(12,2);not null"`
	Total                 decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null"`
	Status                enums.OrderStatus   `gorm:"column:status;type:order_status;not null"`
	PaymentMethod         enums.PaymentMethod `gorm:"column:payment_method;type:payment_method;not null"`
	PaymentStatus         enums.PaymentStatus `gorm:"column:payment_status;type:payment_status;not null"`
	GatewayOrderID        *string             `gorm:"column:gateway_order_id"`
	PaymentConfirmationID *string             `gorm:"column:payment_confirmation_id"`
	ShippingAddress       types.Address       `gorm:"column:shipping_address;type:jsonb;not null"`
	Waybill               *string             `gorm:"column:waybill"`
	CarrierName           *string             `gorm:"column:carrier_name"`
	TrackingURL           *string             `gorm:"column:tracking_url"`
	PickupScheduled       bool                `gorm:"column:pickup_scheduled;not null;default:false"`
	PickupError           *string             `gorm:"column:pickup_error"`
	CancellationReason    *string             `gorm:"column:cancellation_reason"`
	DeliveredAt           *time.Time          `gorm:"column:delivered_at"`
	LabelRef              *string             `gorm:"column:label_ref"`
	InvoiceRef            *string             `gorm:"column:invoice_ref"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns the opaque identifier.
func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// HasWaybill reports whether the order was already handed to the carrier.
func (o *Order) HasWaybill() bool {
	return o.Waybill != nil && *o.Waybill != ""
}
