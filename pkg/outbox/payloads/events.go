package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-fulfillment/pkg/enums"
)

// OrderPlacedEvent is emitted once an order is payable: COD at creation,
// prepaid after payment confirmation.
type OrderPlacedEvent struct {
	OrderID       uuid.UUID           `json:"orderId"`
	OrderNumber   string              `json:"orderNumber"`
	CustomerID    uuid.UUID           `json:"customerId"`
	PaymentMethod enums.PaymentMethod `json:"paymentMethod"`
	Subtotal      decimal.Decimal     `json:"subtotal"`
	Tax           decimal.Decimal     `json:"tax"`
	ShippingFee   decimal.Decimal     `json:"shippingFee"`
	Total         decimal.Decimal     `json:"total"`
	ItemCount     int                 `json:"itemCount"`
	PlacedAt      time.Time           `json:"placedAt"`
}

// OrderStatusChangedEvent records one state machine transition.
type OrderStatusChangedEvent struct {
	OrderID        uuid.UUID         `json:"orderId"`
	OrderNumber    string            `json:"orderNumber"`
	CustomerID     uuid.UUID         `json:"customerId"`
	PreviousStatus enums.OrderStatus `json:"previousStatus"`
	Status         enums.OrderStatus `json:"status"`
	Reason         *string           `json:"reason,omitempty"`
	ChangedAt      time.Time         `json:"changedAt"`
}

// OrderHandedOffEvent records a completed carrier hand-off.
type OrderHandedOffEvent struct {
	OrderID         uuid.UUID `json:"orderId"`
	OrderNumber     string    `json:"orderNumber"`
	Waybill         string    `json:"waybill"`
	CarrierName     string    `json:"carrierName"`
	PickupScheduled bool      `json:"pickupScheduled"`
	HandedOffAt     time.Time `json:"handedOffAt"`
}

// ReturnEvent covers return_requested, return_approved and return_completed.
type ReturnEvent struct {
	ReturnID      uuid.UUID          `json:"returnId"`
	OrderID       uuid.UUID          `json:"orderId"`
	OrderNumber   string             `json:"orderNumber"`
	ProductID     uuid.UUID          `json:"productId"`
	CustomerID    uuid.UUID          `json:"customerId"`
	Status        enums.ReturnStatus `json:"status"`
	Reason        string             `json:"reason,omitempty"`
	ReturnWaybill *string            `json:"returnWaybill,omitempty"`
	OccurredAt    time.Time          `json:"occurredAt"`
}
