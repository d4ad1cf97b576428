package orders

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-fulfillment/pkg/db/models"
	"github.com/angelmondragon/storefront-fulfillment/pkg/enums"
	"github.com/angelmondragon/storefront-fulfillment/pkg/outbox"
	"github.com/angelmondragon/storefront-fulfillment/pkg/types"
)

// Actor is the authenticated caller behind an operation. System callers
// (cron, webhooks) leave UserID empty.
type Actor struct {
	UserID uuid.UUID
	Role   enums.Role
}

// IsAdmin reports whether the actor may act on any order.
func (a Actor) IsAdmin() bool {
	return a.Role == enums.RoleAdmin
}

// Ref returns the outbox actor, or nil for system callers.
func (a Actor) Ref() *outbox.ActorRef {
	if a.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: a.UserID, Role: string(a.Role)}
}

// CreateOrderInput carries the checkout request. Declared money fields come
// from the client and are checked or recomputed server side.
type CreateOrderInput struct {
	CustomerID       uuid.UUID
	CustomerEmail    string
	Items            types.LineItems
	DeclaredSubtotal *decimal.Decimal
	Tax              decimal.Decimal
	DeclaredShipping *decimal.Decimal
	DeclaredTotal    *decimal.Decimal
	PaymentMethod    enums.PaymentMethod
	ShippingAddress  types.Address
}

// CreateOrderResult is the persisted order plus what a prepaid client needs
// to open the payment sheet.
type CreateOrderResult struct {
	Order          *models.Order `json:"order"`
	PaymentKeyID   string        `json:"payment_key_id,omitempty"`
	GatewayOrderID string        `json:"gateway_order_id,omitempty"`
	Amount         int64         `json:"amount,omitempty"`
	Currency       string        `json:"currency,omitempty"`
}

// ConfirmPaymentInput is the client-side payment success callback.
type ConfirmPaymentInput struct {
	CustomerID     uuid.UUID
	OrderID        uuid.UUID
	ConfirmationID string
	GatewayOrderID string
	Signature      string
}

// UpdateStatusInput is a staff status change. Tracking fields are only
// written while the order has no waybill.
type UpdateStatusInput struct {
	OrderID     uuid.UUID
	Status      enums.OrderStatus
	Reason      *string
	TrackingID  *string
	CourierName *string
	TrackingURL *string
	Actor       Actor
}

// ListFilters narrow the admin order list.
type ListFilters struct {
	Status *enums.OrderStatus
}

// OrderList is one page of orders.
type OrderList struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// HandoffResult reports a carrier hand-off.
type HandoffResult struct {
	Success          bool   `json:"success"`
	Waybill          string `json:"waybill"`
	TrackingURL      string `json:"tracking_url,omitempty"`
	PickupScheduled  bool   `json:"pickup_scheduled"`
	AlreadyHandedOff bool   `json:"already_handed_off,omitempty"`
	Warning          string `json:"warning,omitempty"`
}

// TrackingSyncResult summarizes one tracking sync pass.
type TrackingSyncResult struct {
	Checked   int `json:"checked"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}
