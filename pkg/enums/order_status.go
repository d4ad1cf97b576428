package enums

import "fmt"

// OrderStatus maps to the order_status enum in Postgres.
type OrderStatus string

const (
	OrderStatusPendingPayment        OrderStatus = "pending_payment"
	OrderStatusPlaced                OrderStatus = "placed"
	OrderStatusConfirmed             OrderStatus = "confirmed"
	OrderStatusShipped               OrderStatus = "shipped"
	OrderStatusDelivered             OrderStatus = "delivered"
	OrderStatusCancelled             OrderStatus = "cancelled"
	OrderStatusReturnRequested       OrderStatus = "return_requested"
	OrderStatusReturnPickupScheduled OrderStatus = "return_pickup_scheduled"
	OrderStatusReturned              OrderStatus = "returned"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPendingPayment,
	OrderStatusPlaced,
	OrderStatusConfirmed,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusReturnRequested,
	OrderStatusReturnPickupScheduled,
	OrderStatusReturned,
}

// orderTransitions lists every allowed (from, to) pair. Anything absent is rejected.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPendingPayment:        {OrderStatusPlaced, OrderStatusCancelled},
	OrderStatusPlaced:                {OrderStatusConfirmed, OrderStatusShipped, OrderStatusCancelled},
	OrderStatusConfirmed:             {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:               {OrderStatusDelivered},
	OrderStatusDelivered:             {OrderStatusReturnRequested},
	OrderStatusReturnRequested:       {OrderStatusReturnPickupScheduled, OrderStatusReturned, OrderStatusDelivered},
	OrderStatusReturnPickupScheduled: {OrderStatusReturned},
	OrderStatusCancelled:             nil,
	OrderStatusReturned:              nil,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions exist.
func (s OrderStatus) IsTerminal() bool {
	targets, ok := orderTransitions[s]
	return ok && len(targets) == 0
}

// CanTransitionTo reports whether moving from s to next is allowed.
// A same-status request is not a transition and returns false.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, candidate := range orderTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// AllowedTransitions returns a copy of the targets reachable from s.
func (s OrderStatus) AllowedTransitions() []OrderStatus {
	targets := orderTransitions[s]
	out := make([]OrderStatus, len(targets))
	copy(out, targets)
	return out
}

// CustomerVisible reports whether an order in this status is listed to its customer.
// Orders still waiting on prepaid confirmation are hidden.
func (s OrderStatus) CustomerVisible() bool {
	return s != OrderStatusPendingPayment
}

// OrderStatuses returns every known status.
func OrderStatuses() []OrderStatus {
	out := make([]OrderStatus, len(validOrderStatuses))
	copy(out, validOrderStatuses)
	return out
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
