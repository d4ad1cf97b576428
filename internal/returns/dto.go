package returns

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-fulfillment/pkg/db/models"
	"github.com/angelmondragon/storefront-fulfillment/pkg/enums"
)

// RequestInput is a customer's return request for one product of an order.
type RequestInput struct {
	CustomerID uuid.UUID
	OrderID    uuid.UUID
	ProductID  uuid.UUID
	Reason     string
}

// RequestResult identifies the return request. Created is false when the
// (order, product) pair already had one.
type RequestResult struct {
	ReturnID uuid.UUID `json:"return_id"`
	Created  bool      `json:"created"`
}

// ApproveResult reports the reverse pickup booked for a return.
type ApproveResult struct {
	ReturnID         uuid.UUID          `json:"return_id"`
	Status           enums.ReturnStatus `json:"status"`
	ReturnWaybill    string             `json:"return_waybill"`
	AlreadyScheduled bool               `json:"already_scheduled,omitempty"`
}

// ReturnList is one page of return requests.
type ReturnList struct {
	Returns    []models.ReturnRequest `json:"returns"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}
