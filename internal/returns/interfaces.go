package returns

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-fulfillment/internal/notifications"
	"github.com/angelmondragon/storefront-fulfillment/pkg/carrier"
	"github.com/angelmondragon/storefront-fulfillment/pkg/db/models"
	"github.com/angelmondragon/storefront-fulfillment/pkg/enums"
	"github.com/angelmondragon/storefront-fulfillment/pkg/outbox"
	"github.com/angelmondragon/storefront-fulfillment/pkg/pagination"
)

// Repository persists return requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, request *models.ReturnRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error)
	FindByOrderProduct(ctx context.Context, orderID, productID uuid.UUID) (*models.ReturnRequest, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.ReturnStatus, updates map[string]any) (bool, error)
	SetStatus(ctx context.Context, id uuid.UUID, status enums.ReturnStatus) error
	CountOpenForOrder(ctx context.Context, orderID uuid.UUID) (int64, error)
	List(ctx context.Context, query ListQuery) ([]models.ReturnRequest, *pagination.Cursor, error)
}

// ListQuery filters a return listing.
type ListQuery struct {
	CustomerID *uuid.UUID
	Status     *enums.ReturnStatus
	Limit      int
	Cursor     *pagination.Cursor
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// CarrierGateway is the slice of the courier client the return workflow uses.
type CarrierGateway interface {
	FetchWaybill(ctx context.Context) (string, error)
	CreateReverseShipment(ctx context.Context, shipment carrier.Shipment) (*carrier.ShipmentResult, error)
	CancelShipment(ctx context.Context, waybill string) error
}

// Notifier enqueues customer and operations notifications.
type Notifier interface {
	Notify(ctx context.Context, msg notifications.Message) bool
	NotifyOps(ctx context.Context, msg notifications.Message) bool
}

type transitionMetrics interface {
	IncTransition(from, to string)
}
