package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-fulfillment/internal/notifications"
	"github.com/angelmondragon/storefront-fulfillment/pkg/carrier"
	"github.com/angelmondragon/storefront-fulfillment/pkg/db/models"
	"github.com/angelmondragon/storefront-fulfillment/pkg/enums"
	"github.com/angelmondragon/storefront-fulfillment/pkg/outbox"
	"github.com/angelmondragon/storefront-fulfillment/pkg/pagination"
	"github.com/angelmondragon/storefront-fulfillment/pkg/payments"
	"github.com/angelmondragon/storefront-fulfillment/pkg/types"
)

// Repository defines persistence operations for the orders table. Every
// status-changing write is conditional on the row's current state and reports
// whether it applied.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error)
	ConfirmPayment(ctx context.Context, id uuid.UUID, confirmationID string, now time.Time) (bool, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error)
	AssignWaybill(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error)
	UpdateFields(ctx context.Context, id uuid.UUID, updates map[string]any) error
	List(ctx context.Context, query ListQuery) ([]models.Order, *pagination.Cursor, error)
}

// ListQuery filters order listings. Zero values mean "no filter".
type ListQuery struct {
	CustomerID     *uuid.UUID
	Statuses       []enums.OrderStatus
	ExcludePending bool
	HasWaybill     bool
	Limit          int
	Cursor         *pagination.Cursor
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// CarrierGateway is the courier surface the orchestrator drives.
type CarrierGateway interface {
	FetchWaybill(ctx context.Context) (string, error)
	CreateShipment(ctx context.Context, shipment carrier.Shipment) (*carrier.ShipmentResult, error)
	SchedulePickup(ctx context.Context, req carrier.PickupRequest) (*carrier.PickupResult, error)
	CancelShipment(ctx context.Context, waybill string) error
	Track(ctx context.Context, waybill string) (*carrier.TrackingInfo, error)
	Serviceability(ctx context.Context, pincode string) (*carrier.Serviceability, error)
}

// PaymentGateway creates gateway orders for prepaid checkouts and verifies
// client-side payment confirmations.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal, receipt string) (*payments.Order, error)
	KeyID() string
	HasPaymentSecret() bool
	VerifyPaymentSignature(gatewayOrderID, paymentID, signature string) bool
}

// Notifier queues best-effort notifications.
type Notifier interface {
	Notify(ctx context.Context, msg notifications.Message) bool
	NotifyOps(ctx context.Context, msg notifications.Message) bool
}

// CartClearer empties a customer's cart after placement.
type CartClearer interface {
	ClearForUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

// StockDispatcher applies stock side effects inside the shipping transaction.
type StockDispatcher interface {
	Dispatch(ctx context.Context, tx *gorm.DB, items types.LineItems) error
}

// Documents renders and stores order paperwork.
type Documents interface {
	EnsureInvoice(ctx context.Context, order *models.Order) error
	RefreshLabel(ctx context.Context, order *models.Order) error
}

type transitionMetrics interface {
	IncTransition(from, to string)
}
