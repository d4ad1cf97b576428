package orders

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-fulfillment/internal/inventory"
	"github.com/angelmondragon/storefront-fulfillment/internal/notifications"
	"github.com/angelmondragon/storefront-fulfillment/pkg/carrier"
	"github.com/angelmondragon/storefront-fulfillment/pkg/config"
	"github.com/angelmondragon/storefront-fulfillment/pkg/db"
	"github.com/angelmondragon/storefront-fulfillment/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-fulfillment/pkg/db/models"
	"github.com/angelmondragon/storefront-fulfillment/pkg/enums"
	"github.com/angelmondragon/storefront-fulfillment/pkg/logger"
	"github.com/angelmondragon/storefront-fulfillment/pkg/outbox"
	"github.com/angelmondragon/storefront-fulfillment/pkg/payments"
	"github.com/angelmondragon/storefront-fulfillment/pkg/types"
)

var fixedNow = time.Date(2026, 3, 6, 10, 0, 0, 0, time.UTC) // a Friday

type stubCarrier struct {
	fetchWaybill   func(ctx context.Context) (string, error)
	createShipment func(ctx context.Context, shipment carrier.Shipment) (*carrier.ShipmentResult, error)
	schedulePickup func(ctx context.Context, req carrier.PickupRequest) (*carrier.PickupResult, error)
	cancelShipment func(ctx context.Context, waybill string) error
	track          func(ctx context.Context, waybill string) (*carrier.TrackingInfo, error)
	serviceability func(ctx context.Context, pincode string) (*carrier.Serviceability, error)

	waybillCalls int
	shipments    []carrier.Shipment
	pickups      []carrier.PickupRequest
	cancelled    []string
}

func (c *stubCarrier) FetchWaybill(ctx context.Context) (string, error) {
	c.waybillCalls++
	if c.fetchWaybill != nil {
		return c.fetchWaybill(ctx)
	}
	return "WB100", nil
}

func (c *stubCarrier) CreateShipment(ctx context.Context, shipment carrier.Shipment) (*carrier.ShipmentResult, error) {
	c.shipments = append(c.shipments, shipment)
	if c.createShipment != nil {
		return c.createShipment(ctx, shipment)
	}
	return &carrier.ShipmentResult{Waybill: shipment.Waybill, Status: "Success"}, nil
}

func (c *stubCarrier) SchedulePickup(ctx context.Context, req carrier.PickupRequest) (*carrier.PickupResult, error) {
	c.pickups = append(c.pickups, req)
	if c.schedulePickup != nil {
		return c.schedulePickup(ctx, req)
	}
	return &carrier.PickupResult{PickupID: "PK1"}, nil
}

func (c *stubCarrier) CancelShipment(ctx context.Context, waybill string) error {
	c.cancelled = append(c.cancelled, waybill)
	if c.cancelShipment != nil {
		return c.cancelShipment(ctx, waybill)
	}
	return nil
}

func (c *stubCarrier) Track(ctx context.Context, waybill string) (*carrier.TrackingInfo, error) {
	if c.track != nil {
		return c.track(ctx, waybill)
	}
	return &carrier.TrackingInfo{Waybill: waybill, Status: "In Transit"}, nil
}

func (c *stubCarrier) Serviceability(ctx context.Context, pincode string) (*carrier.Serviceability, error) {
	if c.serviceability != nil {
		return c.serviceability(ctx, pincode)
	}
	return &carrier.Serviceability{Pincode: pincode, Serviceable: true}, nil
}

type stubPayments struct {
	createOrder func(ctx context.Context, amount decimal.Decimal, receipt string) (*payments.Order, error)
	secret      string
	receipts    []string
	amounts     []decimal.Decimal
}

func (p *stubPayments) CreateOrder(ctx context.Context, amount decimal.Decimal, receipt string) (*payments.Order, error) {
	p.receipts = append(p.receipts, receipt)
	p.amounts = append(p.amounts, amount)
	if p.createOrder != nil {
		return p.createOrder(ctx, amount, receipt)
	}
	return &payments.Order{ID: "order_GW1", Amount: payments.ToMinorUnits(amount), Currency: "INR", Receipt: receipt}, nil
}

func (p *stubPayments) KeyID() string { return "rzp_test_key" }

func (p *stubPayments) HasPaymentSecret() bool { return p.secret != "" }

func (p *stubPayments) VerifyPaymentSignature(gatewayOrderID, paymentID, signature string) bool {
	return payments.VerifySignature(p.secret, gatewayOrderID+"|"+paymentID, signature)
}

type stubNotifier struct {
	mu       sync.Mutex
	customer []notifications.Message
	ops      []notifications.Message
}

func (n *stubNotifier) Notify(_ context.Context, msg notifications.Message) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.customer = append(n.customer, msg)
	return true
}

func (n *stubNotifier) NotifyOps(_ context.Context, msg notifications.Message) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ops = append(n.ops, msg)
	return true
}

func (n *stubNotifier) customerKinds() []enums.NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]enums.NotificationKind, 0, len(n.customer))
	for _, msg := range n.customer {
		kinds = append(kinds, msg.Kind)
	}
	return kinds
}

type stubCart struct {
	cleared []uuid.UUID
	err     error
}

func (c *stubCart) ClearForUser(_ context.Context, userID uuid.UUID) (int64, error) {
	c.cleared = append(c.cleared, userID)
	return 1, c.err
}

type stubDocuments struct {
	invoices []string
	labels   []string
	err      error
}

func (d *stubDocuments) EnsureInvoice(_ context.Context, order *models.Order) error {
	d.invoices = append(d.invoices, order.OrderNumber)
	return d.err
}

func (d *stubDocuments) RefreshLabel(_ context.Context, order *models.Order) error {
	d.labels = append(d.labels, order.OrderNumber)
	return d.err
}

type recordingTransitions struct {
	pairs []string
}

func (r *recordingTransitions) IncTransition(from, to string) {
	r.pairs = append(r.pairs, from+"->"+to)
}

type harness struct {
	db          *gorm.DB
	svc         *service
	carrier     *stubCarrier
	payments    *stubPayments
	notifier    *stubNotifier
	cart        *stubCart
	documents   *stubDocuments
	transitions *recordingTransitions
	cfg         *config.Config
}

func testConfig() *config.Config {
	return &config.Config{
		Carrier: config.CarrierConfig{
			Name:            "delhivery",
			TrackingURLTmpl: "https://track.example.com/%s",
			DefaultCountry:  "India",
		},
		Payment: config.PaymentConfig{Currency: "INR"},
		Warehouse: config.WarehouseConfig{
			Name:       "MAIN-WH",
			Street:     "1 Dock Road",
			City:       "Bengaluru",
			State:      "KA",
			Pincode:    "560001",
			Phone:      "8000000000",
			PickupTime: "14:00:00",
		},
		Fulfillment: config.FulfillmentConfig{
			FreeShippingThreshold: decimal.NewFromInt(999),
			ShippingFee:           decimal.NewFromInt(50),
			ReturnWindow:          72 * time.Hour,
			DefaultWeightKG:       0.5,
			DefaultDimensionCM:    10,
			DocumentTimeout:       time.Second,
		},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard})
	h := &harness{
		db:          conn,
		carrier:     &stubCarrier{},
		payments:    &stubPayments{secret: "payment-secret"},
		notifier:    &stubNotifier{},
		cart:        &stubCart{},
		documents:   &stubDocuments{},
		transitions: &recordingTransitions{},
		cfg:         testConfig(),
	}
	svc, err := NewService(ServiceParams{
		Repo:      NewRepository(conn),
		Tx:        db.FromGorm(conn),
		Outbox:    outbox.NewService(outbox.NewRepository(conn), logg),
		Payments:  h.payments,
		Carrier:   h.carrier,
		Notifier:  h.notifier,
		Cart:      h.cart,
		Stock:     inventory.NewDispatcher(),
		Documents: h.documents,
		Metrics:   h.transitions,
		Config:    h.cfg,
		Logger:    logg,
	})
	require.NoError(t, err)
	h.svc = svc.(*service)
	h.svc.now = func() time.Time { return fixedNow }
	h.svc.runAsync = func(fn func()) { fn() }
	return h
}

func sampleAddress() types.Address {
	return types.Address{
		Name:    "Asha Rao",
		Phone:   "9876543210",
		Street:  "12 MG Road",
		City:    "Pune",
		State:   "MH",
		Pincode: "411001",
	}
}

func (h *harness) seedProduct(t *testing.T, stock int) uuid.UUID {
	t.Helper()
	product := models.Product{ID: uuid.New(), Title: "Kurta", Stock: stock}
	require.NoError(t, h.db.Create(&product).Error)
	return product.ID
}

func (h *harness) seedOrder(t *testing.T, mutate func(o *models.Order)) *models.Order {
	t.Helper()
	items := types.LineItems{{ProductID: uuid.New(), Title: "Kurta", UnitPrice: decimal.NewFromInt(499), Quantity: 2, Size: "M"}}
	order := &models.Order{
		ID:              uuid.New(),
		OrderNumber:     NewOrderNumber(fixedNow, uuid.New()),
		CustomerID:      uuid.New(),
		CustomerEmail:   "asha@example.com",
		Items:           items,
		Subtotal:        items.Subtotal(),
		Tax:             decimal.Zero,
		ShippingFee:     decimal.NewFromInt(50),
		Total:           items.Subtotal().Add(decimal.NewFromInt(50)),
		Status:          enums.OrderStatusPlaced,
		PaymentMethod:   enums.PaymentMethodCOD,
		PaymentStatus:   enums.PaymentStatusPending,
		ShippingAddress: sampleAddress(),
		CreatedAt:       fixedNow,
		UpdatedAt:       fixedNow,
	}
	if mutate != nil {
		mutate(order)
	}
	require.NoError(t, h.db.Create(order).Error)
	return order
}

func (h *harness) reload(t *testing.T, id uuid.UUID) *models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, h.db.First(&order, "id = ?", id).Error)
	return &order
}

func (h *harness) countEvents(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, h.db.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error)
	return count
}

func strPtr(v string) *string { return &v }
