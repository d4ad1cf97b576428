package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-fulfillment/pkg/carrier"
	"github.com/angelmondragon/storefront-fulfillment/pkg/config"
	"github.com/angelmondragon/storefront-fulfillment/pkg/db"
	"github.com/angelmondragon/storefront-fulfillment/pkg/db/models"
	"github.com/angelmondragon/storefront-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-fulfillment/pkg/errors"
	"github.com/angelmondragon/storefront-fulfillment/pkg/logger"
	"github.com/angelmondragon/storefront-fulfillment/pkg/outbox"
	"github.com/angelmondragon/storefront-fulfillment/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-fulfillment/pkg/pagination"
)

const defaultDocumentTimeout = 30 * time.Second

// Service is the order fulfillment orchestrator.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error)
	ConfirmPayment(ctx context.Context, input ConfirmPaymentInput) (*models.Order, error)
	ReconcileGatewayPayment(ctx context.Context, gatewayOrderID, paymentID string) (*models.Order, bool, error)
	GetOrder(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error)
	ListForCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*OrderList, error)
	ListAll(ctx context.Context, filters ListFilters, params pagination.Params) (*OrderList, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error)
	ConfirmShipping(ctx context.Context, actor Actor, orderID uuid.UUID) (*HandoffResult, error)
	Tracking(ctx context.Context, orderID uuid.UUID) (*carrier.TrackingInfo, error)
	Serviceability(ctx context.Context, pincode string) (*carrier.Serviceability, error)
	SyncTracking(ctx context.Context, batch int) (*TrackingSyncResult, error)
}

// ServiceParams wires the orchestrator. Documents and Metrics are optional.
type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Outbox    outboxEmitter
	Payments  PaymentGateway
	Carrier   CarrierGateway
	Notifier  Notifier
	Cart      CartClearer
	Stock     StockDispatcher
	Documents Documents
	Metrics   transitionMetrics
	Config    *config.Config
	Logger    *logger.Logger
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxEmitter
	payments  PaymentGateway
	carrier   CarrierGateway
	notifier  Notifier
	cart      CartClearer
	stock     StockDispatcher
	documents Documents
	metrics   transitionMetrics
	logg      *logger.Logger

	shipping         ShippingPolicy
	carrierCfg       config.CarrierConfig
	warehouse        config.WarehouseConfig
	fulfillment      config.FulfillmentConfig
	requireSignature bool
	currency         string

	now      func() time.Time
	newID    func() uuid.UUID
	runAsync func(func())
}

// NewService builds the orchestrator with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Carrier == nil {
		return nil, fmt.Errorf("carrier gateway required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if params.Cart == nil {
		return nil, fmt.Errorf("cart clearer required")
	}
	if params.Stock == nil {
		return nil, fmt.Errorf("stock dispatcher required")
	}
	if params.Config == nil {
		return nil, fmt.Errorf("config required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}

	cfg := params.Config
	currency := strings.ToUpper(strings.TrimSpace(cfg.Payment.Currency))
	if currency == "" {
		currency = "INR"
	}
	return &service{
		repo:      params.Repo,
		tx:        params.Tx,
		outbox:    params.Outbox,
		payments:  params.Payments,
		carrier:   params.Carrier,
		notifier:  params.Notifier,
		cart:      params.Cart,
		stock:     params.Stock,
		documents: params.Documents,
		metrics:   params.Metrics,
		logg:      params.Logger,
		shipping: ShippingPolicy{
			FreeThreshold: cfg.Fulfillment.FreeShippingThreshold,
			Fee:           cfg.Fulfillment.ShippingFee,
		},
		carrierCfg:       cfg.Carrier,
		warehouse:        cfg.Warehouse,
		fulfillment:      cfg.Fulfillment,
		requireSignature: cfg.Payment.RequireSignature,
		currency:         currency,
		now:              time.Now,
		newID:            uuid.New,
		runAsync:         func(fn func()) { go fn() },
	}, nil
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	email := strings.TrimSpace(input.CustomerEmail)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer email required")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method must be cod or prepaid")
	}
	if strings.TrimSpace(input.ShippingAddress.Name) == "" || strings.TrimSpace(input.ShippingAddress.Pincode) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address requires a name and pincode")
	}

	totals, err := ComputeTotals(input.Items, input.DeclaredSubtotal, input.Tax, s.shipping)
	if err != nil {
		return nil, err
	}
	if input.DeclaredTotal != nil && !input.DeclaredTotal.Round(2).Equal(totals.Total) {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"declared_total": input.DeclaredTotal.StringFixed(2),
			"computed_total": totals.Total.StringFixed(2),
		}), "discarding client declared total")
	}

	now := s.now().UTC()
	orderID := s.newID()
	order := &models.Order{
		ID:              orderID,
		OrderNumber:     NewOrderNumber(now, s.newID()),
		CustomerID:      input.CustomerID,
		CustomerEmail:   email,
		Items:           input.Items,
		Subtotal:        totals.Subtotal,
		Tax:             totals.Tax,
		ShippingFee:     totals.ShippingFee,
		Total:           totals.Total,
		PaymentMethod:   input.PaymentMethod,
		PaymentStatus:   enums.PaymentStatusPending,
		ShippingAddress: input.ShippingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	result := &CreateOrderResult{Order: order}
	if input.PaymentMethod == enums.PaymentMethodPrepaid {
		gatewayOrder, err := s.payments.CreateOrder(ctx, totals.Total, order.OrderNumber)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodePaymentGateway) || pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				return nil, err
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodePaymentGateway, err, "create payment order")
		}
		order.Status = enums.OrderStatusPendingPayment
		order.GatewayOrderID = &gatewayOrder.ID
		result.PaymentKeyID = s.payments.KeyID()
		result.GatewayOrderID = gatewayOrder.ID
		result.Amount = gatewayOrder.Amount
		result.Currency = gatewayOrder.Currency
		if result.Currency == "" {
			result.Currency = s.currency
		}
	} else {
		order.Status = enums.OrderStatusPlaced
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "order number collision")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if order.Status != enums.OrderStatusPlaced {
			return nil
		}
		return s.emitPlaced(ctx, tx, order, Actor{UserID: input.CustomerID, Role: enums.RoleCustomer})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"order_number":   order.OrderNumber,
		"payment_method": string(order.PaymentMethod),
		"total":          order.Total.StringFixed(2),
	}), "order created")

	if order.Status == enums.OrderStatusPlaced {
		s.afterPlaced(logCtx, order)
	}
	return result, nil
}

func (s *service) ConfirmPayment(ctx context.Context, input ConfirmPaymentInput) (*models.Order, error) {
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	confirmationID := strings.TrimSpace(input.ConfirmationID)
	if confirmationID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment confirmation id required")
	}

	order, err := s.loadOrder(ctx, s.repo, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != input.CustomerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	gatewayOrderID := strings.TrimSpace(input.GatewayOrderID)
	if order.GatewayOrderID != nil {
		if gatewayOrderID != "" && gatewayOrderID != *order.GatewayOrderID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway order id does not match order")
		}
		gatewayOrderID = *order.GatewayOrderID
	}

	signature := strings.TrimSpace(input.Signature)
	switch {
	case signature != "" && s.payments.HasPaymentSecret():
		if !s.payments.VerifyPaymentSignature(gatewayOrderID, confirmationID, signature) {
			s.logg.Warn(s.logg.WithOrderID(ctx, order.ID.String()), "payment signature mismatch")
			return nil, pkgerrors.New(pkgerrors.CodeInvalidSignature, "payment signature mismatch")
		}
	case signature == "" && s.requireSignature:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment signature required")
	}

	updated, _, err := s.applyPayment(ctx, order, confirmationID, Actor{UserID: input.CustomerID, Role: enums.RoleCustomer})
	return updated, err
}

// ReconcileGatewayPayment applies a captured payment reported by the gateway
// webhook. It reports whether this call was the one that confirmed the order.
func (s *service) ReconcileGatewayPayment(ctx context.Context, gatewayOrderID, paymentID string) (*models.Order, bool, error) {
	gatewayOrderID = strings.TrimSpace(gatewayOrderID)
	paymentID = strings.TrimSpace(paymentID)
	if gatewayOrderID == "" || paymentID == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "gateway order id and payment id required")
	}
	order, err := s.repo.FindByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return s.applyPayment(ctx, order, paymentID, Actor{})
}

func (s *service) applyPayment(ctx context.Context, order *models.Order, confirmationID string, actor Actor) (*models.Order, bool, error) {
	var (
		updated *models.Order
		applied bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.ConfirmPayment(ctx, order.ID, confirmationID, s.now().UTC())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm payment")
		}
		current, err := s.loadOrder(ctx, repo, order.ID)
		if err != nil {
			return err
		}
		updated = current
		if !ok {
			if current.PaymentStatus == enums.PaymentStatusCompleted {
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order cannot accept payment in its current state").
				WithDetails(map[string]any{"status": current.Status})
		}
		applied = true
		return s.emitPlaced(ctx, tx, current, actor)
	})
	if err != nil {
		return nil, false, err
	}

	logCtx := s.logg.WithOrderID(ctx, updated.ID.String())
	if !applied {
		s.logg.Info(logCtx, "payment already confirmed")
		return updated, false, nil
	}
	if order.Status != updated.Status {
		s.observeTransition(order.Status, updated.Status)
	}
	s.logg.Info(logCtx, "payment confirmed")
	s.afterPlaced(logCtx, updated)
	return updated, true, nil
}

func (s *service) GetOrder(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.loadOrder(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && order.CustomerID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) ListForCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return s.list(ctx, ListQuery{CustomerID: &customerID, ExcludePending: true}, params)
}

func (s *service) ListAll(ctx context.Context, filters ListFilters, params pagination.Params) (*OrderList, error) {
	query := ListQuery{}
	if filters.Status != nil {
		if !filters.Status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
		}
		query.Statuses = []enums.OrderStatus{*filters.Status}
	}
	return s.list(ctx, query, params)
}

func (s *service) list(ctx context.Context, query ListQuery, params pagination.Params) (*OrderList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	query.Limit = params.Limit
	query.Cursor = cursor

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	list := &OrderList{Orders: rows}
	if list.Orders == nil {
		list.Orders = []models.Order{}
	}
	if next != nil {
		list.NextCursor = pagination.EncodeCursor(*next)
	}
	return list, nil
}

func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	if input.Status == enums.OrderStatusCancelled && (input.Reason == nil || strings.TrimSpace(*input.Reason) == "") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancellation reason required")
	}

	order, err := s.loadOrder(ctx, s.repo, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status == input.Status {
		return order, nil
	}
	if !order.Status.CanTransitionTo(input.Status) {
		return nil, illegalTransition(order.Status, input.Status)
	}

	previous := order.Status
	updates := s.statusUpdates(order, input)

	var (
		updated *models.Order
		applied bool
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.TransitionStatus(ctx, order.ID, previous, input.Status, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !ok {
			current, err := s.loadOrder(ctx, repo, order.ID)
			if err != nil {
				return err
			}
			if current.Status == input.Status {
				updated = current
				return nil
			}
			return illegalTransition(current.Status, input.Status)
		}
		if input.Status == enums.OrderStatusShipped {
			if err := s.stock.Dispatch(ctx, tx, order.Items); err != nil {
				return err
			}
		}
		current, err := s.loadOrder(ctx, repo, order.ID)
		if err != nil {
			return err
		}
		updated = current
		applied = true
		return s.emitStatusChanged(ctx, tx, current, previous, input.Reason, input.Actor)
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		return updated, nil
	}

	s.afterTransition(ctx, updated, previous, input.Reason)
	return updated, nil
}

func (s *service) statusUpdates(order *models.Order, input UpdateStatusInput) map[string]any {
	now := s.now().UTC()
	updates := map[string]any{"updated_at": now}
	switch input.Status {
	case enums.OrderStatusDelivered:
		if order.DeliveredAt == nil {
			updates["delivered_at"] = now
		}
	case enums.OrderStatusCancelled:
		updates["cancellation_reason"] = strings.TrimSpace(*input.Reason)
	}

	if !order.HasWaybill() && input.TrackingID != nil && strings.TrimSpace(*input.TrackingID) != "" {
		waybill := strings.TrimSpace(*input.TrackingID)
		updates["waybill"] = waybill
		if input.CourierName != nil && strings.TrimSpace(*input.CourierName) != "" {
			updates["carrier_name"] = strings.TrimSpace(*input.CourierName)
		}
		if input.TrackingURL != nil && strings.TrimSpace(*input.TrackingURL) != "" {
			updates["tracking_url"] = strings.TrimSpace(*input.TrackingURL)
		} else if link := s.carrierCfg.TrackingURL(waybill); link != "" {
			updates["tracking_url"] = link
		}
	}
	return updates
}

func (s *service) afterTransition(ctx context.Context, order *models.Order, previous enums.OrderStatus, reason *string) {
	s.observeTransition(previous, order.Status)
	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"previous_status": string(previous),
		"status":          string(order.Status),
	}), "order status changed")

	if order.Status == enums.OrderStatusCancelled && order.HasWaybill() {
		if err := s.carrier.CancelShipment(ctx, *order.Waybill); err != nil {
			s.logg.Error(logCtx, "carrier shipment cancellation failed", err)
		}
	}

	changed := statusChangedMessage(order, previous, reason)
	if order.Status == enums.OrderStatusDelivered {
		s.notifier.Notify(logCtx, deliveredMessage(order, previous))
	} else {
		s.notifier.Notify(logCtx, changed)
	}
	s.notifier.NotifyOps(logCtx, changed)
}

func (s *service) afterPlaced(ctx context.Context, order *models.Order) {
	if removed, err := s.cart.ClearForUser(ctx, order.CustomerID); err != nil {
		s.logg.Error(ctx, "failed to clear cart after placement", err)
	} else if removed > 0 {
		s.logg.Debug(s.logg.WithField(ctx, "removed", removed), "cart cleared")
	}

	snapshot := *order
	s.notifier.Notify(ctx, placedMessage(&snapshot))
	s.notifier.NotifyOps(ctx, placedMessage(&snapshot))

	if s.documents == nil {
		return
	}
	s.runAsync(func() {
		docCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.documentTimeout())
		defer cancel()
		if err := s.documents.EnsureInvoice(docCtx, &snapshot); err != nil {
			s.logg.Error(docCtx, "invoice generation failed", err)
		}
	})
}

func (s *service) emitPlaced(ctx context.Context, tx *gorm.DB, order *models.Order, actor Actor) error {
	event := outbox.DomainEvent{
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor.Ref(),
		Data: payloads.OrderPlacedEvent{
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			CustomerID:    order.CustomerID,
			PaymentMethod: order.PaymentMethod,
			Subtotal:      order.Subtotal,
			Tax:           order.Tax,
			ShippingFee:   order.ShippingFee,
			Total:         order.Total,
			ItemCount:     order.Items.TotalQuantity(),
			PlacedAt:      s.now().UTC(),
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order placed")
	}
	return nil
}

func (s *service) emitStatusChanged(ctx context.Context, tx *gorm.DB, order *models.Order, previous enums.OrderStatus, reason *string, actor Actor) error {
	event := outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor.Ref(),
		Data: payloads.OrderStatusChangedEvent{
			OrderID:        order.ID,
			OrderNumber:    order.OrderNumber,
			CustomerID:     order.CustomerID,
			PreviousStatus: previous,
			Status:         order.Status,
			Reason:         reason,
			ChangedAt:      s.now().UTC(),
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order status changed")
	}
	return nil
}

func (s *service) observeTransition(from, to enums.OrderStatus) {
	if s.metrics != nil {
		s.metrics.IncTransition(string(from), string(to))
	}
}

func (s *service) documentTimeout() time.Duration {
	if s.fulfillment.DocumentTimeout > 0 {
		return s.fulfillment.DocumentTimeout
	}
	return defaultDocumentTimeout
}

func (s *service) loadOrder(ctx context.Context, repo Repository, id uuid.UUID) (*models.Order, error) {
	order, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func illegalTransition(from, to enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot move order from %s to %s", from, to)).
		WithDetails(map[string]any{
			"from":    from,
			"to":      to,
			"allowed": from.AllowedTransitions(),
		})
}
