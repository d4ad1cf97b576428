package returns

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-fulfillment/internal/orders"
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
	"github.com/angelmondragon/storefront-fulfillment/pkg/types"
)

const maxReasonLength = 500

// Service runs the customer return workflow.
type Service interface {
	RequestReturn(ctx context.Context, input RequestInput) (*RequestResult, error)
	ApproveReturn(ctx context.Context, actor orders.Actor, returnID uuid.UUID) (*ApproveResult, error)
	UpdateReturnStatus(ctx context.Context, actor orders.Actor, returnID uuid.UUID, status enums.ReturnStatus) (*models.ReturnRequest, error)
	ListForCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*ReturnList, error)
	ListAll(ctx context.Context, status *enums.ReturnStatus, params pagination.Params) (*ReturnList, error)
}

// ServiceParams wires the return workflow. Metrics is optional.
type ServiceParams struct {
	Repo     Repository
	Orders   orders.Repository
	Tx       txRunner
	Outbox   outboxEmitter
	Carrier  CarrierGateway
	Notifier Notifier
	Metrics  transitionMetrics
	Config   *config.Config
	Logger   *logger.Logger
}

type service struct {
	repo     Repository
	orders   orders.Repository
	tx       txRunner
	outbox   outboxEmitter
	carrier  CarrierGateway
	notifier Notifier
	metrics  transitionMetrics
	logg     *logger.Logger

	window      time.Duration
	warehouse   config.WarehouseConfig
	carrierCfg  config.CarrierConfig
	fulfillment config.FulfillmentConfig

	now func() time.Time
}

// NewService builds the return workflow.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("returns repository required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Carrier == nil:
		return nil, fmt.Errorf("carrier gateway required")
	case params.Notifier == nil:
		return nil, fmt.Errorf("notifier required")
	case params.Config == nil:
		return nil, fmt.Errorf("config required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:        params.Repo,
		orders:      params.Orders,
		tx:          params.Tx,
		outbox:      params.Outbox,
		carrier:     params.Carrier,
		notifier:    params.Notifier,
		metrics:     params.Metrics,
		logg:        params.Logger,
		window:      params.Config.Fulfillment.ReturnWindow,
		warehouse:   params.Config.Warehouse,
		carrierCfg:  params.Config.Carrier,
		fulfillment: params.Config.Fulfillment,
		now:         time.Now,
	}, nil
}

// RequestReturn opens a return for one product of a delivered order. A
// repeated request for the same product returns the existing id.
func (s *service) RequestReturn(ctx context.Context, input RequestInput) (*RequestResult, error) {
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.OrderID == uuid.Nil || input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and product id required")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return reason required")
	}
	if len([]rune(reason)) > maxReasonLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("return reason must be at most %d characters", maxReasonLength))
	}

	order, err := s.loadOrder(ctx, s.orders, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != input.CustomerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	item, ok := order.Items.Find(input.ProductID)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is not part of this order")
	}
	if err := s.checkEligible(order); err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	actor := orders.Actor{UserID: input.CustomerID, Role: enums.RoleCustomer}

	existing, err := s.repo.FindByOrderProduct(ctx, order.ID, input.ProductID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load return request")
	}
	if existing != nil {
		return s.reopen(logCtx, order, existing, actor)
	}

	request := &models.ReturnRequest{
		ID:         uuid.New(),
		CustomerID: input.CustomerID,
		OrderID:    order.ID,
		ProductID:  input.ProductID,
		Reason:     reason,
		Status:     enums.ReturnStatusPending,
	}
	var (
		flipped   *models.Order
		duplicate bool
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, request); err != nil {
			if db.IsUniqueViolation(err, "") {
				duplicate = true
				return err
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create return request")
		}
		if err := s.emitReturn(ctx, tx, enums.EventReturnRequested, order, request, actor); err != nil {
			return err
		}
		updated, err := s.flipOrder(ctx, tx, order.ID, enums.OrderStatusReturnRequested, actor)
		flipped = updated
		return err
	})
	if duplicate {
		// A concurrent request for the same product committed first.
		winner, findErr := s.repo.FindByOrderProduct(ctx, order.ID, input.ProductID)
		if findErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "load return request")
		}
		return &RequestResult{ReturnID: winner.ID}, nil
	}
	if err != nil {
		return nil, err
	}

	logCtx = s.logg.WithReturnID(logCtx, request.ID.String())
	s.logg.Info(s.logg.WithField(logCtx, "product_id", input.ProductID.String()), "return requested")
	if flipped != nil {
		s.observeTransition(order.Status, flipped.Status)
		order = flipped
	}
	msg := requestedMessage(order, request, item)
	s.notifier.Notify(logCtx, msg)
	s.notifier.NotifyOps(logCtx, msg)
	return &RequestResult{ReturnID: request.ID, Created: true}, nil
}

func (s *service) checkEligible(order *models.Order) error {
	if order.Status != enums.OrderStatusDelivered && order.Status != enums.OrderStatusReturnRequested {
		return pkgerrors.New(pkgerrors.CodeIneligible, "only delivered orders can be returned").
			WithDetails(map[string]any{"status": order.Status})
	}
	if order.DeliveredAt == nil {
		return pkgerrors.New(pkgerrors.CodeIneligible, "delivery date unknown")
	}
	if s.window > 0 && s.now().After(order.DeliveredAt.Add(s.window)) {
		return pkgerrors.New(pkgerrors.CodeIneligible, "return window expired").
			WithDetails(map[string]any{"delivered_at": order.DeliveredAt.UTC()})
	}
	return nil
}

func (s *service) reopen(ctx context.Context, order *models.Order, existing *models.ReturnRequest, actor orders.Actor) (*RequestResult, error) {
	if order.Status == enums.OrderStatusReturnRequested {
		return &RequestResult{ReturnID: existing.ID}, nil
	}
	var flipped *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		updated, err := s.flipOrder(ctx, tx, order.ID, enums.OrderStatusReturnRequested, actor)
		flipped = updated
		return err
	})
	if err != nil {
		return nil, err
	}
	if flipped != nil {
		s.observeTransition(order.Status, flipped.Status)
	}
	s.logg.Info(s.logg.WithReturnID(ctx, existing.ID.String()), "existing return request reused")
	return &RequestResult{ReturnID: existing.ID}, nil
}

// ApproveReturn books the reverse pickup and moves the request to
// pickup_scheduled. Carrier failures leave the request pending.
func (s *service) ApproveReturn(ctx context.Context, actor orders.Actor, returnID uuid.UUID) (*ApproveResult, error) {
	if returnID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return id required")
	}
	request, err := s.loadRequest(ctx, s.repo, returnID)
	if err != nil {
		return nil, err
	}
	if request.Status == enums.ReturnStatusPickupScheduled {
		return scheduledResult(request), nil
	}
	if request.Status != enums.ReturnStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only pending returns can be approved").
			WithDetails(map[string]any{"status": request.Status})
	}
	order, err := s.loadOrder(ctx, s.orders, request.OrderID)
	if err != nil {
		return nil, err
	}
	item, ok := order.Items.Find(request.ProductID)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "returned product is not part of the order")
	}

	if missing := order.ShippingAddress.MissingShippingFields(); len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pickup address is incomplete").
			WithDetails(map[string]any{"missing_fields": missing})
	}

	logCtx := s.logg.WithReturnID(s.logg.WithOrderID(ctx, order.ID.String()), request.ID.String())
	waybill, err := s.carrier.FetchWaybill(ctx)
	if err != nil {
		s.logg.Error(logCtx, "carrier waybill fetch failed for return", err)
		return nil, err
	}
	logCtx = s.logg.WithField(logCtx, "return_waybill", waybill)
	if _, err := s.carrier.CreateReverseShipment(ctx, s.reverseShipment(order, request, item, waybill)); err != nil {
		s.logg.Error(logCtx, "carrier reverse shipment failed", err)
		return nil, err
	}

	var (
		updated *models.ReturnRequest
		flipped *models.Order
		applied bool
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.TransitionStatus(ctx, request.ID, enums.ReturnStatusPending, enums.ReturnStatusPickupScheduled, map[string]any{
			"return_waybill": waybill,
			"updated_at":     s.now().UTC(),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update return request")
		}
		current, err := s.loadRequest(ctx, repo, request.ID)
		if err != nil {
			return err
		}
		updated = current
		if !ok {
			if current.Status == enums.ReturnStatusPickupScheduled {
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, "return changed during approval").
				WithDetails(map[string]any{"status": current.Status})
		}
		applied = true
		if err := s.emitReturn(ctx, tx, enums.EventReturnApproved, order, current, actor); err != nil {
			return err
		}
		o, err := s.flipOrder(ctx, tx, order.ID, enums.OrderStatusReturnPickupScheduled, actor)
		flipped = o
		return err
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		if cancelErr := s.carrier.CancelShipment(ctx, waybill); cancelErr != nil {
			s.logg.Error(logCtx, "failed to cancel orphaned reverse shipment", cancelErr)
		}
		return scheduledResult(updated), nil
	}

	s.logg.Info(logCtx, "return approved and pickup booked")
	if flipped != nil {
		s.observeTransition(order.Status, flipped.Status)
		order = flipped
	}
	msg := approvedMessage(order, updated, item)
	s.notifier.Notify(logCtx, msg)
	s.notifier.NotifyOps(logCtx, msg)
	return &ApproveResult{ReturnID: updated.ID, Status: updated.Status, ReturnWaybill: waybill}, nil
}

func (s *service) reverseShipment(order *models.Order, request *models.ReturnRequest, item types.LineItem, waybill string) carrier.Shipment {
	addr := order.ShippingAddress
	lineTotal := item.LineTotal()
	return carrier.Shipment{
		OrderNumber: returnReference(order, request),
		Waybill:     waybill,
		Consignee: carrier.Party{
			Name:    addr.Name,
			Phone:   addr.Phone,
			Street:  addr.Street,
			City:    addr.City,
			State:   addr.State,
			Pincode: addr.Pincode,
			Country: addr.Country,
		},
		ReturnTo: &carrier.Party{
			Name:    s.warehouse.Name,
			Phone:   s.warehouse.Phone,
			Street:  s.warehouse.Street,
			City:    s.warehouse.City,
			State:   s.warehouse.State,
			Pincode: s.warehouse.Pincode,
			Country: s.carrierCfg.DefaultCountry,
		},
		PaymentMode: carrier.PaymentModePickup,
		Products: []carrier.Product{{
			Name:  item.Title,
			SKU:   item.ProductID.String(),
			Units: item.Quantity,
			Price: item.UnitPrice,
		}},
		ProductsDesc: types.LineItems{item}.Description(0),
		TotalAmount:  lineTotal,
		Quantity:     item.Quantity,
		WeightKG:     s.fulfillment.DefaultWeightKG,
		WidthCM:      s.fulfillment.DefaultDimensionCM,
		HeightCM:     s.fulfillment.DefaultDimensionCM,
		DepthCM:      s.fulfillment.DefaultDimensionCM,
		OrderDate:    s.now().UTC(),
	}
}

// returnReference is the carrier order reference for a reverse pickup.
func returnReference(order *models.Order, request *models.ReturnRequest) string {
	raw := strings.ReplaceAll(request.ID.String(), "-", "")
	return order.OrderNumber + "-R" + strings.ToUpper(raw[:6])
}

func scheduledResult(request *models.ReturnRequest) *ApproveResult {
	result := &ApproveResult{ReturnID: request.ID, Status: request.Status, AlreadyScheduled: true}
	if request.ReturnWaybill != nil {
		result.ReturnWaybill = *request.ReturnWaybill
	}
	return result
}

// UpdateReturnStatus sets a return's status directly. Completing a return
// marks the order returned; rejecting the last open return puts the order
// back to delivered.
func (s *service) UpdateReturnStatus(ctx context.Context, actor orders.Actor, returnID uuid.UUID, status enums.ReturnStatus) (*models.ReturnRequest, error) {
	if returnID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return id required")
	}
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid return status")
	}
	request, err := s.loadRequest(ctx, s.repo, returnID)
	if err != nil {
		return nil, err
	}
	if request.Status == status {
		return request, nil
	}
	if request.Status == enums.ReturnStatusRejected && status == enums.ReturnStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "a rejected return cannot be completed").
			WithDetails(map[string]any{"status": request.Status})
	}

	var (
		updated  *models.ReturnRequest
		order    *models.Order
		previous enums.OrderStatus
		flipped  *models.Order
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.SetStatus(ctx, request.ID, status); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update return status")
		}
		current, err := s.loadRequest(ctx, repo, request.ID)
		if err != nil {
			return err
		}
		updated = current
		o, err := s.loadOrder(ctx, s.orders.WithTx(tx), current.OrderID)
		if err != nil {
			return err
		}
		order = o
		previous = o.Status

		switch status {
		case enums.ReturnStatusCompleted:
			if err := s.emitReturn(ctx, tx, enums.EventReturnCompleted, o, current, actor); err != nil {
				return err
			}
			if o.Status == enums.OrderStatusDelivered {
				// delivered has no direct edge to returned.
				if _, err := s.flipOrder(ctx, tx, o.ID, enums.OrderStatusReturnRequested, actor); err != nil {
					return err
				}
			}
			flipped, err = s.flipOrder(ctx, tx, o.ID, enums.OrderStatusReturned, actor)
			return err
		case enums.ReturnStatusApproved:
			return s.emitReturn(ctx, tx, enums.EventReturnApproved, o, current, actor)
		case enums.ReturnStatusRejected:
			if o.Status != enums.OrderStatusReturnRequested {
				return nil
			}
			open, err := repo.CountOpenForOrder(ctx, o.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count open returns")
			}
			if open > 0 {
				return nil
			}
			flipped, err = s.flipOrder(ctx, tx, o.ID, enums.OrderStatusDelivered, actor)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithReturnID(s.logg.WithOrderID(ctx, updated.OrderID.String()), updated.ID.String())
	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"previous_status": string(request.Status),
		"status":          string(updated.Status),
	}), "return status updated")

	if flipped != nil {
		s.observeTransition(previous, flipped.Status)
		order = flipped
	}
	if item, ok := order.Items.Find(updated.ProductID); ok {
		msg := statusMessage(order, updated, item)
		s.notifier.Notify(logCtx, msg)
		s.notifier.NotifyOps(logCtx, msg)
	}
	return updated, nil
}

func (s *service) ListForCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*ReturnList, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return s.list(ctx, ListQuery{CustomerID: &customerID}, params)
}

func (s *service) ListAll(ctx context.Context, status *enums.ReturnStatus, params pagination.Params) (*ReturnList, error) {
	if status != nil && !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	return s.list(ctx, ListQuery{Status: status}, params)
}

func (s *service) list(ctx context.Context, query ListQuery, params pagination.Params) (*ReturnList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	query.Limit = params.Limit
	query.Cursor = cursor

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list returns")
	}
	list := &ReturnList{Returns: rows}
	if list.Returns == nil {
		list.Returns = []models.ReturnRequest{}
	}
	if next != nil {
		list.NextCursor = pagination.EncodeCursor(*next)
	}
	return list, nil
}

// flipOrder moves the order to target when the state machine allows it from
// its current status. It returns nil when nothing changed.
func (s *service) flipOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, target enums.OrderStatus, actor orders.Actor) (*models.Order, error) {
	repo := s.orders.WithTx(tx)
	order, err := s.loadOrder(ctx, repo, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanTransitionTo(target) {
		return nil, nil
	}
	previous := order.Status
	now := s.now().UTC()
	ok, err := repo.TransitionStatus(ctx, order.ID, previous, target, map[string]any{"updated_at": now})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if !ok {
		return nil, nil
	}
	order.Status = target
	order.UpdatedAt = now

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
			Status:         target,
			ChangedAt:      now,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order status changed")
	}
	return order, nil
}

func (s *service) emitReturn(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, order *models.Order, request *models.ReturnRequest, actor orders.Actor) error {
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateReturnRequest,
		AggregateID:   request.ID,
		Actor:         actor.Ref(),
		Data: payloads.ReturnEvent{
			ReturnID:      request.ID,
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			ProductID:     request.ProductID,
			CustomerID:    request.CustomerID,
			Status:        request.Status,
			Reason:        request.Reason,
			ReturnWaybill: request.ReturnWaybill,
			OccurredAt:    s.now().UTC(),
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit "+string(eventType))
	}
	return nil
}

func (s *service) observeTransition(from, to enums.OrderStatus) {
	if s.metrics != nil {
		s.metrics.IncTransition(string(from), string(to))
	}
}

func (s *service) loadOrder(ctx context.Context, repo orders.Repository, id uuid.UUID) (*models.Order, error) {
	order, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) loadRequest(ctx context.Context, repo Repository, id uuid.UUID) (*models.ReturnRequest, error) {
	request, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "return request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load return request")
	}
	return request, nil
}
