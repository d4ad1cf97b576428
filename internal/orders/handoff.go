package orders

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-fulfillment/pkg/carrier"
	"github.com/angelmondragon/storefront-fulfillment/pkg/db/models"
	"github.com/angelmondragon/storefront-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-fulfillment/pkg/errors"
	"github.com/angelmondragon/storefront-fulfillment/pkg/outbox"
	"github.com/angelmondragon/storefront-fulfillment/pkg/outbox/payloads"
)

const (
	stepValidateAddress = "validate_address"
	stepPersist         = "persist"
)

// ConfirmShipping hands a placed or confirmed order to the carrier: reserve a
// waybill, manifest the shipment, then book the warehouse pickup. Pickup
// failure is reported as a warning and does not undo the hand-off.
func (s *service) ConfirmShipping(ctx context.Context, actor Actor, orderID uuid.UUID) (*HandoffResult, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.loadOrder(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if order.HasWaybill() {
		return existingHandoff(order), nil
	}
	if order.Status != enums.OrderStatusPlaced && order.Status != enums.OrderStatusConfirmed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order must be placed or confirmed before shipping").
			WithDetails(map[string]any{"status": order.Status})
	}
	if missing := order.ShippingAddress.MissingShippingFields(); len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping address is incomplete").
			WithDetails(map[string]any{"step": stepValidateAddress, "missing_fields": missing})
	}

	logCtx := s.logg.WithOrderID(ctx, order.ID.String())

	waybill, err := s.carrier.FetchWaybill(ctx)
	if err != nil {
		s.logg.Error(logCtx, "carrier waybill fetch failed", err)
		return nil, err
	}
	logCtx = s.logg.WithField(logCtx, "waybill", waybill)

	if _, err := s.carrier.CreateShipment(ctx, s.forwardShipment(order, waybill)); err != nil {
		s.logg.Error(logCtx, "carrier shipment creation failed", err)
		return nil, err
	}

	result := &HandoffResult{Success: true, Waybill: waybill}
	var pickupErr string
	pickup, err := s.carrier.SchedulePickup(ctx, carrier.PickupRequest{
		Location:             s.warehouse.Name,
		Date:                 carrier.NextBusinessDay(s.now()),
		Time:                 s.warehouse.PickupTime,
		ExpectedPackageCount: 1,
	})
	if err != nil {
		pickupErr = pkgerrors.As(err).Message()
		if pickupErr == "" {
			pickupErr = err.Error()
		}
		result.Warning = "Shipment created but pickup scheduling failed: " + pickupErr
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "carrier pickup scheduling failed")
	} else {
		result.PickupScheduled = true
		s.logg.Info(s.logg.WithField(logCtx, "pickup_id", pickup.PickupID), "carrier pickup scheduled")
	}

	carrierName := s.carrierName()
	trackingURL := s.carrierCfg.TrackingURL(waybill)
	result.TrackingURL = trackingURL
	updates := map[string]any{
		"waybill":          waybill,
		"carrier_name":     carrierName,
		"status":           enums.OrderStatusConfirmed,
		"pickup_scheduled": result.PickupScheduled,
		"updated_at":       s.now().UTC(),
	}
	if trackingURL != "" {
		updates["tracking_url"] = trackingURL
	}
	if pickupErr != "" {
		updates["pickup_error"] = pickupErr
	}

	previous := order.Status
	var (
		updated *models.Order
		applied bool
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.AssignWaybill(ctx, order.ID, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist waybill").
				WithDetails(map[string]any{"step": stepPersist})
		}
		current, err := s.loadOrder(ctx, repo, order.ID)
		if err != nil {
			return err
		}
		updated = current
		if !ok {
			if current.HasWaybill() {
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed during hand-off").
				WithDetails(map[string]any{"step": stepPersist, "status": current.Status})
		}
		applied = true
		if err := s.emitHandedOff(ctx, tx, current, result.PickupScheduled, actor); err != nil {
			return err
		}
		if previous != current.Status {
			return s.emitStatusChanged(ctx, tx, current, previous, nil, actor)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !applied {
		// Another request won the race; our manifest is orphaned.
		if cancelErr := s.carrier.CancelShipment(ctx, waybill); cancelErr != nil {
			s.logg.Error(logCtx, "failed to cancel orphaned shipment", cancelErr)
		}
		return existingHandoff(updated), nil
	}

	s.logg.Info(logCtx, "order handed off to carrier")
	if previous != updated.Status {
		s.afterTransition(ctx, updated, previous, nil)
	}
	s.refreshLabelAsync(logCtx, updated)
	return result, nil
}

func (s *service) forwardShipment(order *models.Order, waybill string) carrier.Shipment {
	addr := order.ShippingAddress
	cod := decimal.Zero
	if order.PaymentMethod == enums.PaymentMethodCOD {
		cod = order.Total
	}
	products := make([]carrier.Product, 0, len(order.Items))
	for _, item := range order.Items {
		products = append(products, carrier.Product{
			Name:  item.Title,
			SKU:   item.ProductID.String(),
			Units: item.Quantity,
			Price: item.UnitPrice,
		})
	}
	return carrier.Shipment{
		OrderNumber: order.OrderNumber,
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
		ReturnTo:     s.warehouseParty(),
		PaymentMode:  order.PaymentMethod.CarrierMode(),
		Products:     products,
		ProductsDesc: order.Items.Description(0),
		CODAmount:    cod,
		TotalAmount:  order.Total,
		Quantity:     order.Items.TotalQuantity(),
		WeightKG:     s.fulfillment.DefaultWeightKG,
		WidthCM:      s.fulfillment.DefaultDimensionCM,
		HeightCM:     s.fulfillment.DefaultDimensionCM,
		DepthCM:      s.fulfillment.DefaultDimensionCM,
		OrderDate:    order.CreatedAt,
	}
}

func (s *service) warehouseParty() *carrier.Party {
	if strings.TrimSpace(s.warehouse.Pincode) == "" {
		return nil
	}
	return &carrier.Party{
		Name:    s.warehouse.Name,
		Phone:   s.warehouse.Phone,
		Street:  s.warehouse.Street,
		City:    s.warehouse.City,
		State:   s.warehouse.State,
		Pincode: s.warehouse.Pincode,
		Country: s.carrierCfg.DefaultCountry,
	}
}

func (s *service) carrierName() string {
	if name := strings.TrimSpace(s.carrierCfg.Name); name != "" {
		return name
	}
	return "delhivery"
}

func (s *service) emitHandedOff(ctx context.Context, tx *gorm.DB, order *models.Order, pickupScheduled bool, actor Actor) error {
	waybill := ""
	if order.Waybill != nil {
		waybill = *order.Waybill
	}
	carrierName := ""
	if order.CarrierName != nil {
		carrierName = *order.CarrierName
	}
	event := outbox.DomainEvent{
		EventType:     enums.EventOrderHandedOff,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor.Ref(),
		Data: payloads.OrderHandedOffEvent{
			OrderID:         order.ID,
			OrderNumber:     order.OrderNumber,
			Waybill:         waybill,
			CarrierName:     carrierName,
			PickupScheduled: pickupScheduled,
			HandedOffAt:     s.now().UTC(),
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order handed off")
	}
	return nil
}

func (s *service) refreshLabelAsync(ctx context.Context, order *models.Order) {
	if s.documents == nil {
		return
	}
	snapshot := *order
	s.runAsync(func() {
		docCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.documentTimeout())
		defer cancel()
		if err := s.documents.RefreshLabel(docCtx, &snapshot); err != nil {
			s.logg.Warn(s.logg.WithField(docCtx, "error", err.Error()), "label refresh failed")
		}
	})
}

func existingHandoff(order *models.Order) *HandoffResult {
	result := &HandoffResult{
		Success:          true,
		Waybill:          *order.Waybill,
		PickupScheduled:  order.PickupScheduled,
		AlreadyHandedOff: true,
	}
	if order.TrackingURL != nil {
		result.TrackingURL = *order.TrackingURL
	}
	return result
}

// Tracking returns the carrier scan history for a handed-off order.
func (s *service) Tracking(ctx context.Context, orderID uuid.UUID) (*carrier.TrackingInfo, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.loadOrder(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if !order.HasWaybill() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has not been handed to the carrier")
	}
	return s.carrier.Track(ctx, *order.Waybill)
}

// Serviceability checks whether the carrier serves a pincode.
func (s *service) Serviceability(ctx context.Context, pincode string) (*carrier.Serviceability, error) {
	return s.carrier.Serviceability(ctx, strings.TrimSpace(pincode))
}

// SyncTracking walks shipped orders and moves the ones the carrier reports
// delivered through the state machine.
func (s *service) SyncTracking(ctx context.Context, batch int) (*TrackingSyncResult, error) {
	result := &TrackingSyncResult{}
	query := ListQuery{
		Statuses:   []enums.OrderStatus{enums.OrderStatusShipped},
		HasWaybill: true,
		Limit:      batch,
	}

	var errs error
	for {
		if err := ctx.Err(); err != nil {
			return result, multierr.Append(errs, err)
		}
		rows, next, err := s.repo.List(ctx, query)
		if err != nil {
			return result, multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list shipped orders"))
		}
		for i := range rows {
			order := &rows[i]
			result.Checked++
			delivered, err := s.syncOne(ctx, order)
			if err != nil {
				result.Failed++
				errs = multierr.Append(errs, err)
				continue
			}
			if delivered {
				result.Delivered++
			}
		}
		if next == nil {
			break
		}
		query.Cursor = next
	}
	return result, errs
}

func (s *service) syncOne(ctx context.Context, order *models.Order) (bool, error) {
	info, err := s.carrier.Track(ctx, *order.Waybill)
	if err != nil {
		return false, err
	}
	if !info.Delivered() {
		return false, nil
	}
	_, err = s.UpdateStatus(ctx, UpdateStatusInput{
		OrderID: order.ID,
		Status:  enums.OrderStatusDelivered,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
