package paymentwebhook

import (
	"context"
	"encoding/json"

	"github.com/angelmondragon/storefront-fulfillment/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-fulfillment/pkg/errors"
	"github.com/angelmondragon/storefront-fulfillment/pkg/logger"
)

const EventPaymentCaptured = "payment.captured"

// Event is the gateway webhook envelope. Only the payment entity is read.
type Event struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity PaymentEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// PaymentEntity identifies a captured payment and the gateway order it paid.
type PaymentEntity struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// ParseEvent decodes a verified webhook body.
func ParseEvent(body []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode webhook payload")
	}
	if event.Event == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook event type missing")
	}
	return &event, nil
}

type paymentReconciler interface {
	ReconcileGatewayPayment(ctx context.Context, gatewayOrderID, paymentID string) (*models.Order, bool, error)
}

// Outcome describes what a delivery did, for logging and metrics.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeNoop      Outcome = "noop"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeUnmatched Outcome = "unmatched"
)

type Service struct {
	orders paymentReconciler
	logg   *logger.Logger
}

func NewService(orders paymentReconciler, logg *logger.Logger) (*Service, error) {
	if orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{orders: orders, logg: logg}, nil
}

// HandleEvent reconciles captured payments. Events for unknown orders or
// orders that can no longer take a payment are acknowledged so the gateway
// stops redelivering them.
func (s *Service) HandleEvent(ctx context.Context, event *Event) (Outcome, error) {
	if event == nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "webhook event required")
	}
	if event.Event != EventPaymentCaptured {
		return OutcomeIgnored, nil
	}

	entity := event.Payload.Payment.Entity
	ctx = s.logg.WithFields(ctx, map[string]any{
		"gateway_order_id": entity.OrderID,
		"payment_id":       entity.ID,
	})
	order, applied, err := s.orders.ReconcileGatewayPayment(ctx, entity.OrderID, entity.ID)
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		s.logg.Warn(ctx, "captured payment does not match any order")
		return OutcomeUnmatched, nil
	case pkgerrors.IsCode(err, pkgerrors.CodeStateConflict):
		s.logg.Warn(ctx, "captured payment for order that cannot accept it")
		return OutcomeUnmatched, nil
	case err != nil:
		return "", err
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	if !applied {
		s.logg.Info(ctx, "captured payment already applied")
		return OutcomeNoop, nil
	}
	s.logg.Info(ctx, "captured payment applied")
	return OutcomeApplied, nil
}
