package paymentwebhook

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-fulfillment/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-fulfillment/pkg/errors"
	"github.com/angelmondragon/storefront-fulfillment/pkg/logger"
)

type stubReconciler struct {
	gatewayOrderID string
	paymentID      string
	applied        bool
	err            error
}

func (s *stubReconciler) ReconcileGatewayPayment(_ context.Context, gatewayOrderID, paymentID string) (*models.Order, bool, error) {
	s.gatewayOrderID = gatewayOrderID
	s.paymentID = paymentID
	if s.err != nil {
		return nil, false, s.err
	}
	return &models.Order{ID: uuid.New()}, s.applied, nil
}

func newTestService(t *testing.T, orders *stubReconciler) *Service {
	t.Helper()
	svc, err := NewService(orders, logger.New(logger.Options{ServiceName: "webhook-test", Output: io.Discard}))
	require.NoError(t, err)
	return svc
}

const capturedBody = `{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_1","status":"captured"}}}}`

func TestHandleCapturedPayment(t *testing.T) {
	orders := &stubReconciler{applied: true}
	svc := newTestService(t, orders)

	event, err := ParseEvent([]byte(capturedBody))
	require.NoError(t, err)
	outcome, err := svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)
	require.Equal(t, "order_1", orders.gatewayOrderID)
	require.Equal(t, "pay_1", orders.paymentID)
}

func TestHandleAlreadyApplied(t *testing.T) {
	svc := newTestService(t, &stubReconciler{})
	event, err := ParseEvent([]byte(capturedBody))
	require.NoError(t, err)
	outcome, err := svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, OutcomeNoop, outcome)
}

func TestHandleIgnoresOtherEvents(t *testing.T) {
	orders := &stubReconciler{}
	svc := newTestService(t, orders)
	event, err := ParseEvent([]byte(`{"event":"payment.failed"}`))
	require.NoError(t, err)
	outcome, err := svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, OutcomeIgnored, outcome)
	require.Empty(t, orders.gatewayOrderID)
}

func TestHandleUnknownOrderIsAcknowledged(t *testing.T) {
	svc := newTestService(t, &stubReconciler{err: pkgerrors.New(pkgerrors.CodeNotFound, "order not found")})
	event, _ := ParseEvent([]byte(capturedBody))
	outcome, err := svc.HandleEvent(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, OutcomeUnmatched, outcome)
}

func TestHandleDependencyFailurePropagates(t *testing.T) {
	svc := newTestService(t, &stubReconciler{err: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("db down"), "load order")})
	event, _ := ParseEvent([]byte(capturedBody))
	_, err := svc.HandleEvent(context.Background(), event)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestParseEventRejectsGarbage(t *testing.T) {
	_, err := ParseEvent([]byte(`not json`))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = ParseEvent([]byte(`{}`))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

type memoryIdempotency struct {
	keys map[string]string
}

func (m *memoryIdempotency) Get(_ context.Context, key string) (string, error) {
	return m.keys[key], nil
}

func (m *memoryIdempotency) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = "set"
	return true, nil
}

func (m *memoryIdempotency) IdempotencyKey(scope, id string) string {
	return "idempotency:" + scope + ":" + id
}

func (m *memoryIdempotency) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

func TestIdempotencyGuard(t *testing.T) {
	store := &memoryIdempotency{keys: map[string]string{}}
	guard, err := NewIdempotencyGuard(store, time.Hour, "payments-webhook")
	require.NoError(t, err)
	ctx := context.Background()

	seen, err := guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	require.False(t, seen)

	seen, err = guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	require.True(t, seen)

	require.NoError(t, guard.Delete(ctx, "evt_1"))
	seen, err = guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	require.False(t, seen)

	_, err = guard.CheckAndMark(ctx, "")
	require.Error(t, err)
}
