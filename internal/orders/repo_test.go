package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-fulfillment/pkg/db/models"
	"github.com/angelmondragon/storefront-fulfillment/pkg/enums"
	"github.com/angelmondragon/storefront-fulfillment/pkg/pagination"
)

func TestRepositoryConfirmPaymentAppliesOnce(t *testing.T) {
	h := newHarness(t)
	repo := NewRepository(h.db)
	ctx := context.Background()
	order := h.seedOrder(t, func(o *models.Order) {
		o.Status = enums.OrderStatusPendingPayment
		o.PaymentMethod = enums.PaymentMethodPrepaid
	})

	ok, err := repo.ConfirmPayment(ctx, order.ID, "pay_1", fixedNow)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.ConfirmPayment(ctx, order.ID, "pay_2", fixedNow)
	require.NoError(t, err)
	require.False(t, ok)

	stored := h.reload(t, order.ID)
	require.Equal(t, enums.OrderStatusPlaced, stored.Status)
	require.Equal(t, enums.PaymentStatusCompleted, stored.PaymentStatus)
	require.Equal(t, "pay_1", *stored.PaymentConfirmationID)
}

func TestRepositoryConfirmPaymentSkipsCancelledOrders(t *testing.T) {
	h := newHarness(t)
	order := h.seedOrder(t, func(o *models.Order) { o.Status = enums.OrderStatusCancelled })

	ok, err := NewRepository(h.db).ConfirmPayment(context.Background(), order.ID, "pay_1", fixedNow)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRepositoryTransitionStatusRequiresExpectedStatus(t *testing.T) {
	h := newHarness(t)
	repo := NewRepository(h.db)
	ctx := context.Background()
	order := h.seedOrder(t, nil)

	ok, err := repo.TransitionStatus(ctx, order.ID, enums.OrderStatusConfirmed, enums.OrderStatusShipped, nil)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = repo.TransitionStatus(ctx, order.ID, enums.OrderStatusPlaced, enums.OrderStatusShipped, map[string]any{"updated_at": fixedNow})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, enums.OrderStatusShipped, h.reload(t, order.ID).Status)
}

func TestRepositoryAssignWaybillIsWriteOnce(t *testing.T) {
	h := newHarness(t)
	repo := NewRepository(h.db)
	ctx := context.Background()
	order := h.seedOrder(t, nil)

	ok, err := repo.AssignWaybill(ctx, order.ID, map[string]any{"waybill": "WB1", "status": enums.OrderStatusConfirmed})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.AssignWaybill(ctx, order.ID, map[string]any{"waybill": "WB2"})
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, "WB1", *h.reload(t, order.ID).Waybill)
}

func TestRepositoryAssignWaybillRejectsShippedOrders(t *testing.T) {
	h := newHarness(t)
	order := h.seedOrder(t, func(o *models.Order) { o.Status = enums.OrderStatusShipped })

	ok, err := NewRepository(h.db).AssignWaybill(context.Background(), order.ID, map[string]any{"waybill": "WB1"})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRepositoryListFiltersAndPaginates(t *testing.T) {
	h := newHarness(t)
	repo := NewRepository(h.db)
	ctx := context.Background()
	customer := uuid.New()

	var seeded []uuid.UUID
	for i := 0; i < 3; i++ {
		created := fixedNow.Add(time.Duration(i) * time.Minute)
		order := h.seedOrder(t, func(o *models.Order) {
			o.CustomerID = customer
			o.CreatedAt = created
		})
		seeded = append(seeded, order.ID)
	}
	h.seedOrder(t, func(o *models.Order) {
		o.CustomerID = customer
		o.Status = enums.OrderStatusPendingPayment
		o.CreatedAt = fixedNow.Add(time.Hour)
	})
	h.seedOrder(t, nil)

	first, next, err := repo.List(ctx, ListQuery{CustomerID: &customer, ExcludePending: true, Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Equal(t, seeded[2], first[0].ID)
	require.Equal(t, seeded[1], first[1].ID)
	require.NotNil(t, next)
	require.Equal(t, seeded[1], next.ID)

	second, next, err := repo.List(ctx, ListQuery{CustomerID: &customer, ExcludePending: true, Limit: 2, Cursor: next})
	require.NoError(t, err)
	require.Nil(t, next)
	require.Len(t, second, 1)
	require.Equal(t, seeded[0], second[0].ID)
}

func TestRepositoryListByStatusWithWaybill(t *testing.T) {
	h := newHarness(t)
	waybill := "WB9"
	shipped := h.seedOrder(t, func(o *models.Order) {
		o.Status = enums.OrderStatusShipped
		o.Waybill = &waybill
	})
	h.seedOrder(t, func(o *models.Order) { o.Status = enums.OrderStatusShipped })
	h.seedOrder(t, nil)

	rows, next, err := NewRepository(h.db).List(context.Background(), ListQuery{
		Statuses:   []enums.OrderStatus{enums.OrderStatusShipped},
		HasWaybill: true,
		Limit:      pagination.NormalizeLimit(0),
	})
	require.NoError(t, err)
	require.Nil(t, next)
	require.Len(t, rows, 1)
	require.Equal(t, shipped.ID, rows[0].ID)
}

func TestRepositoryFindByGatewayOrderID(t *testing.T) {
	h := newHarness(t)
	gw := "order_GW9"
	order := h.seedOrder(t, func(o *models.Order) { o.GatewayOrderID = &gw })

	found, err := NewRepository(h.db).FindByGatewayOrderID(context.Background(), gw)
	require.NoError(t, err)
	require.Equal(t, order.ID, found.ID)
}
