package orders

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/storefront-fulfillment/pkg/errors"
	"github.com/angelmondragon/storefront-fulfillment/pkg/types"
)

var testPolicy = ShippingPolicy{FreeThreshold: decimal.NewFromInt(999), Fee: decimal.NewFromInt(50)}

func items(prices ...int64) types.LineItems {
	out := make(types.LineItems, 0, len(prices))
	for _, price := range prices {
		out = append(out, types.LineItem{ProductID: uuid.New(), Title: "Item", UnitPrice: decimal.NewFromInt(price), Quantity: 1})
	}
	return out
}

func TestComputeTotalsChargesShippingBelowThreshold(t *testing.T) {
	line := types.LineItems{{ProductID: uuid.New(), Title: "Kurta", UnitPrice: decimal.NewFromInt(499), Quantity: 2}}

	totals, err := ComputeTotals(line, nil, decimal.Zero, testPolicy)
	require.NoError(t, err)
	require.Equal(t, "998.00", totals.Subtotal.StringFixed(2))
	require.Equal(t, "50.00", totals.ShippingFee.StringFixed(2))
	require.Equal(t, "1048.00", totals.Total.StringFixed(2))
}

func TestComputeTotalsFreeShippingAtThreshold(t *testing.T) {
	totals, err := ComputeTotals(items(999), nil, decimal.Zero, testPolicy)
	require.NoError(t, err)
	require.True(t, totals.ShippingFee.IsZero())
	require.Equal(t, "999.00", totals.Total.StringFixed(2))
}

func TestComputeTotalsAddsTax(t *testing.T) {
	totals, err := ComputeTotals(items(1200), nil, decimal.RequireFromString("54.555"), testPolicy)
	require.NoError(t, err)
	require.Equal(t, "54.56", totals.Tax.StringFixed(2))
	require.Equal(t, "1254.56", totals.Total.StringFixed(2))
}

func TestComputeTotalsRejectsSubtotalMismatch(t *testing.T) {
	declared := decimal.NewFromInt(100)
	_, err := ComputeTotals(items(499, 499), &declared, decimal.Zero, testPolicy)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	require.Equal(t, "100.00", details["declared_subtotal"])
	require.Equal(t, "998.00", details["computed_subtotal"])
}

func TestComputeTotalsAcceptsMatchingDeclaredSubtotal(t *testing.T) {
	declared := decimal.RequireFromString("998.00")
	_, err := ComputeTotals(items(499, 499), &declared, decimal.Zero, testPolicy)
	require.NoError(t, err)
}

func TestComputeTotalsValidatesItems(t *testing.T) {
	cases := map[string]types.LineItems{
		"empty":          {},
		"nil product":    {{UnitPrice: decimal.NewFromInt(1), Quantity: 1}},
		"zero quantity":  {{ProductID: uuid.New(), UnitPrice: decimal.NewFromInt(1)}},
		"negative price": {{ProductID: uuid.New(), UnitPrice: decimal.NewFromInt(-1), Quantity: 1}},
	}
	for name, line := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ComputeTotals(line, nil, decimal.Zero, testPolicy)
			require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}

	_, err := ComputeTotals(items(10), nil, decimal.NewFromInt(-1), testPolicy)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestNewOrderNumber(t *testing.T) {
	id := uuid.MustParse("3f2a9c1e-0000-4000-8000-000000000000")
	got := NewOrderNumber(time.Date(2026, 1, 9, 23, 0, 0, 0, time.UTC), id)
	require.Equal(t, "ORD202601093F2A9C1E", got)
}
