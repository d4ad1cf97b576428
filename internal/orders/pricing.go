package orders

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/storefront-fulfillment/pkg/errors"
	"github.com/angelmondragon/storefront-fulfillment/pkg/types"
)

const orderNumberPrefix = "ORD"

// ShippingPolicy charges a flat fee below the free-shipping threshold.
type ShippingPolicy struct {
	FreeThreshold decimal.Decimal
	Fee           decimal.Decimal
}

// FeeFor returns the shipping fee for a subtotal.
func (p ShippingPolicy) FeeFor(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.LessThan(p.FreeThreshold) {
		return p.Fee
	}
	return decimal.Zero
}

// Totals are the server-computed money fields of an order.
type Totals struct {
	Subtotal    decimal.Decimal
	Tax         decimal.Decimal
	ShippingFee decimal.Decimal
	Total       decimal.Decimal
}

// ComputeTotals recomputes the subtotal from line items and derives shipping
// and total. A declared subtotal must match; tax is taken as declared.
func ComputeTotals(items types.LineItems, declaredSubtotal *decimal.Decimal, tax decimal.Decimal, policy ShippingPolicy) (Totals, error) {
	if len(items) == 0 {
		return Totals{}, pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one item")
	}
	for _, item := range items {
		if item.ProductID == uuid.Nil {
			return Totals{}, pkgerrors.New(pkgerrors.CodeValidation, "line item product id required")
		}
		if item.Quantity <= 0 {
			return Totals{}, pkgerrors.New(pkgerrors.CodeValidation, "line item quantity must be positive")
		}
		if item.UnitPrice.IsNegative() {
			return Totals{}, pkgerrors.New(pkgerrors.CodeValidation, "line item price cannot be negative")
		}
	}
	if tax.IsNegative() {
		return Totals{}, pkgerrors.New(pkgerrors.CodeValidation, "tax cannot be negative")
	}

	subtotal := items.Subtotal().Round(2)
	if declaredSubtotal != nil && !declaredSubtotal.Round(2).Equal(subtotal) {
		return Totals{}, pkgerrors.New(pkgerrors.CodeValidation, "subtotal does not match line items").
			WithDetails(map[string]any{
				"declared_subtotal": declaredSubtotal.StringFixed(2),
				"computed_subtotal": subtotal.StringFixed(2),
			})
	}

	tax = tax.Round(2)
	shipping := policy.FeeFor(subtotal).Round(2)
	return Totals{
		Subtotal:    subtotal,
		Tax:         tax,
		ShippingFee: shipping,
		Total:       subtotal.Add(tax).Add(shipping),
	}, nil
}

// NewOrderNumber renders ORD + YYYYMMDD + 8 uppercase characters of id.
func NewOrderNumber(now time.Time, id uuid.UUID) string {
	raw := strings.ReplaceAll(id.String(), "-", "")
	return orderNumberPrefix + now.UTC().Format("20060102") + strings.ToUpper(raw[:8])
}
