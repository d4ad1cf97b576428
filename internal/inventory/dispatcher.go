// Package inventory applies the stock side effects of shipping an order.
package inventory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/storefront-fulfillment/pkg/errors"
	"github.com/angelmondragon/storefront-fulfillment/pkg/types"
)

// Dispatcher decrements stock and bumps sold counters for shipped line items.
type Dispatcher struct{}

// NewDispatcher returns the default dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Dispatch must run inside the transaction that moves the order to shipped so
// the counters change exactly once per order. Stock never goes below zero.
func (Dispatcher) Dispatch(ctx context.Context, tx *gorm.DB, items types.LineItems) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock dispatch")
	}

	quantities := map[uuid.UUID]int{}
	order := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 || item.ProductID == uuid.Nil {
			continue
		}
		if _, seen := quantities[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		quantities[item.ProductID] += item.Quantity
	}

	for _, productID := range order {
		qty := quantities[productID]
		res := tx.WithContext(ctx).Exec(`
			UPDATE products
			SET stock = CASE WHEN stock >= ? THEN stock - ? ELSE 0 END,
				sold_count = sold_count + ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, qty, qty, qty, productID)
		if res.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "decrement stock")
		}
	}
	return nil
}
