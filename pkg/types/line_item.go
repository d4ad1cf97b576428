package types

import (
	"database/sql/driver"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineItem is a product snapshot captured when the order is created.
type LineItem struct {
	ProductID uuid.UUID       `json:"product_id" validate:"required"`
	Title     string          `json:"title" validate:"required"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity" validate:"required,gt=0"`
	Size      string          `json:"size,omitempty"`
	Color     string          `json:"color,omitempty"`
	AgeGroup  string          `json:"age_group,omitempty"`
	Image     string          `json:"image,omitempty"`
}

// LineTotal is unit price times quantity.
func (l LineItem) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// LineItems is stored as a JSONB array on the order row.
type LineItems []LineItem

// Subtotal sums every line total.
func (items LineItems) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.LineTotal())
	}
	return sum
}

// TotalQuantity sums item quantities.
func (items LineItems) TotalQuantity() int {
	total := 0
	for _, item := range items {
		total += item.Quantity
	}
	return total
}

// Find returns the line item for productID.
func (items LineItems) Find(productID uuid.UUID) (LineItem, bool) {
	for _, item := range items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return LineItem{}, false
}

// Description joins item titles, truncated to max runes.
func (items LineItems) Description(max int) string {
	titles := make([]string, 0, len(items))
	for _, item := range items {
		titles = append(titles, item.Title)
	}
	desc := strings.Join(titles, ", ")
	runes := []rune(desc)
	if max > 0 && len(runes) > max {
		return string(runes[:max])
	}
	return desc
}

// Value serializes the items to JSON.
func (items LineItems) Value() (driver.Value, error) {
	if items == nil {
		return "[]", nil
	}
	raw, err := json.Marshal([]LineItem(items))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan decodes JSONB into the items.
func (items *LineItems) Scan(value interface{}) error {
	if value == nil {
		*items = nil
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	var decoded []LineItem
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	*items = decoded
	return nil
}
