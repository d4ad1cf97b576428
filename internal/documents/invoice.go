package documents

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/angelmondragon/storefront-fulfillment/pkg/db/models"
)

const invoiceSheet = "Invoice"

var invoiceHeaders = []string{"#", "Product", "Size", "Color", "Unit Price", "Quantity", "Line Total"}

// RenderInvoice builds the invoice workbook for an order snapshot. Tax is the
// stored order tax.
func RenderInvoice(order *models.Order) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", invoiceSheet); err != nil {
		return nil, err
	}

	addr := order.ShippingAddress
	header := [][]any{
		{"Invoice", order.OrderNumber},
		{"Date", order.CreatedAt.UTC().Format("2006-01-02")},
		{"Customer", addr.Name},
		{"Email", order.CustomerEmail},
		{"Phone", addr.Phone},
		{"Ship To", fmt.Sprintf("%s, %s, %s %s", addr.Street, addr.City, addr.State, addr.Pincode)},
		{"Payment", string(order.PaymentMethod)},
	}
	row := 1
	for _, values := range header {
		if err := setRow(f, row, values); err != nil {
			return nil, err
		}
		row++
	}

	row++
	headerRow := make([]any, len(invoiceHeaders))
	for i, h := range invoiceHeaders {
		headerRow[i] = h
	}
	if err := setRow(f, row, headerRow); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	last, _ := excelize.CoordinatesToCellName(len(invoiceHeaders), row)
	if err := f.SetCellStyle(invoiceSheet, fmt.Sprintf("A%d", row), last, bold); err != nil {
		return nil, err
	}
	row++

	for i, item := range order.Items {
		values := []any{
			i + 1,
			item.Title,
			item.Size,
			item.Color,
			item.UnitPrice.StringFixed(2),
			item.Quantity,
			item.LineTotal().StringFixed(2),
		}
		if err := setRow(f, row, values); err != nil {
			return nil, err
		}
		row++
	}

	row++
	totals := [][]any{
		{"Subtotal", order.Subtotal.StringFixed(2)},
		{"Tax", order.Tax.StringFixed(2)},
		{"Shipping", order.ShippingFee.StringFixed(2)},
		{"Total", order.Total.StringFixed(2)},
	}
	for _, values := range totals {
		label, _ := excelize.CoordinatesToCellName(len(invoiceHeaders)-1, row)
		amount, _ := excelize.CoordinatesToCellName(len(invoiceHeaders), row)
		if err := f.SetCellValue(invoiceSheet, label, values[0]); err != nil {
			return nil, err
		}
		if err := f.SetCellValue(invoiceSheet, amount, values[1]); err != nil {
			return nil, err
		}
		row++
	}
	if err := f.SetColWidth(invoiceSheet, "B", "B", 40); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(invoiceSheet, cell, &values)
}
