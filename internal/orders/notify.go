package orders

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-fulfillment/internal/notifications"
	"github.com/angelmondragon/storefront-fulfillment/pkg/db/models"
	"github.com/angelmondragon/storefront-fulfillment/pkg/enums"
)

func customerMessage(order *models.Order, kind enums.NotificationKind, title, body string, data map[string]any) notifications.Message {
	customerID := order.CustomerID
	orderID := order.ID
	return notifications.Message{
		Kind:        kind,
		RecipientID: &customerID,
		Email:       order.CustomerEmail,
		Phone:       order.ShippingAddress.Phone,
		OrderID:     &orderID,
		Title:       title,
		Body:        body,
		Data:        data,
	}
}

func orderSummary(order *models.Order) map[string]any {
	data := map[string]any{
		"order_number":   order.OrderNumber,
		"status":         string(order.Status),
		"payment_method": string(order.PaymentMethod),
		"item_count":     order.Items.TotalQuantity(),
		"total":          order.Total.StringFixed(2),
	}
	if order.HasWaybill() {
		data["waybill"] = *order.Waybill
	}
	if order.TrackingURL != nil && *order.TrackingURL != "" {
		data["tracking_url"] = *order.TrackingURL
	}
	return data
}

func placedMessage(order *models.Order) notifications.Message {
	body := fmt.Sprintf("Thank you for your order %s. Items: %s. Total: %s (%s).",
		order.OrderNumber,
		order.Items.Description(120),
		order.Total.StringFixed(2),
		strings.ToUpper(string(order.PaymentMethod)),
	)
	return customerMessage(order, enums.NotificationOrderPlaced, "Order "+order.OrderNumber+" placed", body, orderSummary(order))
}

func statusChangedMessage(order *models.Order, previous enums.OrderStatus, reason *string) notifications.Message {
	data := orderSummary(order)
	data["previous_status"] = string(previous)
	body := fmt.Sprintf("Order %s moved from %s to %s. Items: %s. Total: %s.",
		order.OrderNumber,
		humanStatus(previous),
		humanStatus(order.Status),
		order.Items.Description(120),
		order.Total.StringFixed(2),
	)
	if reason != nil && strings.TrimSpace(*reason) != "" {
		data["reason"] = *reason
		body += " Reason: " + *reason + "."
	}
	return customerMessage(order, enums.NotificationOrderStatusChanged, "Order "+order.OrderNumber+" is "+humanStatus(order.Status), body, data)
}

func deliveredMessage(order *models.Order, previous enums.OrderStatus) notifications.Message {
	data := orderSummary(order)
	data["previous_status"] = string(previous)
	body := fmt.Sprintf("Order %s was delivered. Returns can be requested from your orders page.", order.OrderNumber)
	return customerMessage(order, enums.NotificationOrderDelivered, "Order "+order.OrderNumber+" delivered", body, data)
}

func humanStatus(status enums.OrderStatus) string {
	return strings.ReplaceAll(string(status), "_", " ")
}
