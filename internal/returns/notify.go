package returns

import (
	"fmt"

	"github.com/angelmondragon/storefront-fulfillment/internal/notifications"
	"github.com/angelmondragon/storefront-fulfillment/pkg/db/models"
	"github.com/angelmondragon/storefront-fulfillment/pkg/enums"
	"github.com/angelmondragon/storefront-fulfillment/pkg/types"
)

func returnMessage(kind enums.NotificationKind, order *models.Order, request *models.ReturnRequest, item types.LineItem, title, body string) notifications.Message {
	customerID := order.CustomerID
	orderID := order.ID
	data := map[string]any{
		"order_number":  order.OrderNumber,
		"return_id":     request.ID.String(),
		"product_id":    request.ProductID.String(),
		"product_title": item.Title,
		"reason":        request.Reason,
		"status":        string(request.Status),
	}
	if item.Size != "" {
		data["size"] = item.Size
	}
	if request.ReturnWaybill != nil {
		data["return_waybill"] = *request.ReturnWaybill
	}
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

func requestedMessage(order *models.Order, request *models.ReturnRequest, item types.LineItem) notifications.Message {
	body := fmt.Sprintf("Return requested for %s on order %s. Reason: %s.", item.Title, order.OrderNumber, request.Reason)
	return returnMessage(enums.NotificationReturnRequested, order, request, item, "Return requested for "+order.OrderNumber, body)
}

func approvedMessage(order *models.Order, request *models.ReturnRequest, item types.LineItem) notifications.Message {
	body := fmt.Sprintf("Your return of %s on order %s was approved. A courier will collect it.", item.Title, order.OrderNumber)
	if request.ReturnWaybill != nil {
		body += " Pickup waybill: " + *request.ReturnWaybill + "."
	}
	return returnMessage(enums.NotificationReturnApproved, order, request, item, "Return approved for "+order.OrderNumber, body)
}

func statusMessage(order *models.Order, request *models.ReturnRequest, item types.LineItem) notifications.Message {
	body := fmt.Sprintf("Your return of %s on order %s is now %s.", item.Title, order.OrderNumber, request.Status)
	msg := returnMessage(enums.NotificationOrderStatusChanged, order, request, item, "Return update for "+order.OrderNumber, body)
	msg.Data["order_status"] = string(order.Status)
	return msg
}
