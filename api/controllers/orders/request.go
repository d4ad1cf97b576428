package orders

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-fulfillment/pkg/types"
)

type createOrderRequest struct {
	Items           types.LineItems  `json:"items" validate:"required,min=1"`
	Subtotal        *decimal.Decimal `json:"subtotal"`
	Tax             decimal.Decimal  `json:"tax"`
	Shipping        *decimal.Decimal `json:"shipping"`
	Total           *decimal.Decimal `json:"total"`
	PaymentMethod   string           `json:"payment_method" validate:"required"`
	Email           string           `json:"email" validate:"omitempty,email"`
	ShippingAddress addressRequest   `json:"shipping_address"`
}

// addressRequest mirrors types.Address with the creation-time rules: only a
// name and pincode are needed until the order is handed to the carrier.
type addressRequest struct {
	Name    string `json:"name" validate:"required,notblank"`
	Phone   string `json:"phone" validate:"omitempty,phone"`
	Email   string `json:"email" validate:"omitempty,email"`
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode" validate:"required,pincode"`
	Country string `json:"country"`
}

func (a addressRequest) toAddress() types.Address {
	return types.Address{
		Name:    strings.TrimSpace(a.Name),
		Phone:   strings.TrimSpace(a.Phone),
		Email:   strings.TrimSpace(a.Email),
		Street:  strings.TrimSpace(a.Street),
		City:    strings.TrimSpace(a.City),
		State:   strings.TrimSpace(a.State),
		Pincode: strings.TrimSpace(a.Pincode),
		Country: strings.TrimSpace(a.Country),
	}
}

type paymentSuccessRequest struct {
	ConfirmationID string `json:"confirmation_id" validate:"required"`
	GatewayOrderID string `json:"gateway_order_id"`
	Signature      string `json:"signature"`
}

type updateStatusRequest struct {
	Status             string  `json:"status" validate:"required"`
	TrackingID         *string `json:"tracking_id"`
	CourierName        *string `json:"courier_name"`
	TrackingURL        *string `json:"tracking_url" validate:"omitempty,url"`
	CancellationReason *string `json:"cancellation_reason" validate:"omitempty,max=500"`
}
