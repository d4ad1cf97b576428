package orders

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-fulfillment/api/middleware"
	"github.com/angelmondragon/storefront-fulfillment/internal/documents"
	internalorders "github.com/angelmondragon/storefront-fulfillment/internal/orders"
	"github.com/angelmondragon/storefront-fulfillment/pkg/carrier"
	"github.com/angelmondragon/storefront-fulfillment/pkg/db/models"
	"github.com/angelmondragon/storefront-fulfillment/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-fulfillment/pkg/errors"
	"github.com/angelmondragon/storefront-fulfillment/pkg/logger"
	"github.com/angelmondragon/storefront-fulfillment/pkg/pagination"
)

type stubService struct {
	createFn          func(ctx context.Context, input internalorders.CreateOrderInput) (*internalorders.CreateOrderResult, error)
	confirmFn         func(ctx context.Context, input internalorders.ConfirmPaymentInput) (*models.Order, error)
	getFn             func(ctx context.Context, actor internalorders.Actor, id uuid.UUID) (*models.Order, error)
	listCustomerFn    func(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*internalorders.OrderList, error)
	listAllFn         func(ctx context.Context, filters internalorders.ListFilters, params pagination.Params) (*internalorders.OrderList, error)
	updateFn          func(ctx context.Context, input internalorders.UpdateStatusInput) (*models.Order, error)
	confirmShippingFn func(ctx context.Context, actor internalorders.Actor, id uuid.UUID) (*internalorders.HandoffResult, error)
}

func (s *stubService) CreateOrder(ctx context.Context, input internalorders.CreateOrderInput) (*internalorders.CreateOrderResult, error) {
	return s.createFn(ctx, input)
}

func (s *stubService) ConfirmPayment(ctx context.Context, input internalorders.ConfirmPaymentInput) (*models.Order, error) {
	return s.confirmFn(ctx, input)
}

func (s *stubService) ReconcileGatewayPayment(context.Context, string, string) (*models.Order, bool, error) {
	return nil, false, nil
}

func (s *stubService) GetOrder(ctx context.Context, actor internalorders.Actor, id uuid.UUID) (*models.Order, error) {
	return s.getFn(ctx, actor, id)
}

func (s *stubService) ListForCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) (*internalorders.OrderList, error) {
	return s.listCustomerFn(ctx, customerID, params)
}

func (s *stubService) ListAll(ctx context.Context, filters internalorders.ListFilters, params pagination.Params) (*internalorders.OrderList, error) {
	return s.listAllFn(ctx, filters, params)
}

func (s *stubService) UpdateStatus(ctx context.Context, input internalorders.UpdateStatusInput) (*models.Order, error) {
	return s.updateFn(ctx, input)
}

func (s *stubService) ConfirmShipping(ctx context.Context, actor internalorders.Actor, id uuid.UUID) (*internalorders.HandoffResult, error) {
	return s.confirmShippingFn(ctx, actor, id)
}

func (s *stubService) Tracking(context.Context, uuid.UUID) (*carrier.TrackingInfo, error) {
	return &carrier.TrackingInfo{Waybill: "WB1", Status: "In Transit"}, nil
}

func (s *stubService) Serviceability(_ context.Context, pincode string) (*carrier.Serviceability, error) {
	return &carrier.Serviceability{Pincode: pincode, Serviceable: true}, nil
}

func (s *stubService) SyncTracking(context.Context, int) (*internalorders.TrackingSyncResult, error) {
	return &internalorders.TrackingSyncResult{}, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "orders-controller-test", Output: io.Discard})
}

func authed(req *http.Request, userID uuid.UUID, role enums.Role) *http.Request {
	ctx := middleware.WithUserID(req.Context(), userID.String())
	ctx = middleware.WithRole(ctx, string(role))
	return req.WithContext(ctx)
}

func withParam(req *http.Request, key, value string) *http.Request {
	rc := chi.RouteContext(req.Context())
	if rc == nil {
		rc = chi.NewRouteContext()
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
	}
	rc.URLParams.Add(key, value)
	return req
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decode(t *testing.T, resp *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env))
	return env
}

func TestCreateMapsRequest(t *testing.T) {
	userID := uuid.New()
	var captured internalorders.CreateOrderInput
	svc := &stubService{createFn: func(_ context.Context, input internalorders.CreateOrderInput) (*internalorders.CreateOrderResult, error) {
		captured = input
		return &internalorders.CreateOrderResult{
			Order:          &models.Order{ID: uuid.New(), Status: enums.OrderStatusPendingPayment},
			PaymentKeyID:   "rzp_test_key",
			GatewayOrderID: "order_GW1",
		}, nil
	}}

	body := `{
		"items": [{"product_id": "` + uuid.NewString() + `", "title": "Kurta", "unit_price": 499, "quantity": 1}],
		"subtotal": 499, "tax": 0, "shipping": 0, "total": 499,
		"payment_method": "Prepaid",
		"shipping_address": {"name": " Asha Rao ", "pincode": "411001"}
	}`
	req := authed(httptest.NewRequest(http.MethodPost, "/api/orders/create", strings.NewReader(body)), userID, enums.RoleCustomer)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, chi.NewRouteContext()))
	resp := httptest.NewRecorder()
	Create(svc, testLogger())(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, userID, captured.CustomerID)
	require.Equal(t, enums.PaymentMethodPrepaid, captured.PaymentMethod)
	require.Equal(t, "Asha Rao", captured.ShippingAddress.Name)
	require.True(t, captured.DeclaredShipping.Equal(decimal.Zero))
	require.Len(t, captured.Items, 1)

	var data struct {
		PaymentKeyID   string `json:"payment_key_id"`
		GatewayOrderID string `json:"gateway_order_id"`
	}
	require.NoError(t, json.Unmarshal(decode(t, resp).Data, &data))
	require.Equal(t, "rzp_test_key", data.PaymentKeyID)
	require.Equal(t, "order_GW1", data.GatewayOrderID)
}

func TestCreateRejectsUnknownPaymentMethod(t *testing.T) {
	svc := &stubService{createFn: func(context.Context, internalorders.CreateOrderInput) (*internalorders.CreateOrderResult, error) {
		t.Fatal("service must not be called")
		return nil, nil
	}}
	body := `{"items": [{"product_id": "` + uuid.NewString() + `", "title": "Kurta", "unit_price": 499, "quantity": 1}],
		"payment_method": "barter", "shipping_address": {"name": "Asha", "pincode": "411001"}}`
	req := authed(httptest.NewRequest(http.MethodPost, "/api/orders/create", strings.NewReader(body)), uuid.New(), enums.RoleCustomer)
	resp := httptest.NewRecorder()
	Create(svc, testLogger())(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Equal(t, string(pkgerrors.CodeValidation), decode(t, resp).Error.Code)
}

func TestCreateRequiresAddressPincode(t *testing.T) {
	svc := &stubService{}
	body := `{"items": [{"product_id": "` + uuid.NewString() + `", "title": "Kurta", "unit_price": 499, "quantity": 1}],
		"payment_method": "cod", "shipping_address": {"name": "Asha"}}`
	req := authed(httptest.NewRequest(http.MethodPost, "/api/orders/create", strings.NewReader(body)), uuid.New(), enums.RoleCustomer)
	resp := httptest.NewRecorder()
	Create(svc, testLogger())(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Contains(t, decode(t, resp).Error.Details, "pincode")
}

func TestPaymentSuccessSignatureMismatch(t *testing.T) {
	orderID := uuid.New()
	svc := &stubService{confirmFn: func(_ context.Context, input internalorders.ConfirmPaymentInput) (*models.Order, error) {
		require.Equal(t, orderID, input.OrderID)
		require.Equal(t, "pay_1", input.ConfirmationID)
		return nil, pkgerrors.New(pkgerrors.CodeInvalidSignature, "payment signature mismatch")
	}}
	req := authed(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"confirmation_id":"pay_1","gateway_order_id":"order_GW1","signature":"bad"}`)), uuid.New(), enums.RoleCustomer)
	req = withParam(req, "orderId", orderID.String())
	resp := httptest.NewRecorder()
	PaymentSuccess(svc, testLogger())(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Equal(t, string(pkgerrors.CodeInvalidSignature), decode(t, resp).Error.Code)
}

func TestPaymentSuccessResponse(t *testing.T) {
	orderID := uuid.New()
	svc := &stubService{confirmFn: func(context.Context, internalorders.ConfirmPaymentInput) (*models.Order, error) {
		return &models.Order{ID: orderID, Status: enums.OrderStatusPlaced}, nil
	}}
	req := authed(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"confirmation_id":"pay_1"}`)), uuid.New(), enums.RoleCustomer)
	req = withParam(req, "orderId", orderID.String())
	resp := httptest.NewRecorder()
	PaymentSuccess(svc, testLogger())(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	var data struct {
		Message string `json:"message"`
		OrderID string `json:"order_id"`
	}
	require.NoError(t, json.Unmarshal(decode(t, resp).Data, &data))
	require.Equal(t, orderID.String(), data.OrderID)
	require.NotEmpty(t, data.Message)
}

func TestDetailRejectsBadID(t *testing.T) {
	req := authed(httptest.NewRequest(http.MethodGet, "/", nil), uuid.New(), enums.RoleCustomer)
	req = withParam(req, "orderId", "not-a-uuid")
	resp := httptest.NewRecorder()
	Detail(&stubService{}, testLogger())(resp, req)
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestListRequiresAuth(t *testing.T) {
	resp := httptest.NewRecorder()
	List(&stubService{}, testLogger())(resp, httptest.NewRequest(http.MethodGet, "/api/orders", nil))
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestListPassesPagination(t *testing.T) {
	userID := uuid.New()
	svc := &stubService{listCustomerFn: func(_ context.Context, id uuid.UUID, params pagination.Params) (*internalorders.OrderList, error) {
		require.Equal(t, userID, id)
		require.Equal(t, 10, params.Limit)
		require.Equal(t, "abc", params.Cursor)
		return &internalorders.OrderList{Orders: []models.Order{}}, nil
	}}
	req := authed(httptest.NewRequest(http.MethodGet, "/api/orders?limit=10&cursor=abc", nil), userID, enums.RoleCustomer)
	resp := httptest.NewRecorder()
	List(svc, testLogger())(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
}

func TestAdminListStatusFilter(t *testing.T) {
	svc := &stubService{listAllFn: func(_ context.Context, filters internalorders.ListFilters, _ pagination.Params) (*internalorders.OrderList, error) {
		require.NotNil(t, filters.Status)
		require.Equal(t, enums.OrderStatusShipped, *filters.Status)
		return &internalorders.OrderList{Orders: []models.Order{}}, nil
	}}
	req := authed(httptest.NewRequest(http.MethodGet, "/api/admin/orders?status=shipped", nil), uuid.New(), enums.RoleAdmin)
	resp := httptest.NewRecorder()
	AdminList(svc, testLogger())(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)

	req = authed(httptest.NewRequest(http.MethodGet, "/api/admin/orders?status=lost", nil), uuid.New(), enums.RoleAdmin)
	resp = httptest.NewRecorder()
	AdminList(svc, testLogger())(resp, req)
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestUpdateStatusMapsFields(t *testing.T) {
	adminID := uuid.New()
	orderID := uuid.New()
	svc := &stubService{updateFn: func(_ context.Context, input internalorders.UpdateStatusInput) (*models.Order, error) {
		require.Equal(t, orderID, input.OrderID)
		require.Equal(t, enums.OrderStatusCancelled, input.Status)
		require.Equal(t, "customer asked", *input.Reason)
		require.Equal(t, adminID, input.Actor.UserID)
		return &models.Order{ID: orderID, Status: enums.OrderStatusCancelled}, nil
	}}
	req := authed(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"status":"cancelled","cancellation_reason":"customer asked"}`)), adminID, enums.RoleAdmin)
	req = withParam(req, "orderId", orderID.String())
	resp := httptest.NewRecorder()
	UpdateStatus(svc, testLogger())(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	var data struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(decode(t, resp).Data, &data))
	require.Equal(t, "cancelled", data.Status)
}

func TestUpdateStatusIllegalTransition(t *testing.T) {
	svc := &stubService{updateFn: func(context.Context, internalorders.UpdateStatusInput) (*models.Order, error) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "illegal transition")
	}}
	req := authed(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"status":"delivered"}`)), uuid.New(), enums.RoleAdmin)
	req = withParam(req, "orderId", uuid.NewString())
	resp := httptest.NewRecorder()
	UpdateStatus(svc, testLogger())(resp, req)
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}

func TestConfirmShippingCarrierStepDetails(t *testing.T) {
	svc := &stubService{confirmShippingFn: func(context.Context, internalorders.Actor, uuid.UUID) (*internalorders.HandoffResult, error) {
		return nil, pkgerrors.New(pkgerrors.CodeCarrierRejected, "carrier rejected shipment").
			WithDetails(map[string]any{"step": carrier.OpCreateShipment})
	}}
	req := authed(httptest.NewRequest(http.MethodPost, "/", nil), uuid.New(), enums.RoleAdmin)
	req = withParam(req, "orderId", uuid.NewString())
	resp := httptest.NewRecorder()
	ConfirmShipping(svc, testLogger())(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Equal(t, carrier.OpCreateShipment, decode(t, resp).Error.Details["step"])
}

type stubDocs struct {
	doc *documents.Document
	err error
}

func (s stubDocs) Label(context.Context, uuid.UUID) (*documents.Document, error)   { return s.doc, s.err }
func (s stubDocs) Invoice(context.Context, uuid.UUID) (*documents.Document, error) { return s.doc, s.err }

func TestLabelStreamsPDF(t *testing.T) {
	docs := stubDocs{doc: &documents.Document{Filename: "ORD1-label.pdf", ContentType: documents.ContentTypePDF, Data: []byte("%PDF")}}
	req := withParam(httptest.NewRequest(http.MethodGet, "/", nil), "orderId", uuid.NewString())
	resp := httptest.NewRecorder()
	Label(docs, testLogger())(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, documents.ContentTypePDF, resp.Header().Get("Content-Type"))
	require.Contains(t, resp.Header().Get("Content-Disposition"), "ORD1-label.pdf")
	require.Equal(t, "%PDF", resp.Body.String())
}

func TestInvoiceMissingOrder(t *testing.T) {
	docs := stubDocs{err: pkgerrors.New(pkgerrors.CodeNotFound, "order not found")}
	req := withParam(httptest.NewRequest(http.MethodGet, "/", nil), "orderId", uuid.NewString())
	resp := httptest.NewRecorder()
	Invoice(docs, testLogger())(resp, req)
	require.Equal(t, http.StatusNotFound, resp.Code)
}
