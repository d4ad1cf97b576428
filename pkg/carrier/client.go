package carrier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/storefront-fulfillment/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	defaultBaseURL          = "https://track.delhivery.com"
	defaultTimeout          = 15 * time.Second
	defaultCountry          = "India"
	errorBodyReadLimit int64 = 2048
	responseReadLimit  int64 = 16 << 20
)

// Operation names double as the hand-off step reported in error details.
const (
	OpFetchWaybill          = "fetch_waybill"
	OpCreateShipment        = "create_shipment"
	OpCreateReverseShipment = "create_reverse_shipment"
	OpSchedulePickup        = "schedule_pickup"
	OpTrack                 = "track"
	OpLabel                 = "label"
	OpCancelShipment        = "cancel_shipment"
	OpServiceability        = "serviceability"
)

const (
	outcomeOK          = "ok"
	outcomeRejected    = "rejected"
	outcomeUnavailable = "unavailable"
)

var (
	errAPIKeyRequired         = errors.New("carrier api key is required")
	errPickupLocationRequired = errors.New("carrier pickup location is required")
)

// Observer receives one callback per carrier API call.
type Observer interface {
	ObserveCarrierCall(operation, outcome string, duration time.Duration)
}

// Config carries the account-level settings for the courier API.
type Config struct {
	APIKey         string
	ClientName     string
	PickupLocation string
	Country        string
	SKUPrefix      string
}

// Client is a typed wrapper over the courier's CMU, tracking, label, pickup
// and pincode APIs.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cfg        Config
	observer   Observer
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the courier base URL, e.g. the staging host.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = strings.TrimRight(trimmed, "/")
		}
	}
}

// WithObserver attaches a call observer such as the prometheus recorder.
func WithObserver(observer Observer) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// NewClient builds a courier client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, errAPIKeyRequired
	}
	if strings.TrimSpace(cfg.PickupLocation) == "" {
		return nil, errPickupLocationRequired
	}
	if strings.TrimSpace(cfg.Country) == "" {
		cfg.Country = defaultCountry
	}

	client := &Client{
		cfg:        cfg,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// FetchWaybill reserves one waybill number.
func (c *Client) FetchWaybill(ctx context.Context) (string, error) {
	query := url.Values{}
	query.Set("count", "1")
	body, _, err := c.do(ctx, OpFetchWaybill, http.MethodGet, "waybill/api/fetch/json/", query, nil, "")
	if err != nil {
		return "", err
	}
	waybill := parseWaybill(body)
	if waybill == "" {
		return "", rejected(OpFetchWaybill, http.StatusOK, "carrier returned no waybill", "rejected")
	}
	return waybill, nil
}

// CreateShipment manifests a forward shipment from the warehouse to the customer.
func (c *Client) CreateShipment(ctx context.Context, shipment Shipment) (*ShipmentResult, error) {
	if shipment.PaymentMode != PaymentModeCOD && shipment.PaymentMode != PaymentModePrepaid {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment mode must be COD or Prepaid").
			WithDetails(map[string]any{"step": OpCreateShipment})
	}
	return c.manifest(ctx, OpCreateShipment, shipment)
}

// CreateReverseShipment manifests a pickup from the customer back to ReturnTo.
func (c *Client) CreateReverseShipment(ctx context.Context, shipment Shipment) (*ShipmentResult, error) {
	if shipment.ReturnTo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reverse shipment requires a return destination").
			WithDetails(map[string]any{"step": OpCreateReverseShipment})
	}
	shipment.PaymentMode = PaymentModePickup
	shipment.CODAmount = decimal.Zero
	return c.manifest(ctx, OpCreateReverseShipment, shipment)
}

func (c *Client) manifest(ctx context.Context, op string, shipment Shipment) (*ShipmentResult, error) {
	if missing := missingPartyFields(shipment.Consignee); len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipment address incomplete").
			WithDetails(map[string]any{"step": op, "missing_fields": missing})
	}

	data, err := json.Marshal(map[string]any{
		"pickup_location": map[string]string{"name": c.cfg.PickupLocation},
		"shipments":       []map[string]any{c.shipmentPayload(shipment)},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal shipment")
	}
	form := url.Values{}
	form.Set("format", "json")
	form.Set("data", string(data))

	body, _, err := c.do(ctx, op, http.MethodPost, "api/cmu/create.json", nil,
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return nil, err
	}

	var resp struct {
		Success   bool   `json:"success"`
		Rmk       string `json:"rmk"`
		UploadWBN string `json:"upload_wbn"`
		Packages  []struct {
			Waybill string          `json:"waybill"`
			Status  string          `json:"status"`
			Remarks json.RawMessage `json:"remarks"`
		} `json:"packages"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, rejected(op, http.StatusOK, "unreadable manifest response", "rejected")
	}

	result := &ShipmentResult{UploadWBN: resp.UploadWBN}
	if len(resp.Packages) > 0 {
		pkg := resp.Packages[0]
		result.Waybill = pkg.Waybill
		result.Status = pkg.Status
		result.Remarks = parseRemarks(pkg.Remarks)
	}
	if !resp.Success || strings.EqualFold(result.Status, "fail") {
		detail := strings.TrimSpace(strings.Join(append([]string{resp.Rmk}, result.Remarks...), "; "))
		detail = strings.Trim(detail, "; ")
		if detail == "" {
			detail = "shipment not accepted"
		}
		return nil, rejected(op, http.StatusOK, detail, "rejected")
	}
	if result.Waybill == "" {
		result.Waybill = shipment.Waybill
	}
	return result, nil
}

func (c *Client) shipmentPayload(s Shipment) map[string]any {
	country := s.Consignee.Country
	if strings.TrimSpace(country) == "" {
		country = c.cfg.Country
	}
	weightKG := s.WeightKG
	if weightKG <= 0 {
		weightKG = 0.5
	}
	orderDate := s.OrderDate
	if orderDate.IsZero() {
		orderDate = time.Now().UTC()
	}

	payload := map[string]any{
		"name":            s.Consignee.Name,
		"add":             s.Consignee.Street,
		"pin":             s.Consignee.Pincode,
		"city":            s.Consignee.City,
		"state":           s.Consignee.State,
		"country":         country,
		"phone":           s.Consignee.Phone,
		"order":           s.OrderNumber,
		"payment_mode":    s.PaymentMode,
		"products_desc":   truncateRunes(s.ProductsDesc, 150),
		"cod_amount":      s.CODAmount.StringFixed(2),
		"total_amount":    s.TotalAmount.StringFixed(2),
		"order_date":      orderDate.Format(time.RFC3339),
		"seller_name":     c.cfg.ClientName,
		"quantity":        s.Quantity,
		"waybill":         s.Waybill,
		"shipment_width":  dimensionOrDefault(s.WidthCM),
		"shipment_height": dimensionOrDefault(s.HeightCM),
		"shipment_length": dimensionOrDefault(s.DepthCM),
		"weight":          int(weightKG*1000 + 0.5),
	}
	if s.ReturnTo != nil {
		payload["return_name"] = s.ReturnTo.Name
		payload["return_add"] = s.ReturnTo.Street
		payload["return_city"] = s.ReturnTo.City
		payload["return_state"] = s.ReturnTo.State
		payload["return_pin"] = s.ReturnTo.Pincode
		payload["return_phone"] = s.ReturnTo.Phone
		payload["return_country"] = country
	}
	if len(s.Products) > 0 {
		products := make([]map[string]any, 0, len(s.Products))
		for _, p := range s.Products {
			products = append(products, map[string]any{
				"name":         p.Name,
				"sku":          p.SKU,
				"units":        p.Units,
				"price":        p.Price.StringFixed(2),
				"gross_amount": p.Price.Mul(decimalFromInt(p.Units)).StringFixed(2),
			})
		}
		payload["products"] = products
	}
	return payload
}

// SchedulePickup asks the courier to collect packages from the warehouse.
func (c *Client) SchedulePickup(ctx context.Context, req PickupRequest) (*PickupResult, error) {
	location := strings.TrimSpace(req.Location)
	if location == "" {
		location = c.cfg.PickupLocation
	}
	count := req.ExpectedPackageCount
	if count <= 0 {
		count = 1
	}
	payload, err := json.Marshal(map[string]any{
		"pickup_time":            req.Time,
		"pickup_date":            req.Date.Format("2006-01-02"),
		"pickup_location":        location,
		"expected_package_count": count,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal pickup request")
	}

	body, _, err := c.do(ctx, OpSchedulePickup, http.MethodPost, "fm/request/new/", nil, bytes.NewReader(payload), "application/json")
	if err != nil {
		return nil, err
	}

	var resp map[string]any
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, rejected(OpSchedulePickup, http.StatusOK, "unreadable pickup response", "rejected")
	}
	if msg := stringValue(resp["error"]); msg != "" && msg != "false" {
		return nil, rejected(OpSchedulePickup, http.StatusOK, msg, "rejected")
	}
	result := &PickupResult{
		PickupID:   stringValue(resp["pickup_id"]),
		PickupDate: stringValue(resp["pickup_date"]),
	}
	if result.PickupID == "" {
		return nil, rejected(OpSchedulePickup, http.StatusOK, "carrier returned no pickup id", "rejected")
	}
	return result, nil
}

// Track returns the shipment's current status and scan history.
func (c *Client) Track(ctx context.Context, waybill string) (*TrackingInfo, error) {
	waybill = strings.TrimSpace(waybill)
	if waybill == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "waybill is required")
	}
	query := url.Values{}
	query.Set("waybill", waybill)
	query.Set("verbose", "0")
	body, _, err := c.do(ctx, OpTrack, http.MethodGet, "api/v1/packages/json/", query, nil, "")
	if err != nil {
		return nil, err
	}
	return parseTracking(waybill, body)
}

// LabelPDF downloads the packing slip for a waybill.
func (c *Client) LabelPDF(ctx context.Context, waybill string) ([]byte, error) {
	waybill = strings.TrimSpace(waybill)
	if waybill == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "waybill is required")
	}
	query := url.Values{}
	query.Set("wbns", waybill)
	query.Set("pdf", "true")
	body, header, err := c.do(ctx, OpLabel, http.MethodGet, "api/p-packing-slip", query, nil, "")
	if err != nil {
		return nil, err
	}
	if bytes.HasPrefix(body, []byte("%PDF")) {
		return body, nil
	}

	// Newer accounts answer with a JSON pointer to the rendered PDF.
	if strings.Contains(header.Get("Content-Type"), "json") || json.Valid(body) {
		var resp struct {
			Packages []struct {
				PDFDownloadLink string `json:"pdf_download_link"`
			} `json:"packages"`
		}
		if err := json.Unmarshal(body, &resp); err == nil && len(resp.Packages) > 0 && resp.Packages[0].PDFDownloadLink != "" {
			return c.download(ctx, resp.Packages[0].PDFDownloadLink)
		}
	}
	return nil, rejected(OpLabel, http.StatusOK, "label not available for waybill", "rejected")
}

func (c *Client) download(ctx context.Context, link string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build label download request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, unavailable(OpLabel, err, "download label")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(OpLabel, resp)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, responseReadLimit))
	if err != nil {
		return nil, unavailable(OpLabel, err, "read label")
	}
	return data, nil
}

// CancelShipment cancels a manifested shipment that has not been picked up.
func (c *Client) CancelShipment(ctx context.Context, waybill string) error {
	waybill = strings.TrimSpace(waybill)
	if waybill == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "waybill is required")
	}
	payload, err := json.Marshal(map[string]string{"waybill": waybill, "cancellation": "true"})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal cancellation")
	}
	body, _, err := c.do(ctx, OpCancelShipment, http.MethodPost, "api/p/edit", nil, bytes.NewReader(payload), "application/json")
	if err != nil {
		return err
	}
	var resp struct {
		Status json.RawMessage `json:"status"`
		Remark string          `json:"remark"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return rejected(OpCancelShipment, http.StatusOK, "unreadable cancellation response", "rejected")
	}
	status := strings.Trim(strings.ToLower(string(resp.Status)), `"`)
	if status == "true" || status == "success" {
		return nil
	}
	detail := firstNonEmpty(resp.Error, resp.Remark, "cancellation not accepted")
	return rejected(OpCancelShipment, http.StatusOK, detail, "rejected")
}

// Serviceability checks courier coverage for a pincode.
func (c *Client) Serviceability(ctx context.Context, pincode string) (*Serviceability, error) {
	pincode = strings.TrimSpace(pincode)
	if !isPincode(pincode) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pincode must be 6 digits")
	}
	query := url.Values{}
	query.Set("filter_codes", pincode)
	body, _, err := c.do(ctx, OpServiceability, http.MethodGet, "c/api/pin-codes/json/", query, nil, "")
	if err != nil {
		return nil, err
	}

	var resp struct {
		DeliveryCodes []struct {
			PostalCode struct {
				Pin       json.Number `json:"pin"`
				PrePaid   string      `json:"pre_paid"`
				COD       string      `json:"cod"`
				Pickup    string      `json:"pickup"`
				District  string      `json:"district"`
				StateCode string      `json:"state_code"`
			} `json:"postal_code"`
		} `json:"delivery_codes"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, rejected(OpServiceability, http.StatusOK, "unreadable serviceability response", "rejected")
	}
	out := &Serviceability{Pincode: pincode}
	if len(resp.DeliveryCodes) == 0 {
		return out, nil
	}
	pc := resp.DeliveryCodes[0].PostalCode
	out.Prepaid = strings.EqualFold(pc.PrePaid, "Y")
	out.COD = strings.EqualFold(pc.COD, "Y")
	out.Pickup = strings.EqualFold(pc.Pickup, "Y")
	out.Serviceable = out.Prepaid || out.COD
	out.District = pc.District
	out.StateCode = pc.StateCode
	return out, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body io.Reader, contentType string) ([]byte, http.Header, error) {
	if c == nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeDependency, "carrier client not configured")
	}
	if method == http.MethodGet {
		if query == nil {
			query = url.Values{}
		}
		query.Set("token", c.cfg.APIKey)
	}
	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build carrier request")
	}
	req.Header.Set("Authorization", "Token "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(op, outcomeUnavailable, started)
		return nil, nil, unavailable(op, err, op+" request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		classified := classifyStatus(op, resp)
		if pkgerrors.IsCode(classified, pkgerrors.CodeCarrierUnavailable) {
			c.observe(op, outcomeUnavailable, started)
		} else {
			c.observe(op, outcomeRejected, started)
		}
		return nil, nil, classified
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, responseReadLimit))
	if err != nil {
		c.observe(op, outcomeUnavailable, started)
		return nil, nil, unavailable(op, err, "read "+op+" response")
	}
	c.observe(op, outcomeOK, started)
	return data, resp.Header, nil
}

func (c *Client) observe(op, outcome string, started time.Time) {
	if c.observer != nil {
		c.observer.ObserveCarrierCall(op, outcome, time.Since(started))
	}
}
