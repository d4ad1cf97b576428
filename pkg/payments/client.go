package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-fulfillment/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-fulfillment/pkg/errors"
)

const (
	defaultBaseURL           = "https://api.razorpay.com/v1"
	defaultCurrency          = "INR"
	defaultTimeout           = 10 * time.Second
	errorBodyReadLimit int64 = 2048
)

var (
	errKeyIDRequired     = errors.New("payment key id is required")
	errKeySecretRequired = errors.New("payment key secret is required")
)

// Order is the gateway-side order a prepaid checkout pays against.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Client talks to the payment gateway's orders API and verifies its signatures.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	keyID         string
	keySecret     string
	webhookSecret string
	currency      string
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

// WithBaseURL overrides the configured gateway base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = strings.TrimRight(trimmed, "/")
		}
	}
}

// NewClient builds the gateway client from configuration.
func NewClient(cfg config.PaymentConfig, opts ...Option) (*Client, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	if keyID == "" {
		return nil, errKeyIDRequired
	}
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if keySecret == "" {
		return nil, errKeySecretRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	currency := strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	client := &Client{
		httpClient:    &http.Client{Timeout: timeout},
		baseURL:       defaultBaseURL,
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		currency:      currency,
	}
	WithBaseURL(cfg.BaseURL)(client)
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// KeyID is the public key the browser checkout needs.
func (c *Client) KeyID() string {
	if c == nil {
		return ""
	}
	return c.keyID
}

// Currency is the ISO currency every order is created in.
func (c *Client) Currency() string {
	if c == nil {
		return ""
	}
	return c.currency
}

// CreateOrder registers a gateway order for amount (major units) under receipt.
func (c *Client) CreateOrder(ctx context.Context, amount decimal.Decimal, receipt string) (*Order, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment client not configured")
	}
	minor := ToMinorUnits(amount)
	if minor <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}

	payload, err := json.Marshal(map[string]any{
		"amount":          minor,
		"currency":        c.currency,
		"receipt":         receipt,
		"payment_capture": 1,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal gateway order")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build gateway order request")
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentGateway, err, "create gateway order")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return nil, pkgerrors.New(pkgerrors.CodePaymentGateway,
			fmt.Sprintf("gateway order failed with status %d", resp.StatusCode)).
			WithDetails(map[string]any{"status": resp.StatusCode, "body": strings.TrimSpace(string(snippet))})
	}

	var order Order
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentGateway, err, "decode gateway order")
	}
	if order.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodePaymentGateway, "gateway returned no order id")
	}
	return &order, nil
}

// HasPaymentSecret reports whether checkout signatures can be verified.
func (c *Client) HasPaymentSecret() bool {
	return c != nil && c.keySecret != ""
}

// VerifyPaymentSignature checks the checkout callback signature, the hex
// HMAC-SHA256 of "<gatewayOrderID>|<paymentID>" keyed with the API secret.
func (c *Client) VerifyPaymentSignature(gatewayOrderID, paymentID, signature string) bool {
	if c == nil || c.keySecret == "" {
		return false
	}
	return VerifySignature(c.keySecret, gatewayOrderID+"|"+paymentID, signature)
}

// VerifyWebhookSignature checks X-Razorpay-Signature against the raw body.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) bool {
	if c == nil || c.webhookSecret == "" {
		return false
	}
	return VerifySignature(c.webhookSecret, string(body), signature)
}

// Sign returns the lowercase hex HMAC-SHA256 of message.
func Sign(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares signature with Sign(secret, message) in constant time.
func VerifySignature(secret, message, signature string) bool {
	signature = strings.ToLower(strings.TrimSpace(signature))
	if secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(secret, message)), []byte(signature))
}

// ToMinorUnits converts a major-unit amount to paise, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
