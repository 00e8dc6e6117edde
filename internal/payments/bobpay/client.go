// Package bobpay adapts the BobPay hosted-payment API.
package bobpay

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bookloop/orderflow/internal/payments"
	"github.com/bookloop/orderflow/pkg/config"
	"github.com/bookloop/orderflow/pkg/enums"
	pkgerrors "github.com/bookloop/orderflow/pkg/errors"
	"github.com/bookloop/orderflow/pkg/httpjson"
	"github.com/bookloop/orderflow/pkg/money"
)

const (
	intentsPath  = "/payments/intents"
	reversalPath = "/payments/reversal"

	statusPaid      = "paid"
	statusFailed    = "failed"
	statusCancelled = "cancelled"
	statusExpired   = "expired"
)

// signatureFields is the order in which BobPay signs its notify payload.
var signatureFields = []string{
	"id",
	"uuid",
	"short_reference",
	"custom_payment_id",
	"amount",
	"paid_amount",
	"status",
	"payment_method",
	"recipient_account_code",
	"recipient_account_id",
	"item_name",
	"item_description",
	"email",
	"notify_url",
	"success_url",
	"pending_url",
	"cancel_url",
	"is_test",
}

var errMissingCredentials = errors.New("bobpay api token and passphrase are required")

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiToken   string
	passphrase string
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

// WithBaseURL overrides the configured API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

func New(cfg config.BobPayConfig, opts ...Option) (*Client, error) {
	if !cfg.Enabled() {
		return nil, errMissingCredentials
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = httpjson.DefaultTimeout
	}
	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSpace(cfg.BaseURL),
		apiToken:   strings.TrimSpace(cfg.APIToken),
		passphrase: cfg.Passphrase,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.baseURL == "" {
		return nil, errors.New("bobpay base url is required")
	}
	return client, nil
}

func (c *Client) Name() enums.PaymentProvider { return enums.PaymentProviderBobPay }

type intentRequest struct {
	CustomPaymentID string `json:"custom_payment_id"`
	Amount          string `json:"amount"`
	Email           string `json:"email"`
	ItemName        string `json:"item_name"`
	ItemDescription string `json:"item_description,omitempty"`
	SuccessURL      string `json:"success_url"`
	PendingURL      string `json:"pending_url"`
	CancelURL       string `json:"cancel_url"`
	NotifyURL       string `json:"notify_url"`
}

// InitializePayment creates a payment intent and returns its hosted page.
func (c *Client) InitializePayment(ctx context.Context, req payments.InitializeRequest) (*payments.InitializeResult, error) {
	if strings.TrimSpace(req.Reference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}
	if !req.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	body := intentRequest{
		CustomPaymentID: req.Reference,
		Amount:          money.Format(req.Amount),
		Email:           req.BuyerEmail,
		ItemName:        req.ItemName,
		ItemDescription: fmt.Sprintf("Order %s", req.OrderID),
		SuccessURL:      req.SuccessURL,
		PendingURL:      req.PendingURL,
		CancelURL:       req.CancelURL,
		NotifyURL:       req.NotifyURL,
	}

	raw, err := httpjson.Do(ctx, c.httpClient, httpjson.Request{
		Method: http.MethodPost,
		URL:    httpjson.JoinURL(c.baseURL, intentsPath),
		Header: c.authHeader(),
		Body:   body,
	}, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bobpay create payment intent")
	}
	resp, err := decodeFields(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode bobpay payment intent")
	}
	paymentURL := strings.TrimSpace(fieldString(resp["url"]))
	if paymentURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "bobpay returned no payment url")
	}
	return &payments.InitializeResult{
		PaymentURL:            paymentURL,
		ProviderReference:     req.Reference,
		ProviderTransactionID: fieldString(resp["id"]),
		RawResponse:           raw,
	}, nil
}

// VerifyWebhookSignature recomputes the payload signature with the passphrase.
func (c *Client) VerifyWebhookSignature(rawBody []byte, _ http.Header) bool {
	fields, err := decodeFields(rawBody)
	if err != nil {
		return false
	}
	given := strings.ToLower(strings.TrimSpace(fieldString(fields["signature"])))
	if given == "" {
		return false
	}
	expected := Sign(fields, c.passphrase)
	return subtle.ConstantTimeCompare([]byte(given), []byte(expected)) == 1
}

// Sign returns the MD5 hex signature BobPay expects for a notify payload.
// Declared fields absent from the payload are skipped.
func Sign(fields map[string]any, passphrase string) string {
	pairs := make([]string, 0, len(signatureFields)+1)
	for _, name := range signatureFields {
		value, ok := fields[name]
		if !ok {
			continue
		}
		pairs = append(pairs, name+"="+url.QueryEscape(fieldString(value)))
	}
	pairs = append(pairs, "passphrase="+url.QueryEscape(passphrase))
	sum := md5.Sum([]byte(strings.Join(pairs, "&")))
	return hex.EncodeToString(sum[:])
}

// ParseWebhook normalizes a notify payload. Only terminal statuses produce an event.
func (c *Client) ParseWebhook(rawBody []byte) (*payments.PaymentEvent, error) {
	fields, err := decodeFields(rawBody)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed bobpay payload")
	}

	status := strings.ToLower(strings.TrimSpace(fieldString(fields["status"])))
	var kind payments.EventKind
	switch status {
	case statusPaid:
		kind = payments.EventPaymentConfirmed
	case statusFailed, statusCancelled, statusExpired:
		kind = payments.EventPaymentFailed
	default:
		return nil, fmt.Errorf("bobpay status %q: %w", status, payments.ErrIgnoredEvent)
	}

	orderID, err := uuid.Parse(strings.TrimSpace(fieldString(fields["custom_payment_id"])))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "bobpay custom_payment_id is not an order id")
	}
	paymentID := strings.TrimSpace(fieldString(fields["id"]))
	if paymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bobpay payment id missing")
	}

	amountField := fields["paid_amount"]
	if fieldString(amountField) == "" {
		amountField = fields["amount"]
	}
	amount := decimal.Zero
	if rawAmount := fieldString(amountField); rawAmount != "" {
		amount, err = decimal.NewFromString(rawAmount)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "bobpay amount invalid")
		}
	}

	return &payments.PaymentEvent{
		Provider:      enums.PaymentProviderBobPay,
		Kind:          kind,
		OrderID:       orderID,
		Reference:     paymentID,
		TransactionID: paymentID,
		Amount:        money.Round(amount),
		PaymentMethod: fieldString(fields["payment_method"]),
		Status:        status,
		Raw:           json.RawMessage(rawBody),
	}, nil
}

type reversalRequest struct {
	PaymentID string `json:"payment_id"`
}

// Refund reverses the whole charge. BobPay cannot return part of a payment.
func (c *Client) Refund(ctx context.Context, req payments.RefundRequest) (*payments.RefundOutcome, error) {
	ref, ok := req.Ref.(payments.BobPayRef)
	if !ok {
		return nil, fmt.Errorf("bobpay refund with %T: %w", req.Ref, payments.ErrUnknownProvider)
	}
	if strings.TrimSpace(ref.PaymentID) == "" {
		return nil, payments.ErrMissingReference
	}
	if req.IsPartial() {
		return nil, payments.ErrPartialRefundUnsupported
	}

	raw, err := httpjson.Do(ctx, c.httpClient, httpjson.Request{
		Method: http.MethodPost,
		URL:    httpjson.JoinURL(c.baseURL, reversalPath),
		Header: c.authHeader(),
		Body:   reversalRequest{PaymentID: ref.PaymentID},
	}, nil)
	if err != nil {
		return &payments.RefundOutcome{Success: false, ProviderResponse: jsonOrNil(raw)},
			pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bobpay reversal")
	}
	return &payments.RefundOutcome{
		Success:          true,
		RefundedAmount:   money.Round(req.OrderAmount),
		ProviderResponse: jsonOrNil(raw),
	}, nil
}

func (c *Client) authHeader() http.Header {
	return http.Header{"Authorization": {"Bearer " + c.apiToken}}
}

func decodeFields(rawBody []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(rawBody))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, errors.New("empty payload")
	}
	return fields, nil
}

func fieldString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(v)
	}
}

func jsonOrNil(raw []byte) json.RawMessage {
	if len(raw) == 0 || !json.Valid(raw) {
		return nil
	}
	return json.RawMessage(raw)
}
