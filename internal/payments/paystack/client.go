// Package paystack adapts the Paystack transactions and refunds API.
package paystack

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/bookloop/orderflow/internal/payments"
	"github.com/bookloop/orderflow/pkg/config"
	"github.com/bookloop/orderflow/pkg/enums"
	pkgerrors "github.com/bookloop/orderflow/pkg/errors"
	"github.com/bookloop/orderflow/pkg/httpjson"
	"github.com/bookloop/orderflow/pkg/money"
)

const (
	initializePath = "/transaction/initialize"
	refundPath     = "/refund"

	// SignatureHeader carries the hex HMAC-SHA512 of the raw body.
	SignatureHeader = "x-paystack-signature"

	eventChargeSuccess = "charge.success"
	eventChargeFailed  = "charge.failed"
)

var errMissingSecret = errors.New("paystack secret key is required")

type Client struct {
	httpClient *http.Client
	baseURL    string
	secretKey  string
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

func New(cfg config.PaystackConfig, opts ...Option) (*Client, error) {
	if !cfg.Enabled() {
		return nil, errMissingSecret
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = httpjson.DefaultTimeout
	}
	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSpace(cfg.BaseURL),
		secretKey:  strings.TrimSpace(cfg.SecretKey),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.baseURL == "" {
		return nil, errors.New("paystack base url is required")
	}
	return client, nil
}

func (c *Client) Name() enums.PaymentProvider { return enums.PaymentProviderPaystack }

type envelope[T any] struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type initializeRequest struct {
	Email       string             `json:"email"`
	Amount      int64              `json:"amount"`
	Reference   string             `json:"reference"`
	CallbackURL string             `json:"callback_url"`
	Metadata    initializeMetadata `json:"metadata"`
}

type initializeMetadata struct {
	OrderID      string `json:"order_id"`
	CancelAction string `json:"cancel_action,omitempty"`
	PendingURL   string `json:"pending_url,omitempty"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// InitializePayment opens a transaction and returns the Paystack checkout page.
// Amounts travel in minor units.
func (c *Client) InitializePayment(ctx context.Context, req payments.InitializeRequest) (*payments.InitializeResult, error) {
	if strings.TrimSpace(req.Reference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}
	if strings.TrimSpace(req.BuyerEmail) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer email is required")
	}
	if !req.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	body := initializeRequest{
		Email:       req.BuyerEmail,
		Amount:      money.ToMinor(req.Amount),
		Reference:   req.Reference,
		CallbackURL: req.SuccessURL,
		Metadata: initializeMetadata{
			OrderID:      req.OrderID.String(),
			CancelAction: req.CancelURL,
			PendingURL:   req.PendingURL,
		},
	}

	var resp envelope[initializeData]
	raw, err := httpjson.Do(ctx, c.httpClient, httpjson.Request{
		Method: http.MethodPost,
		URL:    httpjson.JoinURL(c.baseURL, initializePath),
		Header: c.authHeader(),
		Body:   body,
	}, &resp)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "paystack initialize transaction")
	}
	if !resp.Status || strings.TrimSpace(resp.Data.AuthorizationURL) == "" {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("paystack: %s", resp.Message), "paystack initialize rejected")
	}
	reference := resp.Data.Reference
	if reference == "" {
		reference = req.Reference
	}
	return &payments.InitializeResult{
		PaymentURL:        resp.Data.AuthorizationURL,
		ProviderReference: reference,
		RawResponse:       raw,
	}, nil
}

// VerifyWebhookSignature checks x-paystack-signature against the raw body.
func (c *Client) VerifyWebhookSignature(rawBody []byte, headers http.Header) bool {
	given := strings.ToLower(strings.TrimSpace(headers.Get(SignatureHeader)))
	if given == "" {
		return false
	}
	return hmac.Equal([]byte(given), []byte(Sign(rawBody, c.secretKey)))
}

// Sign returns the hex HMAC-SHA512 of body keyed by secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

type webhookPayload struct {
	Event string      `json:"event"`
	Data  webhookData `json:"data"`
}

type webhookData struct {
	ID        json.Number     `json:"id"`
	Reference string          `json:"reference"`
	Amount    int64           `json:"amount"`
	Status    string          `json:"status"`
	Channel   string          `json:"channel"`
	Metadata  json.RawMessage `json:"metadata"`
}

// ParseWebhook normalizes charge.success and charge.failed. Other events are ignored.
func (c *Client) ParseWebhook(rawBody []byte) (*payments.PaymentEvent, error) {
	var payload webhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed paystack payload")
	}

	var kind payments.EventKind
	switch payload.Event {
	case eventChargeSuccess:
		kind = payments.EventPaymentConfirmed
	case eventChargeFailed:
		kind = payments.EventPaymentFailed
	default:
		return nil, fmt.Errorf("paystack event %q: %w", payload.Event, payments.ErrIgnoredEvent)
	}

	reference := strings.TrimSpace(payload.Data.Reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "paystack reference missing")
	}
	orderID, err := orderIDFrom(payload.Data.Metadata, reference)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "paystack order id missing")
	}

	return &payments.PaymentEvent{
		Provider:      enums.PaymentProviderPaystack,
		Kind:          kind,
		OrderID:       orderID,
		Reference:     reference,
		TransactionID: payload.Data.ID.String(),
		Amount:        money.FromMinor(payload.Data.Amount),
		PaymentMethod: payload.Data.Channel,
		Status:        payload.Data.Status,
		Raw:           json.RawMessage(rawBody),
	}, nil
}

// orderIDFrom reads metadata.order_id. Paystack sends metadata as either an
// object or a string, so the reference is the fallback.
func orderIDFrom(metadata json.RawMessage, reference string) (uuid.UUID, error) {
	var meta struct {
		OrderID string `json:"order_id"`
	}
	if len(metadata) > 0 && json.Unmarshal(metadata, &meta) == nil && meta.OrderID != "" {
		return uuid.Parse(strings.TrimSpace(meta.OrderID))
	}
	return uuid.Parse(reference)
}

type refundRequest struct {
	Transaction  string `json:"transaction"`
	Amount       int64  `json:"amount"`
	CustomerNote string `json:"customer_note,omitempty"`
	MerchantNote string `json:"merchant_note,omitempty"`
}

// Refund returns Amount of the charge identified by the transaction reference.
func (c *Client) Refund(ctx context.Context, req payments.RefundRequest) (*payments.RefundOutcome, error) {
	ref, ok := req.Ref.(payments.PaystackRef)
	if !ok {
		return nil, fmt.Errorf("paystack refund with %T: %w", req.Ref, payments.ErrUnknownProvider)
	}
	if strings.TrimSpace(ref.Reference) == "" {
		return nil, payments.ErrMissingReference
	}
	if !req.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}

	var resp envelope[json.RawMessage]
	raw, err := httpjson.Do(ctx, c.httpClient, httpjson.Request{
		Method: http.MethodPost,
		URL:    httpjson.JoinURL(c.baseURL, refundPath),
		Header: c.authHeader(),
		Body: refundRequest{
			Transaction:  ref.Reference,
			Amount:       money.ToMinor(req.Amount),
			MerchantNote: req.Reason,
		},
	}, &resp)
	providerResponse := json.RawMessage(nil)
	if len(raw) > 0 && json.Valid(raw) {
		providerResponse = json.RawMessage(raw)
	}
	if err != nil {
		return &payments.RefundOutcome{ProviderResponse: providerResponse},
			pkgerrors.Wrap(pkgerrors.CodeDependency, err, "paystack refund")
	}
	if !resp.Status {
		return &payments.RefundOutcome{ProviderResponse: providerResponse},
			pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("paystack: %s", resp.Message), "paystack refund rejected")
	}
	return &payments.RefundOutcome{
		Success:          true,
		RefundedAmount:   money.Round(req.Amount),
		ProviderResponse: providerResponse,
	}, nil
}

func (c *Client) authHeader() http.Header {
	return http.Header{"Authorization": {"Bearer " + c.secretKey}}
}
