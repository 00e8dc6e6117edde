// Package payments defines the contract every payment processor adapter
// satisfies and the helpers that decide which processor owns an order.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bookloop/orderflow/pkg/enums"
)

var (
	// ErrUnknownProvider means no refund path can be derived for an order.
	ErrUnknownProvider = errors.New("cannot determine refund path")
	// ErrPartialRefundUnsupported is returned by processors that only reverse in full.
	ErrPartialRefundUnsupported = errors.New("partial refunds are not supported by this provider")
	// ErrInvalidSignature marks a webhook whose signature did not verify.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrIgnoredEvent marks a well-formed webhook that carries no payment outcome.
	ErrIgnoredEvent = errors.New("webhook event ignored")
	// ErrMissingReference means the order has no processor reference to refund against.
	ErrMissingReference = errors.New("payment reference is required for refund")
)

// Provider is implemented by every payment processor adapter.
type Provider interface {
	Name() enums.PaymentProvider
	InitializePayment(ctx context.Context, req InitializeRequest) (*InitializeResult, error)
	VerifyWebhookSignature(rawBody []byte, headers http.Header) bool
	ParseWebhook(rawBody []byte) (*PaymentEvent, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundOutcome, error)
}

// InitializeRequest carries what a hosted payment page needs.
type InitializeRequest struct {
	OrderID    uuid.UUID
	Reference  string
	Amount     decimal.Decimal
	BuyerEmail string
	ItemName   string
	SuccessURL string
	PendingURL string
	CancelURL  string
	NotifyURL  string
}

type InitializeResult struct {
	PaymentURL            string
	ProviderReference     string
	ProviderTransactionID string
	RawResponse           json.RawMessage
}

// EventKind is the normalized outcome a payment webhook reports.
type EventKind string

const (
	EventPaymentConfirmed EventKind = "payment_confirmed"
	EventPaymentFailed    EventKind = "payment_failed"
)

// PaymentEvent is a verified, normalized payment webhook.
//
// Reference is the handle later refunds use: the BobPay payment id or the
// Paystack transaction reference.
type PaymentEvent struct {
	Provider      enums.PaymentProvider
	Kind          EventKind
	OrderID       uuid.UUID
	Reference     string
	TransactionID string
	Amount        decimal.Decimal
	PaymentMethod string
	Status        string
	Raw           json.RawMessage
}

// RefundRequest asks a processor to return Amount of an OrderAmount charge.
type RefundRequest struct {
	OrderID     uuid.UUID
	Ref         ProviderRef
	Amount      decimal.Decimal
	OrderAmount decimal.Decimal
	Reason      string
}

// IsPartial reports whether less than the full charge is being returned.
func (r RefundRequest) IsPartial() bool {
	return r.Amount.LessThan(r.OrderAmount)
}

type RefundOutcome struct {
	Success          bool
	RefundedAmount   decimal.Decimal
	ProviderResponse json.RawMessage
}
