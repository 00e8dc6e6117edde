// Package paymentstest provides a scriptable payments.Provider for tests.
package paymentstest

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/bookloop/orderflow/internal/payments"
	"github.com/bookloop/orderflow/pkg/enums"
)

// Provider records calls and returns whatever the test configured.
type Provider struct {
	mu sync.Mutex

	ProviderName enums.PaymentProvider

	InitResult *payments.InitializeResult
	InitErr    error

	SignatureOK bool
	Event       *payments.PaymentEvent
	ParseErr    error

	RefundResult *payments.RefundOutcome
	RefundErr    error

	InitCalls   []payments.InitializeRequest
	RefundCalls []payments.RefundRequest
}

func New(name enums.PaymentProvider) *Provider {
	return &Provider{ProviderName: name, SignatureOK: true}
}

func (p *Provider) Name() enums.PaymentProvider { return p.ProviderName }

func (p *Provider) InitializePayment(_ context.Context, req payments.InitializeRequest) (*payments.InitializeResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.InitCalls = append(p.InitCalls, req)
	if p.InitErr != nil {
		return nil, p.InitErr
	}
	if p.InitResult != nil {
		return p.InitResult, nil
	}
	return &payments.InitializeResult{
		PaymentURL:        "https://pay.example.test/" + req.Reference,
		ProviderReference: req.Reference,
		RawResponse:       json.RawMessage(`{"fake":true}`),
	}, nil
}

func (p *Provider) VerifyWebhookSignature([]byte, http.Header) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.SignatureOK
}

func (p *Provider) ParseWebhook([]byte) (*payments.PaymentEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ParseErr != nil {
		return nil, p.ParseErr
	}
	if p.Event == nil {
		return nil, payments.ErrIgnoredEvent
	}
	event := *p.Event
	return &event, nil
}

func (p *Provider) Refund(_ context.Context, req payments.RefundRequest) (*payments.RefundOutcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.RefundCalls = append(p.RefundCalls, req)
	if p.RefundErr != nil {
		return nil, p.RefundErr
	}
	if p.RefundResult != nil {
		return p.RefundResult, nil
	}
	return &payments.RefundOutcome{
		Success:          true,
		RefundedAmount:   req.Amount,
		ProviderResponse: json.RawMessage(`{"refunded":true}`),
	}, nil
}

// Refunds returns a copy of the recorded refund calls.
func (p *Provider) Refunds() []payments.RefundRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]payments.RefundRequest(nil), p.RefundCalls...)
}
