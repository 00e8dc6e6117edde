package paymentwebhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bookloop/orderflow/internal/fulfillment"
	"github.com/bookloop/orderflow/internal/idempotency"
	"github.com/bookloop/orderflow/internal/orders"
	"github.com/bookloop/orderflow/internal/payments"
	"github.com/bookloop/orderflow/internal/payments/paymentstest"
	"github.com/bookloop/orderflow/internal/webhooks"
	"github.com/bookloop/orderflow/pkg/enums"
	pkgerrors "github.com/bookloop/orderflow/pkg/errors"
)

type stubEngine struct {
	outcome idempotency.Outcome
	err     error
	events  []*payments.PaymentEvent
	during  func()
}

func (s *stubEngine) HandlePaymentEvent(_ context.Context, event *payments.PaymentEvent) (idempotency.Outcome, error) {
	s.events = append(s.events, event)
	if s.during != nil {
		s.during()
	}
	return s.outcome, s.err
}

type leaseStore struct {
	keys map[string]bool
}

func (l *leaseStore) Get(context.Context, string) (string, error) { return "", nil }

func (l *leaseStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if l.keys[key] {
		return false, nil
	}
	l.keys[key] = true
	return true, nil
}

func (l *leaseStore) IdempotencyKey(scope, id string) string { return scope + ":" + id }

func (l *leaseStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(l.keys, key)
	}
	return nil
}

func newService(t *testing.T, engine Engine, providers ...payments.Provider) *Service {
	t.Helper()
	registry, err := payments.NewRegistry(providers...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	svc, err := NewService(ServiceParams{Providers: registry, Engine: engine})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func confirmedEvent() *payments.PaymentEvent {
	return &payments.PaymentEvent{
		Provider:  enums.PaymentProviderPaystack,
		Kind:      payments.EventPaymentConfirmed,
		OrderID:   uuid.New(),
		Reference: "ps_ref_1",
		Amount:    decimal.RequireFromString("250.00"),
	}
}

func TestHandleAppliesVerifiedEvent(t *testing.T) {
	provider := paymentstest.New(enums.PaymentProviderPaystack)
	provider.Event = confirmedEvent()
	engine := &stubEngine{outcome: idempotency.OutcomeApplied}
	svc := newService(t, engine, provider)

	outcome, err := svc.Handle(context.Background(), "paystack", []byte(`{}`), http.Header{})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if outcome != OutcomeApplied {
		t.Fatalf("expected applied, got %s", outcome)
	}
	if len(engine.events) != 1 || engine.events[0].Reference != "ps_ref_1" {
		t.Fatalf("expected event forwarded to engine, got %+v", engine.events)
	}
}

func TestHandleRejectsBadSignatureBeforeParsing(t *testing.T) {
	provider := paymentstest.New(enums.PaymentProviderBobPay)
	provider.SignatureOK = false
	provider.Event = confirmedEvent()
	engine := &stubEngine{}
	svc := newService(t, engine, provider)

	outcome, err := svc.Handle(context.Background(), "bobpay", []byte(`{}`), http.Header{})
	if !pkgerrors.IsCode(err, pkgerrors.CodeSignature) {
		t.Fatalf("expected signature error, got %v", err)
	}
	if outcome != OutcomeRejected {
		t.Fatalf("expected rejected, got %s", outcome)
	}
	if len(engine.events) != 0 {
		t.Fatalf("engine must not see unverified events")
	}
}

func TestHandleUnknownProvider(t *testing.T) {
	svc := newService(t, &stubEngine{}, paymentstest.New(enums.PaymentProviderBobPay))
	_, err := svc.Handle(context.Background(), "stripe", []byte(`{}`), http.Header{})
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestHandleMalformedPayload(t *testing.T) {
	provider := paymentstest.New(enums.PaymentProviderPaystack)
	provider.ParseErr = errors.New("unexpected end of JSON input")
	svc := newService(t, &stubEngine{}, provider)

	_, err := svc.Handle(context.Background(), "paystack", []byte(`{`), http.Header{})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestHandleIgnoredEventIsAcknowledged(t *testing.T) {
	provider := paymentstest.New(enums.PaymentProviderPaystack)
	engine := &stubEngine{}
	svc := newService(t, engine, provider)

	outcome, err := svc.Handle(context.Background(), "paystack", []byte(`{"event":"transfer.success"}`), http.Header{})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if outcome != OutcomeIgnored || len(engine.events) != 0 {
		t.Fatalf("expected ignored without engine call, got %s", outcome)
	}
}

func TestHandleDuplicateIsAcknowledged(t *testing.T) {
	provider := paymentstest.New(enums.PaymentProviderPaystack)
	provider.Event = confirmedEvent()
	svc := newService(t, &stubEngine{outcome: idempotency.OutcomeDuplicate}, provider)

	outcome, err := svc.Handle(context.Background(), "paystack", []byte(`{}`), http.Header{})
	if err != nil || outcome != OutcomeDuplicate {
		t.Fatalf("expected duplicate ack, got %s %v", outcome, err)
	}
}

func TestHandleAnomaliesAreAcknowledged(t *testing.T) {
	cases := map[string]error{
		"illegal":  fmt.Errorf("%w: cancelled -> paid", orders.ErrIllegalTransition),
		"missing":  orders.ErrNotFound,
		"mismatch": fmt.Errorf("%w: got 10.00", fulfillment.ErrAmountMismatch),
	}
	for name, engineErr := range cases {
		t.Run(name, func(t *testing.T) {
			provider := paymentstest.New(enums.PaymentProviderPaystack)
			provider.Event = confirmedEvent()
			svc := newService(t, &stubEngine{err: engineErr}, provider)

			outcome, err := svc.Handle(context.Background(), "paystack", []byte(`{}`), http.Header{})
			if err != nil {
				t.Fatalf("expected ack, got %v", err)
			}
			if outcome != OutcomeAnomaly {
				t.Fatalf("expected anomaly, got %s", outcome)
			}
		})
	}
}

func TestHandleEngineFailureAsksForRetry(t *testing.T) {
	provider := paymentstest.New(enums.PaymentProviderPaystack)
	provider.Event = confirmedEvent()
	svc := newService(t, &stubEngine{err: errors.New("database is locked")}, provider)

	outcome, err := svc.Handle(context.Background(), "paystack", []byte(`{}`), http.Header{})
	if !pkgerrors.IsCode(err, pkgerrors.CodeInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
	if outcome != OutcomeFailed {
		t.Fatalf("expected failed, got %s", outcome)
	}
}

func TestHandleConcurrentDeliveryConflicts(t *testing.T) {
	provider := paymentstest.New(enums.PaymentProviderPaystack)
	provider.Event = confirmedEvent()
	store := &leaseStore{keys: map[string]bool{}}
	guard, err := webhooks.NewInflightGuard(store, time.Minute, "payments")
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	registry, _ := payments.NewRegistry(provider)
	engine := &stubEngine{outcome: idempotency.OutcomeApplied}
	svc, err := NewService(ServiceParams{Providers: registry, Engine: engine, Inflight: guard})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	var nestedErr error
	engine.during = func() {
		engine.during = nil
		_, nestedErr = svc.Handle(context.Background(), "paystack", []byte(`{}`), http.Header{})
	}
	if _, err := svc.Handle(context.Background(), "paystack", []byte(`{}`), http.Header{}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !pkgerrors.IsCode(nestedErr, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict for concurrent delivery, got %v", nestedErr)
	}
	if len(store.keys) != 0 {
		t.Fatalf("expected lease released, got %v", store.keys)
	}
}
