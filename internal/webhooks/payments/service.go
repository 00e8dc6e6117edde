// Package paymentwebhook verifies, normalizes and applies payment processor webhooks.
package paymentwebhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bookloop/orderflow/internal/fulfillment"
	"github.com/bookloop/orderflow/internal/idempotency"
	"github.com/bookloop/orderflow/internal/orders"
	"github.com/bookloop/orderflow/internal/payments"
	"github.com/bookloop/orderflow/internal/webhooks"
	"github.com/bookloop/orderflow/pkg/enums"
	pkgerrors "github.com/bookloop/orderflow/pkg/errors"
	"github.com/bookloop/orderflow/pkg/logger"
	"github.com/bookloop/orderflow/pkg/metrics"
)

// Outcome is what a webhook delivery amounted to.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeAnomaly   Outcome = "anomaly"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
)

// Engine applies a normalized payment outcome.
type Engine interface {
	HandlePaymentEvent(ctx context.Context, event *payments.PaymentEvent) (idempotency.Outcome, error)
}

type ServiceParams struct {
	Providers *payments.Registry
	Engine    Engine
	// Inflight is optional.
	Inflight *webhooks.InflightGuard
	Metrics  *metrics.FlowMetrics
	Logger   *logger.Logger
}

type Service struct {
	providers *payments.Registry
	engine    Engine
	inflight  *webhooks.InflightGuard
	metrics   *metrics.FlowMetrics
	logg      *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Providers == nil {
		return nil, errors.New("payment providers required")
	}
	if params.Engine == nil {
		return nil, errors.New("fulfillment engine required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		providers: params.Providers,
		engine:    params.Engine,
		inflight:  params.Inflight,
		metrics:   params.Metrics,
		logg:      logg,
	}, nil
}

// Handle processes one raw webhook delivery for provider. A nil error means
// the delivery must be acknowledged with 200, whatever the outcome.
func (s *Service) Handle(ctx context.Context, provider string, body []byte, headers http.Header) (Outcome, error) {
	name := enums.PaymentProvider(provider)
	ctx = s.logg.WithProvider(ctx, provider)

	adapter, err := s.providers.Get(name)
	if err != nil {
		return s.record(provider, OutcomeRejected), pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "unknown payment provider")
	}
	if !adapter.VerifyWebhookSignature(body, headers) {
		s.logg.Warn(ctx, "payment webhook signature rejected")
		return s.record(provider, OutcomeRejected), pkgerrors.Wrap(pkgerrors.CodeSignature, payments.ErrInvalidSignature, "invalid webhook signature")
	}

	event, err := adapter.ParseWebhook(body)
	if errors.Is(err, payments.ErrIgnoredEvent) {
		s.logg.Info(ctx, "payment webhook ignored")
		return s.record(provider, OutcomeIgnored), nil
	}
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "payment webhook payload rejected")
		return s.record(provider, OutcomeRejected), pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload")
	}
	ctx = s.logg.WithOrderID(ctx, event.OrderID.String())

	leaseKey := fmt.Sprintf("%s:%s:%s", provider, event.OrderID, event.Kind)
	acquired, err := s.inflight.Acquire(ctx, leaseKey)
	if err != nil {
		s.logg.Error(ctx, "inflight guard unavailable", err)
		return s.record(provider, OutcomeFailed), pkgerrors.Wrap(pkgerrors.CodeDependency, err, "webhook guard unavailable")
	}
	if !acquired {
		return s.record(provider, OutcomeDuplicate), pkgerrors.New(pkgerrors.CodeConflict, "event is already being processed")
	}
	defer func() {
		if err := s.inflight.Release(context.WithoutCancel(ctx), leaseKey); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "release inflight key failed")
		}
	}()

	outcome, err := s.engine.HandlePaymentEvent(ctx, event)
	switch {
	case err == nil && outcome == idempotency.OutcomeDuplicate:
		s.logg.Info(ctx, "payment webhook already processed")
		return s.record(provider, OutcomeDuplicate), nil
	case err == nil:
		return s.record(provider, OutcomeApplied), nil
	case isAnomaly(err):
		s.logg.Anomaly(ctx, "payment webhook acknowledged without effect", err)
		s.metrics.Anomaly(anomalyKind(err))
		return s.record(provider, OutcomeAnomaly), nil
	}
	s.logg.Error(ctx, "payment webhook processing failed", err)
	return s.record(provider, OutcomeFailed), pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to process webhook")
}

func (s *Service) record(provider string, outcome Outcome) Outcome {
	s.metrics.Webhook(provider, string(outcome))
	return outcome
}

func isAnomaly(err error) bool {
	return errors.Is(err, orders.ErrIllegalTransition) ||
		errors.Is(err, orders.ErrNotFound) ||
		errors.Is(err, fulfillment.ErrAmountMismatch)
}

func anomalyKind(err error) string {
	switch {
	case errors.Is(err, orders.ErrIllegalTransition):
		return "illegal_transition"
	case errors.Is(err, orders.ErrNotFound):
		return "unknown_order"
	default:
		return "amount_mismatch"
	}
}
