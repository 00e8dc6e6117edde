// Package courierwebhook applies courier tracking webhooks to orders.
package courierwebhook

import (
	"context"
	"errors"
	"net/http"

	"github.com/bookloop/orderflow/internal/courier"
	"github.com/bookloop/orderflow/internal/fulfillment"
	"github.com/bookloop/orderflow/internal/idempotency"
	"github.com/bookloop/orderflow/internal/orders"
	"github.com/bookloop/orderflow/internal/webhooks"
	pkgerrors "github.com/bookloop/orderflow/pkg/errors"
	"github.com/bookloop/orderflow/pkg/logger"
	"github.com/bookloop/orderflow/pkg/metrics"
)

const metricSource = "courier"

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeSettled   Outcome = "settled"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeAnomaly   Outcome = "anomaly"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
)

type Engine interface {
	HandleDeliveryEvent(ctx context.Context, event *courier.Event) (*fulfillment.DeliveryResult, error)
}

type ServiceParams struct {
	Engine Engine
	// Secret, when set, makes the X-Courier-Signature header mandatory.
	Secret string
	// TrustUnsigned applies unsigned events when no secret is configured.
	TrustUnsigned bool
	Inflight      *webhooks.InflightGuard
	Metrics       *metrics.FlowMetrics
	Logger        *logger.Logger
}

type Service struct {
	engine        Engine
	secret        string
	trustUnsigned bool
	inflight      *webhooks.InflightGuard
	metrics       *metrics.FlowMetrics
	logg          *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Engine == nil {
		return nil, errors.New("fulfillment engine required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		engine:        params.Engine,
		secret:        params.Secret,
		trustUnsigned: params.TrustUnsigned,
		inflight:      params.Inflight,
		metrics:       params.Metrics,
		logg:          logg,
	}, nil
}

// Handle processes one courier delivery. A nil error means acknowledge with 200.
func (s *Service) Handle(ctx context.Context, body []byte, headers http.Header) (Outcome, error) {
	signed := s.secret != ""
	if signed && !courier.VerifySignature(body, headers.Get(courier.SignatureHeader), s.secret) {
		s.logg.Warn(ctx, "courier webhook signature rejected")
		return s.record(OutcomeRejected), pkgerrors.New(pkgerrors.CodeSignature, "invalid webhook signature")
	}
	if !signed && !s.trustUnsigned {
		s.logg.Warn(ctx, "unsigned courier webhook ignored")
		return s.record(OutcomeIgnored), nil
	}

	event, err := courier.ParseEvent(body)
	if err != nil {
		if !signed {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "malformed courier webhook ignored")
			return s.record(OutcomeIgnored), nil
		}
		return s.record(OutcomeRejected), pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload")
	}

	key := event.IdempotencyKey()
	ctx = s.logg.WithFields(ctx, map[string]any{
		"tracking_number": event.TrackingReference,
		"event_type":      event.EventType,
	})
	acquired, err := s.inflight.Acquire(ctx, key)
	if err != nil {
		s.logg.Error(ctx, "inflight guard unavailable", err)
		return s.record(OutcomeFailed), pkgerrors.Wrap(pkgerrors.CodeDependency, err, "webhook guard unavailable")
	}
	if !acquired {
		return s.record(OutcomeDuplicate), pkgerrors.New(pkgerrors.CodeConflict, "event is already being processed")
	}
	defer func() {
		if err := s.inflight.Release(context.WithoutCancel(ctx), key); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "release inflight key failed")
		}
	}()

	result, err := s.engine.HandleDeliveryEvent(ctx, event)
	switch {
	case errors.Is(err, fulfillment.ErrUnknownShipment):
		s.logg.Anomaly(ctx, "courier webhook for unknown shipment", err)
		s.metrics.Anomaly("unknown_shipment")
		return s.record(OutcomeAnomaly), nil
	case errors.Is(err, orders.ErrIllegalTransition):
		s.logg.Anomaly(ctx, "courier webhook acknowledged without effect", err)
		s.metrics.Anomaly("illegal_transition")
		return s.record(OutcomeAnomaly), nil
	case err != nil:
		s.logg.Error(ctx, "courier webhook processing failed", err)
		return s.record(OutcomeFailed), pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to process webhook")
	}

	switch {
	case result.Settled != nil:
		return s.record(OutcomeSettled), nil
	case result.Outcome == idempotency.OutcomeDuplicate:
		return s.record(OutcomeDuplicate), nil
	}
	return s.record(OutcomeApplied), nil
}

func (s *Service) record(outcome Outcome) Outcome {
	s.metrics.Webhook(metricSource, string(outcome))
	return outcome
}
