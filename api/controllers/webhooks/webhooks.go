package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bookloop/orderflow/api/responses"
	courierwebhook "github.com/bookloop/orderflow/internal/webhooks/courier"
	paymentwebhook "github.com/bookloop/orderflow/internal/webhooks/payments"
	pkgerrors "github.com/bookloop/orderflow/pkg/errors"
	"github.com/bookloop/orderflow/pkg/logger"
)

// maxBodyBytes bounds webhook payloads; processor callbacks are a few KB.
const maxBodyBytes = 1 << 20

type PaymentWebhookService interface {
	Handle(ctx context.Context, provider string, body []byte, headers http.Header) (paymentwebhook.Outcome, error)
}

type CourierWebhookService interface {
	Handle(ctx context.Context, body []byte, headers http.Header) (courierwebhook.Outcome, error)
}

// PaymentWebhook ingests callbacks for the processor named in the {provider} path segment.
func PaymentWebhook(svc PaymentWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := readBody(w, r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		outcome, err := svc.Handle(ctx, chi.URLParam(r, "provider"), payload, r.Header)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"outcome": string(outcome)})
	}
}

// CourierWebhook ingests courier tracking updates.
func CourierWebhook(svc CourierWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := readBody(w, r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		outcome, err := svc.Handle(ctx, payload, r.Header)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"outcome": string(outcome)})
	}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body")
	}
	return payload, nil
}
