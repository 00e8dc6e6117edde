package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bookloop/orderflow/api/middleware"
	"github.com/bookloop/orderflow/api/responses"
	"github.com/bookloop/orderflow/api/validators"
	"github.com/bookloop/orderflow/internal/fulfillment"
	pkgerrors "github.com/bookloop/orderflow/pkg/errors"
	"github.com/bookloop/orderflow/pkg/logger"
)

type AdminService interface {
	Reconcile(ctx context.Context, orderID, adminID uuid.UUID) (*fulfillment.ReconcileResult, error)
	UpdateSetting(ctx context.Context, key, value string) error
}

type settingRequest struct {
	Value string `json:"value" validate:"required,max=64"`
}

// AdminReconcile re-drives settlement or a failed refund for one order.
func AdminReconcile(svc AdminService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "admin service unavailable"))
			return
		}
		adminID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id"))
			return
		}
		orderID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "orderId")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id"))
			return
		}

		result, err := svc.Reconcile(r.Context(), orderID, adminID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"action": result.Action,
			"order":  result.Order,
		})
	}
}

// AdminUpdateSetting changes a platform setting such as the commit window.
func AdminUpdateSetting(svc AdminService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "admin service unavailable"))
			return
		}
		key := strings.TrimSpace(chi.URLParam(r, "key"))
		if key == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "setting key is required"))
			return
		}
		var req settingRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		value := strings.TrimSpace(req.Value)
		if err := svc.UpdateSetting(r.Context(), key, value); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"key": key, "value": value})
	}
}
