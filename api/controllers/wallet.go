package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/bookloop/orderflow/api/middleware"
	"github.com/bookloop/orderflow/api/responses"
	"github.com/bookloop/orderflow/internal/settlement"
	pkgerrors "github.com/bookloop/orderflow/pkg/errors"
	"github.com/bookloop/orderflow/pkg/logger"
)

type BalanceService interface {
	SellerBalance(ctx context.Context, sellerID uuid.UUID) (*settlement.Balance, error)
}

// WalletBalance returns the caller's seller wallet totals.
func WalletBalance(svc BalanceService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
			return
		}
		sellerID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id"))
			return
		}
		balance, err := svc.SellerBalance(r.Context(), sellerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balance)
	}
}
