package orders

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
	internalorders "github.com/bookloop/orderflow/internal/orders"
	"github.com/bookloop/orderflow/internal/refunds"
	"github.com/bookloop/orderflow/pkg/db/models"
	"github.com/bookloop/orderflow/pkg/enums"
	pkgerrors "github.com/bookloop/orderflow/pkg/errors"
	"github.com/bookloop/orderflow/pkg/logger"
	"github.com/bookloop/orderflow/pkg/pagination"
)

const maxReasonLength = 500

// Service is the slice of the fulfillment engine the order endpoints drive.
type Service interface {
	Checkout(ctx context.Context, input fulfillment.CheckoutInput) (*fulfillment.CheckoutResult, error)
	Commit(ctx context.Context, orderID, sellerID uuid.UUID) (*models.Order, error)
	Decline(ctx context.Context, orderID, sellerID uuid.UUID, reason string) (*refunds.Result, error)
	AttachShipment(ctx context.Context, orderID, sellerID uuid.UUID, input fulfillment.ShipmentInput) (*models.Order, error)
	RequestRefund(ctx context.Context, orderID uuid.UUID, actor refunds.Actor, reason string) (*refunds.Result, error)
	GetOrder(ctx context.Context, orderID uuid.UUID, actor refunds.Actor) (*models.Order, error)
	ListOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (*internalorders.OrderList, error)
}

type checkoutRequest struct {
	BookID   string `json:"book_id" validate:"required,uuid"`
	Provider string `json:"provider" validate:"required,oneof=bobpay paystack"`
	Email    string `json:"email" validate:"required,email"`
}

type checkoutResponse struct {
	Order      *models.Order `json:"order"`
	PaymentURL string        `json:"payment_url"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

type refundRequest struct {
	OrderID string `json:"order_id" validate:"omitempty,uuid"`
	Reason  string `json:"reason" validate:"omitempty,max=500"`
}

type shipmentRequest struct {
	TrackingNumber string `json:"tracking_number" validate:"required,max=64"`
	Courier        string `json:"courier" validate:"omitempty,max=64"`
}

type refundResponse struct {
	Order           *models.Order             `json:"order"`
	Refund          *models.RefundTransaction `json:"refund,omitempty"`
	AlreadyRefunded bool                      `json:"already_refunded"`
}

// Checkout creates an order for a listing and returns the hosted payment page.
func Checkout(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		buyerID, err := userID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req checkoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Checkout(r.Context(), fulfillment.CheckoutInput{
			BuyerID:    buyerID,
			BuyerEmail: strings.TrimSpace(req.Email),
			BookID:     uuid.MustParse(req.BookID),
			Provider:   enums.PaymentProvider(req.Provider),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, checkoutResponse{
			Order:      result.Order,
			PaymentURL: result.PaymentURL,
		})
	}
}

// Commit records the seller's promise to ship before the commit deadline.
func Commit(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		sellerID, orderID, err := userAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Commit(r.Context(), orderID, sellerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// Decline lets the seller refuse a paid order, refunding the buyer.
func Decline(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		sellerID, orderID, err := userAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req reasonRequest
		if err := decodeOptionalBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Decline(r.Context(), orderID, sellerID, validators.SanitizeString(req.Reason, maxReasonLength))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toRefundResponse(result))
	}
}

// AttachShipment stores the courier tracking number for a committed order.
func AttachShipment(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		sellerID, orderID, err := userAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req shipmentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.AttachShipment(r.Context(), orderID, sellerID, fulfillment.ShipmentInput{
			TrackingNumber: strings.TrimSpace(req.TrackingNumber),
			Courier:        strings.TrimSpace(req.Courier),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// Refund cancels the order with a refund on behalf of the buyer, the seller or an admin.
func Refund(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, orderID, err := actorAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req refundRequest
		if err := decodeOptionalBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if req.OrderID != "" && req.OrderID != orderID.String() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order_id does not match path"))
			return
		}

		result, err := svc.RequestRefund(r.Context(), orderID, actor, validators.SanitizeString(req.Reason, maxReasonLength))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toRefundResponse(result))
	}
}

// Detail returns one order to its buyer, its seller or an admin.
func Detail(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, orderID, err := actorAndOrder(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetOrder(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// List pages through the caller's orders, as buyer or seller, newest first.
func List(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		uid, err := userID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		list, err := svc.ListOrders(r.Context(), uid, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func toRefundResponse(result *refunds.Result) refundResponse {
	if result == nil {
		return refundResponse{}
	}
	return refundResponse{
		Order:           result.Order,
		Refund:          result.Refund,
		AlreadyRefunded: result.AlreadyRefunded,
	}
}

func decodeOptionalBody(r *http.Request, dest any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return validators.DecodeJSONBody(r, dest)
}

func userID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return id, nil
}

func parseOrderID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return id, nil
}

func userAndOrder(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	uid, err := userID(r)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	orderID, err := parseOrderID(r)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return uid, orderID, nil
}

func actorAndOrder(r *http.Request) (refunds.Actor, uuid.UUID, error) {
	uid, orderID, err := userAndOrder(r)
	if err != nil {
		return refunds.Actor{}, uuid.Nil, err
	}
	return refunds.Actor{
		UserID: uid,
		Role:   enums.ActorRole(middleware.RoleFromContext(r.Context())),
	}, orderID, nil
}
