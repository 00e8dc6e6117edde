package fulfillment

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/bookloop/orderflow/internal/refunds"
	"github.com/bookloop/orderflow/pkg/db/models"
	"github.com/bookloop/orderflow/pkg/enums"
	pkgerrors "github.com/bookloop/orderflow/pkg/errors"
)

// CancelRequest cancels a paid order and returns the buyer's money.
type CancelRequest struct {
	OrderID   uuid.UUID
	Initiator enums.RefundInitiator
	ActorID   *uuid.UUID
	Reason    string
	// OnFailure is the refund_status left when the refund cannot be issued.
	OnFailure enums.RefundStatus
}

// CancelOrder is the shared path for seller declines and deadline expiry.
func (e *Engine) CancelOrder(ctx context.Context, req CancelRequest) (*refunds.Result, error) {
	return e.refunds.Refund(ctx, refunds.Request{
		OrderID:   req.OrderID,
		Initiator: req.Initiator,
		ActorID:   req.ActorID,
		Reason:    req.Reason,
		Target:    enums.OrderStatusCancelledRefunded,
		OnFailure: req.OnFailure,
	})
}

// Decline lets the seller turn down a paid order before committing.
func (e *Engine) Decline(ctx context.Context, orderID, sellerID uuid.UUID, reason string) (*refunds.Result, error) {
	order, err := e.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, userError(err)
	}
	if order.SellerID != sellerID {
		return nil, userError(ErrNotParticipant)
	}
	if order.Status != enums.OrderStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only paid orders can be declined")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "seller_declined"
	}
	return e.CancelOrder(ctx, CancelRequest{
		OrderID:   orderID,
		Initiator: enums.RefundInitiatorSeller,
		ActorID:   &sellerID,
		Reason:    reason,
		OnFailure: enums.RefundStatusFailed,
	})
}

// ExpireOrder cancels and refunds a paid order whose commit deadline passed.
// It reports false when the order no longer qualifies. A failed refund leaves
// refund_status pending so the next run tries again.
func (e *Engine) ExpireOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	order, err := e.orders.FindByID(ctx, orderID)
	if err != nil {
		return false, err
	}
	if order.Status != enums.OrderStatusPaid || order.CommitDeadline == nil {
		return false, nil
	}
	if e.now().Before(*order.CommitDeadline) {
		return false, nil
	}
	if _, err := e.CancelOrder(ctx, CancelRequest{
		OrderID:   orderID,
		Initiator: enums.RefundInitiatorSystem,
		Reason:    ReasonCommitDeadlineExpired,
		OnFailure: enums.RefundStatusPending,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// RequestRefund is a buyer, seller or admin initiated cancellation before delivery.
func (e *Engine) RequestRefund(ctx context.Context, orderID uuid.UUID, actor refunds.Actor, reason string) (*refunds.Result, error) {
	order, err := e.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, userError(err)
	}
	initiator, err := refunds.Authorize(order, actor)
	if err != nil {
		return nil, userError(err)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = string(initiator) + "_requested_refund"
	}
	actorID := actor.UserID
	return e.refunds.Refund(ctx, refunds.Request{
		OrderID:   orderID,
		Initiator: initiator,
		ActorID:   &actorID,
		Reason:    reason,
		Target:    enums.OrderStatusRefunded,
		OnFailure: enums.RefundStatusFailed,
	})
}

// GetOrder returns the order when actor may see it.
func (e *Engine) GetOrder(ctx context.Context, orderID uuid.UUID, actor refunds.Actor) (*models.Order, error) {
	order, err := e.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, userError(err)
	}
	if _, err := refunds.Authorize(order, actor); err != nil {
		return nil, userError(err)
	}
	return order, nil
}
