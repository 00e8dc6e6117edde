package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bookloop/orderflow/internal/idempotency"
	"github.com/bookloop/orderflow/internal/notifications"
	"github.com/bookloop/orderflow/internal/orders"
	"github.com/bookloop/orderflow/internal/refunds"
	"github.com/bookloop/orderflow/internal/settlement"
	"github.com/bookloop/orderflow/pkg/db/models"
	"github.com/bookloop/orderflow/pkg/enums"
	pkgerrors "github.com/bookloop/orderflow/pkg/errors"
	"github.com/bookloop/orderflow/pkg/money"
	"github.com/bookloop/orderflow/pkg/outbox"
	"github.com/bookloop/orderflow/pkg/outbox/payloads"
)

// ErrNotDelivered means the order has not reached delivered or collected.
var ErrNotDelivered = errors.New("order is not awaiting settlement")

type SettleResult struct {
	Outcome idempotency.Outcome
	Order   *models.Order
	Payout  *settlement.Result
}

// Settle pays the seller for a delivered order and completes it. The
// settlement claim is keyed by order id so the payout happens once.
func (e *Engine) Settle(ctx context.Context, orderID uuid.UUID) (*SettleResult, error) {
	key := orderID.String()
	ctx = e.logg.WithFields(ctx, map[string]any{
		"order_id":        key,
		"idempotency_key": key,
	})

	result := &SettleResult{}
	outcome, err := e.guard.Run(ctx, key, enums.EffectSettlement, func(tx *gorm.DB) error {
		order, err := e.orders.WithTx(tx).FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusDelivered && order.Status != enums.OrderStatusCollected {
			return fmt.Errorf("%w: %s", ErrNotDelivered, order.Status)
		}

		payout, err := e.settlement.Settle(ctx, tx, order)
		if err != nil {
			return err
		}
		result.Payout = payout

		updated, err := e.machine.Transition(ctx, tx, orderID, orders.Change{
			To: enums.OrderStatusCompleted,
			Fields: map[string]any{
				"payout_method": payout.Method,
				"completed_at":  e.now().UTC(),
			},
			Reason: "settled",
		})
		if err != nil {
			return err
		}
		result.Order = updated

		if _, err := e.affiliates.Earn(ctx, tx, orderID); err != nil {
			return err
		}
		if err := e.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderSettled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Data: payloads.OrderSettledEvent{
				OrderID:      orderID,
				SellerID:     order.SellerID,
				PayoutMethod: payout.Method,
				GrossAmount:  payout.Gross,
				NetAmount:    payout.Amount,
			},
		}); err != nil {
			return err
		}

		template := enums.NotificationPayoutCredited
		if payout.Method == enums.PayoutMethodDirectBankTransfer {
			template = enums.NotificationPayoutScheduled
		}
		return e.notifier.Notify(ctx, tx, notifications.Message{
			OrderID:     orderID,
			RecipientID: order.SellerID,
			Template:    template,
			Data: map[string]string{
				"item_name":  order.ItemName,
				"gross":      money.Format(payout.Gross),
				"fee":        money.Format(payout.Fee),
				"net_amount": money.Format(payout.Amount),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	result.Outcome = outcome
	if outcome == idempotency.OutcomeDuplicate {
		order, err := e.orders.FindByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		result.Order = order
		return result, nil
	}

	e.metrics.Settlement(string(result.Payout.Method))
	e.logg.Info(e.logg.WithField(ctx, "payout_method", string(result.Payout.Method)), "order settled")
	return result, nil
}

// ReconcileAction names what Reconcile re-drove.
type ReconcileAction string

const (
	ReconcileSettlement ReconcileAction = "settlement"
	ReconcileRefund     ReconcileAction = "refund"
)

type ReconcileResult struct {
	Action ReconcileAction
	Order  *models.Order
}

// Reconcile re-drives the stuck step of an order for an operator: settlement
// for delivered orders, the refund for orders whose refund failed or is
// pending.
func (e *Engine) Reconcile(ctx context.Context, orderID, adminID uuid.UUID) (*ReconcileResult, error) {
	order, err := e.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, userError(err)
	}
	ctx = e.logg.WithFields(ctx, map[string]any{
		"order_id": orderID.String(),
		"admin_id": adminID.String(),
	})

	switch {
	case order.Status == enums.OrderStatusDelivered || order.Status == enums.OrderStatusCollected:
		settled, err := e.Settle(ctx, orderID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "settlement failed")
		}
		return &ReconcileResult{Action: ReconcileSettlement, Order: settled.Order}, nil

	case orders.IsRefundable(order.Status) &&
		(order.RefundStatus == enums.RefundStatusFailed || order.RefundStatus == enums.RefundStatusPending):
		if err := e.releaseStaleRefundClaim(ctx, orderID); err != nil {
			return nil, err
		}
		target := enums.OrderStatusRefunded
		reason := "admin_reconcile"
		if order.CancellationReason != nil && *order.CancellationReason != "" {
			reason = *order.CancellationReason
		}
		latest, err := e.payments.LatestRefund(ctx, orderID)
		if err != nil {
			return nil, userError(err)
		}
		if latest != nil {
			reason = latest.Reason
			if latest.InitiatedBy == enums.RefundInitiatorSystem || latest.InitiatedBy == enums.RefundInitiatorSeller {
				target = enums.OrderStatusCancelledRefunded
			}
		}
		res, err := e.refunds.Refund(ctx, refunds.Request{
			OrderID:   orderID,
			Initiator: enums.RefundInitiatorAdmin,
			ActorID:   &adminID,
			Reason:    reason,
			Target:    target,
			OnFailure: order.RefundStatus,
		})
		if err != nil {
			return nil, err
		}
		return &ReconcileResult{Action: ReconcileRefund, Order: res.Order}, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has nothing to reconcile")
}

// releaseStaleRefundClaim drops a refund claim left behind by a crashed
// attempt. A claim whose attempt is still pending is left alone because the
// processor may already have moved the money.
func (e *Engine) releaseStaleRefundClaim(ctx context.Context, orderID uuid.UUID) error {
	key := orderID.String()
	claim, err := e.guard.Lookup(ctx, e.db.DB(), key, enums.EffectRefund)
	if err != nil {
		return userError(err)
	}
	if claim == nil || claim.Outcome != enums.EffectOutcomeClaimed {
		return nil
	}
	latest, err := e.payments.LatestRefund(ctx, orderID)
	if err != nil {
		return userError(err)
	}
	if latest != nil && latest.Status == enums.TransactionStatusPending {
		return pkgerrors.New(pkgerrors.CodeConflict, "a refund attempt is still pending at the processor; check it before retrying")
	}
	err = e.db.WithTx(ctx, func(tx *gorm.DB) error {
		return e.guard.Release(ctx, tx, key, enums.EffectRefund)
	})
	if err != nil {
		return userError(err)
	}
	e.logg.Warn(ctx, "released stale refund claim")
	return nil
}
