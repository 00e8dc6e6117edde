// Package refunds returns buyer funds for orders cancelled before delivery.
//
// A refund runs in three steps. The first transaction claims the order's
// refund guard, marks refund_status pending and records a pending attempt.
// The processor call happens outside any transaction. The last transaction
// either finalizes the order or records the failure and releases the claim so
// the refund can be retried.
package refunds

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bookloop/orderflow/internal/affiliates"
	"github.com/bookloop/orderflow/internal/idempotency"
	"github.com/bookloop/orderflow/internal/notifications"
	"github.com/bookloop/orderflow/internal/orders"
	"github.com/bookloop/orderflow/internal/payments"
	"github.com/bookloop/orderflow/pkg/db/models"
	"github.com/bookloop/orderflow/pkg/enums"
	pkgerrors "github.com/bookloop/orderflow/pkg/errors"
	"github.com/bookloop/orderflow/pkg/logger"
	"github.com/bookloop/orderflow/pkg/metrics"
	"github.com/bookloop/orderflow/pkg/money"
	"github.com/bookloop/orderflow/pkg/outbox"
	"github.com/bookloop/orderflow/pkg/outbox/payloads"
)

var (
	ErrNotRefundable    = errors.New("order is not refundable in its current status")
	ErrRefundInProgress = errors.New("a refund for this order is already in progress")
	ErrNotEligible      = errors.New("order is not eligible for a refund")
)

const errorMessageLimit = 1024

// Executor performs the external part of a refund.
type Executor interface {
	Execute(ctx context.Context, order *models.Order, txn *models.PaymentTransaction, amount decimal.Decimal, reason string) (*payments.RefundOutcome, error)
}

// Request describes one refund.
type Request struct {
	OrderID   uuid.UUID
	Initiator enums.RefundInitiator
	ActorID   *uuid.UUID
	Reason    string
	// Target is the status a successful refund moves the order to.
	Target enums.OrderStatus
	// OnFailure is the refund_status left after a failed attempt: failed for
	// user actions, pending when the scheduler will try again.
	OnFailure enums.RefundStatus
}

type Result struct {
	Order           *models.Order
	Refund          *models.RefundTransaction
	AlreadyRefunded bool
}

type Deps struct {
	DB         idempotency.TxRunner
	Guard      *idempotency.Guard
	Orders     orders.Repository
	Machine    *orders.Machine
	Payments   *payments.Repository
	Router     Executor
	Policy     EligibilityPolicy
	Affiliates *affiliates.Service
	Notifier   notifications.Notifier
	Outbox     outbox.Emitter
	Metrics    *metrics.FlowMetrics
	Logger     *logger.Logger
}

type Service struct {
	db         idempotency.TxRunner
	guard      *idempotency.Guard
	orders     orders.Repository
	machine    *orders.Machine
	payments   *payments.Repository
	router     Executor
	policy     EligibilityPolicy
	affiliates *affiliates.Service
	notifier   notifications.Notifier
	outbox     outbox.Emitter
	metrics    *metrics.FlowMetrics
	logg       *logger.Logger
	now        func() time.Time
}

func NewService(deps Deps) (*Service, error) {
	switch {
	case deps.DB == nil:
		return nil, fmt.Errorf("db required")
	case deps.Guard == nil:
		return nil, fmt.Errorf("idempotency guard required")
	case deps.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case deps.Machine == nil:
		return nil, fmt.Errorf("order state machine required")
	case deps.Payments == nil:
		return nil, fmt.Errorf("payments repository required")
	case deps.Router == nil:
		return nil, fmt.Errorf("refund router required")
	case deps.Affiliates == nil:
		return nil, fmt.Errorf("affiliates service required")
	case deps.Notifier == nil:
		return nil, fmt.Errorf("notifier required")
	case deps.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	}
	policy := deps.Policy
	if policy == nil {
		policy = FullAmountPolicy{}
	}
	logg := deps.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		db:         deps.DB,
		guard:      deps.Guard,
		orders:     deps.Orders,
		machine:    deps.Machine,
		payments:   deps.Payments,
		router:     deps.Router,
		policy:     policy,
		affiliates: deps.Affiliates,
		notifier:   deps.Notifier,
		outbox:     deps.Outbox,
		metrics:    deps.Metrics,
		logg:       logg,
		now:        time.Now,
	}, nil
}

// Refund returns the buyer's money for req.OrderID at most once.
func (s *Service) Refund(ctx context.Context, req Request) (*Result, error) {
	if req.Target != enums.OrderStatusRefunded && req.Target != enums.OrderStatusCancelledRefunded {
		return nil, fmt.Errorf("refund target %q is not a refund status", req.Target)
	}
	if req.OnFailure != enums.RefundStatusFailed && req.OnFailure != enums.RefundStatusPending {
		req.OnFailure = enums.RefundStatusFailed
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		req.Reason = "cancelled"
	}
	key := req.OrderID.String()
	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_id":        key,
		"initiated_by":    string(req.Initiator),
		"idempotency_key": key,
	})

	var (
		order  *models.Order
		txn    *models.PaymentTransaction
		refund *models.RefundTransaction
		amount decimal.Decimal
		done   bool
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		current, err := repo.FindByID(ctx, req.OrderID)
		if err != nil {
			return err
		}
		order = current
		if current.RefundStatus == enums.RefundStatusCompleted {
			done = true
			return nil
		}
		if !orders.IsRefundable(current.Status) {
			return fmt.Errorf("%w: %s", ErrNotRefundable, current.Status)
		}
		amount, err = s.amountFor(ctx, current)
		if err != nil {
			return err
		}

		claimed, err := s.guard.Claim(ctx, tx, key, enums.EffectRefund)
		if err != nil {
			return err
		}
		if !claimed {
			return ErrRefundInProgress
		}
		moved, err := repo.SetRefundStatus(ctx, current.ID,
			[]enums.RefundStatus{enums.RefundStatusNone, enums.RefundStatusPending, enums.RefundStatusFailed},
			enums.RefundStatusPending)
		if err != nil {
			return err
		}
		if !moved {
			return ErrRefundInProgress
		}

		payRepo := s.payments.WithTx(tx)
		txn, err = payRepo.LatestTransaction(ctx, current.ID)
		if err != nil {
			return err
		}
		refund = &models.RefundTransaction{
			OrderID:     current.ID,
			Provider:    payments.DetectProvider(current, txn),
			Amount:      amount,
			Reason:      req.Reason,
			InitiatedBy: req.Initiator,
			ActorID:     req.ActorID,
			Status:      enums.TransactionStatusPending,
		}
		return payRepo.CreateRefund(ctx, refund)
	})
	if err != nil {
		return nil, s.mapError(err)
	}
	if done {
		return &Result{Order: order, AlreadyRefunded: true}, nil
	}

	outcome, execErr := s.router.Execute(ctx, order, txn, amount, req.Reason)
	if execErr != nil {
		return nil, s.recordFailure(ctx, req, refund, outcome, execErr)
	}
	return s.finalize(ctx, req, order, refund, outcome)
}

func (s *Service) amountFor(ctx context.Context, order *models.Order) (decimal.Decimal, error) {
	limit, err := s.policy.MaxRefundAmount(ctx, order)
	if err != nil {
		return decimal.Zero, fmt.Errorf("refund eligibility: %w", err)
	}
	if !limit.IsPositive() {
		return decimal.Zero, ErrNotEligible
	}
	if limit.GreaterThan(order.Amount) {
		limit = order.Amount
	}
	return money.Round(limit), nil
}

func (s *Service) finalize(ctx context.Context, req Request, order *models.Order, refund *models.RefundTransaction, outcome *payments.RefundOutcome) (*Result, error) {
	now := s.now().UTC()
	var updated *models.Order
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		refundFields := map[string]any{"status": enums.TransactionStatusSuccess}
		if outcome != nil && len(outcome.ProviderResponse) > 0 {
			refundFields["provider_response"] = string(outcome.ProviderResponse)
		}
		if err := s.payments.WithTx(tx).UpdateRefund(ctx, refund.ID, refundFields); err != nil {
			return err
		}

		repo := s.orders.WithTx(tx)
		current, err := repo.FindByID(ctx, order.ID)
		if err != nil {
			return err
		}
		target := req.Target
		if !orders.CanTransition(current.Status, target) && orders.CanTransition(current.Status, enums.OrderStatusRefunded) {
			target = enums.OrderStatusRefunded
		}
		var actor *outbox.ActorRef
		if req.ActorID != nil {
			actor = &outbox.ActorRef{UserID: *req.ActorID, Role: string(req.Initiator)}
		}
		updated, err = s.machine.Transition(ctx, tx, order.ID, orders.Change{
			To: target,
			Fields: map[string]any{
				"refund_status":       enums.RefundStatusCompleted,
				"cancelled_at":        now,
				"cancellation_reason": req.Reason,
			},
			Reason: req.Reason,
			Actor:  actor,
		})
		if errors.Is(err, orders.ErrIllegalTransition) || errors.Is(err, orders.ErrAlreadyApplied) {
			s.logg.Anomaly(ctx, "refund succeeded but order could not take its refund status", err)
			s.metrics.Anomaly("refund_status_mismatch")
			if err := repo.UpdateFields(ctx, order.ID, map[string]any{"refund_status": enums.RefundStatusCompleted}); err != nil {
				return err
			}
			updated, err = repo.FindByID(ctx, order.ID)
			if err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		if _, err := s.affiliates.Void(ctx, tx, order.ID); err != nil {
			return err
		}
		if err := s.notifier.Notify(ctx, tx,
			notifications.Message{
				OrderID:     order.ID,
				RecipientID: order.BuyerID,
				Email:       order.BuyerEmail,
				Template:    enums.NotificationRefundIssued,
				Data:        map[string]string{"amount": money.Format(refund.Amount), "item_name": order.ItemName},
			},
			notifications.Message{
				OrderID:     order.ID,
				RecipientID: order.SellerID,
				Template:    enums.NotificationOrderCancelled,
				Data:        map[string]string{"reason": req.Reason, "item_name": order.ItemName},
			},
		); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRefundCompleted,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor,
			Data: payloads.RefundCompletedEvent{
				OrderID:     order.ID,
				RefundID:    refund.ID,
				Provider:    refund.Provider,
				Amount:      refund.Amount,
				InitiatedBy: req.Initiator,
				FinalStatus: updated.Status,
			},
		}); err != nil {
			return err
		}
		return s.guard.Complete(ctx, tx, order.ID.String(), enums.EffectRefund, enums.EffectOutcomeApplied)
	})
	if err != nil {
		// The processor has already returned the money. The claim stays in
		// place so no second refund can be issued for this order.
		s.logg.Error(ctx, "refund succeeded at provider but could not be recorded", err)
		s.metrics.Anomaly("refund_unrecorded")
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "refund issued but not recorded")
	}

	s.metrics.Refund(string(refund.Provider), "success")
	s.logg.Info(s.logg.WithField(ctx, "amount", money.Format(refund.Amount)), "refund completed")
	refund.Status = enums.TransactionStatusSuccess
	return &Result{Order: updated, Refund: refund}, nil
}

func (s *Service) recordFailure(ctx context.Context, req Request, refund *models.RefundTransaction, outcome *payments.RefundOutcome, cause error) error {
	message := cause.Error()
	if typed := pkgerrors.As(cause); typed != nil && errors.Unwrap(cause) != nil {
		message = fmt.Sprintf("%s: %v", typed.Message(), errors.Unwrap(cause))
	}
	if len(message) > errorMessageLimit {
		message = message[:errorMessageLimit]
	}

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		fields := map[string]any{
			"status":        enums.TransactionStatusFailed,
			"error_message": message,
		}
		if outcome != nil && len(outcome.ProviderResponse) > 0 {
			fields["provider_response"] = string(outcome.ProviderResponse)
		}
		if err := s.payments.WithTx(tx).UpdateRefund(ctx, refund.ID, fields); err != nil {
			return err
		}
		if _, err := s.orders.WithTx(tx).SetRefundStatus(ctx, refund.OrderID,
			[]enums.RefundStatus{enums.RefundStatusPending}, req.OnFailure); err != nil {
			return err
		}
		return s.guard.Release(ctx, tx, refund.OrderID.String(), enums.EffectRefund)
	})
	if err != nil {
		s.logg.Error(ctx, "failed to record refund failure", err)
	}

	s.metrics.Refund(string(refund.Provider), "failure")
	s.logg.Error(s.logg.WithField(ctx, "refund_status", string(req.OnFailure)), "refund failed", cause)

	if errors.Is(cause, payments.ErrUnknownProvider) {
		return pkgerrors.Wrap(pkgerrors.CodeFinancial, cause, payments.ErrUnknownProvider.Error())
	}
	return pkgerrors.Wrap(pkgerrors.CodeFinancial, cause, "refund failed")
}

func (s *Service) mapError(err error) error {
	switch {
	case errors.Is(err, orders.ErrNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "order not found")
	case errors.Is(err, ErrNotRefundable):
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, err.Error())
	case errors.Is(err, ErrRefundInProgress):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, err.Error())
	case errors.Is(err, ErrNotEligible):
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, err.Error())
	}
	return err
}
