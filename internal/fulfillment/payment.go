package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/bookloop/orderflow/internal/idempotency"
	"github.com/bookloop/orderflow/internal/notifications"
	"github.com/bookloop/orderflow/internal/orders"
	"github.com/bookloop/orderflow/internal/payments"
	"github.com/bookloop/orderflow/pkg/enums"
	"github.com/bookloop/orderflow/pkg/money"
)

// ReasonPaymentFailed is recorded on orders whose payment the processor declined.
const ReasonPaymentFailed = "payment_failed"

// ErrAmountMismatch means the processor reported a different amount than the order total.
var ErrAmountMismatch = errors.New("paid amount does not match order amount")

// HandlePaymentEvent applies a verified processor outcome to its order.
// Replays of the same outcome return OutcomeDuplicate. Callers treat
// orders.ErrIllegalTransition as an acknowledged anomaly.
func (e *Engine) HandlePaymentEvent(ctx context.Context, event *payments.PaymentEvent) (idempotency.Outcome, error) {
	if event == nil {
		return "", errors.New("payment event required")
	}
	key := event.OrderID.String()
	ctx = e.logg.WithFields(ctx, map[string]any{
		"order_id":        key,
		"provider":        string(event.Provider),
		"idempotency_key": key,
	})

	switch event.Kind {
	case payments.EventPaymentConfirmed:
		window, err := e.settings.CommitWindow(ctx)
		if err != nil {
			return "", fmt.Errorf("load commit window: %w", err)
		}
		return e.guard.Run(ctx, key, enums.EffectPaymentConfirmation, func(tx *gorm.DB) error {
			return e.confirmPayment(ctx, tx, event, window)
		})
	case payments.EventPaymentFailed:
		return e.guard.Run(ctx, key, enums.EffectPaymentFailure, func(tx *gorm.DB) error {
			return e.failPayment(ctx, tx, event)
		})
	}
	return "", fmt.Errorf("unsupported payment event kind %q", event.Kind)
}

func (e *Engine) confirmPayment(ctx context.Context, tx *gorm.DB, event *payments.PaymentEvent, window time.Duration) error {
	order, err := e.orders.WithTx(tx).FindByID(ctx, event.OrderID)
	if err != nil {
		return err
	}
	if event.Amount.IsPositive() && !money.Round(event.Amount).Equal(money.Round(order.Amount)) {
		return fmt.Errorf("%w: paid %s, expected %s", ErrAmountMismatch, money.Format(event.Amount), money.Format(order.Amount))
	}

	now := e.now().UTC()
	deadline := now.Add(window)
	fields := map[string]any{
		"payment_status":   enums.PaymentStatusPaid,
		"paid_at":          now,
		"commit_deadline":  deadline,
		"payment_provider": event.Provider,
	}
	if event.Reference != "" {
		fields["payment_reference"] = event.Reference
	}
	updated, err := e.machine.Transition(ctx, tx, order.ID, orders.Change{
		To:     enums.OrderStatusPaid,
		Fields: fields,
		Reason: "payment_confirmed",
	})
	if err != nil {
		return err
	}
	if err := e.payments.WithTx(tx).SettleTransaction(ctx, order.ID, enums.TransactionStatusSuccess, event); err != nil {
		return fmt.Errorf("settle payment transaction: %w", err)
	}
	if _, err := e.affiliates.RecordOrder(ctx, tx, updated); err != nil {
		return err
	}

	hours := fmt.Sprintf("%d", int(window.Hours()))
	if err := e.notifier.Notify(ctx, tx,
		notifications.Message{
			OrderID:     order.ID,
			RecipientID: order.BuyerID,
			Email:       order.BuyerEmail,
			Template:    enums.NotificationPaymentConfirmed,
			Data: map[string]string{
				"item_name": order.ItemName,
				"amount":    money.Format(order.Amount),
			},
		},
		notifications.Message{
			OrderID:     order.ID,
			RecipientID: order.SellerID,
			Template:    enums.NotificationNewOrder,
			Data: map[string]string{
				"item_name":       order.ItemName,
				"commit_deadline": deadline.Format(time.RFC3339),
				"commit_hours":    hours,
			},
		},
	); err != nil {
		return err
	}
	e.logg.Info(ctx, "payment confirmed")
	return nil
}

func (e *Engine) failPayment(ctx context.Context, tx *gorm.DB, event *payments.PaymentEvent) error {
	order, err := e.orders.WithTx(tx).FindByID(ctx, event.OrderID)
	if err != nil {
		return err
	}
	now := e.now().UTC()
	if _, err := e.machine.Transition(ctx, tx, order.ID, orders.Change{
		To: enums.OrderStatusCancelled,
		Fields: map[string]any{
			"payment_status":      enums.PaymentStatusFailed,
			"cancelled_at":        now,
			"cancellation_reason": ReasonPaymentFailed,
		},
		Reason: ReasonPaymentFailed,
	}); err != nil {
		return err
	}
	if err := e.payments.WithTx(tx).SettleTransaction(ctx, order.ID, enums.TransactionStatusFailed, event); err != nil {
		return fmt.Errorf("settle payment transaction: %w", err)
	}
	if err := e.notifier.Notify(ctx, tx, notifications.Message{
		OrderID:     order.ID,
		RecipientID: order.BuyerID,
		Email:       order.BuyerEmail,
		Template:    enums.NotificationPaymentFailed,
		Data:        map[string]string{"item_name": order.ItemName},
	}); err != nil {
		return err
	}
	e.logg.Info(ctx, "payment failed")
	return nil
}

