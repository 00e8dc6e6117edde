package fulfillment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bookloop/orderflow/internal/idempotency"
	"github.com/bookloop/orderflow/internal/payments"
	"github.com/bookloop/orderflow/pkg/db/models"
	"github.com/bookloop/orderflow/pkg/enums"
	pkgerrors "github.com/bookloop/orderflow/pkg/errors"
)

func (h *harness) seedOrder(t *testing.T, status enums.OrderStatus, provider enums.PaymentProvider, reference *string, deadline *time.Time) *models.Order {
	t.Helper()
	order := &models.Order{
		BuyerID:          uuid.New(),
		SellerID:         uuid.New(),
		BookID:           uuid.New(),
		ItemName:         "Dune",
		BuyerEmail:       "buyer@example.com",
		Amount:           decimal.RequireFromString("250.00"),
		PaymentProvider:  provider,
		PaymentReference: reference,
		Status:           status,
		PaymentStatus:    enums.PaymentStatusPaid,
		DeliveryStatus:   enums.DeliveryStatusNone,
		RefundStatus:     enums.RefundStatusNone,
		CommitDeadline:   deadline,
	}
	require.NoError(t, h.client.DB().Create(order).Error)
	return order
}

func TestSettleWalletCreditNetOfFee(t *testing.T) {
	h := newHarness(t)
	order := h.seedOrder(t, enums.OrderStatusDelivered, enums.PaymentProviderPaystack, strPtr("ref"), nil)

	res, err := h.engine.Settle(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, idempotency.OutcomeApplied, res.Outcome)
	require.Equal(t, enums.OrderStatusCompleted, res.Order.Status)
	require.Equal(t, "225.00", res.Payout.Amount.StringFixed(2))

	again, err := h.engine.Settle(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, idempotency.OutcomeDuplicate, again.Outcome)
	require.Len(t, h.walletCredits(t, order.ID), 1)

	balance, err := h.engine.SellerBalance(context.Background(), order.SellerID)
	require.NoError(t, err)
	require.Equal(t, "225.00", balance.Available.StringFixed(2))
}

func TestSettleRequiresDelivery(t *testing.T) {
	h := newHarness(t)
	order := h.seedOrder(t, enums.OrderStatusCommitted, enums.PaymentProviderPaystack, strPtr("ref"), nil)

	_, err := h.engine.Settle(context.Background(), order.ID)
	require.True(t, errors.Is(err, ErrNotDelivered))
	require.Empty(t, h.walletCredits(t, order.ID))
}

func TestSettleMarksAffiliateEarned(t *testing.T) {
	h := newHarness(t)
	order := h.seedOrder(t, enums.OrderStatusCollected, enums.PaymentProviderBobPay, strPtr("77"), nil)
	require.NoError(t, h.client.DB().Create(&models.AffiliateOrder{
		OrderID: order.ID, AffiliateID: uuid.New(), SellerID: order.SellerID,
		CommissionAmount: decimal.RequireFromString("5.00"), Status: enums.AffiliateOrderStatusPending,
	}).Error)

	_, err := h.engine.Settle(context.Background(), order.ID)
	require.NoError(t, err)

	var row models.AffiliateOrder
	require.NoError(t, h.client.DB().Where("order_id = ?", order.ID).First(&row).Error)
	require.Equal(t, enums.AffiliateOrderStatusEarned, row.Status)
}

func TestExpiryRefundsPaystackOrderByReference(t *testing.T) {
	h := newHarness(t)
	order := h.paidOrder(t, enums.PaymentProviderPaystack, "ps_ref_81")
	h.at(t0.Add(49 * time.Hour))

	expired, err := h.engine.ExpireOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.True(t, expired)

	final := h.reload(t, order.ID)
	require.Equal(t, enums.OrderStatusCancelledRefunded, final.Status)
	require.Equal(t, enums.RefundStatusCompleted, final.RefundStatus)
	require.Equal(t, ReasonCommitDeadlineExpired, *final.CancellationReason)

	calls := h.paystack.Refunds()
	require.Len(t, calls, 1)
	require.Equal(t, payments.PaystackRef{Reference: "ps_ref_81", TransactionID: "9001"}, calls[0].Ref)
	require.Equal(t, "250.00", calls[0].Amount.StringFixed(2))

	var refund models.RefundTransaction
	require.NoError(t, h.client.DB().Where("order_id = ?", order.ID).First(&refund).Error)
	require.Equal(t, enums.RefundInitiatorSystem, refund.InitiatedBy)
	require.Equal(t, enums.TransactionStatusSuccess, refund.Status)

	again, err := h.engine.ExpireOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.False(t, again)
	require.Len(t, h.paystack.Refunds(), 1)
}

func TestExpiryBeforeDeadlineIsSkipped(t *testing.T) {
	h := newHarness(t)
	order := h.paidOrder(t, enums.PaymentProviderPaystack, "")
	h.at(t0.Add(47 * time.Hour))

	expired, err := h.engine.ExpireOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.False(t, expired)
	require.Empty(t, h.paystack.Refunds())
}

func TestExpiryWithUnknownProviderStaysPending(t *testing.T) {
	h := newHarness(t)
	deadline := t0.Add(-time.Hour)
	order := h.seedOrder(t, enums.OrderStatusPaid, enums.PaymentProviderUnknown, nil, &deadline)

	_, err := h.engine.ExpireOrder(context.Background(), order.ID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeFinancial))

	current := h.reload(t, order.ID)
	require.Equal(t, enums.OrderStatusPaid, current.Status)
	require.Equal(t, enums.RefundStatusPending, current.RefundStatus)

	due, err := h.engine.orders.ListExpiredCommitments(context.Background(), t0, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, order.ID, due[0].ID)
}

func TestExpirySweepReachesFreshOrderPastStuckRefunds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	deadline := t0.Add(-time.Hour)
	for i := 0; i < 2; i++ {
		stuck := h.seedOrder(t, enums.OrderStatusPaid, enums.PaymentProviderUnknown, nil, &deadline)
		_, err := h.engine.ExpireOrder(ctx, stuck.ID)
		require.Error(t, err)
		require.Equal(t, enums.RefundStatusPending, h.reload(t, stuck.ID).RefundStatus)
	}

	order := h.paidOrder(t, enums.PaymentProviderPaystack, "ps_ref_90")
	sweepAt := t0.Add(49 * time.Hour)
	h.at(sweepAt)

	due, err := h.engine.orders.ListExpiredCommitments(ctx, sweepAt, 2)
	require.NoError(t, err)
	require.Len(t, due, 2)
	for _, o := range due {
		_, _ = h.engine.ExpireOrder(ctx, o.ID)
	}

	final := h.reload(t, order.ID)
	require.Equal(t, enums.OrderStatusCancelledRefunded, final.Status)
	require.Equal(t, enums.RefundStatusCompleted, final.RefundStatus)
	require.Len(t, h.paystack.Refunds(), 1)
}

func TestReconcileRedrivesSettlementAndRefunds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	admin := uuid.New()

	delivered := h.seedOrder(t, enums.OrderStatusDelivered, enums.PaymentProviderPaystack, strPtr("ref"), nil)
	res, err := h.engine.Reconcile(ctx, delivered.ID, admin)
	require.NoError(t, err)
	require.Equal(t, ReconcileSettlement, res.Action)
	require.Equal(t, enums.OrderStatusCompleted, res.Order.Status)

	_, err = h.engine.Reconcile(ctx, delivered.ID, admin)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	failing := h.paidOrder(t, enums.PaymentProviderPaystack, "")
	h.paystack.RefundErr = errors.New("processor timeout")
	_, err = h.engine.Decline(ctx, failing.ID, failing.SellerID, "")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeFinancial))
	require.Equal(t, enums.RefundStatusFailed, h.reload(t, failing.ID).RefundStatus)

	h.paystack.RefundErr = nil
	res, err = h.engine.Reconcile(ctx, failing.ID, admin)
	require.NoError(t, err)
	require.Equal(t, ReconcileRefund, res.Action)
	require.Equal(t, enums.OrderStatusCancelledRefunded, res.Order.Status)
	require.Len(t, h.paystack.Refunds(), 2)
}

func TestReconcileRefusesPendingRefundAttempt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.seedOrder(t, enums.OrderStatusPaid, enums.PaymentProviderPaystack, strPtr("ref"), nil)

	// Simulates a crash after the processor call: claim held, attempt pending.
	require.NoError(t, h.client.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := h.guard.Claim(ctx, tx, order.ID.String(), enums.EffectRefund); err != nil {
			return err
		}
		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Update("refund_status", enums.RefundStatusPending).Error; err != nil {
			return err
		}
		return tx.Create(&models.RefundTransaction{
			OrderID: order.ID, Provider: enums.PaymentProviderPaystack, Amount: order.Amount,
			Reason: "x", InitiatedBy: enums.RefundInitiatorBuyer, Status: enums.TransactionStatusPending,
		}).Error
	}))

	_, err := h.engine.Reconcile(ctx, order.ID, uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	require.Empty(t, h.paystack.Refunds())
}

func TestUpdateSettingDelegates(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.engine.UpdateSetting(context.Background(), " platform_fee_percent ", "12.5"))
	require.Equal(t, "12.5", h.settings.updates["platform_fee_percent"])
}
