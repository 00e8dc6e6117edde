package fulfillment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bookloop/orderflow/internal/courier"
	"github.com/bookloop/orderflow/internal/idempotency"
	"github.com/bookloop/orderflow/internal/orders"
	"github.com/bookloop/orderflow/pkg/enums"
)

func courierEvent(t *testing.T, body string) *courier.Event {
	t.Helper()
	event, err := courier.ParseEvent([]byte(body))
	require.NoError(t, err)
	return event
}

func TestDeliveryLifecycleSettlesSeller(t *testing.T) {
	h := newHarness(t)
	order := h.committedOrder(t, "TRK-1")
	ctx := context.Background()

	res, err := h.engine.HandleDeliveryEvent(ctx, courierEvent(t, `{"event_type":"shipment.shipped","tracking_reference":"TRK-1","status":"shipped"}`))
	require.NoError(t, err)
	require.Equal(t, idempotency.OutcomeApplied, res.Outcome)
	require.Equal(t, enums.OrderStatusShipped, res.Order.Status)
	require.Nil(t, res.Settled)

	res, err = h.engine.HandleDeliveryEvent(ctx, courierEvent(t, `{"event_type":"shipment.in_transit","tracking_reference":"TRK-1","status":"in_transit","location":"JHB hub"}`))
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusInTransit, res.Order.Status)

	res, err = h.engine.HandleDeliveryEvent(ctx, courierEvent(t, `{"event_type":"shipment.delivered","tracking_reference":"TRK-1","status":"delivered"}`))
	require.NoError(t, err)
	require.NotNil(t, res.Settled)
	require.Equal(t, enums.OrderStatusCompleted, res.Order.Status)
	require.Equal(t, enums.PayoutMethodWalletCredit, *res.Order.PayoutMethod)

	credits := h.walletCredits(t, order.ID)
	require.Len(t, credits, 1)
	require.Equal(t, "225.00", credits[0].Amount.StringFixed(2))
	require.Equal(t, "25.00", credits[0].FeeAmount.StringFixed(2))
	require.Equal(t, "250.00", credits[0].GrossAmount.StringFixed(2))

	counts := h.notifications(t, order.ID)
	require.Equal(t, 1, counts[enums.NotificationOrderShipped])
	require.Equal(t, 1, counts[enums.NotificationOrderDelivered])
	require.Equal(t, 1, counts[enums.NotificationPayoutCredited])
}

func TestDuplicateDeliveredEventAppliesOnce(t *testing.T) {
	h := newHarness(t)
	order := h.committedOrder(t, "TRK-2")
	body := `{"event_type":"shipment.delivered","tracking_reference":"TRK-2","status":"delivered"}`

	first, err := h.engine.HandleDeliveryEvent(context.Background(), courierEvent(t, body))
	require.NoError(t, err)
	require.Equal(t, idempotency.OutcomeApplied, first.Outcome)

	second, err := h.engine.HandleDeliveryEvent(context.Background(), courierEvent(t, body))
	require.NoError(t, err)
	require.Equal(t, idempotency.OutcomeDuplicate, second.Outcome)
	require.Equal(t, enums.OrderStatusCompleted, second.Order.Status)

	var transitions int64
	require.NoError(t, h.client.DB().Table("outbox_events").
		Where("aggregate_id = ? AND event_type = ?", order.ID, enums.EventOrderStatusChanged).
		Where("payload LIKE ?", `%"to":"delivered"%`).
		Count(&transitions).Error)
	require.Equal(t, int64(1), transitions)
	require.Equal(t, 1, h.notifications(t, order.ID)[enums.NotificationOrderDelivered])
	require.Len(t, h.walletCredits(t, order.ID), 1)
}

func TestGenericEventTypeProgressesOnStatus(t *testing.T) {
	h := newHarness(t)
	order := h.committedOrder(t, "TRK-7")
	ctx := context.Background()

	res, err := h.engine.HandleDeliveryEvent(ctx, courierEvent(t, `{"event_type":"tracking.update","tracking_reference":"TRK-7","status":"in_transit"}`))
	require.NoError(t, err)
	require.Equal(t, idempotency.OutcomeApplied, res.Outcome)
	require.Equal(t, enums.OrderStatusInTransit, res.Order.Status)

	res, err = h.engine.HandleDeliveryEvent(ctx, courierEvent(t, `{"event_type":"tracking.update","tracking_reference":"TRK-7","status":"delivered"}`))
	require.NoError(t, err)
	require.Equal(t, idempotency.OutcomeApplied, res.Outcome)
	require.Equal(t, enums.OrderStatusCompleted, res.Order.Status)
	require.Len(t, h.walletCredits(t, order.ID), 1)

	res, err = h.engine.HandleDeliveryEvent(ctx, courierEvent(t, `{"event_type":"tracking.update","tracking_reference":"TRK-7","status":"delivered"}`))
	require.NoError(t, err)
	require.Equal(t, idempotency.OutcomeDuplicate, res.Outcome)
	require.Len(t, h.walletCredits(t, order.ID), 1)
}

func TestStaleDeliveryUpdateDoesNotRegress(t *testing.T) {
	h := newHarness(t)
	order := h.committedOrder(t, "TRK-3")
	ctx := context.Background()

	_, err := h.engine.HandleDeliveryEvent(ctx, courierEvent(t, `{"event_type":"shipment.in_transit","tracking_reference":"TRK-3","status":"in_transit"}`))
	require.NoError(t, err)

	res, err := h.engine.HandleDeliveryEvent(ctx, courierEvent(t, `{"event_type":"shipment.shipped","tracking_reference":"TRK-3","status":"shipped"}`))
	require.NoError(t, err)
	require.Equal(t, idempotency.OutcomeApplied, res.Outcome)

	current := h.reload(t, order.ID)
	require.Equal(t, enums.OrderStatusInTransit, current.Status)
	require.Equal(t, enums.DeliveryStatusInTransit, current.DeliveryStatus)
	require.Zero(t, h.notifications(t, order.ID)[enums.NotificationOrderShipped])
}

func TestCollectedAtPickupPointCompletes(t *testing.T) {
	h := newHarness(t)
	order := h.committedOrder(t, "TRK-4")

	res, err := h.engine.HandleDeliveryEvent(context.Background(), courierEvent(t, `{"event_type":"parcel.collected","tracking_reference":"TRK-4","status":"collected_by_buyer"}`))
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCompleted, res.Order.Status)
	require.NotNil(t, h.reload(t, order.ID).DeliveredAt)
}

func TestShipmentCancelledByCourier(t *testing.T) {
	h := newHarness(t)
	order := h.committedOrder(t, "TRK-5")

	_, err := h.engine.HandleDeliveryEvent(context.Background(), courierEvent(t, `{"event_type":"shipment.cancelled","tracking_reference":"TRK-5","status":"cancelled"}`))
	require.NoError(t, err)

	current := h.reload(t, order.ID)
	require.Equal(t, enums.OrderStatusCommitted, current.Status)
	require.Equal(t, enums.DeliveryStatusCancelled, current.DeliveryStatus)
	require.Equal(t, 1, h.notifications(t, order.ID)[enums.NotificationShipmentCancelled])
}

func TestDeliveryEventEdgeCases(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.HandleDeliveryEvent(ctx, courierEvent(t, `{"event_type":"shipment.shipped","tracking_reference":"NOPE","status":"shipped"}`))
	require.True(t, errors.Is(err, ErrUnknownShipment))

	// A paid order with tracking set out of band cannot jump to shipped.
	paid := h.paidOrder(t, enums.PaymentProviderPaystack, "")
	require.NoError(t, h.client.DB().Table("orders").Where("id = ?", paid.ID).Update("tracking_number", "TRK-6").Error)
	_, err = h.engine.HandleDeliveryEvent(ctx, courierEvent(t, `{"event_type":"shipment.shipped","tracking_reference":"TRK-6","status":"shipped"}`))
	require.True(t, errors.Is(err, orders.ErrIllegalTransition))

	claim, err := h.guard.Lookup(ctx, h.client.DB(), "TRK-6:shipment.shipped:shipped", enums.EffectDeliveryUpdate)
	require.NoError(t, err)
	require.Nil(t, claim)
}
