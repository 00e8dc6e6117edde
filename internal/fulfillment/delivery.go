package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/bookloop/orderflow/internal/courier"
	"github.com/bookloop/orderflow/internal/idempotency"
	"github.com/bookloop/orderflow/internal/notifications"
	"github.com/bookloop/orderflow/internal/orders"
	"github.com/bookloop/orderflow/pkg/db/models"
	"github.com/bookloop/orderflow/pkg/enums"
)

// ErrUnknownShipment means no order carries the event's tracking number.
var ErrUnknownShipment = errors.New("no order for tracking number")

// DeliveryResult reports what a courier event did.
type DeliveryResult struct {
	Outcome idempotency.Outcome
	Order   *models.Order
	// Settled is set when the event confirmed delivery and the seller was paid.
	Settled *SettleResult
}

// HandleDeliveryEvent applies a courier tracking update. Updates that do not
// move the delivery forward are recorded and ignored. A confirmed delivery
// triggers settlement in its own transaction; a settlement failure leaves the
// order delivered for reconciliation and is not returned as an error.
func (e *Engine) HandleDeliveryEvent(ctx context.Context, event *courier.Event) (*DeliveryResult, error) {
	if event == nil {
		return nil, errors.New("courier event required")
	}
	key := event.IdempotencyKey()
	ctx = e.logg.WithFields(ctx, map[string]any{
		"tracking_number": event.TrackingReference,
		"idempotency_key": key,
		"delivery_status": string(event.Status),
	})

	var order *models.Order
	outcome, err := e.guard.Run(ctx, key, enums.EffectDeliveryUpdate, func(tx *gorm.DB) error {
		var err error
		order, err = e.applyDelivery(ctx, tx, event)
		return err
	})
	if err != nil {
		return nil, err
	}
	result := &DeliveryResult{Outcome: outcome, Order: order}

	if event.Kind() != courier.KindDeliveryConfirmed {
		return result, nil
	}
	if order == nil {
		current, err := e.orders.FindByTrackingNumber(ctx, event.TrackingReference)
		if err != nil {
			return result, nil
		}
		order = current
		result.Order = current
	}
	if order.Status != enums.OrderStatusDelivered && order.Status != enums.OrderStatusCollected {
		return result, nil
	}
	settled, err := e.Settle(ctx, order.ID)
	if err != nil {
		e.logg.Error(e.logg.WithOrderID(ctx, order.ID.String()), "settlement after delivery failed", err)
		e.metrics.Anomaly("settlement_failed")
		return result, nil
	}
	result.Settled = settled
	result.Order = settled.Order
	return result, nil
}

func (e *Engine) applyDelivery(ctx context.Context, tx *gorm.DB, event *courier.Event) (*models.Order, error) {
	repo := e.orders.WithTx(tx)
	order, err := repo.FindByTrackingNumber(ctx, event.TrackingReference)
	if errors.Is(err, orders.ErrNotFound) {
		return nil, fmt.Errorf("%w %q", ErrUnknownShipment, event.TrackingReference)
	}
	if err != nil {
		return nil, err
	}
	ctx = e.logg.WithOrderID(ctx, order.ID.String())

	if event.Kind() == courier.KindShipmentCancelled {
		return e.cancelShipment(ctx, tx, order)
	}

	next := event.Status
	if !order.DeliveryStatus.Advances(next) {
		e.logg.Info(ctx, "stale delivery update ignored")
		return order, nil
	}
	fields := map[string]any{"delivery_status": next}
	target, drives := next.OrderStatus()
	if !drives || target == order.Status {
		if err := repo.UpdateFields(ctx, order.ID, fields); err != nil {
			return nil, err
		}
		return repo.FindByID(ctx, order.ID)
	}

	if target == enums.OrderStatusDelivered || target == enums.OrderStatusCollected {
		fields["delivered_at"] = e.now().UTC()
	}
	updated, err := e.machine.Transition(ctx, tx, order.ID, orders.Change{
		To:     target,
		Fields: fields,
		Reason: "courier_" + string(next),
	})
	if err != nil {
		return nil, err
	}

	var msg *notifications.Message
	switch target {
	case enums.OrderStatusShipped:
		msg = &notifications.Message{Template: enums.NotificationOrderShipped}
	case enums.OrderStatusDelivered, enums.OrderStatusCollected:
		msg = &notifications.Message{Template: enums.NotificationOrderDelivered}
	}
	if msg != nil {
		msg.OrderID = order.ID
		msg.RecipientID = order.BuyerID
		msg.Email = order.BuyerEmail
		msg.Data = map[string]string{"item_name": order.ItemName, "tracking_number": event.TrackingReference}
		if event.Location != nil {
			msg.Data["location"] = *event.Location
		}
		if err := e.notifier.Notify(ctx, tx, *msg); err != nil {
			return nil, err
		}
	}
	return updated, nil
}

func (e *Engine) cancelShipment(ctx context.Context, tx *gorm.DB, order *models.Order) (*models.Order, error) {
	repo := e.orders.WithTx(tx)
	if order.DeliveryStatus == enums.DeliveryStatusCancelled {
		return order, nil
	}
	if order.DeliveryStatus == enums.DeliveryStatusDelivered || order.DeliveryStatus == enums.DeliveryStatusCollected {
		e.logg.Anomaly(ctx, "courier cancelled a delivered shipment", nil)
		e.metrics.Anomaly("cancel_after_delivery")
		return order, nil
	}
	if err := repo.UpdateFields(ctx, order.ID, map[string]any{"delivery_status": enums.DeliveryStatusCancelled}); err != nil {
		return nil, err
	}
	if err := e.notifier.Notify(ctx, tx, notifications.Message{
		OrderID:     order.ID,
		RecipientID: order.SellerID,
		Template:    enums.NotificationShipmentCancelled,
		Data:        map[string]string{"item_name": order.ItemName},
	}); err != nil {
		return nil, err
	}
	e.logg.Info(ctx, "courier shipment cancelled")
	return repo.FindByID(ctx, order.ID)
}
