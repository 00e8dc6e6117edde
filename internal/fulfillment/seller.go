package fulfillment

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bookloop/orderflow/internal/notifications"
	"github.com/bookloop/orderflow/internal/orders"
	"github.com/bookloop/orderflow/pkg/db/models"
	"github.com/bookloop/orderflow/pkg/enums"
	pkgerrors "github.com/bookloop/orderflow/pkg/errors"
	"github.com/bookloop/orderflow/pkg/outbox"
)

// ErrNotParticipant means the caller is neither buyer nor seller of the order.
var ErrNotParticipant = errors.New("caller is not a party to this order")

// Commit records the seller's promise to ship. It is refused once the commit
// deadline has passed or while a refund is underway.
func (e *Engine) Commit(ctx context.Context, orderID, sellerID uuid.UUID) (*models.Order, error) {
	ctx = e.logg.WithOrderID(ctx, orderID.String())
	var result *models.Order
	err := e.db.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := e.orders.WithTx(tx).FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.SellerID != sellerID {
			return ErrNotParticipant
		}
		if order.Status == enums.OrderStatusCommitted {
			result = order
			return nil
		}
		now := e.now().UTC()
		if order.CommitDeadline != nil && !now.Before(*order.CommitDeadline) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "commit deadline has passed")
		}
		if order.RefundStatus == enums.RefundStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "a refund is in progress for this order")
		}

		result, err = e.machine.Transition(ctx, tx, orderID, orders.Change{
			To:     enums.OrderStatusCommitted,
			Fields: map[string]any{"committed_at": now},
			Reason: "seller_committed",
			Actor:  &outbox.ActorRef{UserID: sellerID, Role: string(enums.RefundInitiatorSeller)},
		})
		if err != nil {
			return err
		}
		return e.notifier.Notify(ctx, tx, notifications.Message{
			OrderID:     orderID,
			RecipientID: order.BuyerID,
			Email:       order.BuyerEmail,
			Template:    enums.NotificationOrderCommitted,
			Data:        map[string]string{"item_name": order.ItemName},
		})
	})
	if err != nil {
		return nil, userError(err)
	}
	e.logg.Info(ctx, "order committed")
	return result, nil
}

// ShipmentInput carries the courier booking for a committed order.
type ShipmentInput struct {
	TrackingNumber string
	Courier        string
}

// AttachShipment stores the tracking number courier webhooks are matched on.
// Repeating the call with the same tracking number is a no-op.
func (e *Engine) AttachShipment(ctx context.Context, orderID, sellerID uuid.UUID, input ShipmentInput) (*models.Order, error) {
	tracking := strings.TrimSpace(input.TrackingNumber)
	if tracking == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tracking number required")
	}
	courierName := strings.TrimSpace(input.Courier)
	ctx = e.logg.WithOrderID(ctx, orderID.String())

	var result *models.Order
	err := e.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := e.orders.WithTx(tx)
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.SellerID != sellerID {
			return ErrNotParticipant
		}
		if order.TrackingNumber != nil && *order.TrackingNumber != "" {
			if *order.TrackingNumber == tracking {
				result = order
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeConflict, "order already has a different tracking number")
		}
		if order.Status != enums.OrderStatusCommitted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only committed orders can be shipped")
		}
		other, err := repo.FindByTrackingNumber(ctx, tracking)
		switch {
		case err == nil && other.ID != orderID:
			return pkgerrors.New(pkgerrors.CodeConflict, "tracking number already used by another order")
		case err != nil && !errors.Is(err, orders.ErrNotFound):
			return err
		}

		fields := map[string]any{
			"tracking_number": tracking,
			"delivery_status": enums.DeliveryStatusSubmitted,
		}
		if courierName != "" {
			fields["courier"] = courierName
		}
		if err := repo.UpdateFields(ctx, orderID, fields); err != nil {
			return err
		}
		result, err = repo.FindByID(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, userError(err)
	}
	e.logg.Info(e.logg.WithField(ctx, "tracking_number", tracking), "shipment attached")
	return result, nil
}
