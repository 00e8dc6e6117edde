package refunds

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bookloop/orderflow/pkg/db/models"
	"github.com/bookloop/orderflow/pkg/enums"
)

// ErrForbidden means the actor is not a party to the order.
var ErrForbidden = errors.New("actor may not refund this order")

// Actor is the authenticated caller asking for a refund.
type Actor struct {
	UserID uuid.UUID
	Role   enums.ActorRole
}

// Authorize maps actor to the initiator recorded on the refund. Only the
// buyer, the seller and admins may refund.
func Authorize(order *models.Order, actor Actor) (enums.RefundInitiator, error) {
	switch {
	case actor.Role == enums.ActorRoleAdmin:
		return enums.RefundInitiatorAdmin, nil
	case actor.UserID == uuid.Nil:
		return "", ErrForbidden
	case actor.UserID == order.BuyerID:
		return enums.RefundInitiatorBuyer, nil
	case actor.UserID == order.SellerID:
		return enums.RefundInitiatorSeller, nil
	}
	return "", ErrForbidden
}

// EligibilityPolicy caps how much of an order may be returned. It is owned by
// the marketplace and opaque here.
type EligibilityPolicy interface {
	MaxRefundAmount(ctx context.Context, order *models.Order) (decimal.Decimal, error)
}

// FullAmountPolicy allows refunding the whole order.
type FullAmountPolicy struct{}

func (FullAmountPolicy) MaxRefundAmount(_ context.Context, order *models.Order) (decimal.Decimal, error) {
	return order.Amount, nil
}
