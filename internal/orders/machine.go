package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bookloop/orderflow/pkg/db/models"
	"github.com/bookloop/orderflow/pkg/enums"
	"github.com/bookloop/orderflow/pkg/logger"
	"github.com/bookloop/orderflow/pkg/outbox"
	"github.com/bookloop/orderflow/pkg/outbox/payloads"
)

// Change describes one requested status move.
type Change struct {
	To     enums.OrderStatus
	Fields map[string]any
	Reason string
	Actor  *outbox.ActorRef
}

// Machine is the single place order status is mutated.
type Machine struct {
	repo   Repository
	outbox outbox.Emitter
	logg   *logger.Logger
}

func NewMachine(repo Repository, emitter outbox.Emitter, logg *logger.Logger) (*Machine, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Machine{repo: repo, outbox: emitter, logg: logg}, nil
}

// Transition applies change to the order inside tx.
//
// The write is a compare-and-set on the status observed in the same tx, so a
// concurrent writer that got there first makes this call fail with
// ErrAlreadyApplied or ErrIllegalTransition instead of overwriting it.
func (m *Machine) Transition(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, change Change) (*models.Order, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if !change.To.IsValid() {
		return nil, fmt.Errorf("unknown target status %q", change.To)
	}
	repo := m.repo.WithTx(tx)

	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	from := order.Status
	if err := checkTransition(from, change.To); err != nil {
		return order, err
	}

	ok, err := repo.setStatus(ctx, orderID, from, change.To, change.Fields)
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	if !ok {
		current, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if current.Status == change.To {
			return current, ErrAlreadyApplied
		}
		return current, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, current.Status, change.To)
	}

	updated, err := repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         change.Actor,
		Data: payloads.OrderStatusChangedEvent{
			OrderID:  orderID,
			From:     from,
			To:       change.To,
			BuyerID:  updated.BuyerID,
			SellerID: updated.SellerID,
			Reason:   change.Reason,
		},
	}
	if err := m.outbox.Emit(ctx, tx, event); err != nil {
		return nil, fmt.Errorf("emit status change: %w", err)
	}

	logCtx := m.logg.WithFields(ctx, map[string]any{
		"order_id": orderID.String(),
		"from":     from,
		"to":       change.To,
	})
	m.logg.Info(logCtx, "order transitioned")
	return updated, nil
}

func checkTransition(from, to enums.OrderStatus) error {
	if from == to {
		return ErrAlreadyApplied
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}
