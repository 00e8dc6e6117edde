package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bookloop/orderflow/pkg/db"
	"github.com/bookloop/orderflow/pkg/db/dbtest"
	"github.com/bookloop/orderflow/pkg/db/models"
	"github.com/bookloop/orderflow/pkg/enums"
	"github.com/bookloop/orderflow/pkg/outbox"
)

func newMachine(t *testing.T) (*Machine, *db.Client) {
	t.Helper()
	client := dbtest.Client(t)
	emitter := outbox.NewService(outbox.NewRepository(client.DB()), nil)
	m, err := NewMachine(NewRepository(client.DB()), emitter, nil)
	require.NoError(t, err)
	return m, client
}

func seedOrder(t *testing.T, conn *gorm.DB, status enums.OrderStatus) *models.Order {
	t.Helper()
	order := &models.Order{
		BuyerID:         uuid.New(),
		SellerID:        uuid.New(),
		BookID:          uuid.New(),
		ItemName:        "Dune",
		BuyerEmail:      "buyer@example.com",
		Amount:          decimal.RequireFromString("250.00"),
		PaymentProvider: enums.PaymentProviderPaystack,
		Status:          status,
		PaymentStatus:   enums.PaymentStatusPending,
		DeliveryStatus:  enums.DeliveryStatusNone,
		RefundStatus:    enums.RefundStatusNone,
	}
	require.NoError(t, conn.Create(order).Error)
	return order
}

func transition(t *testing.T, m *Machine, client *db.Client, id uuid.UUID, change Change) (*models.Order, error) {
	t.Helper()
	var out *models.Order
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		out, err = m.Transition(context.Background(), tx, id, change)
		return err
	})
	return out, err
}

func TestTransitionAppliesFieldsAndEmitsEvent(t *testing.T) {
	m, client := newMachine(t)
	order := seedOrder(t, client.DB(), enums.OrderStatusPendingPayment)
	deadline := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second)

	updated, err := transition(t, m, client, order.ID, Change{
		To: enums.OrderStatusPaid,
		Fields: map[string]any{
			"payment_status":  enums.PaymentStatusPaid,
			"commit_deadline": deadline,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, updated.Status)
	assert.Equal(t, enums.PaymentStatusPaid, updated.PaymentStatus)
	require.NotNil(t, updated.CommitDeadline)
	assert.True(t, deadline.Equal(*updated.CommitDeadline))

	var events []models.OutboxEvent
	require.NoError(t, client.DB().Where("event_type = ?", enums.EventOrderStatusChanged).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, order.ID, events[0].AggregateID)
}

func TestTransitionRejectsIllegalMoveWithoutMutation(t *testing.T) {
	m, client := newMachine(t)
	order := seedOrder(t, client.DB(), enums.OrderStatusPendingPayment)

	_, err := transition(t, m, client, order.ID, Change{To: enums.OrderStatusDelivered})
	require.ErrorIs(t, err, ErrIllegalTransition)

	reloaded, err := NewRepository(client.DB()).FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPendingPayment, reloaded.Status)

	var count int64
	client.DB().Model(&models.OutboxEvent{}).Count(&count)
	assert.Zero(t, count)
}

func TestTransitionToCurrentStatusIsAlreadyApplied(t *testing.T) {
	m, client := newMachine(t)
	order := seedOrder(t, client.DB(), enums.OrderStatusPaid)

	_, err := transition(t, m, client, order.ID, Change{To: enums.OrderStatusPaid})
	require.ErrorIs(t, err, ErrAlreadyApplied)
}

func TestTransitionUnknownOrder(t *testing.T) {
	m, client := newMachine(t)
	_, err := transition(t, m, client, uuid.New(), Change{To: enums.OrderStatusPaid})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStatusNeverMovesAlongMissingEdges(t *testing.T) {
	all := []enums.OrderStatus{
		enums.OrderStatusCreated, enums.OrderStatusPendingPayment, enums.OrderStatusPaid,
		enums.OrderStatusCommitted, enums.OrderStatusShipped, enums.OrderStatusInTransit,
		enums.OrderStatusDelivered, enums.OrderStatusCollected, enums.OrderStatusCompleted,
		enums.OrderStatusCancelled, enums.OrderStatusCancelledRefunded, enums.OrderStatusRefunded,
	}
	m, client := newMachine(t)
	for _, from := range all {
		for _, to := range all {
			if from == to || CanTransition(from, to) {
				continue
			}
			order := seedOrder(t, client.DB(), from)
			_, err := transition(t, m, client, order.ID, Change{To: to})
			if !errors.Is(err, ErrIllegalTransition) {
				t.Fatalf("%s -> %s: expected illegal transition, got %v", from, to, err)
			}
			reloaded, err := NewRepository(client.DB()).FindByID(context.Background(), order.ID)
			require.NoError(t, err)
			require.Equal(t, from, reloaded.Status)
		}
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	for _, s := range []enums.OrderStatus{
		enums.OrderStatusCompleted, enums.OrderStatusCancelled,
		enums.OrderStatusCancelledRefunded, enums.OrderStatusRefunded,
	} {
		require.True(t, s.IsTerminal())
		require.Empty(t, transitions[s], "terminal status %s has exits", s)
	}
}

func TestPredecessors(t *testing.T) {
	assert.ElementsMatch(t,
		[]enums.OrderStatus{enums.OrderStatusDelivered, enums.OrderStatusCollected},
		Predecessors(enums.OrderStatusCompleted))
	assert.ElementsMatch(t,
		[]enums.OrderStatus{enums.OrderStatusPaid, enums.OrderStatusCommitted},
		Predecessors(enums.OrderStatusRefunded))
	assert.True(t, IsRefundable(enums.OrderStatusCommitted))
	assert.False(t, IsRefundable(enums.OrderStatusShipped))
}
