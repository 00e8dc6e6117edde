package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/bookloop/orderflow/pkg/db/dbtest"
	"github.com/bookloop/orderflow/pkg/db/models"
	"github.com/bookloop/orderflow/pkg/enums"
	"github.com/bookloop/orderflow/pkg/outbox"
	"github.com/bookloop/orderflow/pkg/outbox/payloads"
)

type failingEmitter struct {
	calls int
	fail  map[int]error
	inner outbox.Emitter
}

func (f *failingEmitter) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	f.calls++
	if err := f.fail[f.calls]; err != nil {
		return err
	}
	return f.inner.Emit(ctx, tx, event)
}

func TestNotifyWritesOutboxRows(t *testing.T) {
	conn := dbtest.Open(t)
	svc, err := NewService(outbox.NewService(outbox.NewRepository(conn), nil), nil)
	require.NoError(t, err)

	orderID, buyerID, sellerID := uuid.New(), uuid.New(), uuid.New()
	err = conn.Transaction(func(tx *gorm.DB) error {
		return svc.Notify(context.Background(), tx,
			Message{OrderID: orderID, RecipientID: buyerID, Email: "buyer@example.com", Template: enums.NotificationPaymentConfirmed},
			Message{OrderID: orderID, RecipientID: sellerID, Template: enums.NotificationNewOrder, Data: map[string]string{"deadline_hours": "48"}},
		)
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Order("created_at ASC").Find(&rows).Error)
	require.Len(t, rows, 2)

	templates := map[enums.NotificationTemplate]payloads.NotificationRequestedEvent{}
	for _, row := range rows {
		require.Equal(t, enums.EventNotificationRequested, row.EventType)
		require.Equal(t, orderID, row.AggregateID)
		var envelope struct {
			Data payloads.NotificationRequestedEvent `json:"data"`
		}
		require.NoError(t, json.Unmarshal(row.Payload, &envelope))
		templates[envelope.Data.Template] = envelope.Data
	}
	require.Equal(t, buyerID, templates[enums.NotificationPaymentConfirmed].RecipientID)
	require.Equal(t, "48", templates[enums.NotificationNewOrder].Data["deadline_hours"])
}

func TestNotifyAggregatesFailures(t *testing.T) {
	conn := dbtest.Open(t)
	emitter := &failingEmitter{
		fail:  map[int]error{1: errors.New("disk full")},
		inner: outbox.NewService(outbox.NewRepository(conn), nil),
	}
	svc, err := NewService(emitter, nil)
	require.NoError(t, err)

	orderID := uuid.New()
	var notifyErr error
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		notifyErr = svc.Notify(context.Background(), tx,
			Message{OrderID: orderID, RecipientID: uuid.New(), Template: enums.NotificationRefundIssued},
			Message{OrderID: orderID, Template: enums.NotificationOrderCancelled},
			Message{OrderID: orderID, RecipientID: uuid.New(), Template: enums.NotificationOrderShipped},
		)
		return nil
	}))

	require.Error(t, notifyErr)
	require.Len(t, multierr.Errors(notifyErr), 2)
	require.Equal(t, 2, emitter.calls)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestNewServiceRequiresEmitter(t *testing.T) {
	_, err := NewService(nil, nil)
	require.Error(t, err)
}
