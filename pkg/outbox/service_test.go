package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bookloop/orderflow/pkg/db/dbtest"
	"github.com/bookloop/orderflow/pkg/db/models"
	"github.com/bookloop/orderflow/pkg/enums"
)

func TestEmitWritesEnvelopeInsideTx(t *testing.T) {
	client := dbtest.Client(t)
	repo := NewRepository(client.DB())
	svc := NewService(repo, nil)

	orderID := uuid.New()
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Data:          map[string]string{"to": "paid"},
		})
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	var rows []models.OutboxEvent
	if err := client.DB().Find(&rows).Error; err != nil {
		t.Fatalf("load rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one outbox row, got %d", len(rows))
	}
	var env PayloadEnvelope
	if err := json.Unmarshal(rows[0].Payload, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Version != 1 || env.EventID == "" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if rows[0].AggregateID != orderID {
		t.Fatalf("aggregate mismatch")
	}
}

func TestEmitRollsBackWithTx(t *testing.T) {
	client := dbtest.Client(t)
	svc := NewService(NewRepository(client.DB()), nil)

	_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventNotificationRequested,
			AggregateType: enums.AggregateNotification,
			AggregateID:   uuid.New(),
			Data:          struct{}{},
		}); err != nil {
			t.Fatalf("emit: %v", err)
		}
		return context.Canceled
	})

	var count int64
	client.DB().Model(&models.OutboxEvent{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected rollback to discard event, got %d rows", count)
	}
}

func TestEmitRejectsUnknownEventAndMissingTx(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	if err := svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventOrderSettled}); err == nil {
		t.Fatalf("expected error without tx")
	}
	client := dbtest.Client(t)
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{EventType: "bogus"})
	})
	if err == nil {
		t.Fatalf("expected unknown event type error")
	}
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	client := dbtest.Client(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()

	first := models.OutboxEvent{EventType: enums.EventOrderSettled, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	second := models.OutboxEvent{EventType: enums.EventOrderSettled, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), AttemptCount: 5}
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := repo.Insert(tx, first); err != nil {
			return err
		}
		return repo.Insert(tx, second)
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	var batch []models.OutboxEvent
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		batch, err = repo.FetchUnpublishedForPublish(tx, 10, 5)
		return err
	}); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(batch) != 1 {
		t.Fatalf("expected exhausted row to be skipped, got %d rows", len(batch))
	}

	publishedAt := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Second)
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return repo.MarkPublishedTx(tx, batch[0].ID, publishedAt)
	}); err != nil {
		t.Fatalf("mark published: %v", err)
	}

	deleted, err := repo.DeletePublishedBefore(nil, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected one pruned row, got %d", deleted)
	}
}
