// Package notifications queues buyer and seller messages through the outbox.
// Delivery happens in the notification consumer outside this service.
package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/bookloop/orderflow/pkg/enums"
	"github.com/bookloop/orderflow/pkg/logger"
	"github.com/bookloop/orderflow/pkg/outbox"
	"github.com/bookloop/orderflow/pkg/outbox/payloads"
)

// Message is one notification for one recipient.
type Message struct {
	OrderID     uuid.UUID
	RecipientID uuid.UUID
	Email       string
	Template    enums.NotificationTemplate
	Data        map[string]string
}

// Notifier is what order flows depend on.
type Notifier interface {
	Notify(ctx context.Context, tx *gorm.DB, msgs ...Message) error
}

type Service struct {
	outbox outbox.Emitter
	logg   *logger.Logger
}

func NewService(emitter outbox.Emitter, logg *logger.Logger) (*Service, error) {
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{outbox: emitter, logg: logg}, nil
}

// Notify writes one notification_requested event per message in tx. Every
// message is attempted; failures are combined into the returned error.
func (s *Service) Notify(ctx context.Context, tx *gorm.DB, msgs ...Message) error {
	var errs error
	for _, msg := range msgs {
		if msg.RecipientID == uuid.Nil {
			errs = multierr.Append(errs, fmt.Errorf("notification %s for order %s: recipient required", msg.Template, msg.OrderID))
			continue
		}
		err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventNotificationRequested,
			AggregateType: enums.AggregateNotification,
			AggregateID:   msg.OrderID,
			Data: payloads.NotificationRequestedEvent{
				OrderID:     msg.OrderID,
				RecipientID: msg.RecipientID,
				Email:       msg.Email,
				Template:    msg.Template,
				Data:        msg.Data,
			},
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("notification %s for order %s: %w", msg.Template, msg.OrderID, err))
			continue
		}
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"order_id":  msg.OrderID.String(),
			"template":  string(msg.Template),
			"recipient": msg.RecipientID.String(),
		}), "notification queued")
	}
	return errs
}
