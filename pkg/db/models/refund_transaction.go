package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bookloop/orderflow/pkg/enums"
)

// RefundTransaction records a single attempt to return funds to the buyer.
type RefundTransaction struct {
	ID               uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          uuid.UUID               `gorm:"column:order_id;type:uuid;not null"`
	Provider         enums.PaymentProvider   `gorm:"column:provider;not null"`
	Amount           decimal.Decimal         `gorm:"column:amount;type:numeric(12,2);not null"`
	Reason           string                  `gorm:"column:reason;not null"`
	InitiatedBy      enums.RefundInitiator   `gorm:"column:initiated_by;not null"`
	ActorID          *uuid.UUID              `gorm:"column:actor_id;type:uuid"`
	Status           enums.TransactionStatus `gorm:"column:status;not null"`
	ProviderResponse json.RawMessage         `gorm:"column:provider_response;type:jsonb"`
	ErrorMessage     *string                 `gorm:"column:error_message"`
	CreatedAt        time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (RefundTransaction) TableName() string { return "refund_transactions" }

func (r *RefundTransaction) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
