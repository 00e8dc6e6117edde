package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bookloop/orderflow/pkg/enums"
)

// PaymentTransaction records a single attempt to charge the buyer.
type PaymentTransaction struct {
	ID                    uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID               uuid.UUID               `gorm:"column:order_id;type:uuid;not null"`
	Provider              enums.PaymentProvider   `gorm:"column:provider;not null"`
	ProviderReference     string                  `gorm:"column:provider_reference;not null"`
	ProviderTransactionID *string                 `gorm:"column:provider_transaction_id"`
	PaymentMethod         *string                 `gorm:"column:payment_method"`
	PaymentURL            *string                 `gorm:"column:payment_url"`
	Amount                decimal.Decimal         `gorm:"column:amount;type:numeric(12,2);not null"`
	Status                enums.TransactionStatus `gorm:"column:status;not null"`
	RawResponse           json.RawMessage         `gorm:"column:raw_response;type:jsonb"`
	CreatedAt             time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentTransaction) TableName() string { return "payment_transactions" }

func (p *PaymentTransaction) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
