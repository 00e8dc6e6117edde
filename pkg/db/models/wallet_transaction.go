package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bookloop/orderflow/pkg/enums"
)

// WalletTransaction is an append-only seller wallet movement. (order_id, type) is unique.
type WalletTransaction struct {
	ID          uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	SellerID    uuid.UUID                   `gorm:"column:seller_id;type:uuid;not null"`
	OrderID     uuid.UUID                   `gorm:"column:order_id;type:uuid;not null"`
	Type        enums.WalletTransactionType `gorm:"column:type;not null"`
	Amount      decimal.Decimal             `gorm:"column:amount;type:numeric(12,2);not null"`
	GrossAmount decimal.Decimal             `gorm:"column:gross_amount;type:numeric(12,2);not null"`
	FeeAmount   decimal.Decimal             `gorm:"column:fee_amount;type:numeric(12,2);not null"`
	Description string                      `gorm:"column:description;not null"`
	CreatedAt   time.Time                   `gorm:"column:created_at;autoCreateTime"`
}

func (WalletTransaction) TableName() string { return "wallet_transactions" }

func (w *WalletTransaction) BeforeCreate(*gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
