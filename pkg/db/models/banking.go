package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bookloop/orderflow/pkg/enums"
)

// SellerBankingDetail holds a seller's encrypted payout account.
type SellerBankingDetail struct {
	ID                     uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	SellerID               uuid.UUID           `gorm:"column:seller_id;type:uuid;not null"`
	AccountHolder          string              `gorm:"column:account_holder;not null"`
	BankName               string              `gorm:"column:bank_name;not null"`
	AccountNumberEncrypted string              `gorm:"column:account_number_encrypted;not null"`
	Status                 enums.BankingStatus `gorm:"column:status;not null"`
	CreatedAt              time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (SellerBankingDetail) TableName() string { return "seller_banking_details" }

func (s *SellerBankingDetail) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
