package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bookloop/orderflow/pkg/enums"
)

// AffiliateReferral records that a seller joined through an affiliate.
type AffiliateReferral struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	AffiliateID uuid.UUID `gorm:"column:affiliate_id;type:uuid;not null"`
	SellerID    uuid.UUID `gorm:"column:seller_id;type:uuid;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (AffiliateReferral) TableName() string { return "affiliate_referrals" }

func (a *AffiliateReferral) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// AffiliateOrder links an order to the affiliate owed commission on it.
type AffiliateOrder struct {
	ID               uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          uuid.UUID                  `gorm:"column:order_id;type:uuid;not null"`
	AffiliateID      uuid.UUID                  `gorm:"column:affiliate_id;type:uuid;not null"`
	SellerID         uuid.UUID                  `gorm:"column:seller_id;type:uuid;not null"`
	CommissionAmount decimal.Decimal            `gorm:"column:commission_amount;type:numeric(12,2);not null"`
	Status           enums.AffiliateOrderStatus `gorm:"column:status;not null"`
	CreatedAt        time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}

func (AffiliateOrder) TableName() string { return "affiliate_orders" }

func (a *AffiliateOrder) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
