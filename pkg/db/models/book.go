package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Book is the read-only slice of a marketplace listing needed at checkout.
type Book struct {
	ID       uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	SellerID uuid.UUID       `gorm:"column:seller_id;type:uuid;not null"`
	Title    string          `gorm:"column:title;not null"`
	Price    decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	Status   string          `gorm:"column:status;not null"`
}

func (Book) TableName() string { return "books" }
