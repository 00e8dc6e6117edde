package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bookloop/orderflow/pkg/enums"
)

// Order is the aggregate root for a single book purchase.
type Order struct {
	ID                 uuid.UUID             `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	BuyerID            uuid.UUID             `gorm:"column:buyer_id;type:uuid;not null" json:"buyer_id"`
	SellerID           uuid.UUID             `gorm:"column:seller_id;type:uuid;not null" json:"seller_id"`
	BookID             uuid.UUID             `gorm:"column:book_id;type:uuid;not null" json:"book_id"`
	ItemName           string                `gorm:"column:item_name;not null" json:"item_name"`
	BuyerEmail         string                `gorm:"column:buyer_email;not null" json:"-"`
	Amount             decimal.Decimal       `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	PaymentProvider    enums.PaymentProvider `gorm:"column:payment_provider;not null" json:"payment_provider"`
	PaymentReference   *string               `gorm:"column:payment_reference" json:"payment_reference,omitempty"`
	Status             enums.OrderStatus     `gorm:"column:status;not null" json:"status"`
	PaymentStatus      enums.PaymentStatus   `gorm:"column:payment_status;not null" json:"payment_status"`
	DeliveryStatus     enums.DeliveryStatus  `gorm:"column:delivery_status;not null" json:"delivery_status"`
	RefundStatus       enums.RefundStatus    `gorm:"column:refund_status;not null" json:"refund_status"`
	PayoutMethod       *enums.PayoutMethod   `gorm:"column:payout_method" json:"payout_method,omitempty"`
	TrackingNumber     *string               `gorm:"column:tracking_number" json:"tracking_number,omitempty"`
	Courier            *string               `gorm:"column:courier" json:"courier,omitempty"`
	CancellationReason *string               `gorm:"column:cancellation_reason" json:"cancellation_reason,omitempty"`
	CommitDeadline     *time.Time            `gorm:"column:commit_deadline" json:"commit_deadline,omitempty"`
	PaidAt             *time.Time            `gorm:"column:paid_at" json:"paid_at,omitempty"`
	CommittedAt        *time.Time            `gorm:"column:committed_at" json:"committed_at,omitempty"`
	DeliveredAt        *time.Time            `gorm:"column:delivered_at" json:"delivered_at,omitempty"`
	CompletedAt        *time.Time            `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CancelledAt        *time.Time            `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt          time.Time             `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time             `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

// BeforeCreate assigns an id when the caller did not.
func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
