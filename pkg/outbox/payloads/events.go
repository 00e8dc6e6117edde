package payloads

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bookloop/orderflow/pkg/enums"
)

// OrderStatusChangedEvent is emitted for every applied order transition.
type OrderStatusChangedEvent struct {
	OrderID  uuid.UUID         `json:"order_id"`
	From     enums.OrderStatus `json:"from"`
	To       enums.OrderStatus `json:"to"`
	BuyerID  uuid.UUID         `json:"buyer_id"`
	SellerID uuid.UUID         `json:"seller_id"`
	Reason   string            `json:"reason,omitempty"`
}

// NotificationRequestedEvent asks the notification consumer to message a user.
type NotificationRequestedEvent struct {
	OrderID     uuid.UUID                  `json:"order_id"`
	RecipientID uuid.UUID                  `json:"recipient_id"`
	Email       string                     `json:"email,omitempty"`
	Template    enums.NotificationTemplate `json:"template"`
	Data        map[string]string          `json:"data,omitempty"`
}

// RefundCompletedEvent records a successful refund.
type RefundCompletedEvent struct {
	OrderID     uuid.UUID             `json:"order_id"`
	RefundID    uuid.UUID             `json:"refund_id"`
	Provider    enums.PaymentProvider `json:"provider"`
	Amount      decimal.Decimal       `json:"amount"`
	InitiatedBy enums.RefundInitiator `json:"initiated_by"`
	FinalStatus enums.OrderStatus     `json:"final_status"`
}

// OrderSettledEvent records how the seller was paid for a completed order.
type OrderSettledEvent struct {
	OrderID      uuid.UUID          `json:"order_id"`
	SellerID     uuid.UUID          `json:"seller_id"`
	PayoutMethod enums.PayoutMethod `json:"payout_method"`
	GrossAmount  decimal.Decimal    `json:"gross_amount"`
	NetAmount    decimal.Decimal    `json:"net_amount"`
}
