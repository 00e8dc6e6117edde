package enums

// NotificationTemplate identifies the message the notification consumer renders.
type NotificationTemplate string

const (
	NotificationPaymentConfirmed  NotificationTemplate = "buyer_payment_confirmed"
	NotificationNewOrder          NotificationTemplate = "seller_new_order"
	NotificationPaymentFailed     NotificationTemplate = "buyer_payment_failed"
	NotificationOrderCommitted    NotificationTemplate = "buyer_order_committed"
	NotificationOrderShipped      NotificationTemplate = "buyer_order_shipped"
	NotificationOrderDelivered    NotificationTemplate = "buyer_order_delivered"
	NotificationPayoutCredited    NotificationTemplate = "seller_payout_credited"
	NotificationPayoutScheduled   NotificationTemplate = "seller_payout_scheduled"
	NotificationRefundIssued      NotificationTemplate = "buyer_refund_issued"
	NotificationOrderCancelled    NotificationTemplate = "seller_order_cancelled"
	NotificationShipmentCancelled NotificationTemplate = "seller_shipment_cancelled"
)
