package enums

import "fmt"

// DeliveryStatus is the courier-driven sub-status of an order.
type DeliveryStatus string

const (
	DeliveryStatusNone      DeliveryStatus = "none"
	DeliveryStatusSubmitted DeliveryStatus = "submitted"
	DeliveryStatusShipped   DeliveryStatus = "shipped"
	DeliveryStatusInTransit DeliveryStatus = "in_transit"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusCollected DeliveryStatus = "collected"
	DeliveryStatusCancelled DeliveryStatus = "cancelled"
)

var deliveryRank = map[DeliveryStatus]int{
	DeliveryStatusNone:      0,
	DeliveryStatusSubmitted: 1,
	DeliveryStatusShipped:   2,
	DeliveryStatusInTransit: 3,
	DeliveryStatusDelivered: 4,
	DeliveryStatusCollected: 4,
}

// IsValid reports whether the value is a known DeliveryStatus.
func (d DeliveryStatus) IsValid() bool {
	if d == DeliveryStatusCancelled {
		return true
	}
	_, ok := deliveryRank[d]
	return ok
}

// Advances reports whether moving from d to next is forward progress.
// Cancellation is never progress.
func (d DeliveryStatus) Advances(next DeliveryStatus) bool {
	from, okFrom := deliveryRank[d]
	to, okTo := deliveryRank[next]
	if !okFrom || !okTo {
		return false
	}
	return to > from
}

// OrderStatus maps a delivery sub-status onto the order status it drives, if any.
func (d DeliveryStatus) OrderStatus() (OrderStatus, bool) {
	switch d {
	case DeliveryStatusShipped:
		return OrderStatusShipped, true
	case DeliveryStatusInTransit:
		return OrderStatusInTransit, true
	case DeliveryStatusDelivered:
		return OrderStatusDelivered, true
	case DeliveryStatusCollected:
		return OrderStatusCollected, true
	}
	return "", false
}

// ParseDeliveryStatus converts raw input into a DeliveryStatus.
func ParseDeliveryStatus(value string) (DeliveryStatus, error) {
	status := DeliveryStatus(value)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid delivery status %q", value)
	}
	return status, nil
}
