package orders

import "github.com/bookloop/orderflow/pkg/enums"

// transitions lists the statuses each status may move to. Anything absent is illegal.
var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusCreated: {enums.OrderStatusPendingPayment},
	enums.OrderStatusPendingPayment: {
		enums.OrderStatusPaid,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusPaid: {
		enums.OrderStatusCommitted,
		enums.OrderStatusCancelledRefunded,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusCommitted: {
		enums.OrderStatusShipped,
		enums.OrderStatusInTransit,
		enums.OrderStatusDelivered,
		enums.OrderStatusCollected,
		enums.OrderStatusRefunded,
	},
	enums.OrderStatusShipped: {
		enums.OrderStatusInTransit,
		enums.OrderStatusDelivered,
		enums.OrderStatusCollected,
	},
	enums.OrderStatusInTransit: {
		enums.OrderStatusDelivered,
		enums.OrderStatusCollected,
	},
	enums.OrderStatusDelivered: {enums.OrderStatusCompleted},
	enums.OrderStatusCollected: {enums.OrderStatusCompleted},
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Predecessors returns every status that may move directly into to.
func Predecessors(to enums.OrderStatus) []enums.OrderStatus {
	var out []enums.OrderStatus
	for from, nexts := range transitions {
		for _, next := range nexts {
			if next == to {
				out = append(out, from)
			}
		}
	}
	return out
}

// IsRefundable reports whether an order in status may still be refunded to the buyer.
func IsRefundable(status enums.OrderStatus) bool {
	return status == enums.OrderStatusPaid || status == enums.OrderStatusCommitted
}
