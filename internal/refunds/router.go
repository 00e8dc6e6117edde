package refunds

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/bookloop/orderflow/internal/courier"
	"github.com/bookloop/orderflow/internal/payments"
	"github.com/bookloop/orderflow/pkg/db/models"
	"github.com/bookloop/orderflow/pkg/enums"
	"github.com/bookloop/orderflow/pkg/logger"
)

// Path names the branch of the routing table an order takes.
type Path string

const (
	// PathCommittedCancel cancels the courier shipment before refunding.
	PathCommittedCancel Path = "committed_cancel"
	PathProvider        Path = "provider"
)

// Decision is the routing outcome for one refund.
type Decision struct {
	Path           Path
	Ref            payments.ProviderRef
	CancelShipment bool
}

// Router picks and executes the refund path for an order.
type Router struct {
	providers *payments.Registry
	courier   courier.Canceller
	logg      *logger.Logger
}

// NewRouter wires the router. canceller may be nil when no courier API is
// configured; committed orders with a tracking number then fail closed.
func NewRouter(providers *payments.Registry, canceller courier.Canceller, logg *logger.Logger) (*Router, error) {
	if providers == nil {
		return nil, fmt.Errorf("payment providers required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Router{providers: providers, courier: canceller, logg: logg}, nil
}

// Plan decides the refund path. Committed orders always take the cancel path.
// Every other order goes straight to its processor, and an order whose
// processor cannot be determined is refused.
func (r *Router) Plan(order *models.Order, txn *models.PaymentTransaction, amount decimal.Decimal) (*Decision, error) {
	decision := &Decision{Path: PathProvider, Ref: payments.RefFor(order, txn)}
	if order.Status == enums.OrderStatusCommitted {
		decision.Path = PathCommittedCancel
		decision.CancelShipment = order.TrackingNumber != nil && strings.TrimSpace(*order.TrackingNumber) != ""
	}

	switch ref := decision.Ref.(type) {
	case payments.BobPayRef:
		if ref.PaymentID == "" {
			return nil, payments.ErrMissingReference
		}
		if amount.LessThan(order.Amount) {
			return nil, payments.ErrPartialRefundUnsupported
		}
	case payments.PaystackRef:
		if ref.Reference == "" {
			return nil, payments.ErrMissingReference
		}
	default:
		return nil, payments.ErrUnknownProvider
	}
	return decision, nil
}

// Execute runs the planned refund against the courier and the processor.
func (r *Router) Execute(ctx context.Context, order *models.Order, txn *models.PaymentTransaction, amount decimal.Decimal, reason string) (*payments.RefundOutcome, error) {
	decision, err := r.Plan(order, txn, amount)
	if err != nil {
		return nil, err
	}
	ctx = r.logg.WithFields(ctx, map[string]any{
		"order_id": order.ID.String(),
		"provider": string(decision.Ref.Provider()),
		"path":     string(decision.Path),
	})

	if decision.CancelShipment {
		if r.courier == nil {
			return nil, errors.New("courier api not configured, cannot cancel shipment")
		}
		if err := r.courier.CancelShipment(ctx, *order.TrackingNumber); err != nil {
			return nil, fmt.Errorf("cancel shipment: %w", err)
		}
		r.logg.Info(ctx, "courier shipment cancelled before refund")
	}

	provider, err := r.providers.Get(decision.Ref.Provider())
	if err != nil {
		return nil, err
	}
	outcome, err := provider.Refund(ctx, payments.RefundRequest{
		OrderID:     order.ID,
		Ref:         decision.Ref,
		Amount:      amount,
		OrderAmount: order.Amount,
		Reason:      reason,
	})
	if err != nil {
		return outcome, err
	}
	if outcome == nil || !outcome.Success {
		return outcome, errors.New("provider reported refund failure")
	}
	r.logg.Info(ctx, "provider refund accepted")
	return outcome, nil
}
