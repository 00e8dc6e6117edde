// Package fulfillment drives an order from checkout to its final settlement.
//
// Every entry point here is one engine operation: it loads the order, asks
// the state machine for the move, and applies the side effects that belong to
// that move in the same transaction. Webhook driven operations run under the
// idempotency guard; user driven operations rely on the machine's
// compare-and-set instead.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/bookloop/orderflow/internal/affiliates"
	"github.com/bookloop/orderflow/internal/idempotency"
	"github.com/bookloop/orderflow/internal/listings"
	"github.com/bookloop/orderflow/internal/notifications"
	"github.com/bookloop/orderflow/internal/orders"
	"github.com/bookloop/orderflow/internal/payments"
	"github.com/bookloop/orderflow/internal/refunds"
	"github.com/bookloop/orderflow/internal/settlement"
	"github.com/bookloop/orderflow/pkg/config"
	pkgerrors "github.com/bookloop/orderflow/pkg/errors"
	"github.com/bookloop/orderflow/pkg/logger"
	"github.com/bookloop/orderflow/pkg/metrics"
	"github.com/bookloop/orderflow/pkg/outbox"
)

// ReasonCommitDeadlineExpired is recorded on orders the scheduler cancels.
const ReasonCommitDeadlineExpired = "commit_deadline_expired"

// Database is satisfied by *db.Client.
type Database interface {
	idempotency.TxRunner
	DB() *gorm.DB
}

// Settings is the part of the platform settings the engine reads and writes.
type Settings interface {
	CommitWindow(ctx context.Context) (time.Duration, error)
	Update(ctx context.Context, key, value string) error
}

type Deps struct {
	DB         Database
	Guard      *idempotency.Guard
	Orders     orders.Repository
	Machine    *orders.Machine
	Payments   *payments.Repository
	Providers  *payments.Registry
	Listings   listings.Reader
	Settings   Settings
	Refunds    *refunds.Service
	Settlement *settlement.Engine
	Affiliates *affiliates.Service
	Notifier   notifications.Notifier
	Outbox     outbox.Emitter
	URLs       config.URLConfig
	Metrics    *metrics.FlowMetrics
	Logger     *logger.Logger
}

type Engine struct {
	db         Database
	guard      *idempotency.Guard
	orders     orders.Repository
	machine    *orders.Machine
	payments   *payments.Repository
	providers  *payments.Registry
	listings   listings.Reader
	settings   Settings
	refunds    *refunds.Service
	settlement *settlement.Engine
	affiliates *affiliates.Service
	notifier   notifications.Notifier
	outbox     outbox.Emitter
	urls       config.URLConfig
	metrics    *metrics.FlowMetrics
	logg       *logger.Logger
	now        func() time.Time
}

func NewEngine(deps Deps) (*Engine, error) {
	switch {
	case deps.DB == nil:
		return nil, fmt.Errorf("db required")
	case deps.Guard == nil:
		return nil, fmt.Errorf("idempotency guard required")
	case deps.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case deps.Machine == nil:
		return nil, fmt.Errorf("order state machine required")
	case deps.Payments == nil:
		return nil, fmt.Errorf("payments repository required")
	case deps.Providers == nil:
		return nil, fmt.Errorf("payment providers required")
	case deps.Listings == nil:
		return nil, fmt.Errorf("listing reader required")
	case deps.Settings == nil:
		return nil, fmt.Errorf("settings required")
	case deps.Refunds == nil:
		return nil, fmt.Errorf("refund service required")
	case deps.Settlement == nil:
		return nil, fmt.Errorf("settlement engine required")
	case deps.Affiliates == nil:
		return nil, fmt.Errorf("affiliates service required")
	case deps.Notifier == nil:
		return nil, fmt.Errorf("notifier required")
	case deps.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	}
	logg := deps.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Engine{
		db:         deps.DB,
		guard:      deps.Guard,
		orders:     deps.Orders,
		machine:    deps.Machine,
		payments:   deps.Payments,
		providers:  deps.Providers,
		listings:   deps.Listings,
		settings:   deps.Settings,
		refunds:    deps.Refunds,
		settlement: deps.Settlement,
		affiliates: deps.Affiliates,
		notifier:   deps.Notifier,
		outbox:     deps.Outbox,
		urls:       deps.URLs,
		metrics:    deps.Metrics,
		logg:       logg,
		now:        time.Now,
	}, nil
}

// userError converts domain sentinels into the typed errors user-facing
// operations return. Errors that are already typed pass through.
func userError(err error) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	switch {
	case errors.Is(err, orders.ErrNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "order not found")
	case errors.Is(err, orders.ErrIllegalTransition):
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "order cannot make this change in its current status")
	case errors.Is(err, refunds.ErrForbidden), errors.Is(err, ErrNotParticipant):
		return pkgerrors.Wrap(pkgerrors.CodeForbidden, err, "access denied")
	case errors.Is(err, listings.ErrNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "listing not found")
	case errors.Is(err, listings.ErrUnavailable):
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, err.Error())
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "order operation failed")
}
