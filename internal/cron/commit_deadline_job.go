package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/bookloop/orderflow/pkg/db/models"
	"github.com/bookloop/orderflow/pkg/logger"
)

const defaultCommitDeadlineBatch = 200

type expiredCommitmentReader interface {
	ListExpiredCommitments(ctx context.Context, now time.Time, limit int) ([]models.Order, error)
}

type orderExpirer interface {
	ExpireOrder(ctx context.Context, orderID uuid.UUID) (bool, error)
}

// CommitDeadlineJobParams configure the commit deadline scheduler.
type CommitDeadlineJobParams struct {
	Logger    *logger.Logger
	Orders    expiredCommitmentReader
	Expirer   orderExpirer
	BatchSize int
}

// NewCommitDeadlineJob builds the job that cancels and refunds paid orders
// whose seller never committed in time.
func NewCommitDeadlineJob(params CommitDeadlineJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders reader required")
	}
	if params.Expirer == nil {
		return nil, fmt.Errorf("order expirer required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultCommitDeadlineBatch
	}
	return &commitDeadlineJob{
		logg:    params.Logger,
		orders:  params.Orders,
		expirer: params.Expirer,
		batch:   batch,
		now:     time.Now,
	}, nil
}

type commitDeadlineJob struct {
	logg    *logger.Logger
	orders  expiredCommitmentReader
	expirer orderExpirer
	batch   int
	now     func() time.Time
}

func (j *commitDeadlineJob) Name() string { return "commit-deadline" }

// Run expires every overdue order it finds. One order failing does not stop
// the rest; all failures are returned together.
func (j *commitDeadlineJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	overdue, err := j.orders.ListExpiredCommitments(ctx, now, j.batch)
	if err != nil {
		return fmt.Errorf("list expired commitments: %w", err)
	}

	var (
		errs    error
		expired int
		skipped int
	)
	for _, order := range overdue {
		orderCtx := j.logg.WithOrderID(ctx, order.ID.String())
		done, err := j.expirer.ExpireOrder(orderCtx, order.ID)
		if err != nil {
			j.logg.Error(orderCtx, "commit deadline refund failed", err)
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
			continue
		}
		if done {
			expired++
		} else {
			skipped++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"overdue": len(overdue),
		"expired": expired,
		"skipped": skipped,
		"failed":  len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "commit deadline sweep complete")
	return errs
}
