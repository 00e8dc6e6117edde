package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/bookloop/orderflow/pkg/db/models"
	"github.com/bookloop/orderflow/pkg/logger"
)

type fakeExpiredReader struct {
	orders   []models.Order
	err      error
	gotNow   time.Time
	gotLimit int
}

func (f *fakeExpiredReader) ListExpiredCommitments(_ context.Context, now time.Time, limit int) ([]models.Order, error) {
	f.gotNow = now
	f.gotLimit = limit
	return f.orders, f.err
}

type fakeExpirer struct {
	results map[uuid.UUID]error
	skip    map[uuid.UUID]bool
	calls   []uuid.UUID
}

func (f *fakeExpirer) ExpireOrder(_ context.Context, id uuid.UUID) (bool, error) {
	f.calls = append(f.calls, id)
	if err := f.results[id]; err != nil {
		return false, err
	}
	return !f.skip[id], nil
}

func newCommitDeadlineJob(t *testing.T, reader *fakeExpiredReader, expirer *fakeExpirer) *commitDeadlineJob {
	t.Helper()
	jobIface, err := NewCommitDeadlineJob(CommitDeadlineJobParams{
		Logger:  logger.Nop(),
		Orders:  reader,
		Expirer: expirer,
	})
	if err != nil {
		t.Fatalf("NewCommitDeadlineJob: %v", err)
	}
	job, ok := jobIface.(*commitDeadlineJob)
	if !ok {
		t.Fatalf("expected commitDeadlineJob, got %T", jobIface)
	}
	return job
}

func TestCommitDeadlineJobExpiresOverdueOrders(t *testing.T) {
	now := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	a, b := uuid.New(), uuid.New()
	reader := &fakeExpiredReader{orders: []models.Order{{ID: a}, {ID: b}}}
	expirer := &fakeExpirer{skip: map[uuid.UUID]bool{b: true}}
	job := newCommitDeadlineJob(t, reader, expirer)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reader.gotNow.Equal(now) {
		t.Fatalf("expected sweep at %s, got %s", now, reader.gotNow)
	}
	if reader.gotLimit != defaultCommitDeadlineBatch {
		t.Fatalf("expected batch %d, got %d", defaultCommitDeadlineBatch, reader.gotLimit)
	}
	if len(expirer.calls) != 2 || expirer.calls[0] != a || expirer.calls[1] != b {
		t.Fatalf("unexpected expire calls %v", expirer.calls)
	}
}

func TestCommitDeadlineJobContinuesPastFailures(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	reader := &fakeExpiredReader{orders: []models.Order{{ID: a}, {ID: b}, {ID: c}}}
	expirer := &fakeExpirer{results: map[uuid.UUID]error{
		a: errors.New("paystack timeout"),
		c: errors.New("cannot determine refund path"),
	}}
	job := newCommitDeadlineJob(t, reader, expirer)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if got := len(multierr.Errors(err)); got != 2 {
		t.Fatalf("expected 2 errors, got %d", got)
	}
	if len(expirer.calls) != 3 {
		t.Fatalf("expected every order attempted, got %d", len(expirer.calls))
	}
}

func TestCommitDeadlineJobListFailure(t *testing.T) {
	job := newCommitDeadlineJob(t, &fakeExpiredReader{err: errors.New("db down")}, &fakeExpirer{})
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
