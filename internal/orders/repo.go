package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bookloop/orderflow/pkg/db/models"
	"github.com/bookloop/orderflow/pkg/enums"
	"github.com/bookloop/orderflow/pkg/pagination"
)

// Repository is the only writer of the orders table outside the Machine.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByTrackingNumber(ctx context.Context, tracking string) (*models.Order, error)
	ListForParticipant(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error)
	ListExpiredCommitments(ctx context.Context, now time.Time, limit int) ([]models.Order, error)
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error
	SetRefundStatus(ctx context.Context, id uuid.UUID, from []enums.RefundStatus, to enums.RefundStatus) (bool, error)
	setStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, fields map[string]any) (bool, error)
}

// OrderList is one page of orders.
type OrderList struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByTrackingNumber(ctx context.Context, tracking string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where("tracking_number = ?", tracking).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListForParticipant(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	q := r.db.WithContext(ctx).
		Where("buyer_id = ? OR seller_id = ?", userID, userID)
	if cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Order
	if err := q.Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	list := &OrderList{Orders: rows}
	limit := pagination.NormalizeLimit(params.Limit)
	if len(rows) > limit {
		list.Orders = rows[:limit]
		last := list.Orders[limit-1]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return list, nil
}

// ListExpiredCommitments returns paid orders whose commit window closed and whose refund may still be attempted.
// Untried orders come first, then retries by least recent attempt, so orders whose
// refund keeps failing cannot fill every batch.
func (r *repository) ListExpiredCommitments(ctx context.Context, now time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.OrderStatusPaid).
		Where("commit_deadline IS NOT NULL AND commit_deadline < ?", now).
		Where("refund_status IN ?", []enums.RefundStatus{enums.RefundStatusNone, enums.RefundStatusPending}).
		Order(clause.OrderBy{Expression: clause.Expr{
			SQL:  "CASE WHEN refund_status = ? THEN 0 ELSE 1 END, updated_at ASC, commit_deadline ASC",
			Vars: []any{enums.RefundStatusNone},
		}}).
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// UpdateFields writes non-status columns. Status changes go through Machine.Transition.
func (r *repository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if _, ok := fields["status"]; ok {
		return errors.New("status must be changed through the state machine")
	}
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// SetRefundStatus moves refund_status to `to` only when it currently holds one of `from`.
func (r *repository) SetRefundStatus(ctx context.Context, id uuid.UUID, from []enums.RefundStatus, to enums.RefundStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND refund_status IN ?", id, from).
		Update("refund_status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) setStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, fields map[string]any) (bool, error) {
	updates := map[string]any{}
	for k, v := range fields {
		updates[k] = v
	}
	updates["status"] = to
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
