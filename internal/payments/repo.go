package payments

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bookloop/orderflow/pkg/db/models"
	"github.com/bookloop/orderflow/pkg/enums"
)

// Repository persists payment and refund attempts.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) CreateTransaction(ctx context.Context, txn *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

// LatestTransaction returns the most recent attempt for the order, preferring a
// successful one. It returns nil when the order has no attempts.
func (r *Repository) LatestTransaction(ctx context.Context, orderID uuid.UUID) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order(gorm.Expr("CASE WHEN status = ? THEN 0 ELSE 1 END", enums.TransactionStatusSuccess)).
		Order("created_at DESC").
		First(&txn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// UpdateTransaction sets fields on the order's attempt with providerReference.
func (r *Repository) UpdateTransaction(ctx context.Context, orderID uuid.UUID, provider enums.PaymentProvider, providerReference string, fields map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("order_id = ? AND provider = ? AND provider_reference = ?", orderID, provider, providerReference).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SettleTransaction marks the pending attempts of an order with status and
// stores what the processor reported.
func (r *Repository) SettleTransaction(ctx context.Context, orderID uuid.UUID, status enums.TransactionStatus, event *PaymentEvent) error {
	fields := map[string]any{"status": status}
	if event != nil {
		if event.TransactionID != "" {
			fields["provider_transaction_id"] = event.TransactionID
		}
		if event.PaymentMethod != "" {
			fields["payment_method"] = event.PaymentMethod
		}
		if len(event.Raw) > 0 && json.Valid(event.Raw) {
			fields["raw_response"] = string(event.Raw)
		}
	}
	return r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("order_id = ? AND status = ?", orderID, enums.TransactionStatusPending).
		Updates(fields).Error
}

func (r *Repository) CreateRefund(ctx context.Context, refund *models.RefundTransaction) error {
	return r.db.WithContext(ctx).Create(refund).Error
}

func (r *Repository) UpdateRefund(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.RefundTransaction{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// LatestRefund returns the newest refund attempt for the order or nil.
func (r *Repository) LatestRefund(ctx context.Context, orderID uuid.UUID) (*models.RefundTransaction, error) {
	var refund models.RefundTransaction
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		First(&refund).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &refund, nil
}
