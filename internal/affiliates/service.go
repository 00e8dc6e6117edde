// Package affiliates tracks commission owed to affiliates who referred a seller.
package affiliates

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bookloop/orderflow/pkg/db/models"
	"github.com/bookloop/orderflow/pkg/enums"
	"github.com/bookloop/orderflow/pkg/logger"
	"github.com/bookloop/orderflow/pkg/money"
)

// CommissionSource yields the current affiliate commission percent.
type CommissionSource interface {
	AffiliateCommissionPercent(ctx context.Context) (decimal.Decimal, error)
}

type Service struct {
	rates CommissionSource
	logg  *logger.Logger
}

func NewService(rates CommissionSource, logg *logger.Logger) (*Service, error) {
	if rates == nil {
		return nil, fmt.Errorf("commission source required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{rates: rates, logg: logg}, nil
}

// RecordOrder creates the pending commission for a paid order when its seller
// was referred. It returns nil when there is no referral. Calling it again for
// the same order leaves the first row untouched.
func (s *Service) RecordOrder(ctx context.Context, tx *gorm.DB, order *models.Order) (*models.AffiliateOrder, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	var referral models.AffiliateReferral
	err := tx.WithContext(ctx).Where("seller_id = ?", order.SellerID).First(&referral).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load affiliate referral: %w", err)
	}

	pct, err := s.rates.AffiliateCommissionPercent(ctx)
	if err != nil {
		return nil, err
	}
	row := models.AffiliateOrder{
		OrderID:          order.ID,
		AffiliateID:      referral.AffiliateID,
		SellerID:         order.SellerID,
		CommissionAmount: money.Percent(order.Amount, pct),
		Status:           enums.AffiliateOrderStatusPending,
	}
	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "order_id"}}, DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return nil, fmt.Errorf("create affiliate order: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":     order.ID.String(),
		"affiliate_id": referral.AffiliateID.String(),
		"commission":   money.Format(row.CommissionAmount),
	}), "affiliate commission recorded")
	return &row, nil
}

// Void cancels a still pending commission.
func (s *Service) Void(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (bool, error) {
	return s.move(ctx, tx, orderID, enums.AffiliateOrderStatusPending, enums.AffiliateOrderStatusVoid)
}

// Earn confirms a pending commission once the order completes.
func (s *Service) Earn(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (bool, error) {
	return s.move(ctx, tx, orderID, enums.AffiliateOrderStatusPending, enums.AffiliateOrderStatusEarned)
}

func (s *Service) move(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, from, to enums.AffiliateOrderStatus) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	res := tx.WithContext(ctx).
		Model(&models.AffiliateOrder{}).
		Where("order_id = ? AND status = ?", orderID, from).
		Update("status", to)
	if res.Error != nil {
		return false, fmt.Errorf("affiliate order %s -> %s: %w", from, to, res.Error)
	}
	return res.RowsAffected == 1, nil
}
