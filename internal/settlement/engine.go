// Package settlement pays sellers for delivered orders.
//
// A seller with an active banking record that decrypts under the configured
// key is paid by direct bank transfer outside this service; everyone else is
// credited to their wallet. Wallet credits are unique per (order_id, type), so
// settling twice is harmless.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bookloop/orderflow/pkg/db/models"
	"github.com/bookloop/orderflow/pkg/enums"
	"github.com/bookloop/orderflow/pkg/logger"
	"github.com/bookloop/orderflow/pkg/money"
)

// FeeSource yields the current platform fee percent.
type FeeSource interface {
	PlatformFeePercent(ctx context.Context) (decimal.Decimal, error)
}

// Opener decrypts sealed banking fields.
type Opener interface {
	Open(sealed string) (string, error)
}

type Result struct {
	Method         enums.PayoutMethod
	Success        bool
	Gross          decimal.Decimal
	Fee            decimal.Decimal
	Amount         decimal.Decimal
	AlreadySettled bool
}

type Balance struct {
	Credits   decimal.Decimal `json:"credits"`
	Debits    decimal.Decimal `json:"debits"`
	Available decimal.Decimal `json:"available"`
}

type Engine struct {
	fees FeeSource
	box  Opener
	logg *logger.Logger
}

// NewEngine wires the settlement engine. box may be nil when no banking key is
// configured, in which case every payout is a wallet credit.
func NewEngine(fees FeeSource, box Opener, logg *logger.Logger) (*Engine, error) {
	if fees == nil {
		return nil, fmt.Errorf("fee source required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Engine{fees: fees, box: box, logg: logg}, nil
}

// Settle pays out order inside tx. A nil error always comes with Success set.
func (e *Engine) Settle(ctx context.Context, tx *gorm.DB, order *models.Order) (*Result, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if order == nil {
		return nil, errors.New("order required")
	}

	pct, err := e.fees.PlatformFeePercent(ctx)
	if err != nil {
		return nil, fmt.Errorf("load platform fee: %w", err)
	}
	net, fee := money.NetOfFee(order.Amount, pct)
	ctx = e.logg.WithFields(ctx, map[string]any{
		"order_id":  order.ID.String(),
		"seller_id": order.SellerID.String(),
	})

	ok, err := e.hasUsableBankAccount(ctx, tx, order.SellerID)
	if err != nil {
		return nil, err
	}
	if ok {
		e.logg.Info(ctx, "seller payout scheduled by bank transfer")
		return &Result{
			Method:  enums.PayoutMethodDirectBankTransfer,
			Success: true,
			Gross:   money.Round(order.Amount),
			Fee:     fee,
			Amount:  net,
		}, nil
	}

	credit := models.WalletTransaction{
		SellerID:    order.SellerID,
		OrderID:     order.ID,
		Type:        enums.WalletTransactionCredit,
		Amount:      net,
		GrossAmount: money.Round(order.Amount),
		FeeAmount:   fee,
		Description: fmt.Sprintf("Sale of %s (order %s)", order.ItemName, order.ID),
	}
	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}, {Name: "type"}},
			DoNothing: true,
		}).
		Create(&credit)
	if res.Error != nil {
		return nil, fmt.Errorf("credit seller wallet: %w", res.Error)
	}

	result := &Result{
		Method:  enums.PayoutMethodWalletCredit,
		Success: true,
		Gross:   credit.GrossAmount,
		Fee:     credit.FeeAmount,
		Amount:  credit.Amount,
	}
	if res.RowsAffected == 0 {
		var existing models.WalletTransaction
		err := tx.WithContext(ctx).
			Where("order_id = ? AND type = ?", order.ID, enums.WalletTransactionCredit).
			First(&existing).Error
		if err != nil {
			return nil, fmt.Errorf("load existing wallet credit: %w", err)
		}
		result.Gross, result.Fee, result.Amount = existing.GrossAmount, existing.FeeAmount, existing.Amount
		result.AlreadySettled = true
		e.logg.Info(ctx, "seller wallet already credited")
		return result, nil
	}
	e.logg.Info(e.logg.WithField(ctx, "amount", money.Format(net)), "seller wallet credited")
	return result, nil
}

func (e *Engine) hasUsableBankAccount(ctx context.Context, tx *gorm.DB, sellerID uuid.UUID) (bool, error) {
	if e.box == nil {
		return false, nil
	}
	var record models.SellerBankingDetail
	err := tx.WithContext(ctx).
		Where("seller_id = ? AND status = ?", sellerID, enums.BankingStatusActive).
		Order("updated_at DESC").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load seller banking details: %w", err)
	}
	account, err := e.box.Open(record.AccountNumberEncrypted)
	if err != nil || strings.TrimSpace(account) == "" {
		e.logg.Warn(ctx, "seller banking record unreadable, falling back to wallet credit")
		return false, nil
	}
	return true, nil
}

// SellerBalance sums wallet credits minus debits for sellerID.
func (e *Engine) SellerBalance(ctx context.Context, conn *gorm.DB, sellerID uuid.UUID) (*Balance, error) {
	var rows []models.WalletTransaction
	if err := conn.WithContext(ctx).
		Select("type", "amount").
		Where("seller_id = ?", sellerID).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load wallet transactions: %w", err)
	}
	balance := &Balance{Credits: decimal.Zero, Debits: decimal.Zero}
	for _, row := range rows {
		switch row.Type {
		case enums.WalletTransactionCredit:
			balance.Credits = balance.Credits.Add(row.Amount)
		case enums.WalletTransactionDebit:
			balance.Debits = balance.Debits.Add(row.Amount)
		}
	}
	balance.Available = balance.Credits.Sub(balance.Debits)
	return balance, nil
}
