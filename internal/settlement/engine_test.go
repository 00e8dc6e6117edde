package settlement

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bookloop/orderflow/pkg/db/dbtest"
	"github.com/bookloop/orderflow/pkg/db/models"
	"github.com/bookloop/orderflow/pkg/enums"
	"github.com/bookloop/orderflow/pkg/security"
)

type fixedFee string

func (f fixedFee) PlatformFeePercent(context.Context) (decimal.Decimal, error) {
	return decimal.RequireFromString(string(f)), nil
}

func newBox(t *testing.T, fill byte) *security.SealBox {
	t.Helper()
	box, err := security.NewSealBoxFromKey(bytes.Repeat([]byte{fill}, 32))
	require.NoError(t, err)
	return box
}

func deliveredOrder() *models.Order {
	return &models.Order{
		ID:       uuid.New(),
		SellerID: uuid.New(),
		ItemName: "Used Book",
		Amount:   decimal.RequireFromString("250.00"),
		Status:   enums.OrderStatusDelivered,
	}
}

func settle(t *testing.T, engine *Engine, conn *gorm.DB, order *models.Order) *Result {
	t.Helper()
	var result *Result
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = engine.Settle(context.Background(), tx, order)
		return err
	}))
	return result
}

func TestSettleCreditsWalletNetOfFee(t *testing.T) {
	conn := dbtest.Open(t)
	engine, err := NewEngine(fixedFee("10"), nil, nil)
	require.NoError(t, err)
	order := deliveredOrder()

	result := settle(t, engine, conn, order)
	require.True(t, result.Success)
	require.Equal(t, enums.PayoutMethodWalletCredit, result.Method)
	require.Equal(t, "225.00", result.Amount.StringFixed(2))
	require.Equal(t, "25.00", result.Fee.StringFixed(2))
	require.False(t, result.AlreadySettled)

	var credit models.WalletTransaction
	require.NoError(t, conn.Where("order_id = ?", order.ID).First(&credit).Error)
	require.Equal(t, enums.WalletTransactionCredit, credit.Type)
	require.Equal(t, "225.00", credit.Amount.StringFixed(2))
	require.Equal(t, "250.00", credit.GrossAmount.StringFixed(2))
}

func TestSettleTwiceCreditsOnce(t *testing.T) {
	conn := dbtest.Open(t)
	engine, err := NewEngine(fixedFee("10"), nil, nil)
	require.NoError(t, err)
	order := deliveredOrder()

	settle(t, engine, conn, order)
	second := settle(t, engine, conn, order)
	require.True(t, second.Success)
	require.True(t, second.AlreadySettled)
	require.Equal(t, "225.00", second.Amount.StringFixed(2))

	var count int64
	require.NoError(t, conn.Model(&models.WalletTransaction{}).Where("order_id = ?", order.ID).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestSettleUsesReadableBankAccount(t *testing.T) {
	conn := dbtest.Open(t)
	box := newBox(t, 3)
	engine, err := NewEngine(fixedFee("10"), box, nil)
	require.NoError(t, err)
	order := deliveredOrder()

	sealed, err := box.Seal("62001234567")
	require.NoError(t, err)
	require.NoError(t, conn.Create(&models.SellerBankingDetail{
		SellerID:               order.SellerID,
		AccountHolder:          "T. Seller",
		BankName:               "FNB",
		AccountNumberEncrypted: sealed,
		Status:                 enums.BankingStatusActive,
	}).Error)

	result := settle(t, engine, conn, order)
	require.Equal(t, enums.PayoutMethodDirectBankTransfer, result.Method)
	require.Equal(t, "225.00", result.Amount.StringFixed(2))

	var count int64
	require.NoError(t, conn.Model(&models.WalletTransaction{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestSettleFallsBackToWallet(t *testing.T) {
	conn := dbtest.Open(t)
	engine, err := NewEngine(fixedFee("10"), newBox(t, 3), nil)
	require.NoError(t, err)

	unreadable := deliveredOrder()
	foreign, err := newBox(t, 9).Seal("62001234567")
	require.NoError(t, err)
	require.NoError(t, conn.Create(&models.SellerBankingDetail{
		SellerID: unreadable.SellerID, AccountHolder: "A", BankName: "B",
		AccountNumberEncrypted: foreign, Status: enums.BankingStatusActive,
	}).Error)
	require.Equal(t, enums.PayoutMethodWalletCredit, settle(t, engine, conn, unreadable).Method)

	inactive := deliveredOrder()
	sealed, err := newBox(t, 3).Seal("62001234567")
	require.NoError(t, err)
	require.NoError(t, conn.Create(&models.SellerBankingDetail{
		SellerID: inactive.SellerID, AccountHolder: "A", BankName: "B",
		AccountNumberEncrypted: sealed, Status: enums.BankingStatusInactive,
	}).Error)
	require.Equal(t, enums.PayoutMethodWalletCredit, settle(t, engine, conn, inactive).Method)
}

func TestSellerBalance(t *testing.T) {
	conn := dbtest.Open(t)
	engine, err := NewEngine(fixedFee("10"), nil, nil)
	require.NoError(t, err)

	first := deliveredOrder()
	second := deliveredOrder()
	second.SellerID = first.SellerID
	second.Amount = decimal.RequireFromString("100.00")
	settle(t, engine, conn, first)
	settle(t, engine, conn, second)

	require.NoError(t, conn.Create(&models.WalletTransaction{
		SellerID: first.SellerID, OrderID: uuid.New(), Type: enums.WalletTransactionDebit,
		Amount: decimal.RequireFromString("50.00"), GrossAmount: decimal.RequireFromString("50.00"),
		FeeAmount: decimal.Zero, Description: "withdrawal",
	}).Error)

	balance, err := engine.SellerBalance(context.Background(), conn, first.SellerID)
	require.NoError(t, err)
	require.Equal(t, "315.00", balance.Credits.StringFixed(2))
	require.Equal(t, "50.00", balance.Debits.StringFixed(2))
	require.Equal(t, "265.00", balance.Available.StringFixed(2))

	empty, err := engine.SellerBalance(context.Background(), conn, uuid.New())
	require.NoError(t, err)
	require.True(t, empty.Available.IsZero())
}
