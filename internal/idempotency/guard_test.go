package idempotency

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bookloop/orderflow/pkg/db/dbtest"
	"github.com/bookloop/orderflow/pkg/enums"
)

func TestRunAppliesOnceForSameKey(t *testing.T) {
	client := dbtest.Client(t)
	guard, err := NewGuard(client)
	require.NoError(t, err)

	calls := 0
	apply := func(tx *gorm.DB) error {
		calls++
		return nil
	}

	outcome, err := guard.Run(context.Background(), "order-1", enums.EffectPaymentConfirmation, apply)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)

	outcome, err = guard.Run(context.Background(), "order-1", enums.EffectPaymentConfirmation, apply)
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, outcome)
	require.Equal(t, 1, calls)

	row, err := guard.Lookup(context.Background(), client.DB(), "order-1", enums.EffectPaymentConfirmation)
	require.NoError(t, err)
	require.NotNil(t, row)
	require.Equal(t, enums.EffectOutcomeApplied, row.Outcome)
	require.NotNil(t, row.ProcessedAt)
}

func TestRunScopesKeysByEffect(t *testing.T) {
	client := dbtest.Client(t)
	guard, err := NewGuard(client)
	require.NoError(t, err)

	noop := func(*gorm.DB) error { return nil }
	outcome, err := guard.Run(context.Background(), "order-2", enums.EffectPaymentConfirmation, noop)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)

	outcome, err = guard.Run(context.Background(), "order-2", enums.EffectSettlement, noop)
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)
}

func TestRunFailureReleasesClaim(t *testing.T) {
	client := dbtest.Client(t)
	guard, err := NewGuard(client)
	require.NoError(t, err)

	boom := errors.New("settlement failed")
	_, err = guard.Run(context.Background(), "order-3", enums.EffectSettlement, func(*gorm.DB) error { return boom })
	require.ErrorIs(t, err, boom)

	row, err := guard.Lookup(context.Background(), client.DB(), "order-3", enums.EffectSettlement)
	require.NoError(t, err)
	require.Nil(t, row)

	outcome, err := guard.Run(context.Background(), "order-3", enums.EffectSettlement, func(*gorm.DB) error { return nil })
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, outcome)
}

func TestClaimReleaseAcrossTransactions(t *testing.T) {
	client := dbtest.Client(t)
	guard, err := NewGuard(client)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := guard.Claim(ctx, tx, "order-4", enums.EffectRefund)
		require.True(t, ok)
		return err
	}))
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := guard.Claim(ctx, tx, "order-4", enums.EffectRefund)
		require.False(t, ok)
		return err
	}))
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return guard.Release(ctx, tx, "order-4", enums.EffectRefund)
	}))
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := guard.Claim(ctx, tx, "order-4", enums.EffectRefund)
		require.True(t, ok)
		return err
	}))
}

func TestClaimRejectsBlankKey(t *testing.T) {
	client := dbtest.Client(t)
	guard, err := NewGuard(client)
	require.NoError(t, err)
	err = client.WithTx(context.Background(), func(tx *gorm.DB) error {
		_, err := guard.Claim(context.Background(), tx, "  ", enums.EffectRefund)
		return err
	})
	require.Error(t, err)
}
