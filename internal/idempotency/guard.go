// Package idempotency records which side effects have already been applied.
//
// A claim is a row in processed_events keyed by (idempotency_key, effect_type).
// The insert and the guarded effect share one transaction, so a rolled back
// effect also rolls back its claim and a replay can try again.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bookloop/orderflow/pkg/db/models"
	"github.com/bookloop/orderflow/pkg/enums"
)

// Outcome describes what Run did with an event.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
)

var errDuplicate = errors.New("idempotency: already claimed")

// TxRunner is satisfied by *db.Client.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type Guard struct {
	db  TxRunner
	now func() time.Time
}

func NewGuard(db TxRunner) (*Guard, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	return &Guard{db: db, now: time.Now}, nil
}

// Claim inserts the claim row. It returns false when the pair was claimed before.
func (g *Guard) Claim(ctx context.Context, tx *gorm.DB, key string, effect enums.EffectType) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return false, errors.New("idempotency key is required")
	}
	row := models.ProcessedEvent{
		IdempotencyKey: key,
		EffectType:     effect,
		Outcome:        enums.EffectOutcomeClaimed,
		CreatedAt:      g.now().UTC(),
	}
	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("claim %s/%s: %w", key, effect, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Complete stamps the outcome on a claim held by the caller.
func (g *Guard) Complete(ctx context.Context, tx *gorm.DB, key string, effect enums.EffectType, outcome enums.EffectOutcome) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	now := g.now().UTC()
	return tx.WithContext(ctx).
		Model(&models.ProcessedEvent{}).
		Where("idempotency_key = ? AND effect_type = ?", key, effect).
		Updates(map[string]any{
			"outcome":      outcome,
			"processed_at": now,
		}).Error
}

// Release drops a claim so the effect may be attempted again.
func (g *Guard) Release(ctx context.Context, tx *gorm.DB, key string, effect enums.EffectType) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.WithContext(ctx).
		Where("idempotency_key = ? AND effect_type = ?", key, effect).
		Delete(&models.ProcessedEvent{}).Error
}

// Lookup returns the claim row or nil.
func (g *Guard) Lookup(ctx context.Context, conn *gorm.DB, key string, effect enums.EffectType) (*models.ProcessedEvent, error) {
	var row models.ProcessedEvent
	err := conn.WithContext(ctx).
		Where("idempotency_key = ? AND effect_type = ?", key, effect).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Run claims (key, effect) and applies fn in the same transaction.
// A duplicate claim returns OutcomeDuplicate without calling fn.
// Any error from fn rolls back both the effect and the claim.
func (g *Guard) Run(ctx context.Context, key string, effect enums.EffectType, fn func(tx *gorm.DB) error) (Outcome, error) {
	err := g.db.WithTx(ctx, func(tx *gorm.DB) error {
		claimed, err := g.Claim(ctx, tx, key, effect)
		if err != nil {
			return err
		}
		if !claimed {
			return errDuplicate
		}
		if err := fn(tx); err != nil {
			return err
		}
		return g.Complete(ctx, tx, key, effect, enums.EffectOutcomeApplied)
	})
	switch {
	case errors.Is(err, errDuplicate):
		return OutcomeDuplicate, nil
	case err != nil:
		return "", err
	}
	return OutcomeApplied, nil
}
