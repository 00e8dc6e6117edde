package models

import (
	"time"

	"github.com/bookloop/orderflow/pkg/enums"
)

// ProcessedEvent is the durable idempotency claim for one side effect.
type ProcessedEvent struct {
	IdempotencyKey string              `gorm:"column:idempotency_key;primaryKey"`
	EffectType     enums.EffectType    `gorm:"column:effect_type;primaryKey"`
	Outcome        enums.EffectOutcome `gorm:"column:outcome;not null"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	ProcessedAt    *time.Time          `gorm:"column:processed_at"`
}

func (ProcessedEvent) TableName() string { return "processed_events" }
