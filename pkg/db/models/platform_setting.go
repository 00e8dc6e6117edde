package models

import "time"

// PlatformSetting is a single operator-tunable key/value pair.
type PlatformSetting struct {
	Key       string    `gorm:"column:key;primaryKey"`
	Value     string    `gorm:"column:value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (PlatformSetting) TableName() string { return "platform_settings" }
