package gorm

import (
	"time"

	"gorm.io/gorm"
)

// KVEntry is one persisted record, stored as serialized JSON text.
type KVEntry struct {
	Key            string `gorm:"column:name;primaryKey"`
	Value          string `gorm:"type:text;not null"`
	UpdatedAt      string `gorm:"not null"`
	UpdatedAtEpoch int64  `gorm:"index:idx_kv_entries_updated,sort:desc;not null"`
}

func (KVEntry) TableName() string { return "kv_entries" }

// BeforeCreate hook to ensure timestamps are set.
func (e *KVEntry) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if e.UpdatedAtEpoch == 0 {
		e.UpdatedAtEpoch = now.UnixMilli()
	}
	if e.UpdatedAt == "" {
		e.UpdatedAt = now.Format(time.RFC3339)
	}
	return nil
}
