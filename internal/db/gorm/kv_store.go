package gorm

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KVStore provides key/value operations on kv_entries. It satisfies
// persist.Backend.
type KVStore struct {
	db *gorm.DB
}

// NewKVStore creates a new key/value store.
func NewKVStore(store *Store) *KVStore {
	return &KVStore{db: store.DB}
}

// Get returns the value stored under key.
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var entry KVEntry
	err := s.db.WithContext(ctx).Where("name = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(entry.Value), true, nil
}

// Set inserts or replaces the value under key.
func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	now := time.Now()
	entry := &KVEntry{
		Key:            key,
		Value:          string(value),
		UpdatedAt:      now.Format(time.RFC3339),
		UpdatedAtEpoch: now.UnixMilli(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at", "updated_at_epoch"}),
		}).
		Create(entry).Error
}

// LastWrite returns the epoch millisecond timestamp of the latest write to
// key, or 0 when the key is absent.
func (s *KVStore) LastWrite(ctx context.Context, key string) (int64, error) {
	var entry KVEntry
	err := s.db.WithContext(ctx).Select("updated_at_epoch").Where("name = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	return entry.UpdatedAtEpoch, err
}
