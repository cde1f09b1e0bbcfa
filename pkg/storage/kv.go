package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/krishnasharma4415/QueueCTL/pkg/core"
)

// GetConfig returns the persisted value for key, or ("", false) when no
// override is stored.
func (s *Store) GetConfig(ctx context.Context, key string) (string, bool, error) {
	var entry core.ConfigEntry
	err := s.db.WithContext(ctx).First(&entry, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.Value, true, nil
}

// SetConfig upserts a configuration override. Setting the same value twice
// is a no-op.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	return withRetry(ctx, s.retry, func() error {
		return s.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value"}),
			}).
			Create(&core.ConfigEntry{Key: key, Value: value}).Error
	})
}

// ListConfig returns every persisted override.
func (s *Store) ListConfig(ctx context.Context) (map[string]string, error) {
	var entries []core.ConfigEntry
	if err := s.db.WithContext(ctx).Find(&entries).Error; err != nil {
		return nil, err
	}
	values := make(map[string]string, len(entries))
	for _, e := range entries {
		values[e.Key] = e.Value
	}
	return values, nil
}
