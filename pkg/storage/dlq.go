package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/krishnasharma4415/QueueCTL/pkg/core"
)

// ListDLQ returns dead-letter entries, most recently moved first.
func (s *Store) ListDLQ(ctx context.Context, limit int) ([]core.DLQEntry, error) {
	q := s.db.WithContext(ctx).Order("moved_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var entries []core.DLQEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// GetDLQEntry retrieves a dead-letter entry by id.
func (s *Store) GetDLQEntry(ctx context.Context, dlqID string) (*core.DLQEntry, error) {
	var entry core.DLQEntry
	err := s.db.WithContext(ctx).First(&entry, "id = ?", dlqID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: DLQ entry %s", core.ErrNotFound, dlqID)
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// CountDLQ returns the number of dead-letter entries.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&core.DLQEntry{}).Count(&n).Error
	return n, err
}

// RetryDLQ atomically replaces a dead-letter entry with a fresh pending job:
// the new job starts with zero attempts and the entry is deleted in the same
// transaction. Returns core.ErrNotFound when the entry is absent and
// core.ErrDuplicateJob when newJobID already names a job.
func (s *Store) RetryDLQ(ctx context.Context, dlqID, newJobID string, maxRetries int) (*core.Job, error) {
	now := time.Now().UTC()
	var job *core.Job

	err := withRetry(ctx, s.retry, func() error {
		job = nil
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var entry core.DLQEntry
			err := tx.First(&entry, "id = ?", dlqID).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: DLQ entry %s", core.ErrNotFound, dlqID)
			}
			if err != nil {
				return err
			}

			j := &core.Job{
				ID:         newJobID,
				Command:    entry.Command,
				State:      core.StatePending,
				Attempts:   0,
				MaxRetries: maxRetries,
				NextRunAt:  now,
				CreatedAt:  entry.CreatedAt,
				UpdatedAt:  now,
			}
			if err := tx.Create(j).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return fmt.Errorf("%w: %s", core.ErrDuplicateJob, newJobID)
				}
				return err
			}

			if err := tx.Delete(&core.DLQEntry{}, "id = ?", dlqID).Error; err != nil {
				return err
			}
			job = j
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// PurgeDLQ deletes dead-letter entries moved before olderThan, or every
// entry when olderThan is nil. Returns the number of entries removed.
func (s *Store) PurgeDLQ(ctx context.Context, olderThan *time.Time) (int64, error) {
	var removed int64
	err := withRetry(ctx, s.retry, func() error {
		q := s.db.WithContext(ctx)
		if olderThan != nil {
			q = q.Where("moved_at < ?", *olderThan)
		} else {
			q = q.Where("1 = 1")
		}
		res := q.Delete(&core.DLQEntry{})
		removed = res.RowsAffected
		return res.Error
	})
	return removed, err
}
