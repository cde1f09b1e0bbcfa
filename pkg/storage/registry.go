package storage

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"github.com/krishnasharma4415/QueueCTL/pkg/core"
)

// RegisterWorker inserts (or refreshes) a worker's registry row.
func (s *Store) RegisterWorker(ctx context.Context, w *core.WorkerRecord) error {
	return withRetry(ctx, s.retry, func() error {
		return s.db.WithContext(ctx).
			Clauses(clause.OnConflict{UpdateAll: true}).
			Create(w).Error
	})
}

// Heartbeat refreshes a worker's liveness timestamp.
func (s *Store) Heartbeat(ctx context.Context, workerID string, now time.Time) error {
	return withRetry(ctx, s.retry, func() error {
		return s.db.WithContext(ctx).
			Model(&core.WorkerRecord{}).
			Where("worker_id = ?", workerID).
			Update("last_heartbeat_at", now).Error
	})
}

// UnregisterWorker removes a worker's registry row on graceful shutdown.
func (s *Store) UnregisterWorker(ctx context.Context, workerID string) error {
	return withRetry(ctx, s.retry, func() error {
		return s.db.WithContext(ctx).
			Delete(&core.WorkerRecord{}, "worker_id = ?", workerID).Error
	})
}

// ListWorkers returns every registered worker, live or stale.
func (s *Store) ListWorkers(ctx context.Context) ([]core.WorkerRecord, error) {
	var workers []core.WorkerRecord
	err := s.db.WithContext(ctx).
		Order("started_at ASC").
		Find(&workers).Error
	return workers, err
}

// ActiveWorkers returns workers whose heartbeat is within staleAfter of now.
func (s *Store) ActiveWorkers(ctx context.Context, now time.Time, staleAfter time.Duration) ([]core.WorkerRecord, error) {
	var workers []core.WorkerRecord
	err := s.db.WithContext(ctx).
		Where("last_heartbeat_at > ?", now.Add(-staleAfter)).
		Order("started_at ASC").
		Find(&workers).Error
	return workers, err
}

// FindOrphanedJobs returns processing jobs whose owning worker is missing
// from the registry or has not heartbeat within staleAfter of now. These are
// the jobs orphan recovery must release.
func (s *Store) FindOrphanedJobs(ctx context.Context, now time.Time, staleAfter time.Duration) ([]core.Job, error) {
	var jobs []core.Job
	err := s.db.WithContext(ctx).
		Table("jobs").
		Select("jobs.*").
		Joins("LEFT JOIN worker_records ON worker_records.worker_id = jobs.worker_id").
		Where("jobs.state = ?", core.StateProcessing).
		Where("worker_records.worker_id IS NULL OR worker_records.last_heartbeat_at < ?", now.Add(-staleAfter)).
		Find(&jobs).Error
	return jobs, err
}

// DeleteStaleWorkers removes registry rows whose heartbeat is older than
// staleAfter. Returns the number of rows removed.
func (s *Store) DeleteStaleWorkers(ctx context.Context, now time.Time, staleAfter time.Duration) (int64, error) {
	var removed int64
	err := withRetry(ctx, s.retry, func() error {
		res := s.db.WithContext(ctx).
			Where("last_heartbeat_at < ?", now.Add(-staleAfter)).
			Delete(&core.WorkerRecord{})
		removed = res.RowsAffected
		return res.Error
	})
	return removed, err
}
