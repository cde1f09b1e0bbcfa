package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/krishnasharma4415/QueueCTL/pkg/core"
	"github.com/krishnasharma4415/QueueCTL/pkg/security"
)

// EnqueueJob inserts a validated job in the pending state.
// Returns core.ErrDuplicateJob when the id is already present.
func (s *Store) EnqueueJob(ctx context.Context, job *core.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.State == "" {
		job.State = core.StatePending
	}
	err := withRetry(ctx, s.retry, func() error {
		return s.db.WithContext(ctx).Create(job).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s", core.ErrDuplicateJob, job.ID)
	}
	return err
}

// ClaimNext atomically selects the highest-priority eligible job and
// transitions it to processing, owned by workerID. Eligible means pending
// with next_run_at at or before now; ties break by ascending created_at,
// then id, for deterministic selection. Returns nil when nothing is eligible
// or another claimer won the race.
func (s *Store) ClaimNext(ctx context.Context, workerID string, now time.Time) (*core.Job, error) {
	var claimed *core.Job

	err := withRetry(ctx, s.retry, func() error {
		claimed = nil
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var job core.Job
			err := tx.
				Where("state = ? AND next_run_at <= ?", core.StatePending, now).
				Order("priority DESC, created_at ASC, id ASC").
				First(&job).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			if err != nil {
				return err
			}

			// The re-checked WHERE clause makes the select-then-update safe:
			// if another transaction claimed the job first, zero rows match.
			res := tx.Model(&core.Job{}).
				Where("id = ? AND state = ? AND next_run_at <= ?", job.ID, core.StatePending, now).
				Updates(map[string]any{
					"state":      core.StateProcessing,
					"worker_id":  workerID,
					"updated_at": now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return nil
			}

			job.State = core.StateProcessing
			job.WorkerID = &workerID
			job.UpdatedAt = now
			claimed = &job
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// CompleteJob transitions a processing job owned by workerID to completed.
// Returns core.ErrJobNotOwned if the job is not processing under workerID.
func (s *Store) CompleteJob(ctx context.Context, jobID, workerID string) error {
	now := time.Now().UTC()
	return withRetry(ctx, s.retry, func() error {
		res := s.db.WithContext(ctx).
			Model(&core.Job{}).
			Where("id = ? AND state = ? AND worker_id = ?", jobID, core.StateProcessing, workerID).
			Updates(map[string]any{
				"state":      core.StateCompleted,
				"worker_id":  nil,
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return core.ErrJobNotOwned
		}
		return nil
	})
}

// FailAndRetry releases a processing job back to pending after a failed
// attempt: the attempt is consumed, the error recorded, and the next run
// delayed by delay.
func (s *Store) FailAndRetry(ctx context.Context, jobID, workerID, errMsg string, delay time.Duration) error {
	now := time.Now().UTC()
	lastError := security.SanitizeErrorMessage(errMsg)
	return withRetry(ctx, s.retry, func() error {
		res := s.db.WithContext(ctx).
			Model(&core.Job{}).
			Where("id = ? AND state = ? AND worker_id = ?", jobID, core.StateProcessing, workerID).
			Updates(map[string]any{
				"state":       core.StatePending,
				"attempts":    gorm.Expr("attempts + 1"),
				"next_run_at": now.Add(delay),
				"worker_id":   nil,
				"last_error":  lastError,
				"updated_at":  now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return core.ErrJobNotOwned
		}
		return nil
	})
}

// FailAndDeadletter atomically consumes the final attempt of a processing
// job, freezes it in the dead state, and inserts the derived DLQ entry.
func (s *Store) FailAndDeadletter(ctx context.Context, jobID, workerID, errMsg string) (*core.DLQEntry, error) {
	now := time.Now().UTC()
	lastError := security.SanitizeErrorMessage(errMsg)
	var entry *core.DLQEntry

	err := withRetry(ctx, s.retry, func() error {
		entry = nil
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var job core.Job
			err := tx.
				Where("id = ? AND state = ? AND worker_id = ?", jobID, core.StateProcessing, workerID).
				First(&job).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return core.ErrJobNotOwned
			}
			if err != nil {
				return err
			}

			res := tx.Model(&core.Job{}).
				Where("id = ? AND state = ? AND worker_id = ?", jobID, core.StateProcessing, workerID).
				Updates(map[string]any{
					"state":      core.StateDead,
					"attempts":   gorm.Expr("attempts + 1"),
					"worker_id":  nil,
					"last_error": lastError,
					"updated_at": now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return core.ErrJobNotOwned
			}

			e := &core.DLQEntry{
				ID:            uuid.New().String(),
				OriginalJobID: job.ID,
				Command:       job.Command,
				Attempts:      job.Attempts + 1,
				LastError:     &lastError,
				CreatedAt:     job.CreatedAt,
				UpdatedAt:     now,
				MovedAt:       now,
			}
			if err := tx.Create(e).Error; err != nil {
				return err
			}
			entry = e
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// GetJob retrieves a job by id. Returns core.ErrNotFound when absent.
func (s *Store) GetJob(ctx context.Context, jobID string) (*core.Job, error) {
	var job core.Job
	err := s.db.WithContext(ctx).First(&job, "id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: job %s", core.ErrNotFound, jobID)
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListOptions filters and orders a job listing.
type ListOptions struct {
	State core.JobState // zero value lists all states
	Since *time.Time    // only jobs created at or after this time
	Sort  string        // created_at (default), updated_at, or priority
	Limit int
}

// ListJobs returns a filtered page of jobs.
func (s *Store) ListJobs(ctx context.Context, opts ListOptions) ([]core.Job, error) {
	q := s.db.WithContext(ctx).Model(&core.Job{})
	if opts.State != "" {
		q = q.Where("state = ?", opts.State)
	}
	if opts.Since != nil {
		q = q.Where("created_at >= ?", *opts.Since)
	}
	switch opts.Sort {
	case "priority":
		q = q.Order("priority DESC, created_at ASC")
	case "updated_at":
		q = q.Order("updated_at DESC")
	default:
		q = q.Order("created_at DESC")
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}

	var jobs []core.Job
	if err := q.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// CountJobsByState returns the number of jobs per state, with zero entries
// for states that have no jobs.
func (s *Store) CountJobsByState(ctx context.Context) (map[core.JobState]int64, error) {
	type row struct {
		State core.JobState
		N     int64
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Model(&core.Job{}).
		Select("state, COUNT(*) AS n").
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[core.JobState]int64, len(core.JobStates))
	for _, st := range core.JobStates {
		counts[st] = 0
	}
	for _, r := range rows {
		counts[r.State] = r.N
	}
	return counts, nil
}

// RecentFailures returns the most recently failed jobs that carry an error.
func (s *Store) RecentFailures(ctx context.Context, limit int) ([]core.Job, error) {
	var jobs []core.Job
	err := s.db.WithContext(ctx).
		Where("state IN ? AND last_error IS NOT NULL", []core.JobState{core.StateFailed, core.StateDead}).
		Order("updated_at DESC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}
