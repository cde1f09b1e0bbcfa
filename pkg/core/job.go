// Package core provides the domain models and shared errors for queuectl.
package core

import (
	"time"
)

// JobState represents the lifecycle state of a job.
type JobState string

const (
	StatePending    JobState = "pending"
	StateProcessing JobState = "processing"
	StateCompleted  JobState = "completed"
	StateFailed     JobState = "failed"
	StateDead       JobState = "dead"
)

// JobStates lists every state a job can be in, in lifecycle order.
var JobStates = []JobState{StatePending, StateProcessing, StateCompleted, StateFailed, StateDead}

// Valid reports whether s is a recognized job state.
func (s JobState) Valid() bool {
	switch s {
	case StatePending, StateProcessing, StateCompleted, StateFailed, StateDead:
		return true
	}
	return false
}

// Terminal reports whether a job in this state will never run again.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateDead
}

// Job is a durably recorded shell command with its scheduling metadata.
//
// A job in StateProcessing is owned by exactly one worker (WorkerID is set);
// in every other state WorkerID is nil. Attempts counts completed or
// interrupted executions and never exceeds MaxRetries+1.
type Job struct {
	ID             string     `gorm:"primaryKey;size:255" json:"id"`
	Command        string     `gorm:"type:text;not null" json:"command"`
	State          JobState   `gorm:"index:idx_jobs_state_next_run;size:20;default:'pending'" json:"state"`
	Priority       int        `gorm:"index;default:0" json:"priority"`
	Attempts       int        `gorm:"default:0" json:"attempts"`
	MaxRetries     int        `json:"max_retries"`
	TimeoutSeconds *int       `json:"timeout_seconds,omitempty"`
	RunAt          *time.Time `json:"run_at,omitempty"`
	NextRunAt      time.Time  `gorm:"index:idx_jobs_state_next_run" json:"next_run_at"`
	WorkerID       *string    `gorm:"size:64" json:"worker_id,omitempty"`
	LastError      *string    `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt      time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Timeout returns the job's execution timeout, or 0 when none is set.
func (j *Job) Timeout() time.Duration {
	if j.TimeoutSeconds == nil {
		return 0
	}
	return time.Duration(*j.TimeoutSeconds) * time.Second
}

// DLQEntry is a frozen record of a job that exhausted its retries.
//
// Entries are created when a processing job runs out of attempts, removed by
// an explicit purge, or replaced by a fresh pending job via retry.
type DLQEntry struct {
	ID            string    `gorm:"primaryKey;size:255"`
	OriginalJobID string    `gorm:"index;size:255;not null"`
	Command       string    `gorm:"type:text;not null"`
	Attempts      int       `gorm:"not null"`
	LastError     *string   `gorm:"type:text"`
	CreatedAt     time.Time // creation time of the original job
	UpdatedAt     time.Time
	MovedAt       time.Time `gorm:"index"`
}

// WorkerRecord registers a live worker process for liveness tracking.
type WorkerRecord struct {
	WorkerID        string `gorm:"primaryKey;size:64"`
	PID             int    `gorm:"column:pid;not null"`
	Hostname        string `gorm:"size:255;not null"`
	Version         string `gorm:"size:32;not null"`
	StartedAt       time.Time
	LastHeartbeatAt time.Time `gorm:"index"`
}

// Stale reports whether the worker's last heartbeat is older than timeout.
func (w *WorkerRecord) Stale(now time.Time, timeout time.Duration) bool {
	return now.Sub(w.LastHeartbeatAt) > timeout
}

// ConfigEntry is a persisted configuration override. Values are strings and
// are typed at read time according to the key's schema.
type ConfigEntry struct {
	Key   string `gorm:"primaryKey;size:64"`
	Value string `gorm:"not null"`
}
