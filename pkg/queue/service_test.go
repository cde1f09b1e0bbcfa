package queue

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krishnasharma4415/QueueCTL/pkg/config"
	"github.com/krishnasharma4415/QueueCTL/pkg/core"
	"github.com/krishnasharma4415/QueueCTL/pkg/storage"
)

func newTestService(t *testing.T) (*Service, *storage.Store) {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "queuectl.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return NewService(s, config.DefaultSettings()), s
}

// claim enqueues a spec and claims the next eligible job for workerID, which
// is the enqueued one when no earlier job is pending.
func claim(t *testing.T, svc *Service, store *storage.Store, spec JobSpec, workerID string) *core.Job {
	t.Helper()
	ctx := context.Background()
	_, err := svc.Enqueue(ctx, spec)
	require.NoError(t, err)
	job, err := store.ClaimNext(ctx, workerID, time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, job)
	return job
}

func intp(n int) *int { return &n }

// ──────────────────────────────────────────────────────────────────────────────
// Spec parsing and validation
// ──────────────────────────────────────────────────────────────────────────────

func TestParseSpec_FullSpec(t *testing.T) {
	spec, err := ParseSpec([]byte(`{
		"id": "job-1",
		"command": "echo hi",
		"priority": 5,
		"max_retries": 2,
		"timeout_seconds": 30,
		"run_at": "2026-01-02T15:04:05Z"
	}`))
	require.NoError(t, err)
	assert.Equal(t, "job-1", spec.ID)
	assert.Equal(t, "echo hi", spec.Command)
	assert.Equal(t, 5, spec.Priority)
	require.NotNil(t, spec.MaxRetries)
	assert.Equal(t, 2, *spec.MaxRetries)
	require.NotNil(t, spec.TimeoutSeconds)
	assert.Equal(t, 30, *spec.TimeoutSeconds)
}

func TestParseSpec_InvalidJSON(t *testing.T) {
	_, err := ParseSpec([]byte(`{not json`))
	assert.ErrorIs(t, err, core.ErrInvalidSpec)
}

func TestParseSpec_UnknownFieldsIgnored(t *testing.T) {
	spec, err := ParseSpec([]byte(`{"command": "true", "shiny": "ignored"}`))
	require.NoError(t, err)
	assert.Equal(t, "true", spec.Command)
}

func TestEnqueue_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	tests := []struct {
		name string
		spec JobSpec
	}{
		{"missing command", JobSpec{}},
		{"negative max_retries", JobSpec{Command: "true", MaxRetries: intp(-1)}},
		{"zero timeout", JobSpec{Command: "true", TimeoutSeconds: intp(0)}},
		{"negative timeout", JobSpec{Command: "true", TimeoutSeconds: intp(-5)}},
		{"bad run_at", JobSpec{Command: "true", RunAt: "yesterday"}},
		{"bad id", JobSpec{Command: "true", ID: "has spaces"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Enqueue(ctx, tt.spec)
			assert.ErrorIs(t, err, core.ErrInvalidSpec)
		})
	}
}

func TestEnqueue_DefaultsFromConfig(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	job, err := svc.Enqueue(ctx, JobSpec{Command: "true"})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID, "id is assigned when absent")
	assert.Equal(t, 3, job.MaxRetries, "max_retries defaults from config")
	assert.Equal(t, 0, job.Priority)
	assert.Nil(t, job.TimeoutSeconds)
	assert.Equal(t, core.StatePending, job.State)
}

func TestEnqueue_PerJobMaxRetriesOverridesConfig(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	job, err := svc.Enqueue(ctx, JobSpec{Command: "true", MaxRetries: intp(0)})
	require.NoError(t, err)
	assert.Equal(t, 0, job.MaxRetries)
}

func TestEnqueue_RunAtSchedulesNextRun(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	runAt := time.Now().UTC().Add(3 * time.Second).Format(time.RFC3339Nano)
	job, err := svc.Enqueue(ctx, JobSpec{ID: "d", Command: "true", RunAt: runAt})
	require.NoError(t, err)
	require.NotNil(t, job.RunAt)
	assert.Equal(t, *job.RunAt, job.NextRunAt)

	claimed, err := store.ClaimNext(ctx, "w1", time.Now().UTC())
	require.NoError(t, err)
	assert.Nil(t, claimed, "job must stay pending until run_at")

	claimed, err = store.ClaimNext(ctx, "w1", time.Now().UTC().Add(5*time.Second))
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, "d", claimed.ID)
}

func TestEnqueue_DuplicateID(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Enqueue(ctx, JobSpec{ID: "a", Command: "true"})
	require.NoError(t, err)
	_, err = svc.Enqueue(ctx, JobSpec{ID: "a", Command: "false"})
	assert.ErrorIs(t, err, core.ErrDuplicateJob)
}

// ──────────────────────────────────────────────────────────────────────────────
// Backoff
// ──────────────────────────────────────────────────────────────────────────────

func TestBackoffDelay_ExponentialSchedule(t *testing.T) {
	assert.Equal(t, 2*time.Second, BackoffDelay(2, 1))
	assert.Equal(t, 4*time.Second, BackoffDelay(2, 2))
	assert.Equal(t, 8*time.Second, BackoffDelay(2, 3))
	assert.Equal(t, 3*time.Second, BackoffDelay(3, 1))
	assert.Equal(t, 9*time.Second, BackoffDelay(3, 2))
}

func TestBackoffDelay_Bounded(t *testing.T) {
	assert.Equal(t, maxBackoffDelay, BackoffDelay(2, 90))
}

// ──────────────────────────────────────────────────────────────────────────────
// Failure handler
// ──────────────────────────────────────────────────────────────────────────────

func TestHandleFailure_SchedulesRetryWithBackoff(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	job := claim(t, svc, store, JobSpec{ID: "b", Command: "false", MaxRetries: intp(2)}, "w1")

	before := time.Now().UTC()
	require.NoError(t, svc.HandleFailure(ctx, job, "Command failed with exit code 1"))

	got, err := store.GetJob(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, core.StatePending, got.State)
	assert.Equal(t, 1, got.Attempts)
	// First retry delay is backoff_base^1 = 2s.
	assert.WithinDuration(t, before.Add(2*time.Second), got.NextRunAt, 1500*time.Millisecond)
}

func TestHandleFailure_SecondRetryDelayGrows(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	job := claim(t, svc, store, JobSpec{ID: "b", Command: "false", MaxRetries: intp(2)}, "w1")
	require.NoError(t, svc.HandleFailure(ctx, job, "Command failed with exit code 1"))

	// Re-claim once eligible and fail again.
	job2, err := store.ClaimNext(ctx, "w1", time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, job2)
	before := time.Now().UTC()
	require.NoError(t, svc.HandleFailure(ctx, job2, "Command failed with exit code 1"))

	got, err := store.GetJob(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempts)
	// Second retry delay is backoff_base^2 = 4s.
	assert.WithinDuration(t, before.Add(4*time.Second), got.NextRunAt, 1500*time.Millisecond)
}

func TestHandleFailure_ExhaustedRetriesDeadletter(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	job := claim(t, svc, store, JobSpec{ID: "b", Command: "false", MaxRetries: intp(2)}, "w1")

	// Burn through both retries, then the final attempt.
	for i := 0; i < 2; i++ {
		require.NoError(t, svc.HandleFailure(ctx, job, "Command failed with exit code 1"))
		job, _ = store.ClaimNext(ctx, "w1", time.Now().UTC().Add(time.Hour))
		require.NotNil(t, job)
	}
	require.NoError(t, svc.HandleFailure(ctx, job, "Command failed with exit code 1"))

	got, err := store.GetJob(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, core.StateDead, got.State)
	assert.Equal(t, 3, got.Attempts, "max_retries=2 means 3 total attempts")

	entries, err := store.ListDLQ(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].OriginalJobID)
	assert.Equal(t, 3, entries[0].Attempts)
	require.NotNil(t, entries[0].LastError)
	assert.Contains(t, *entries[0].LastError, "exit code 1")
}

func TestHandleFailure_ZeroRetriesStraightToDLQ(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	job := claim(t, svc, store, JobSpec{ID: "b", Command: "false", MaxRetries: intp(0)}, "w1")

	require.NoError(t, svc.HandleFailure(ctx, job, "Command failed with exit code 1"))

	got, err := store.GetJob(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, core.StateDead, got.State)
	assert.Equal(t, 1, got.Attempts)

	n, err := store.CountDLQ(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

// ──────────────────────────────────────────────────────────────────────────────
// Orphan recovery
// ──────────────────────────────────────────────────────────────────────────────

func TestRecoverOrphans_ReleasesStaleWorkersJobs(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	now := time.Now().UTC()

	require.NoError(t, store.RegisterWorker(ctx, &core.WorkerRecord{
		WorkerID:        "stale",
		PID:             999,
		Hostname:        "gone",
		Version:         core.Version,
		StartedAt:       now.Add(-time.Minute),
		LastHeartbeatAt: now.Add(-time.Minute),
	}))
	claim(t, svc, store, JobSpec{ID: "c", Command: "sleep 30"}, "stale")

	recovered, err := svc.RecoverOrphans(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	got, err := store.GetJob(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, core.StatePending, got.State)
	assert.Equal(t, 1, got.Attempts, "the interrupted attempt is consumed")
	assert.Nil(t, got.WorkerID)
	require.NotNil(t, got.LastError)
	assert.Contains(t, *got.LastError, "stale worker")

	workers, err := store.ListWorkers(ctx)
	require.NoError(t, err)
	assert.Empty(t, workers, "stale registry rows are cleaned up")
}

func TestRecoverOrphans_ExhaustedJobDeadletters(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	now := time.Now().UTC()

	job := claim(t, svc, store, JobSpec{ID: "c", Command: "false", MaxRetries: intp(0)}, "ghost")
	require.Equal(t, core.StateProcessing, job.State)

	recovered, err := svc.RecoverOrphans(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	got, err := store.GetJob(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, core.StateDead, got.State, "no retry budget left, straight to DLQ")
}

func TestRecoverOrphans_FreshWorkerUntouched(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	now := time.Now().UTC()

	require.NoError(t, store.RegisterWorker(ctx, &core.WorkerRecord{
		WorkerID:        "live",
		PID:             os.Getpid(),
		Hostname:        "here",
		Version:         core.Version,
		StartedAt:       now,
		LastHeartbeatAt: now,
	}))
	claim(t, svc, store, JobSpec{ID: "c", Command: "sleep 30"}, "live")

	recovered, err := svc.RecoverOrphans(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 0, recovered)

	got, err := store.GetJob(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, core.StateProcessing, got.State)
}

// ──────────────────────────────────────────────────────────────────────────────
// Status and DLQ facade
// ──────────────────────────────────────────────────────────────────────────────

func TestStatus_AggregatesCountsAndWorkers(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	now := time.Now().UTC()

	_, err := svc.Enqueue(ctx, JobSpec{Command: "true"})
	require.NoError(t, err)
	claim(t, svc, store, JobSpec{ID: "running", Command: "sleep 5"}, "w1")
	require.NoError(t, store.RegisterWorker(ctx, &core.WorkerRecord{
		WorkerID: "w1", PID: 1, Hostname: "h", Version: core.Version,
		StartedAt: now, LastHeartbeatAt: now,
	}))

	st, err := svc.Status(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.Counts[core.StatePending])
	assert.EqualValues(t, 1, st.Counts[core.StateProcessing])
	assert.EqualValues(t, 0, st.DLQ)
	require.Len(t, st.Workers, 1)
	assert.Equal(t, "w1", st.Workers[0].WorkerID)
}

func TestRetryDLQ_FreshID(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	job := claim(t, svc, store, JobSpec{ID: "b", Command: "false", MaxRetries: intp(0)}, "w1")
	require.NoError(t, svc.HandleFailure(ctx, job, "Command failed with exit code 1"))

	entries, err := svc.ListDLQ(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	newID, err := svc.RetryDLQ(ctx, entries[0].ID, false)
	require.NoError(t, err)
	assert.NotEqual(t, "b", newID)

	got, err := store.GetJob(ctx, newID)
	require.NoError(t, err)
	assert.Equal(t, core.StatePending, got.State)
	assert.Equal(t, 0, got.Attempts)

	n, err := store.CountDLQ(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestRetryDLQ_SameIDConflictsWithDeadRow(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	job := claim(t, svc, store, JobSpec{ID: "b", Command: "false", MaxRetries: intp(0)}, "w1")
	require.NoError(t, svc.HandleFailure(ctx, job, "Command failed with exit code 1"))

	entries, err := svc.ListDLQ(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// The dead job row still holds the original id.
	_, err = svc.RetryDLQ(ctx, entries[0].ID, true)
	assert.ErrorIs(t, err, core.ErrDuplicateJob)
}

func TestRetryDLQ_NotFound(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.RetryDLQ(ctx, "missing", false)
	assert.ErrorIs(t, err, core.ErrNotFound)
}
