package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJobState_Valid(t *testing.T) {
	for _, st := range JobStates {
		assert.True(t, st.Valid(), "state %s", st)
	}
	assert.False(t, JobState("running").Valid())
	assert.False(t, JobState("").Valid())
}

func TestJobState_Terminal(t *testing.T) {
	assert.True(t, StateCompleted.Terminal())
	assert.True(t, StateDead.Terminal())
	assert.False(t, StatePending.Terminal())
	assert.False(t, StateProcessing.Terminal())
	assert.False(t, StateFailed.Terminal())
}

func TestJob_Timeout(t *testing.T) {
	var j Job
	assert.Equal(t, time.Duration(0), j.Timeout())

	secs := 30
	j.TimeoutSeconds = &secs
	assert.Equal(t, 30*time.Second, j.Timeout())
}

func TestWorkerRecord_Stale(t *testing.T) {
	now := time.Now().UTC()
	w := WorkerRecord{LastHeartbeatAt: now.Add(-31 * time.Second)}
	assert.True(t, w.Stale(now, 30*time.Second))

	w.LastHeartbeatAt = now.Add(-29 * time.Second)
	assert.False(t, w.Stale(now, 30*time.Second))
}
