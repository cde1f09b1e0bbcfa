package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/krishnasharma4415/QueueCTL/pkg/core"
)

// JobSpec is the untyped job specification accepted by enqueue, usually
// arriving as JSON. Unknown JSON fields are ignored.
type JobSpec struct {
	ID             string `json:"id"`
	Command        string `json:"command"`
	Priority       int    `json:"priority"`
	MaxRetries     *int   `json:"max_retries"`
	TimeoutSeconds *int   `json:"timeout_seconds"`
	RunAt          string `json:"run_at"`
}

// ParseSpec decodes a JSON job specification.
func ParseSpec(data []byte) (JobSpec, error) {
	var spec JobSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return JobSpec{}, fmt.Errorf("%w: invalid JSON: %v", core.ErrInvalidSpec, err)
	}
	return spec, nil
}

// runAtLayouts are the accepted timestamp formats for run_at, RFC 3339 first.
var runAtLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// parseRunAt parses a run_at timestamp. Timestamps without a zone are taken
// as local time.
func parseRunAt(value string) (time.Time, error) {
	for _, layout := range runAtLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: run_at %q is not an ISO-8601 timestamp", core.ErrInvalidSpec, value)
}
