// Package store contains the backend layer for jobdeck.
package store

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Fixed page sizes shared by every backend kind.
const (
	JobsPageSize    = 10
	WorkersPageSize = 20
)

// JobState is the lifecycle state of a persisted job record.
type JobState string

const (
	StatePending   JobState = "Pending"
	StateScheduled JobState = "Scheduled"
	StateRunning   JobState = "Running"
	StateSuccess   JobState = "Success"
	StateFailed    JobState = "Failed"
	StateDead      JobState = "Dead"
)

// AllStates lists every state in display order.
var AllStates = []JobState{StatePending, StateScheduled, StateRunning, StateSuccess, StateFailed, StateDead}

// ParseJobState accepts a state name case-insensitively. An empty string means Pending.
func ParseJobState(s string) (JobState, error) {
	if s == "" {
		return StatePending, nil
	}
	for _, st := range AllStates {
		if strings.EqualFold(string(st), s) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown job state %q", s)
}

// Terminal reports whether no further transition can happen.
func (s JobState) Terminal() bool {
	return s == StateSuccess || s == StateDead
}

// Job is one unit of work persisted by a backend.
type Job struct {
	ID          string          `json:"id"`
	Namespace   string          `json:"namespace"`
	Payload     json.RawMessage `json:"payload"`
	State       JobState        `json:"state"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	LastError   string          `json:"last_error,omitempty"`
	LockBy      string          `json:"lock_by,omitempty"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	RunAt       time.Time       `json:"run_at"`
	DoneAt      *time.Time      `json:"done_at,omitempty"`
}

// PushRequest describes a job to enqueue.
type PushRequest struct {
	Payload json.RawMessage
	// RunAt delays the job; zero means now.
	RunAt       time.Time
	MaxAttempts int
}

// Stat is a point-in-time count of jobs per state. Scheduled jobs count as pending.
type Stat struct {
	Pending int64 `json:"pending"`
	Running int64 `json:"running"`
	Dead    int64 `json:"dead"`
	Failed  int64 `json:"failed"`
	Success int64 `json:"success"`
}

// Total sums every bucket.
func (s Stat) Total() int64 {
	return s.Pending + s.Running + s.Dead + s.Failed + s.Success
}

// Worker is the liveness record of one poller.
type Worker struct {
	ID       string    `json:"worker_id"`
	JobName  string    `json:"job_name"`
	Backend  Kind      `json:"backend"`
	LastSeen time.Time `json:"last_seen"`
}

// JobPage is one page of a listing. Skipped counts records that could not be decoded.
type JobPage struct {
	Jobs    []Job `json:"jobs"`
	Skipped int   `json:"skipped,omitempty"`
}

// PageOffset returns the zero-based offset of a 1-indexed page, or false when the page is out of range.
// Pages whose last index would not fit in an int are out of range.
func PageOffset(page, size int) (int, bool) {
	if page < 1 || size < 1 || page > math.MaxInt/size {
		return 0, false
	}
	return (page - 1) * size, true
}

// RetryBackoff is the delay before a failed job is retried.
func RetryBackoff(attempts int) time.Duration {
	if attempts > 8 {
		return 5 * time.Minute
	}
	d := time.Duration(1<<attempts) * time.Second
	if d > 5*time.Minute {
		d = 5 * time.Minute
	}
	return d
}
