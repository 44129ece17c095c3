// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and the read API.
package api

import (
	"encoding/json"
	"time"
)

// NamespaceResponse describes one registered queue.
type NamespaceResponse struct {
	Name    string `json:"name"`
	Backend string `json:"backend"`
}

// StatsResponse is a point-in-time count of jobs per state.
type StatsResponse struct {
	Pending int64 `json:"pending"`
	Running int64 `json:"running"`
	Dead    int64 `json:"dead"`
	Failed  int64 `json:"failed"`
	Success int64 `json:"success"`
}

// JobResponse represents one job record in API responses.
type JobResponse struct {
	ID          string          `json:"id"`
	Namespace   string          `json:"namespace"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	LastError   string          `json:"last_error,omitempty"`
	LockBy      string          `json:"lock_by,omitempty"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	RunAt       time.Time       `json:"run_at"`
	DoneAt      *time.Time      `json:"done_at,omitempty"`
}

// BackendResponse is the body of GET /api/v1/backend/{ns}.
type BackendResponse struct {
	Namespace string        `json:"namespace"`
	Status    string        `json:"status"`
	Page      int           `json:"page"`
	Stats     StatsResponse `json:"stats"`
	Jobs      []JobResponse `json:"jobs"`
	// Skipped counts records on this page that could not be decoded.
	Skipped int `json:"skipped"`
}

// WorkerResponse is one entry of the worker roster.
type WorkerResponse struct {
	WorkerID string    `json:"worker_id"`
	JobName  string    `json:"job_name"`
	Backend  string    `json:"backend"`
	LastSeen time.Time `json:"last_seen"`
}

// PushJobResponse is returned after enqueueing a payload.
type PushJobResponse struct {
	ID     string    `json:"id"`
	Status string    `json:"status"`
	RunAt  time.Time `json:"run_at"`
}

// JobEvent is a lifecycle event published on the live stream.
type JobEvent struct {
	Event      string `json:"event"`
	Job        string `json:"job"`
	ID         string `json:"id"`
	Status     string `json:"status,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Lifecycle event names.
const (
	EventStarted   = "started"
	EventCompleted = "completed"
	EventFailed    = "failed"
)

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
