package store

import (
	"context"
)

// Backend is the uniform capability surface over one physical job store,
// scoped to a single namespace.
type Backend interface {
	Kind() Kind
	Namespace() string

	// Push enqueues a new job record.
	Push(ctx context.Context, req PushRequest) (*Job, error)

	// Pull claims the next due job for workerID and marks it Running.
	// Returns nil, nil when nothing is due.
	Pull(ctx context.Context, workerID string) (*Job, error)

	// Complete marks a running job as Success.
	Complete(ctx context.Context, id string) error

	// Fail records a failed attempt. The job is retried later while attempts remain,
	// otherwise it becomes Dead. The resulting state is returned.
	Fail(ctx context.Context, id string, reason string) (JobState, error)

	// FetchByID returns ErrNotFound when the job does not exist in this namespace.
	FetchByID(ctx context.Context, id string) (*Job, error)

	// Heartbeat registers or refreshes a worker's liveness record.
	Heartbeat(ctx context.Context, w Worker) error

	// Deregister removes a worker from the roster.
	Deregister(ctx context.Context, workerID string) error

	Stats(ctx context.Context) (Stat, error)

	// ListJobs returns a 1-indexed page of jobs in the given state, newest first.
	// Out-of-range pages return an empty page.
	ListJobs(ctx context.Context, state JobState, page int) (JobPage, error)

	// ListWorkers returns live workers, most recently seen first.
	ListWorkers(ctx context.Context) ([]Worker, error)

	Close() error
}
