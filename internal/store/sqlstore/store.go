package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"jobdeck/internal/store"

	"github.com/google/uuid"
)

// DefaultMaxAttempts applies when a push does not name one.
const DefaultMaxAttempts = 3

// executor is satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a namespace-scoped Backend over a shared DB.
type Store struct {
	db          *DB
	namespace   string
	maxAttempts int
	workerTTL   time.Duration
	now         func() time.Time
}

// Options tune a Store.
type Options struct {
	MaxAttempts int
	// WorkerTTL is how long a worker stays in the roster without a heartbeat.
	WorkerTTL time.Duration
}

// New returns a Backend for namespace on db.
func New(db *DB, namespace string, opts Options) *Store {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.WorkerTTL <= 0 {
		opts.WorkerTTL = 30 * time.Second
	}
	return &Store{
		db:          db,
		namespace:   namespace,
		maxAttempts: opts.MaxAttempts,
		workerTTL:   opts.WorkerTTL,
		now:         time.Now,
	}
}

var _ store.Backend = (*Store)(nil)

func (s *Store) Kind() store.Kind { return s.db.dialect.kind }
func (s *Store) Namespace() string { return s.namespace }

// Close is a no-op; the DB owner closes the pool.
func (s *Store) Close() error { return nil }

const jobColumns = "id, job_type, payload, status, attempts, max_attempts, last_error, lock_by, enqueued_at, run_at, done_at"

func (s *Store) q(query string) string { return s.db.dialect.rebind(query) }

func (s *Store) wrap(op string, err error) error { return store.Wrap(s.Kind(), op, err) }

// Push inserts a new job row. Jobs with a future RunAt start as Scheduled.
func (s *Store) Push(ctx context.Context, req store.PushRequest) (*store.Job, error) {
	now := s.now()
	runAt := req.RunAt
	state := store.StateScheduled
	if runAt.IsZero() || !runAt.After(now) {
		runAt = now
		state = store.StatePending
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.maxAttempts
	}
	payload := req.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}

	job := &store.Job{
		ID:          uuid.NewString(),
		Namespace:   s.namespace,
		Payload:     payload,
		State:       state,
		MaxAttempts: maxAttempts,
		EnqueuedAt:  time.UnixMilli(now.UnixMilli()),
		RunAt:       time.UnixMilli(runAt.UnixMilli()),
	}

	_, err := s.db.sql.ExecContext(ctx, s.q(`
		INSERT INTO jobs (id, job_type, payload, status, attempts, max_attempts, enqueued_at, run_at)
		VALUES (?, ?, ?, ?, 0, ?, ?, ?)`),
		job.ID, s.namespace, string(payload), string(state), maxAttempts, now.UnixMilli(), runAt.UnixMilli(),
	)
	if err != nil {
		return nil, s.wrap("push", err)
	}
	return job, nil
}

// Pull claims the oldest due job inside a transaction.
func (s *Store) Pull(ctx context.Context, workerID string) (*store.Job, error) {
	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return nil, s.wrap("pull", err)
	}
	defer tx.Rollback()

	now := s.now().UnixMilli()

	var id string
	err = tx.QueryRowContext(ctx, s.q(`
		SELECT id FROM jobs
		WHERE job_type = ? AND status IN ('Pending', 'Scheduled', 'Failed') AND run_at <= ?
		ORDER BY run_at ASC, enqueued_at ASC
		LIMIT 1`+s.db.dialect.lock),
		s.namespace, now,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, s.wrap("pull", err)
	}

	_, err = tx.ExecContext(ctx, s.q(`
		UPDATE jobs SET status = 'Running', attempts = attempts + 1, lock_by = ?, lock_at = ?
		WHERE id = ?`),
		workerID, now, id,
	)
	if err != nil {
		return nil, s.wrap("pull", err)
	}

	job, ok, err := s.fetch(ctx, tx, id)
	if err != nil {
		return nil, s.wrap("pull", err)
	}
	if !ok {
		// An unreadable record can never run; bury it instead of leaving it Running.
		_, err = tx.ExecContext(ctx, s.q(`
			UPDATE jobs SET status = 'Dead', last_error = ?, done_at = ?, lock_by = NULL
			WHERE id = ?`),
			"undecodable payload", now, id,
		)
		if err != nil {
			return nil, s.wrap("pull", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, s.wrap("pull", err)
		}
		return nil, &store.DecodeError{ID: id}
	}

	if err := tx.Commit(); err != nil {
		return nil, s.wrap("pull", err)
	}
	return job, nil
}

// Complete marks the job Success.
func (s *Store) Complete(ctx context.Context, id string) error {
	res, err := s.db.sql.ExecContext(ctx, s.q(`
		UPDATE jobs SET status = 'Success', done_at = ?, lock_by = NULL
		WHERE id = ? AND job_type = ?`),
		s.now().UnixMilli(), id, s.namespace,
	)
	if err != nil {
		return s.wrap("complete", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Fail records a failed attempt and schedules a retry or buries the job.
func (s *Store) Fail(ctx context.Context, id string, reason string) (store.JobState, error) {
	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return "", s.wrap("fail", err)
	}
	defer tx.Rollback()

	var attempts, maxAttempts int
	err = tx.QueryRowContext(ctx, s.q(`SELECT attempts, max_attempts FROM jobs WHERE id = ? AND job_type = ?`),
		id, s.namespace,
	).Scan(&attempts, &maxAttempts)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", s.wrap("fail", err)
	}

	now := s.now()
	state := store.StateFailed
	runAt := now.Add(store.RetryBackoff(attempts))
	if attempts >= maxAttempts {
		state = store.StateDead
		runAt = now
	}

	_, err = tx.ExecContext(ctx, s.q(`
		UPDATE jobs SET status = ?, last_error = ?, done_at = ?, run_at = ?, lock_by = NULL
		WHERE id = ?`),
		string(state), reason, now.UnixMilli(), runAt.UnixMilli(), id,
	)
	if err != nil {
		return "", s.wrap("fail", err)
	}
	if err := tx.Commit(); err != nil {
		return "", s.wrap("fail", err)
	}
	return state, nil
}

// FetchByID returns one job of this namespace.
func (s *Store) FetchByID(ctx context.Context, id string) (*store.Job, error) {
	job, ok, err := s.fetch(ctx, s.db.sql, id)
	if err != nil {
		return nil, s.wrap("fetch", err)
	}
	if !ok {
		return nil, &store.DecodeError{ID: id}
	}
	return job, nil
}

func (s *Store) fetch(ctx context.Context, ex executor, id string) (*store.Job, bool, error) {
	row := ex.QueryRowContext(ctx, s.q(`SELECT `+jobColumns+` FROM jobs WHERE id = ? AND job_type = ?`), id, s.namespace)
	job, ok, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, store.ErrNotFound
	}
	return job, ok, err
}

// Heartbeat upserts the worker's last-seen time.
func (s *Store) Heartbeat(ctx context.Context, w store.Worker) error {
	seen := w.LastSeen
	if seen.IsZero() {
		seen = s.now()
	}
	_, err := s.db.sql.ExecContext(ctx, s.q(s.db.dialect.upsertWorker),
		w.ID, s.namespace, string(w.Backend), seen.UnixMilli(),
	)
	return s.wrap("heartbeat", err)
}

// Deregister removes the worker row.
func (s *Store) Deregister(ctx context.Context, workerID string) error {
	_, err := s.db.sql.ExecContext(ctx, s.q(`DELETE FROM workers WHERE id = ? AND worker_type = ?`), workerID, s.namespace)
	return s.wrap("deregister", err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanJob returns ok=false when the row was read but its payload is not valid JSON.
func scanJob(row rowScanner) (*store.Job, bool, error) {
	var (
		job               store.Job
		payload, status   string
		lastError, lockBy sql.NullString
		enqueuedAt, runAt int64
		doneAt            sql.NullInt64
	)
	if err := row.Scan(&job.ID, &job.Namespace, &payload, &status, &job.Attempts, &job.MaxAttempts,
		&lastError, &lockBy, &enqueuedAt, &runAt, &doneAt); err != nil {
		return nil, false, err
	}
	if !json.Valid([]byte(payload)) {
		return nil, false, nil
	}
	job.Payload = json.RawMessage(payload)
	job.State = store.JobState(status)
	job.LastError = lastError.String
	job.LockBy = lockBy.String
	job.EnqueuedAt = time.UnixMilli(enqueuedAt)
	job.RunAt = time.UnixMilli(runAt)
	if doneAt.Valid {
		t := time.UnixMilli(doneAt.Int64)
		job.DoneAt = &t
	}
	return &job, true, nil
}

func (s *Store) String() string {
	return fmt.Sprintf("%s:%s", s.Kind(), s.namespace)
}
