// Package redis implements store.Backend on Redis lists and sorted sets.
//
// Layout per namespace ns:
//
//	ns:data       hash   id -> job JSON
//	ns:active     list   pending ids, LPUSH on enqueue, RPOP on claim
//	ns:scheduled  zset   delayed ids scored by run_at
//	ns:inflight   zset   running ids scored by claim time
//	ns:done       zset   succeeded ids scored by completion time
//	ns:failed     zset   failed ids awaiting retry, scored by failure time
//	ns:dead       zset   ids out of attempts, scored by completion time
//	ns:retry      zset   retry index for ns:failed scored by next run time
//	ns:workers    zset   worker ids scored by last heartbeat
//
// The list/set an id lives in is the authority on its state; the JSON copy is
// refreshed on every transition but may lag inside the claim window.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"jobdeck/internal/store"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultMaxAttempts applies when a push does not name one.
const DefaultMaxAttempts = 3

// Open connects to the server named by a redis:// or rediss:// URL and pings it.
func Open(ctx context.Context, rawURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis locator: %w", err)
	}
	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

type keys struct {
	data, active, scheduled, inflight, done, failed, dead, retry, workers string
}

func keysFor(ns string) keys {
	return keys{
		data:      ns + ":data",
		active:    ns + ":active",
		scheduled: ns + ":scheduled",
		inflight:  ns + ":inflight",
		done:      ns + ":done",
		failed:    ns + ":failed",
		dead:      ns + ":dead",
		retry:     ns + ":retry",
		workers:   ns + ":workers",
	}
}

// Options tune a Store.
type Options struct {
	MaxAttempts int
	WorkerTTL   time.Duration
}

// Store is a namespace-scoped Backend over a shared client.
type Store struct {
	client      goredis.UniversalClient
	namespace   string
	keys        keys
	maxAttempts int
	workerTTL   time.Duration
	now         func() time.Time
}

var _ store.Backend = (*Store)(nil)

// New returns a Backend for namespace. The caller owns client.
func New(client goredis.UniversalClient, namespace string, opts Options) *Store {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.WorkerTTL <= 0 {
		opts.WorkerTTL = 30 * time.Second
	}
	return &Store{
		client:      client,
		namespace:   namespace,
		keys:        keysFor(namespace),
		maxAttempts: opts.MaxAttempts,
		workerTTL:   opts.WorkerTTL,
		now:         time.Now,
	}
}

func (s *Store) Kind() store.Kind  { return store.KindRedis }
func (s *Store) Namespace() string { return s.namespace }
func (s *Store) Close() error      { return nil }

func (s *Store) wrap(op string, err error) error { return store.Wrap(store.KindRedis, op, err) }

// Push stores the record and indexes it as active, or as scheduled when RunAt is in the future.
func (s *Store) Push(ctx context.Context, req store.PushRequest) (*store.Job, error) {
	now := time.UnixMilli(s.now().UnixMilli())
	job := &store.Job{
		ID:          uuid.NewString(),
		Namespace:   s.namespace,
		Payload:     req.Payload,
		State:       store.StatePending,
		MaxAttempts: req.MaxAttempts,
		EnqueuedAt:  now,
		RunAt:       now,
	}
	if len(job.Payload) == 0 {
		job.Payload = json.RawMessage("null")
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = s.maxAttempts
	}
	if req.RunAt.After(now) {
		job.State = store.StateScheduled
		job.RunAt = time.UnixMilli(req.RunAt.UnixMilli())
	}

	raw, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, s.keys.data, job.ID, raw)
		if job.State == store.StateScheduled {
			pipe.ZAdd(ctx, s.keys.scheduled, goredis.Z{Score: float64(job.RunAt.UnixMilli()), Member: job.ID})
		} else {
			pipe.LPush(ctx, s.keys.active, job.ID)
		}
		return nil
	})
	if err != nil {
		return nil, s.wrap("push", err)
	}
	return job, nil
}

// Pull promotes due scheduled and retry entries, then claims the oldest active id.
func (s *Store) Pull(ctx context.Context, workerID string) (*store.Job, error) {
	now := s.now()
	k := s.keys
	id, err := pullScript.Run(ctx, s.client,
		[]string{k.active, k.scheduled, k.inflight, k.retry, k.failed},
		now.UnixMilli(),
	).Text()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, s.wrap("pull", err)
	}

	job, err := s.load(ctx, id)
	var decodeErr *store.DecodeError
	if errors.As(err, &decodeErr) || errors.Is(err, store.ErrNotFound) {
		// An unreadable or missing record can never run; bury it instead of leaving it inflight.
		score := float64(now.UnixMilli())
		_, _ = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.ZRem(ctx, s.keys.inflight, id)
			pipe.ZAdd(ctx, s.keys.dead, goredis.Z{Score: score, Member: id})
			return nil
		})
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	job.State = store.StateRunning
	job.Attempts++
	job.LockBy = workerID
	if err := s.save(ctx, job); err != nil {
		return nil, s.wrap("pull", err)
	}
	return job, nil
}

// Complete moves a job from inflight to done.
func (s *Store) Complete(ctx context.Context, id string) error {
	job, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	now := time.UnixMilli(s.now().UnixMilli())
	job.State = store.StateSuccess
	job.DoneAt = &now
	job.LockBy = ""

	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, s.keys.data, id, raw)
		pipe.ZRem(ctx, s.keys.inflight, id)
		pipe.ZAdd(ctx, s.keys.done, goredis.Z{Score: float64(now.UnixMilli()), Member: id})
		return nil
	})
	return s.wrap("complete", err)
}

// Fail moves a job from inflight to failed (with a retry entry) or to dead.
func (s *Store) Fail(ctx context.Context, id string, reason string) (store.JobState, error) {
	job, err := s.load(ctx, id)
	if err != nil {
		return "", err
	}
	now := time.UnixMilli(s.now().UnixMilli())
	job.LastError = reason
	job.DoneAt = &now
	job.LockBy = ""
	job.State = store.StateFailed
	if job.Attempts >= job.MaxAttempts {
		job.State = store.StateDead
	} else {
		job.RunAt = now.Add(store.RetryBackoff(job.Attempts))
	}

	raw, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to encode job: %w", err)
	}
	score := float64(now.UnixMilli())
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, s.keys.data, id, raw)
		pipe.ZRem(ctx, s.keys.inflight, id)
		if job.State == store.StateDead {
			pipe.ZAdd(ctx, s.keys.dead, goredis.Z{Score: score, Member: id})
			return nil
		}
		pipe.ZAdd(ctx, s.keys.failed, goredis.Z{Score: score, Member: id})
		pipe.ZAdd(ctx, s.keys.retry, goredis.Z{Score: float64(job.RunAt.UnixMilli()), Member: id})
		return nil
	})
	if err != nil {
		return "", s.wrap("fail", err)
	}
	return job.State, nil
}

// FetchByID returns the stored record.
func (s *Store) FetchByID(ctx context.Context, id string) (*store.Job, error) {
	return s.load(ctx, id)
}

func (s *Store) load(ctx context.Context, id string) (*store.Job, error) {
	raw, err := s.client.HGet(ctx, s.keys.data, id).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, s.wrap("fetch", err)
	}
	var job store.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, &store.DecodeError{ID: id, Err: err}
	}
	return &job, nil
}

func (s *Store) save(ctx context.Context, job *store.Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	return s.client.HSet(ctx, s.keys.data, job.ID, raw).Err()
}

// Heartbeat refreshes the worker's score and drops entries past the TTL.
func (s *Store) Heartbeat(ctx context.Context, w store.Worker) error {
	seen := w.LastSeen
	if seen.IsZero() {
		seen = s.now()
	}
	cutoff := seen.Add(-s.workerTTL).UnixMilli()
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZAdd(ctx, s.keys.workers, goredis.Z{Score: float64(seen.UnixMilli()), Member: w.ID})
		pipe.ZRemRangeByScore(ctx, s.keys.workers, "-inf", fmt.Sprintf("(%d", cutoff))
		return nil
	})
	return s.wrap("heartbeat", err)
}

// Deregister removes the worker from the roster.
func (s *Store) Deregister(ctx context.Context, workerID string) error {
	return s.wrap("deregister", s.client.ZRem(ctx, s.keys.workers, workerID).Err())
}

func (s *Store) String() string {
	return "redis:" + s.namespace
}
