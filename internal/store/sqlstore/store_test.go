package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"jobdeck/internal/store"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, store.Locator{Kind: store.KindDefault})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Setup(ctx); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	return db
}

func newTestStore(t *testing.T, db *DB, namespace string) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := New(db, namespace, Options{MaxAttempts: 2})
	s.now = clock.Now
	return s, clock
}

func mustPush(t *testing.T, s *Store, payload string) *store.Job {
	t.Helper()
	job, err := s.Push(context.Background(), store.PushRequest{Payload: json.RawMessage(payload)})
	if err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	return job
}

func mustPull(t *testing.T, s *Store) *store.Job {
	t.Helper()
	job, err := s.Pull(context.Background(), "worker-1")
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if job == nil {
		t.Fatal("expected a job, got none")
	}
	return job
}

func TestSetup_Idempotent(t *testing.T) {
	db := newTestDB(t)
	if err := db.Setup(context.Background()); err != nil {
		t.Fatalf("second Setup failed: %v", err)
	}
}

func TestSetup_FileDatabaseReleasesMigrationConnection(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "jobs.db")

	db, err := Open(ctx, store.Locator{Kind: store.KindSQLite, URL: "sqlite://" + path})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	for i := range 2 {
		if err := db.Setup(ctx); err != nil {
			t.Fatalf("Setup %d failed: %v", i, err)
		}
	}
	if inUse := db.sql.Stats().InUse; inUse != 0 {
		t.Errorf("expected no connection held after Setup, got %d in use", inUse)
	}

	// The single-connection pool must still be free for queries.
	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	s := New(db, "orders", Options{})
	if _, err := s.Push(opCtx, store.PushRequest{Payload: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("Push after Setup failed: %v", err)
	}
	if st, err := s.Stats(opCtx); err != nil || st.Pending != 1 {
		t.Errorf("expected 1 pending job, got %+v, %v", st, err)
	}
}

func TestPushPullComplete(t *testing.T) {
	s, _ := newTestStore(t, newTestDB(t), "orders")
	ctx := context.Background()

	pushed := mustPush(t, s, `{"order":1}`)
	if pushed.State != store.StatePending {
		t.Errorf("expected Pending, got %s", pushed.State)
	}

	page, err := s.ListJobs(ctx, store.StatePending, 1)
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(page.Jobs) != 1 || page.Jobs[0].ID != pushed.ID {
		t.Fatalf("expected exactly the pushed job in Pending, got %+v", page.Jobs)
	}

	pulled := mustPull(t, s)
	if pulled.ID != pushed.ID {
		t.Fatalf("pulled %s, want %s", pulled.ID, pushed.ID)
	}
	if pulled.State != store.StateRunning || pulled.Attempts != 1 || pulled.LockBy != "worker-1" {
		t.Errorf("unexpected pulled job: %+v", pulled)
	}

	if err := s.Complete(ctx, pulled.ID); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	success, _ := s.ListJobs(ctx, store.StateSuccess, 1)
	if len(success.Jobs) != 1 || success.Jobs[0].ID != pushed.ID {
		t.Errorf("expected job in Success, got %+v", success.Jobs)
	}
	if success.Jobs[0].DoneAt == nil {
		t.Error("expected done_at to be set")
	}
	pending, _ := s.ListJobs(ctx, store.StatePending, 1)
	if len(pending.Jobs) != 0 {
		t.Errorf("expected no pending jobs, got %d", len(pending.Jobs))
	}
}

func TestPull_EmptyQueue(t *testing.T) {
	s, _ := newTestStore(t, newTestDB(t), "orders")
	job, err := s.Pull(context.Background(), "worker-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job != nil {
		t.Errorf("expected nil job, got %+v", job)
	}
}

func TestFail_RetryThenDead(t *testing.T) {
	s, clock := newTestStore(t, newTestDB(t), "orders")
	ctx := context.Background()

	pushed := mustPush(t, s, `{}`)
	mustPull(t, s)

	state, err := s.Fail(ctx, pushed.ID, "exit code 1")
	if err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	if state != store.StateFailed {
		t.Fatalf("expected Failed after first attempt, got %s", state)
	}

	// Not due yet.
	if job, _ := s.Pull(ctx, "worker-1"); job != nil {
		t.Fatal("failed job must not be retried before its backoff elapses")
	}

	clock.Advance(time.Minute)
	retried := mustPull(t, s)
	if retried.Attempts != 2 {
		t.Errorf("expected attempt 2, got %d", retried.Attempts)
	}

	state, err = s.Fail(ctx, pushed.ID, "exit code 1")
	if err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	if state != store.StateDead {
		t.Fatalf("expected Dead after exhausting attempts, got %s", state)
	}

	got, err := s.FetchByID(ctx, pushed.ID)
	if err != nil {
		t.Fatalf("FetchByID failed: %v", err)
	}
	if got.LastError != "exit code 1" {
		t.Errorf("expected last error to be kept, got %q", got.LastError)
	}
}

func TestStats_SumsToTotal(t *testing.T) {
	s, clock := newTestStore(t, newTestDB(t), "orders")
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		mustPush(t, s, fmt.Sprintf(`{"n":%d}`, i))
		clock.Advance(time.Millisecond)
	}

	// two succeed
	for i := 0; i < 2; i++ {
		if err := s.Complete(ctx, mustPull(t, s).ID); err != nil {
			t.Fatal(err)
		}
	}
	// one fails with retries left
	if _, err := s.Fail(ctx, mustPull(t, s).ID, "boom"); err != nil {
		t.Fatal(err)
	}
	// one is left running
	mustPull(t, s)

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	want := store.Stat{Pending: 2, Running: 1, Failed: 1, Success: 2}
	if st != want {
		t.Errorf("got %+v, want %+v", st, want)
	}
	if st.Total() != 6 {
		t.Errorf("expected counts to sum to 6, got %d", st.Total())
	}
}

func TestPush_ScheduledCountsAsPending(t *testing.T) {
	s, clock := newTestStore(t, newTestDB(t), "orders")
	ctx := context.Background()

	job, err := s.Push(ctx, store.PushRequest{Payload: json.RawMessage(`{}`), RunAt: clock.Now().Add(time.Hour)})
	if err != nil {
		t.Fatal(err)
	}
	if job.State != store.StateScheduled {
		t.Errorf("expected Scheduled, got %s", job.State)
	}
	if got, _ := s.Pull(ctx, "worker-1"); got != nil {
		t.Error("scheduled job must not run early")
	}
	st, _ := s.Stats(ctx)
	if st.Pending != 1 {
		t.Errorf("expected scheduled job counted as pending, got %+v", st)
	}

	clock.Advance(2 * time.Hour)
	if got := mustPull(t, s); got.ID != job.ID {
		t.Errorf("pulled %s, want %s", got.ID, job.ID)
	}
}

func TestListJobs_Pagination(t *testing.T) {
	s, clock := newTestStore(t, newTestDB(t), "orders")
	ctx := context.Background()

	var ids []string
	for i := 0; i < 25; i++ {
		mustPush(t, s, fmt.Sprintf(`{"n":%d}`, i))
		job := mustPull(t, s)
		clock.Advance(time.Second)
		if err := s.Complete(ctx, job.ID); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, job.ID)
	}

	first, err := s.ListJobs(ctx, store.StateSuccess, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Jobs) != store.JobsPageSize {
		t.Fatalf("expected %d jobs on page 1, got %d", store.JobsPageSize, len(first.Jobs))
	}
	if first.Jobs[0].ID != ids[24] {
		t.Errorf("page 1 must start with the newest job")
	}

	a, _ := s.ListJobs(ctx, store.StateSuccess, 2)
	b, _ := s.ListJobs(ctx, store.StateSuccess, 2)
	if !reflect.DeepEqual(a, b) {
		t.Error("page 2 must be identical across calls without writes")
	}
	if a.Jobs[0].ID != ids[14] {
		t.Errorf("page 2 must start at the 11th newest job")
	}

	last, _ := s.ListJobs(ctx, store.StateSuccess, 3)
	if len(last.Jobs) != 5 {
		t.Errorf("expected 5 jobs on page 3, got %d", len(last.Jobs))
	}

	for _, page := range []int{0, -1, 4, 100, math.MaxInt, 922337203685477582, 7378697629483820647} {
		got, err := s.ListJobs(ctx, store.StateSuccess, page)
		if err != nil {
			t.Errorf("page %d: unexpected error %v", page, err)
		}
		if len(got.Jobs) != 0 {
			t.Errorf("page %d: expected empty page, got %d jobs", page, len(got.Jobs))
		}
	}
}

func TestListJobs_SkipsUndecodable(t *testing.T) {
	db := newTestDB(t)
	s, clock := newTestStore(t, db, "orders")
	ctx := context.Background()

	mustPush(t, s, `{"ok":true}`)
	_, err := db.sql.ExecContext(ctx, `INSERT INTO jobs (id, job_type, payload, status, attempts, max_attempts, enqueued_at, run_at)
		VALUES ('broken', 'orders', '{not json', 'Pending', 0, 3, ?, ?)`, clock.Now().UnixMilli(), clock.Now().UnixMilli())
	if err != nil {
		t.Fatal(err)
	}

	page, err := s.ListJobs(ctx, store.StatePending, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Jobs) != 1 || page.Skipped != 1 {
		t.Errorf("expected 1 job and 1 skipped, got %d jobs %d skipped", len(page.Jobs), page.Skipped)
	}

	var de *store.DecodeError
	if _, err := s.FetchByID(ctx, "broken"); !errors.As(err, &de) {
		t.Errorf("expected DecodeError, got %v", err)
	}
}

func TestPull_BuriesUndecodableRecord(t *testing.T) {
	db := newTestDB(t)
	s, clock := newTestStore(t, db, "orders")
	ctx := context.Background()

	_, err := db.sql.ExecContext(ctx, `INSERT INTO jobs (id, job_type, payload, status, attempts, max_attempts, enqueued_at, run_at)
		VALUES ('broken', 'orders', '{', 'Pending', 0, 3, ?, ?)`, clock.Now().UnixMilli(), clock.Now().UnixMilli())
	if err != nil {
		t.Fatal(err)
	}

	job, err := s.Pull(ctx, "worker-1")
	var de *store.DecodeError
	if !errors.As(err, &de) || de.ID != "broken" {
		t.Fatalf("expected DecodeError for broken, got %v, %v", job, err)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st != (store.Stat{Dead: 1}) {
		t.Errorf("undecodable record must be Dead, got %+v", st)
	}

	if job, err := s.Pull(ctx, "worker-1"); job != nil || err != nil {
		t.Errorf("buried record must not be pulled again, got %v, %v", job, err)
	}

	page, err := s.ListJobs(ctx, store.StateDead, 1)
	if err != nil {
		t.Fatal(err)
	}
	if page.Skipped != 1 {
		t.Errorf("expected the dead listing to count 1 skipped record, got %d", page.Skipped)
	}
}

func TestNamespaceIsolation(t *testing.T) {
	db := newTestDB(t)
	orders, _ := newTestStore(t, db, "orders")
	emails, _ := newTestStore(t, db, "emails")
	ctx := context.Background()

	job := mustPush(t, orders, `{}`)

	if _, err := emails.FetchByID(ctx, job.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound across namespaces, got %v", err)
	}
	if got, _ := emails.Pull(ctx, "worker-1"); got != nil {
		t.Error("a namespace must not pull another namespace's jobs")
	}
	st, _ := emails.Stats(ctx)
	if st.Total() != 0 {
		t.Errorf("expected empty stats, got %+v", st)
	}
}

func TestWorkers_RosterAndLiveness(t *testing.T) {
	s, clock := newTestStore(t, newTestDB(t), "orders")
	ctx := context.Background()

	if err := s.Heartbeat(ctx, store.Worker{ID: "stale", Backend: store.KindSQLite}); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Minute)
	if err := s.Heartbeat(ctx, store.Worker{ID: "old", Backend: store.KindSQLite}); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Second)
	if err := s.Heartbeat(ctx, store.Worker{ID: "new", Backend: store.KindSQLite}); err != nil {
		t.Fatal(err)
	}
	// refreshing an existing worker must not duplicate it
	if err := s.Heartbeat(ctx, store.Worker{ID: "new", Backend: store.KindSQLite}); err != nil {
		t.Fatal(err)
	}

	workers, err := s.ListWorkers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(workers) != 2 || workers[0].ID != "new" || workers[1].ID != "old" {
		t.Fatalf("unexpected roster: %+v", workers)
	}

	if err := s.Deregister(ctx, "new"); err != nil {
		t.Fatal(err)
	}
	workers, _ = s.ListWorkers(ctx)
	if len(workers) != 1 || workers[0].ID != "old" {
		t.Errorf("expected only 'old' after deregister, got %+v", workers)
	}
}

func TestComplete_UnknownJob(t *testing.T) {
	s, _ := newTestStore(t, newTestDB(t), "orders")
	if err := s.Complete(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
