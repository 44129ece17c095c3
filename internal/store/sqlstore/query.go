package sqlstore

import (
	"context"
	"time"

	"jobdeck/internal/store"
)

// Stats counts jobs per status with one aggregate query.
func (s *Store) Stats(ctx context.Context) (store.Stat, error) {
	var st store.Stat
	err := s.db.sql.QueryRowContext(ctx, s.q(`
		SELECT
			COALESCE(SUM(CASE WHEN status IN ('Pending', 'Scheduled') THEN 1 ELSE 0 END), 0) AS pending,
			COALESCE(SUM(CASE WHEN status = 'Running' THEN 1 ELSE 0 END), 0) AS running,
			COALESCE(SUM(CASE WHEN status = 'Dead' THEN 1 ELSE 0 END), 0) AS dead,
			COALESCE(SUM(CASE WHEN status = 'Failed' THEN 1 ELSE 0 END), 0) AS failed,
			COALESCE(SUM(CASE WHEN status = 'Success' THEN 1 ELSE 0 END), 0) AS success
		FROM jobs WHERE job_type = ?`),
		s.namespace,
	).Scan(&st.Pending, &st.Running, &st.Dead, &st.Failed, &st.Success)
	if err != nil {
		return store.Stat{}, s.wrap("stats", err)
	}
	return st, nil
}

// ListJobs returns one page of jobs in state, newest completion first.
func (s *Store) ListJobs(ctx context.Context, state store.JobState, page int) (store.JobPage, error) {
	offset, ok := store.PageOffset(page, store.JobsPageSize)
	if !ok {
		return store.JobPage{Jobs: []store.Job{}}, nil
	}

	rows, err := s.db.sql.QueryContext(ctx, s.q(`
		SELECT `+jobColumns+` FROM jobs
		WHERE status = ? AND job_type = ?
		ORDER BY COALESCE(done_at, 0) DESC, run_at DESC, id DESC
		LIMIT ? OFFSET ?`),
		string(state), s.namespace, store.JobsPageSize, offset,
	)
	if err != nil {
		return store.JobPage{}, s.wrap("list jobs", err)
	}
	defer rows.Close()

	result := store.JobPage{Jobs: []store.Job{}}
	for rows.Next() {
		job, ok, err := scanJob(rows)
		if err != nil {
			return store.JobPage{}, s.wrap("list jobs", err)
		}
		if !ok {
			result.Skipped++
			continue
		}
		result.Jobs = append(result.Jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return store.JobPage{}, s.wrap("list jobs", err)
	}
	return result, nil
}

// ListWorkers returns workers seen within the TTL, most recent first.
func (s *Store) ListWorkers(ctx context.Context) ([]store.Worker, error) {
	cutoff := s.now().Add(-s.workerTTL).UnixMilli()
	rows, err := s.db.sql.QueryContext(ctx, s.q(`
		SELECT id, backend, last_seen FROM workers
		WHERE worker_type = ? AND last_seen >= ?
		ORDER BY last_seen DESC
		LIMIT ?`),
		s.namespace, cutoff, store.WorkersPageSize,
	)
	if err != nil {
		return nil, s.wrap("list workers", err)
	}
	defer rows.Close()

	workers := []store.Worker{}
	for rows.Next() {
		var (
			w        store.Worker
			backend  string
			lastSeen int64
		)
		if err := rows.Scan(&w.ID, &backend, &lastSeen); err != nil {
			return nil, s.wrap("list workers", err)
		}
		w.JobName = s.namespace
		w.Backend = store.Kind(backend)
		w.LastSeen = time.UnixMilli(lastSeen)
		workers = append(workers, w)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("list workers", err)
	}
	return workers, nil
}
