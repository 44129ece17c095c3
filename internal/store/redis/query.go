package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"jobdeck/internal/store"

	goredis "github.com/redis/go-redis/v9"
)

var pullScript = goredis.NewScript(`
local now = ARGV[1]
local due = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', now)
for _, id in ipairs(due) do
	redis.call('ZREM', KEYS[2], id)
	redis.call('LPUSH', KEYS[1], id)
end
local retry = redis.call('ZRANGEBYSCORE', KEYS[4], '-inf', now)
for _, id in ipairs(retry) do
	redis.call('ZREM', KEYS[4], id)
	redis.call('ZREM', KEYS[5], id)
	redis.call('LPUSH', KEYS[1], id)
end
local id = redis.call('RPOP', KEYS[1])
if not id then
	return false
end
redis.call('ZADD', KEYS[3], now, id)
return id
`)

// All five counts are read in one script so they come from the same instant.
var statsScript = goredis.NewScript(`
return {
	redis.call('LLEN', KEYS[1]) + redis.call('ZCARD', KEYS[2]),
	redis.call('ZCARD', KEYS[3]),
	redis.call('ZCARD', KEYS[4]),
	redis.call('ZCARD', KEYS[5]),
	redis.call('ZCARD', KEYS[6])
}
`)

// Stats counts ids per structure. Scheduled ids count as pending.
func (s *Store) Stats(ctx context.Context) (store.Stat, error) {
	k := s.keys
	counts, err := statsScript.Run(ctx, s.client,
		[]string{k.active, k.scheduled, k.inflight, k.dead, k.failed, k.done},
	).Int64Slice()
	if err != nil {
		return store.Stat{}, s.wrap("stats", err)
	}
	if len(counts) != 5 {
		return store.Stat{}, s.wrap("stats", fmt.Errorf("unexpected stats reply of length %d", len(counts)))
	}
	return store.Stat{
		Pending: counts[0],
		Running: counts[1],
		Dead:    counts[2],
		Failed:  counts[3],
		Success: counts[4],
	}, nil
}

// ListJobs pages through the structure that holds state, newest first.
func (s *Store) ListJobs(ctx context.Context, state store.JobState, page int) (store.JobPage, error) {
	offset, ok := store.PageOffset(page, store.JobsPageSize)
	if !ok {
		return store.JobPage{Jobs: []store.Job{}}, nil
	}
	start, stop := int64(offset), int64(offset+store.JobsPageSize-1)

	var (
		ids []string
		err error
	)
	switch state {
	case store.StatePending:
		// LPUSH keeps the newest id at the head.
		ids, err = s.client.LRange(ctx, s.keys.active, start, stop).Result()
	case store.StateScheduled:
		ids, err = s.client.ZRevRange(ctx, s.keys.scheduled, start, stop).Result()
	case store.StateRunning:
		ids, err = s.client.ZRevRange(ctx, s.keys.inflight, start, stop).Result()
	case store.StateSuccess:
		ids, err = s.client.ZRevRange(ctx, s.keys.done, start, stop).Result()
	case store.StateFailed:
		ids, err = s.client.ZRevRange(ctx, s.keys.failed, start, stop).Result()
	case store.StateDead:
		ids, err = s.client.ZRevRange(ctx, s.keys.dead, start, stop).Result()
	default:
		return store.JobPage{}, fmt.Errorf("unknown job state %q", state)
	}
	if err != nil {
		return store.JobPage{}, s.wrap("list jobs", err)
	}

	result := store.JobPage{Jobs: []store.Job{}}
	if len(ids) == 0 {
		return result, nil
	}
	values, err := s.client.HMGet(ctx, s.keys.data, ids...).Result()
	if err != nil {
		return store.JobPage{}, s.wrap("list jobs", err)
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			result.Skipped++
			continue
		}
		var job store.Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			result.Skipped++
			continue
		}
		job.State = state
		result.Jobs = append(result.Jobs, job)
	}
	return result, nil
}

// ListWorkers returns workers seen within the TTL, most recent first.
func (s *Store) ListWorkers(ctx context.Context) ([]store.Worker, error) {
	cutoff := s.now().Add(-s.workerTTL).UnixMilli()
	entries, err := s.client.ZRevRangeByScoreWithScores(ctx, s.keys.workers, &goredis.ZRangeBy{
		Min:   strconv.FormatInt(cutoff, 10),
		Max:   "+inf",
		Count: store.WorkersPageSize,
	}).Result()
	if err != nil {
		return nil, s.wrap("list workers", err)
	}

	workers := make([]store.Worker, 0, len(entries))
	for _, e := range entries {
		id, _ := e.Member.(string)
		workers = append(workers, store.Worker{
			ID:       id,
			JobName:  s.namespace,
			Backend:  store.KindRedis,
			LastSeen: time.UnixMilli(int64(e.Score)),
		})
	}
	return workers, nil
}
