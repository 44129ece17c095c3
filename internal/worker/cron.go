package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"jobdeck/internal/config"
	"jobdeck/internal/store"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// CronPoller fires a task on a schedule. A tick that arrives while the previous
// run is still going is skipped.
type CronPoller struct {
	task     Task
	schedule cron.Schedule
	exec     *Executor
	logger   *slog.Logger
	now      func() time.Time
}

// NewCronPoller parses expr and binds it to task.
func NewCronPoller(task Task, expr string, exec *Executor, logger *slog.Logger) (*CronPoller, error) {
	schedule, err := config.CronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CronPoller{
		task:     task,
		schedule: schedule,
		exec:     exec,
		logger:   logger.With("job", task.Name),
		now:      time.Now,
	}, nil
}

// Name returns the job name.
func (p *CronPoller) Name() string { return p.task.Name }

// Run schedules ticks until ctx is cancelled, then waits for a running tick to
// return. Ticks execute on execCtx.
func (p *CronPoller) Run(ctx, execCtx context.Context) error {
	c := cron.New(
		cron.WithParser(config.CronParser),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{p.logger})),
	)
	c.Schedule(p.schedule, cron.FuncJob(func() { p.tick(execCtx) }))

	p.logger.Info("cron poller starting", "next", p.schedule.Next(p.now()))
	c.Start()

	<-ctx.Done()
	p.logger.Info("cron poller stopping")
	<-c.Stop().Done()
	return nil
}

func (p *CronPoller) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	now := p.now()
	payload, _ := json.Marshal(map[string]time.Time{"tick": now})
	job := store.Job{
		ID:          uuid.NewString(),
		Namespace:   p.task.Name,
		Payload:     payload,
		State:       store.StateRunning,
		Attempts:    1,
		MaxAttempts: 1,
		EnqueuedAt:  now,
		RunAt:       now,
	}
	_ = p.exec.Execute(ctx, p.task, job, func(ctx context.Context, runErr error) (store.JobState, error) {
		if runErr != nil {
			return store.StateFailed, nil
		}
		return store.StateSuccess, nil
	})
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
