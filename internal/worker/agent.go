package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"jobdeck/internal/store"

	"github.com/google/uuid"
)

// AgentConfig holds configuration for a queue agent.
type AgentConfig struct {
	ID                string
	Concurrency       int
	PollInterval      time.Duration
	MaxBackoff        time.Duration // Maximum backoff when queue is empty (default: 30s)
	HeartbeatInterval time.Duration // Interval between worker heartbeats (default: 10s)
}

// Agent pulls jobs for one namespace from its backend and runs them.
type Agent struct {
	backend store.Backend
	exec    *Executor
	task    Task
	config  AgentConfig
	logger  *slog.Logger
	done    chan struct{}
}

// NewAgent creates a queue agent for task on backend.
func NewAgent(b store.Backend, exec *Executor, task Task, config AgentConfig, logger *slog.Logger) *Agent {
	if config.ID == "" {
		config.ID = task.Name + "-" + uuid.NewString()[:8]
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 1 * time.Second
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 30 * time.Second
	}
	if config.MaxBackoff < config.PollInterval {
		config.MaxBackoff = config.PollInterval
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Agent{
		backend: b,
		exec:    exec,
		task:    task,
		config:  config,
		logger:  logger.With("job", task.Name, "worker_id", config.ID),
		done:    make(chan struct{}),
	}
}

// Name returns the job name the agent serves.
func (a *Agent) Name() string { return a.task.Name }

// Run is the pull loop. It blocks until ctx is cancelled, then stops claiming,
// waits for in-flight runs and deregisters the worker. Runs execute on execCtx,
// which the caller cancels separately to force-stop them.
func (a *Agent) Run(ctx, execCtx context.Context) error {
	a.logger.Info("agent starting", "backend", a.backend.Kind(), "concurrency", a.config.Concurrency)

	a.heartbeat(ctx)
	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go a.runHeartbeat(heartbeatCtx)

	sem := make(chan struct{}, a.config.Concurrency)
	var wg sync.WaitGroup

	// Signals that a slot became available.
	pollNow := make(chan struct{}, 1)

	// Grows while the queue is empty, resets when work is found.
	currentBackoff := a.config.PollInterval

	triggerPoll := func() {
		select {
		case pollNow <- struct{}{}:
		default:
		}
	}

	triggerPoll()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("agent stopping, waiting for running jobs to finish")
			wg.Wait()
			a.deregister()
			close(a.done)
			return nil

		case <-time.After(currentBackoff):
			triggerPoll()

		case <-pollNow:
			availableSlots := a.config.Concurrency - len(sem)
			if availableSlots <= 0 {
				continue
			}

			claimed := 0
			for claimed < availableSlots {
				job, err := a.backend.Pull(ctx, a.config.ID)
				if err != nil {
					if ctx.Err() == nil {
						a.logger.Error("pull failed", "error", err)
					}
					break
				}
				if job == nil {
					break
				}
				claimed++

				sem <- struct{}{}
				wg.Add(1)
				go func(job store.Job) {
					defer wg.Done()
					defer func() {
						<-sem
						triggerPoll()
					}()
					a.process(execCtx, job)
				}(*job)
			}

			if claimed == 0 {
				currentBackoff *= 2
				if currentBackoff > a.config.MaxBackoff {
					currentBackoff = a.config.MaxBackoff
				}
				continue
			}
			currentBackoff = a.config.PollInterval
		}
	}
}

// Done returns a channel that is closed when the agent has fully stopped.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

func (a *Agent) process(ctx context.Context, job store.Job) {
	_ = a.exec.Execute(ctx, a.task, job, func(ctx context.Context, runErr error) (store.JobState, error) {
		if runErr == nil {
			return store.StateSuccess, a.backend.Complete(ctx, job.ID)
		}
		return a.backend.Fail(ctx, job.ID, runErr.Error())
	})
}

func (a *Agent) runHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(a.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.heartbeat(ctx)
		}
	}
}

func (a *Agent) heartbeat(ctx context.Context) {
	err := a.backend.Heartbeat(ctx, store.Worker{
		ID:       a.config.ID,
		JobName:  a.task.Name,
		Backend:  a.backend.Kind(),
		LastSeen: time.Now(),
	})
	if err != nil && ctx.Err() == nil {
		a.logger.Warn("heartbeat failed", "error", err)
	}
}

func (a *Agent) deregister() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.backend.Deregister(ctx, a.config.ID); err != nil {
		a.logger.Warn("failed to deregister worker", "error", err)
	}
}
