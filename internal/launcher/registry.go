// Package launcher turns job definitions into live execution and supervises it.
//
// The Registry resolves every job's trigger: queue triggers get a namespaced
// Backend over a shared connection pool, cron triggers get a tick source.
// The Monitor runs the resulting pollers and coordinates graceful shutdown.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"jobdeck/internal/config"
	"jobdeck/internal/observability"
	"jobdeck/internal/store"
	"jobdeck/internal/store/redis"
	"jobdeck/internal/store/sqlstore"
	"jobdeck/internal/worker"
	"jobdeck/internal/worker/runtime"
)

// Poller is one independently scheduled job driver.
type Poller interface {
	Name() string
	// Run blocks until ctx is cancelled and in-flight work has returned.
	// In-flight work runs on execCtx.
	Run(ctx, execCtx context.Context) error
}

// Deps are the collaborators shared by every job.
type Deps struct {
	// Events receives step output and lifecycle events. Usually the Broadcaster.
	Events  runtime.Sink
	Metrics *observability.JobMetrics
	// Runtime overrides the host/container runner built from the settings.
	Runtime runtime.Runtime
	Logger  *slog.Logger
}

// Registry holds the backends and pollers built from one configuration.
type Registry struct {
	backends []store.Backend
	pollers  []Poller
	pools    []io.Closer
}

// pool is a connection shared by every namespace on the same locator.
type pool struct {
	kind store.Kind
	open func(ns string, maxAttempts int) store.Backend
}

// Build connects every configured backend, runs schema setup and creates one
// poller per job. Any connection or setup failure aborts the build and closes
// what was already opened.
func Build(ctx context.Context, cfg *config.Config, deps Deps) (_ *Registry, err error) {
	if len(cfg.Jobs) == 0 {
		return nil, errors.New("no jobs configured")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reg := &Registry{}
	defer func() {
		if err != nil {
			reg.Close()
		}
	}()

	rt := deps.Runtime
	if rt == nil {
		if rt, err = newRunner(cfg, logger); err != nil {
			return nil, err
		}
	}
	exec := worker.NewExecutor(rt, deps.Events, deps.Metrics, logger)

	pools := make(map[string]*pool)
	for _, job := range cfg.Jobs {
		task := taskFor(job)
		jobLogger := logger.With("job", job.Name)

		if job.Trigger.Queue == nil {
			p, err := worker.NewCronPoller(task, job.Trigger.Cron, exec, jobLogger)
			if err != nil {
				return nil, fmt.Errorf("job %q: %w", job.Name, err)
			}
			reg.pollers = append(reg.pollers, p)
			continue
		}

		loc := job.Trigger.Queue.Locator
		key := string(loc.Kind) + "|" + loc.URL
		p, ok := pools[key]
		if !ok {
			if p, err = reg.connect(ctx, cfg, loc); err != nil {
				return nil, fmt.Errorf("job %q: %w", job.Name, err)
			}
			pools[key] = p
		}

		maxAttempts := job.Trigger.Queue.MaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = cfg.MaxAttempts
		}
		backend := p.open(job.Name, maxAttempts)
		reg.backends = append(reg.backends, backend)
		reg.pollers = append(reg.pollers, worker.NewAgent(backend, exec, task, worker.AgentConfig{
			PollInterval: cfg.PollInterval,
			MaxBackoff:   cfg.MaxBackoff,
		}, jobLogger))
		jobLogger.Info("queue backend ready", "backend", p.kind)
	}
	return reg, nil
}

func (r *Registry) connect(ctx context.Context, cfg *config.Config, loc store.Locator) (*pool, error) {
	p := &pool{kind: loc.Kind}
	switch loc.Kind {
	case store.KindRedis:
		client, err := redis.Open(ctx, loc.URL)
		if err != nil {
			return nil, err
		}
		r.pools = append(r.pools, client)
		p.open = func(ns string, maxAttempts int) store.Backend {
			return redis.New(client, ns, redis.Options{MaxAttempts: maxAttempts, WorkerTTL: cfg.WorkerTTL})
		}
	default:
		db, err := sqlstore.Open(ctx, loc)
		if err != nil {
			return nil, err
		}
		r.pools = append(r.pools, db)
		if err := db.Setup(ctx); err != nil {
			return nil, fmt.Errorf("schema setup for %s backend: %w", loc.Kind, err)
		}
		p.open = func(ns string, maxAttempts int) store.Backend {
			return sqlstore.New(db, ns, sqlstore.Options{MaxAttempts: maxAttempts, WorkerTTL: cfg.WorkerTTL})
		}
	}
	return p, nil
}

// newRunner builds the host runtime, plus the Docker runtime when a job needs one.
func newRunner(cfg *config.Config, logger *slog.Logger) (runtime.Runtime, error) {
	runner := &runtime.Runner{Host: runtime.NewExecRuntime(cfg.WorkDir)}
	for _, job := range cfg.Jobs {
		if job.Image == "" {
			continue
		}
		docker, err := runtime.NewDockerRuntime(cfg.DockerHost, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create docker runtime: %w", err)
		}
		runner.Container = docker
		break
	}
	return runner, nil
}

func taskFor(job config.Job) worker.Task {
	steps := make([]runtime.Step, len(job.Steps))
	for i, s := range job.Steps {
		steps[i] = runtime.Step{Name: s.Name, Command: s.Command}
	}
	return worker.Task{Name: job.Name, Image: job.Image, Steps: steps}
}

// Backends returns the queue backends in configuration order.
func (r *Registry) Backends() []store.Backend { return r.backends }

// Pollers returns one poller per job in configuration order.
func (r *Registry) Pollers() []Poller { return r.pollers }

// Close releases every backend and shared connection pool.
func (r *Registry) Close() error {
	var errs []error
	for _, b := range r.backends {
		if err := b.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, p := range r.pools {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.backends, r.pools = nil, nil
	return errors.Join(errs...)
}
