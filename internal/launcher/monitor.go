package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"jobdeck/internal/broadcast"

	"github.com/coreos/go-systemd/v22/daemon"
)

// DefaultShutdownGrace is how long in-flight runs may continue after a shutdown signal.
const DefaultShutdownGrace = 3 * time.Second

// Monitor is the process's concurrency root. It runs the broadcaster and every
// poller, and on shutdown gives in-flight runs a grace period before cancelling them.
type Monitor struct {
	registry    *Registry
	broadcaster *broadcast.Broadcaster
	grace       time.Duration
	logger      *slog.Logger

	// notify reports service state to systemd. Replaced in tests.
	notify func(state string)
}

// NewMonitor creates a monitor over reg. broadcaster may be nil.
func NewMonitor(reg *Registry, broadcaster *broadcast.Broadcaster, grace time.Duration, logger *slog.Logger) *Monitor {
	if grace <= 0 {
		grace = DefaultShutdownGrace
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		registry:    reg,
		broadcaster: broadcaster,
		grace:       grace,
		logger:      logger,
	}
	m.notify = func(state string) {
		if _, err := daemon.SdNotify(false, state); err != nil {
			m.logger.Debug("systemd notify failed", "error", err)
		}
	}
	return m
}

// Run blocks until ctx is cancelled and every poller has stopped, then closes
// the registry. It returns the joined poller and close errors.
func (m *Monitor) Run(ctx context.Context) error {
	// Runs outlive ctx by up to the grace period.
	execCtx, cancelExec := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelExec()

	var broadcastDone chan struct{}
	stopBroadcast := func() {}
	if m.broadcaster != nil {
		var bctx context.Context
		bctx, stopBroadcast = context.WithCancel(context.WithoutCancel(ctx))
		broadcastDone = make(chan struct{})
		go func() {
			defer close(broadcastDone)
			m.broadcaster.Run(bctx)
		}()
	}

	pollers := m.registry.Pollers()
	errs := make([]error, len(pollers))
	var wg sync.WaitGroup
	for i, p := range pollers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Run(ctx, execCtx); err != nil {
				errs[i] = fmt.Errorf("poller %s: %w", p.Name(), err)
			}
		}()
	}
	stopped := make(chan struct{})
	go func() {
		wg.Wait()
		close(stopped)
	}()

	m.logger.Info("launcher started", "pollers", len(pollers), "backends", len(m.registry.Backends()))
	m.notify(daemon.SdNotifyReady)

	select {
	case <-ctx.Done():
	case <-stopped:
	}
	m.notify(daemon.SdNotifyStopping)
	m.logger.Info("shutting down, waiting for running jobs", "grace", m.grace)

	grace := time.NewTimer(m.grace)
	defer grace.Stop()
	select {
	case <-stopped:
	case <-grace.C:
		m.logger.Warn("shutdown grace period elapsed, cancelling running jobs")
		cancelExec()
		<-stopped
	}

	if err := m.registry.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing backends: %w", err))
	}
	stopBroadcast()
	if broadcastDone != nil {
		<-broadcastDone
	}
	m.logger.Info("launcher stopped")
	return errors.Join(errs...)
}
