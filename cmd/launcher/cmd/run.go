package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jobdeck/internal/broadcast"
	"jobdeck/internal/config"
	"jobdeck/internal/controller"
	"jobdeck/internal/launcher"
	"jobdeck/internal/logger"
	"jobdeck/internal/observability"
	"jobdeck/internal/query"

	"github.com/spf13/cobra"
)

const serviceName = "jobdeck"

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the launcher",
	Long:  `Connect every configured backend, start one poller per job and serve the read API until SIGINT or SIGTERM.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg)
	},
}

// run wires the launcher together and blocks until ctx is cancelled or the
// API server fails.
func run(ctx context.Context, cfg *config.Config) error {
	// The broadcaster logs to stdout only so its own records never loop back into it.
	b := broadcast.New(cfg.HeartbeatInterval, logger.New(cfg.LogLevel, os.Stdout))
	log := logger.NewWithSink(cfg.LogLevel, os.Stdout, b)
	slog.SetDefault(log)

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, serviceName, cfg.OTELEndpoint)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		return fmt.Errorf("failed to init metrics: %w", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Error("failed to shutdown metrics", "error", err)
		}
	}()
	jobMetrics, err := observability.NewJobMetrics()
	if err != nil {
		return fmt.Errorf("failed to init job metrics: %w", err)
	}

	reg, err := launcher.Build(ctx, cfg, launcher.Deps{
		Events:  b,
		Metrics: jobMetrics,
		Logger:  log,
	})
	if err != nil {
		return err
	}
	// Closed by the monitor; this covers the early-return paths.
	defer reg.Close()

	facade, err := query.New(reg.Backends()...)
	if err != nil {
		return err
	}

	unregister, err := observability.RegisterQueueGauge(facade)
	if err != nil {
		log.Warn("failed to register queue depth gauge", "error", err)
	} else {
		defer unregister()
	}

	srv := controller.New(facade, b, controller.Options{
		Addr:               cfg.ServerAddr,
		Timeout:            cfg.ClientTimeout,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
		APIToken:           cfg.APIToken,
		Metrics:            metricsHandler,
		Logger:             log,
	})

	// A failing server stops the whole launcher.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	srvErr := make(chan error, 1)
	go func() {
		log.Info("read API listening", "addr", cfg.ServerAddr)
		err := srv.Run(ctx)
		if err != nil {
			log.Error("server stopped", "error", err)
			cancel()
		}
		srvErr <- err
	}()

	monitorErr := launcher.NewMonitor(reg, b, cfg.ShutdownGrace, log).Run(ctx)
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	err = errors.Join(monitorErr, <-srvErr)
	if err == nil {
		log.Info("launcher exited properly")
	}
	return err
}

func init() {
	rootCmd.AddCommand(runCmd)
}
