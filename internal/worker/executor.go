// Package worker contains the pollers that drive job execution: the queue
// Agent pulling from a backend and the cron poller firing on a schedule.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"jobdeck/internal/observability"
	"jobdeck/internal/store"
	"jobdeck/internal/worker/runtime"
	"jobdeck/pkg/api"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// reportTimeout bounds the completion call to the backend after a run.
const reportTimeout = 10 * time.Second

// Task is the static part of a job: what to run and where.
type Task struct {
	Name  string
	Image string
	Steps []runtime.Step
}

// Reporter records the outcome of a run and returns the resulting state.
type Reporter func(ctx context.Context, runErr error) (store.JobState, error)

// Executor runs one job through the runtime and publishes its lifecycle.
type Executor struct {
	runtime runtime.Runtime
	events  runtime.Sink
	metrics *observability.JobMetrics
	logger  *slog.Logger
}

// NewExecutor wires a runtime to an event sink. metrics may be nil.
func NewExecutor(rt runtime.Runtime, events runtime.Sink, metrics *observability.JobMetrics, logger *slog.Logger) *Executor {
	if events == nil {
		events = runtime.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{runtime: rt, events: events, metrics: metrics, logger: logger}
}

// Execute runs task for job, hands the outcome to report and returns the run error.
// report runs on a context detached from ctx so it still happens during shutdown.
func (e *Executor) Execute(ctx context.Context, task Task, job store.Job, report Reporter) error {
	tracer := otel.Tracer("jobdeck-worker")
	ctx, span := tracer.Start(ctx, "run_job",
		trace.WithAttributes(
			attribute.String("job.name", task.Name),
			attribute.String("job.id", job.ID),
			attribute.String("job.image", task.Image),
			attribute.Int("job.attempt", job.Attempts),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	logger := e.logger.With("job", task.Name, "job_id", job.ID)
	logger.Info("job started", "attempt", job.Attempts)
	e.emit(api.JobEvent{Event: api.EventStarted, Job: task.Name, ID: job.ID})

	payload := string(job.Payload)
	if payload == "" {
		payload = "null"
	}
	spec := runtime.Spec{
		Image: task.Image,
		Steps: task.Steps,
		Env: map[string]string{
			"JOBDECK_JOB_ID":   job.ID,
			"JOBDECK_JOB_NAME": task.Name,
			"JOBDECK_PAYLOAD":  payload,
		},
	}

	start := time.Now()
	runErr := e.runtime.Run(ctx, spec, e.events)
	elapsed := time.Since(start)

	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()
	state, err := report(reportCtx, runErr)
	if err != nil {
		logger.Error("failed to report job outcome", "error", err)
		span.RecordError(err)
	}

	event := api.JobEvent{Job: task.Name, ID: job.ID, Status: string(state), DurationMS: elapsed.Milliseconds()}
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		logger.Warn("job failed", "error", runErr, "state", state, "duration", elapsed)
		event.Event = api.EventFailed
		event.Error = runErr.Error()
		e.metrics.RecordRun(ctx, task.Name, "failed", elapsed)
	} else {
		logger.Info("job completed", "duration", elapsed)
		event.Event = api.EventCompleted
		e.metrics.RecordRun(ctx, task.Name, "success", elapsed)
	}
	e.emit(event)
	return runErr
}

func (e *Executor) emit(ev api.JobEvent) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return
	}
	e.events.Send(string(raw))
}
