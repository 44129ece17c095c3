package observability

import (
	"context"
	"fmt"
	"time"

	"jobdeck/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "jobdeck"

// JobMetrics records job runs. A nil *JobMetrics is valid and records nothing.
type JobMetrics struct {
	runs     metric.Int64Counter
	duration metric.Float64Histogram
}

// NewJobMetrics creates the run instruments on the global MeterProvider.
func NewJobMetrics() (*JobMetrics, error) {
	meter := otel.Meter(meterName)

	runs, err := meter.Int64Counter("jobdeck_job_runs",
		metric.WithDescription("Job runs by job name and outcome"))
	if err != nil {
		return nil, fmt.Errorf("failed to create runs counter: %w", err)
	}
	duration, err := meter.Float64Histogram("jobdeck_job_duration_seconds",
		metric.WithDescription("Wall time of job runs"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}
	return &JobMetrics{runs: runs, duration: duration}, nil
}

// RecordRun counts one finished run.
func (m *JobMetrics) RecordRun(ctx context.Context, job, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("job", job),
		attribute.String("outcome", outcome),
	)
	m.runs.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}

// StatsSource reports current per-namespace counts.
type StatsSource interface {
	Namespaces() []string
	Stats(ctx context.Context, namespace string) (store.Stat, error)
}

// RegisterQueueGauge exports jobdeck_queue_jobs{namespace,state} computed on scrape.
// Namespaces whose backend fails are left out of that scrape.
func RegisterQueueGauge(src StatsSource) (func() error, error) {
	meter := otel.Meter(meterName)
	gauge, err := meter.Int64ObservableGauge("jobdeck_queue_jobs",
		metric.WithDescription("Jobs per namespace and state"))
	if err != nil {
		return nil, fmt.Errorf("failed to create queue gauge: %w", err)
	}

	reg, err := meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		for _, ns := range src.Namespaces() {
			st, err := src.Stats(ctx, ns)
			if err != nil {
				continue
			}
			for state, n := range map[string]int64{
				"pending": st.Pending,
				"running": st.Running,
				"dead":    st.Dead,
				"failed":  st.Failed,
				"success": st.Success,
			} {
				o.ObserveInt64(gauge, n, metric.WithAttributes(
					attribute.String("namespace", ns),
					attribute.String("state", state),
				))
			}
		}
		return nil
	}, gauge)
	if err != nil {
		return nil, fmt.Errorf("failed to register queue gauge: %w", err)
	}
	return reg.Unregister, nil
}
