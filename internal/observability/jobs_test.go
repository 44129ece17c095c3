package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"jobdeck/internal/store"
)

type fakeStats struct {
	stats map[string]store.Stat
}

func (f *fakeStats) Namespaces() []string {
	return []string{"orders", "broken"}
}

func (f *fakeStats) Stats(ctx context.Context, ns string) (store.Stat, error) {
	st, ok := f.stats[ns]
	if !ok {
		return store.Stat{}, errors.New("backend down")
	}
	return st, nil
}

func scrape(t *testing.T, handler http.Handler) string {
	t.Helper()
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("scrape returned %d", rr.Code)
	}
	return rr.Body.String()
}

func TestJobMetrics_RecordRun(t *testing.T) {
	handler, shutdown, err := InitMetrics()
	if err != nil {
		t.Fatal(err)
	}
	defer shutdown(context.Background())

	m, err := NewJobMetrics()
	if err != nil {
		t.Fatalf("NewJobMetrics failed: %v", err)
	}
	m.RecordRun(context.Background(), "ping", "success", 1500*time.Millisecond)

	body := scrape(t, handler)
	for _, want := range []string{"jobdeck_job_runs", `job="ping"`, `outcome="success"`, "jobdeck_job_duration_seconds"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in output", want)
		}
	}
}

func TestJobMetrics_NilIsNoop(t *testing.T) {
	var m *JobMetrics
	m.RecordRun(context.Background(), "ping", "failed", time.Second)
}

func TestRegisterQueueGauge(t *testing.T) {
	handler, shutdown, err := InitMetrics()
	if err != nil {
		t.Fatal(err)
	}
	defer shutdown(context.Background())

	unregister, err := RegisterQueueGauge(&fakeStats{stats: map[string]store.Stat{
		"orders": {Pending: 7, Success: 3},
	}})
	if err != nil {
		t.Fatalf("RegisterQueueGauge failed: %v", err)
	}
	defer unregister()

	body := scrape(t, handler)
	if !strings.Contains(body, "jobdeck_queue_jobs") || !strings.Contains(body, `namespace="orders"`) {
		t.Errorf("expected orders series in output:\n%s", body)
	}
	if strings.Contains(body, `namespace="broken"`) {
		t.Error("failing namespace must be skipped")
	}
}
