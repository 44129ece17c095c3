package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"jobdeck/internal/store"
	"jobdeck/pkg/api"
)

// maxPayloadBytes bounds an enqueued payload.
const maxPayloadBytes = 1 << 20

// ListNamespaces handles GET /api/v1/backend
func (h *Handlers) ListNamespaces(w http.ResponseWriter, r *http.Request) {
	names := h.query.Namespaces()
	resp := make([]api.NamespaceResponse, 0, len(names))
	for _, ns := range names {
		item := api.NamespaceResponse{Name: ns}
		if b, err := h.query.Backend(ns); err == nil {
			item.Backend = string(b.Kind())
		}
		resp = append(resp, item)
	}
	h.respondJson(w, http.StatusOK, resp)
}

// GetBackend handles GET /api/v1/backend/{ns}?status=&page=
// It returns the namespace stats together with one page of jobs.
func (h *Handlers) GetBackend(w http.ResponseWriter, r *http.Request) {
	ns := r.PathValue("ns")
	q := r.URL.Query()

	state, err := store.ParseJobState(q.Get("status"))
	if err != nil {
		h.httpError(w, "Invalid status", http.StatusBadRequest)
		return
	}

	page := 1
	if p := q.Get("page"); p != "" {
		if page, err = strconv.Atoi(p); err != nil {
			h.httpError(w, "Invalid page", http.StatusBadRequest)
			return
		}
	}

	ov, err := h.query.Overview(r.Context(), ns, state, page)
	if err != nil {
		h.queryError(w, r, err)
		return
	}

	jobs := make([]api.JobResponse, len(ov.Page.Jobs))
	for i, job := range ov.Page.Jobs {
		jobs[i] = jobResponse(job)
	}
	h.respondJson(w, http.StatusOK, api.BackendResponse{
		Namespace: ns,
		Status:    string(state),
		Page:      page,
		Stats:     statsResponse(ov.Stats),
		Jobs:      jobs,
		Skipped:   ov.Page.Skipped,
	})
}

// ListWorkers handles GET /api/v1/backend/{ns}/workers
func (h *Handlers) ListWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := h.query.ListWorkers(r.Context(), r.PathValue("ns"))
	if err != nil {
		h.queryError(w, r, err)
		return
	}

	resp := make([]api.WorkerResponse, len(workers))
	for i, wk := range workers {
		resp[i] = api.WorkerResponse{
			WorkerID: wk.ID,
			JobName:  wk.JobName,
			Backend:  string(wk.Backend),
			LastSeen: wk.LastSeen,
		}
	}
	h.respondJson(w, http.StatusOK, resp)
}

// PushJob handles PUT /api/v1/backend/{ns}/job
// The request body is the job payload itself. run_at (RFC 3339) or delay
// (Go duration) in the query string schedules the job for later.
func (h *Handlers) PushJob(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		h.httpError(w, "Request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	if !json.Valid(body) {
		h.httpError(w, "Payload must be valid JSON", http.StatusBadRequest)
		return
	}

	req := store.PushRequest{Payload: json.RawMessage(body)}
	q := r.URL.Query()
	switch {
	case q.Get("run_at") != "":
		runAt, err := time.Parse(time.RFC3339, q.Get("run_at"))
		if err != nil {
			h.httpError(w, "Invalid run_at", http.StatusBadRequest)
			return
		}
		req.RunAt = runAt
	case q.Get("delay") != "":
		delay, err := time.ParseDuration(q.Get("delay"))
		if err != nil || delay < 0 {
			h.httpError(w, "Invalid delay", http.StatusBadRequest)
			return
		}
		req.RunAt = time.Now().Add(delay)
	}

	job, err := h.query.Push(r.Context(), r.PathValue("ns"), req)
	if err != nil {
		h.queryError(w, r, err)
		return
	}

	h.respondJson(w, http.StatusCreated, api.PushJobResponse{
		ID:     job.ID,
		Status: string(job.State),
		RunAt:  job.RunAt,
	})
}

// GetJob handles GET /api/v1/backend/{ns}/job/{id}
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.query.Get(r.Context(), r.PathValue("ns"), r.PathValue("id"))
	if err != nil {
		h.queryError(w, r, err)
		return
	}
	h.respondJson(w, http.StatusOK, jobResponse(*job))
}

func jobResponse(job store.Job) api.JobResponse {
	return api.JobResponse{
		ID:          job.ID,
		Namespace:   job.Namespace,
		Payload:     job.Payload,
		Status:      string(job.State),
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
		LastError:   job.LastError,
		LockBy:      job.LockBy,
		EnqueuedAt:  job.EnqueuedAt,
		RunAt:       job.RunAt,
		DoneAt:      job.DoneAt,
	}
}

func statsResponse(s store.Stat) api.StatsResponse {
	return api.StatsResponse{
		Pending: s.Pending,
		Running: s.Running,
		Dead:    s.Dead,
		Failed:  s.Failed,
		Success: s.Success,
	}
}
