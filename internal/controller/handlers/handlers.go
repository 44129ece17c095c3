// Package handlers contains HTTP handlers for the read API and event stream.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"jobdeck/internal/broadcast"
	"jobdeck/internal/logger"
	"jobdeck/internal/query"
	"jobdeck/internal/store"
	"jobdeck/pkg/api"
)

// Querier is the read and enqueue surface the handlers need. *query.Facade satisfies it.
type Querier interface {
	Namespaces() []string
	Backend(ns string) (store.Backend, error)
	Overview(ctx context.Context, ns string, state store.JobState, page int) (query.Overview, error)
	ListWorkers(ctx context.Context, ns string) ([]store.Worker, error)
	Push(ctx context.Context, ns string, req store.PushRequest) (*store.Job, error)
	Get(ctx context.Context, ns, id string) (*store.Job, error)
}

// EventSource hands out live event subscriptions. *broadcast.Broadcaster satisfies it.
type EventSource interface {
	Subscribe(ctx context.Context) (*broadcast.Subscription, error)
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	query  Querier
	events EventSource
	logger *slog.Logger
}

// New creates a new Handlers instance.
func New(q Querier, events EventSource, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{query: q, events: events, logger: logger}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

// queryError maps façade errors to responses. Backend failures are logged and
// reported as 500 without leaking connection details.
func (h *Handlers) queryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, query.ErrUnknownNamespace):
		h.httpError(w, "Namespace not found", http.StatusNotFound)
	case errors.Is(err, store.ErrNotFound):
		h.httpError(w, "Job not found", http.StatusNotFound)
	default:
		logger.FromContext(r.Context(), h.logger).Error("backend request failed", "path", r.URL.Path, "error", err)
		var de *store.DecodeError
		if errors.As(err, &de) {
			h.httpError(w, "Job record could not be decoded", http.StatusInternalServerError)
			return
		}
		h.httpError(w, "Backend unavailable", http.StatusInternalServerError)
	}
}
