package handlers

import "net/http"

// Healthz is a liveness probe.
// It returns 200 OK if the server is running.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	h.respondJson(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Readyz is a readiness probe.
// It checks that every configured backend answers a stats query.
func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	for _, ns := range h.query.Namespaces() {
		b, err := h.query.Backend(ns)
		if err == nil {
			_, err = b.Stats(r.Context())
		}
		if err != nil {
			h.httpError(w, "Backend unavailable: "+ns, http.StatusServiceUnavailable)
			return
		}
	}
	h.respondJson(w, http.StatusOK, map[string]string{"status": "ready"})
}
