package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger checks that the record source is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health checks
type HealthHandler struct {
	source Pinger
	mounts func() int
}

// NewHealthHandler creates a health handler. source may be nil for
// sources that cannot be pinged.
func NewHealthHandler(source Pinger, mounts func() int) *HealthHandler {
	return &HealthHandler{source: source, mounts: mounts}
}

// Health handles GET /health with a source connectivity test
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":    "ok",
		"source":    "unchecked",
		"timestamp": time.Now().UTC(),
	}
	if h.mounts != nil {
		resp["mounts"] = h.mounts()
	}

	if h.source != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.source.Ping(ctx); err != nil {
			resp["status"] = "error"
			resp["source"] = "disconnected"
			resp["error"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp["source"] = "connected"
	}
	writeJSON(w, http.StatusOK, resp)
}

// Live handles GET /healthz
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
