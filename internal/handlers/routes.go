package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fouezkebiche/memoire-projet/internal/mapsync"
	"github.com/fouezkebiche/memoire-projet/internal/remote"
	"github.com/fouezkebiche/memoire-projet/internal/render"
	"github.com/fouezkebiche/memoire-projet/internal/route"
)

// NetworkLoader loads the assembled line network
type NetworkLoader interface {
	Load(ctx context.Context) (route.Result, error)
}

// RouteHandler handles HTTP requests for the line network
type RouteHandler struct {
	network NetworkLoader
	timeout time.Duration
	log     *logrus.Entry
}

// NewRouteHandler creates a new handler; timeout bounds each load
func NewRouteHandler(network NetworkLoader, timeout time.Duration, log *logrus.Entry) *RouteHandler {
	if timeout <= 0 {
		timeout = mapsync.DefaultFetchTimeout
	}
	return &RouteHandler{network: network, timeout: timeout, log: log.WithField("component", "routes")}
}

func (h *RouteHandler) load(w http.ResponseWriter, r *http.Request) (route.Result, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.network.Load(ctx)
	if err != nil {
		h.log.WithError(err).Error("failed to load network")
		status := http.StatusBadGateway
		if remote.IsValidation(err) {
			status = http.StatusBadRequest
		}
		writeError(w, status, "Failed to load routes", err)
		return route.Result{}, false
	}
	return res, true
}

// GetRoutes handles GET /api/routes
func (h *RouteHandler) GetRoutes(w http.ResponseWriter, r *http.Request) {
	res, ok := h.load(w, r)
	if !ok {
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSON(w, http.StatusOK, res)
}

// GetGeoJSON handles GET /api/routes.geojson
func (h *RouteHandler) GetGeoJSON(w http.ResponseWriter, r *http.Request) {
	res, ok := h.load(w, r)
	if !ok {
		return
	}
	body, err := render.FeatureCollection(res).MarshalJSON()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode routes", err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("Cache-Control", "public, max-age=60")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
