package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chirender "github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fouezkebiche/memoire-projet/internal/mapsync"
	"github.com/fouezkebiche/memoire-projet/internal/nav"
	"github.com/fouezkebiche/memoire-projet/internal/render"
	"github.com/fouezkebiche/memoire-projet/internal/scheduler"
	"github.com/fouezkebiche/memoire-projet/internal/timeutil"
)

// ViewHandler handles HTTP requests for mounted map views
type ViewHandler struct {
	reg   *mapsync.Registry
	clock timeutil.Clock
	log   *logrus.Entry
}

// NewViewHandler creates a new handler over the given registry
func NewViewHandler(reg *mapsync.Registry, clock timeutil.Clock, log *logrus.Entry) *ViewHandler {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &ViewHandler{reg: reg, clock: clock, log: log.WithField("component", "views")}
}

// MountRequest is the body of POST /api/views
type MountRequest struct {
	View string `json:"view"`
	URL  string `json:"url,omitempty"`
}

// MountResponse describes one mount
type MountResponse struct {
	ID        string          `json:"id"`
	View      string          `json:"view"`
	State     scheduler.State `json:"state"`
	CreatedAt time.Time       `json:"createdAt"`
}

// MountStatusResponse is the JSON response for GET /api/views/{id}
type MountStatusResponse struct {
	MountResponse
	Location  string         `json:"location,omitempty"`
	Signature nav.Signature  `json:"signature"`
	Status    mapsync.Status `json:"status"`
	Streams   int            `json:"streams"`
}

// LocationRequest is the body of PUT /api/views/{id}/location. Either a
// URL carrying model and view_type in its fragment, or both fields.
type LocationRequest struct {
	URL      string `json:"url,omitempty"`
	Model    string `json:"model,omitempty"`
	ViewType string `json:"viewType,omitempty"`
}

// TransitionResponse reports the outcome of a lifecycle request
type TransitionResponse struct {
	Changed   bool            `json:"changed"`
	State     scheduler.State `json:"state"`
	Signature *nav.Signature  `json:"signature,omitempty"`
}

// MarkersResponse is the JSON response for GET /api/views/{id}/markers
type MarkersResponse struct {
	Markers []mapsync.MarkerSnapshot `json:"markers"`
	Count   int                      `json:"count"`
	At      time.Time                `json:"at"`
}

// ListViewsResponse is the JSON response for GET /api/views
type ListViewsResponse struct {
	Views  []mapsync.View  `json:"views"`
	Mounts []MountResponse `json:"mounts"`
}

func mountResponse(m *mapsync.Mount) MountResponse {
	return MountResponse{
		ID:        m.ID.String(),
		View:      m.Controller.View().Name,
		State:     m.Controller.State(),
		CreatedAt: m.CreatedAt,
	}
}

// List handles GET /api/views
func (h *ViewHandler) List(w http.ResponseWriter, r *http.Request) {
	mounts := h.reg.List()
	resp := ListViewsResponse{Views: h.reg.Views(), Mounts: make([]MountResponse, 0, len(mounts))}
	for _, m := range mounts {
		resp.Mounts = append(resp.Mounts, mountResponse(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Mount handles POST /api/views
func (h *ViewHandler) Mount(w http.ResponseWriter, r *http.Request) {
	var req MountRequest
	if err := chirender.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	m, err := h.reg.Mount(req.View, req.URL)
	switch {
	case errors.Is(err, mapsync.ErrUnknownView):
		writeError(w, http.StatusNotFound, "Unknown view", err)
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, "Failed to mount view", err)
		return
	}
	writeJSON(w, http.StatusCreated, mountResponse(m))
}

// mount resolves the {id} URL parameter, writing the error response itself.
func (h *ViewHandler) mount(w http.ResponseWriter, r *http.Request) (*mapsync.Mount, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid mount id", err)
		return nil, false
	}
	m, ok := h.reg.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Mount not found", nil)
		return nil, false
	}
	return m, true
}

// Get handles GET /api/views/{id}
func (h *ViewHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, ok := h.mount(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, MountStatusResponse{
		MountResponse: mountResponse(m),
		Location:      m.Tracker.URL(),
		Signature:     m.Tracker.Current(),
		Status:        m.Controller.Status(),
		Streams:       m.Hub.Subscribers(),
	})
}

// Unmount handles DELETE /api/views/{id}
func (h *ViewHandler) Unmount(w http.ResponseWriter, r *http.Request) {
	m, ok := h.mount(w, r)
	if !ok {
		return
	}
	h.reg.Unmount(m.ID)
	w.WriteHeader(http.StatusNoContent)
}

// Location handles PUT /api/views/{id}/location
func (h *ViewHandler) Location(w http.ResponseWriter, r *http.Request) {
	m, ok := h.mount(w, r)
	if !ok {
		return
	}
	var req LocationRequest
	if err := chirender.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var sig nav.Signature
	if req.URL != "" {
		var err error
		if sig, err = m.Tracker.SetURL(req.URL); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid location", err)
			return
		}
	} else {
		sig = nav.Signature{Model: req.Model, ViewType: req.ViewType}
		if sig.Model == "" || sig.ViewType == "" {
			writeError(w, http.StatusBadRequest, "Location needs url or model and viewType", nil)
			return
		}
		m.Tracker.Set(sig)
	}

	changed := m.Controller.Navigated(sig)
	h.log.WithFields(logrus.Fields{"mount": m.ID, "signature": sig.String(), "entered": changed}).Debug("location updated")
	writeJSON(w, http.StatusOK, TransitionResponse{Changed: changed, State: m.Controller.State(), Signature: &sig})
}

// Enter handles POST /api/views/{id}/enter
func (h *ViewHandler) Enter(w http.ResponseWriter, r *http.Request) {
	m, ok := h.mount(w, r)
	if !ok {
		return
	}
	changed := m.Controller.Mount()
	writeJSON(w, http.StatusOK, TransitionResponse{Changed: changed, State: m.Controller.State()})
}

// Leave handles POST /api/views/{id}/leave
func (h *ViewHandler) Leave(w http.ResponseWriter, r *http.Request) {
	m, ok := h.mount(w, r)
	if !ok {
		return
	}
	changed := m.Controller.Leave()
	writeJSON(w, http.StatusOK, TransitionResponse{Changed: changed, State: m.Controller.State()})
}

// Markers handles GET /api/views/{id}/markers
func (h *ViewHandler) Markers(w http.ResponseWriter, r *http.Request) {
	m, ok := h.mount(w, r)
	if !ok {
		return
	}
	now := h.clock.Now()
	markers := m.Controller.Markers(now)
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, MarkersResponse{Markers: markers, Count: len(markers), At: now})
}

// Stream handles GET /api/views/{id}/ws. The current state is replayed
// first, then every command the view emits is forwarded.
func (h *ViewHandler) Stream(w http.ResponseWriter, r *http.Request) {
	m, ok := h.mount(w, r)
	if !ok {
		return
	}
	conn, err := render.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ch, unsubscribe := m.Controller.Attach(m.Hub, render.DefaultBuffer)
	defer unsubscribe()

	log := h.log.WithField("mount", m.ID)
	log.Info("stream opened")
	if err := render.Stream(r.Context(), conn, ch.Commands(), log); err != nil {
		log.WithError(err).Debug("stream ended with error")
	}
	log.WithField("dropped", ch.Dropped()).Info("stream closed")
}
