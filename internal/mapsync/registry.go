package mapsync

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fouezkebiche/memoire-projet/internal/nav"
	"github.com/fouezkebiche/memoire-projet/internal/notify"
	"github.com/fouezkebiche/memoire-projet/internal/render"
)

// ErrUnknownView is returned when mounting a view that is not configured.
var ErrUnknownView = errors.New("unknown view")

// Mount is one client's instance of a view.
type Mount struct {
	ID         uuid.UUID
	Controller *Controller
	Tracker    *nav.Tracker
	Hub        *render.Hub
	CreatedAt  time.Time
}

// Registry holds the mounted views. Each mount gets its own controller,
// navigation tracker and render hub; nothing is shared between mounts.
type Registry struct {
	mu     sync.RWMutex
	views  map[string]View
	deps   Deps
	mounts map[uuid.UUID]*Mount
	log    *logrus.Entry
	closed bool
}

// NewRegistry creates a registry for views. deps is the template for every
// controller; its Widget and Signal are replaced per mount.
func NewRegistry(views []View, deps Deps) *Registry {
	byName := make(map[string]View, len(views))
	for _, v := range views {
		byName[v.Name] = v
	}
	if deps.Log == nil {
		deps.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Registry{
		views:  byName,
		deps:   deps,
		mounts: make(map[uuid.UUID]*Mount),
		log:    deps.Log.WithField("component", "registry"),
	}
}

// Views returns the configured views sorted by name.
func (r *Registry) Views() []View {
	out := make([]View, 0, len(r.views))
	for _, v := range r.views {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// View returns a configured view by name.
func (r *Registry) View(name string) (View, bool) {
	v, ok := r.views[name]
	return v, ok
}

// Mount creates and starts a mount of the named view. rawURL is the
// client's current location; when empty the client is assumed to be on
// the view.
func (r *Registry) Mount(viewName, rawURL string) (*Mount, error) {
	view, ok := r.views[viewName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownView, viewName)
	}

	tracker := nav.NewTracker(view.Signature)
	if rawURL != "" {
		if _, err := tracker.SetURL(rawURL); err != nil {
			return nil, fmt.Errorf("failed to parse location: %w", err)
		}
	}

	id := uuid.New()
	hub := render.NewHub()
	deps := r.deps
	deps.Widget = hub
	deps.Signal = tracker
	deps.Notify = notify.Multi(r.deps.Notify, hub)
	deps.Log = r.deps.Log.WithField("mount", id)

	m := &Mount{
		ID:         id,
		Controller: New(view, deps),
		Tracker:    tracker,
		Hub:        hub,
		CreatedAt:  time.Now(),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, errors.New("registry closed")
	}
	r.mounts[id] = m
	r.mu.Unlock()

	m.Controller.Mount()
	r.log.WithFields(logrus.Fields{"mount": id, "view": view.Name}).Info("view mounted")
	return m, nil
}

// Get returns a mount by id.
func (r *Registry) Get(id uuid.UUID) (*Mount, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.mounts[id]
	return m, ok
}

// List returns every mount, oldest first.
func (r *Registry) List() []*Mount {
	r.mu.RLock()
	out := make([]*Mount, 0, len(r.mounts))
	for _, m := range r.mounts {
		out = append(out, m)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Unmount tears a mount down and forgets it.
func (r *Registry) Unmount(id uuid.UUID) bool {
	r.mu.Lock()
	m, ok := r.mounts[id]
	delete(r.mounts, id)
	r.mu.Unlock()
	if !ok {
		return false
	}
	m.Controller.Unmount()
	m.Hub.Close()
	r.log.WithField("mount", id).Info("view unmounted")
	return true
}

// Close tears every mount down and waits for running cycles.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	mounts := r.mounts
	r.mounts = make(map[uuid.UUID]*Mount)
	r.mu.Unlock()

	for _, m := range mounts {
		m.Controller.Unmount()
	}
	for _, m := range mounts {
		m.Controller.Wait()
		m.Hub.Close()
	}
	r.log.WithField("mounts", len(mounts)).Info("registry closed")
}
