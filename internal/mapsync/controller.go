package mapsync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fouezkebiche/memoire-projet/internal/geo"
	"github.com/fouezkebiche/memoire-projet/internal/metrics"
	"github.com/fouezkebiche/memoire-projet/internal/model"
	"github.com/fouezkebiche/memoire-projet/internal/nav"
	"github.com/fouezkebiche/memoire-projet/internal/notify"
	"github.com/fouezkebiche/memoire-projet/internal/reconcile"
	"github.com/fouezkebiche/memoire-projet/internal/remote"
	"github.com/fouezkebiche/memoire-projet/internal/render"
	"github.com/fouezkebiche/memoire-projet/internal/route"
	"github.com/fouezkebiche/memoire-projet/internal/scheduler"
	"github.com/fouezkebiche/memoire-projet/internal/timeutil"
)

const (
	// FitPadding is the padding in pixels used when fitting the map view.
	FitPadding = 50

	// DefaultFetchTimeout bounds the fetch phase of a cycle.
	DefaultFetchTimeout = 10 * time.Second

	endpointRadius = 8
	waypointRadius = 5
)

// Deps are the collaborators of a controller.
type Deps struct {
	Client       remote.Client
	Widget       render.Widget
	Notify       notify.Sink
	Signal       nav.Signal
	Clock        timeutil.Clock
	Timing       scheduler.Timing
	Animation    time.Duration
	FetchTimeout time.Duration
	Palette      route.Palette
	Log          *logrus.Entry
}

// MarkerSnapshot is a marker's interpolated position at one instant.
type MarkerSnapshot struct {
	ID       string    `json:"id"`
	Position geo.Point `json:"position"`
	Target   geo.Point `json:"target"`
	Moving   bool      `json:"moving"`
	// Heading is the bearing in degrees from where the current move
	// started to Target; 0 for a marker that has not moved.
	Heading float64 `json:"heading"`
	// Remaining is the distance to Target in meters.
	Remaining float64 `json:"remainingMeters"`
	Content   string  `json:"content"`
}

// Status is a snapshot of a controller.
type Status struct {
	View      string             `json:"view"`
	Kind      Kind               `json:"kind"`
	Scheduler scheduler.Status   `json:"scheduler"`
	Stats     metrics.CycleStats `json:"stats"`
	Markers   int                `json:"markers"`
	Segments  int                `json:"segments"`
	Checksum  string             `json:"checksum,omitempty"`
}

// Controller owns one mounted view: its scheduler, its marker state and
// the widget it draws on.
type Controller struct {
	view    View
	deps    Deps
	log     *logrus.Entry
	sched   *scheduler.Scheduler
	engine  *reconcile.Engine
	network *Network
	stats   metrics.Recorder

	// mu orders reconcile and emit of concurrent callers and guards the
	// fields below.
	mu         sync.Mutex
	markers    map[string]reconcile.MarkerState
	fitted     bool
	emptyShown bool
	result     *route.Result
	checksum   string
}

// New creates a controller for view. Zero-valued deps get defaults except
// Client, Widget and Signal, which are required.
func New(view View, deps Deps) *Controller {
	view = view.withDefaults()
	if deps.Clock == nil {
		deps.Clock = timeutil.RealClock{}
	}
	if deps.Timing == (scheduler.Timing{}) {
		deps.Timing = scheduler.DefaultTiming()
	}
	if deps.FetchTimeout <= 0 {
		deps.FetchTimeout = DefaultFetchTimeout
	}
	if deps.Palette == (route.Palette{}) {
		deps.Palette = route.DefaultPalette()
	}
	if deps.Log == nil {
		deps.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if deps.Notify == nil {
		deps.Notify = notify.LogSink{Log: deps.Log}
	}

	log := deps.Log.WithFields(logrus.Fields{"component": "mapsync", "view": view.Name})
	c := &Controller{
		view:    view,
		deps:    deps,
		log:     log,
		engine:  reconcile.New(deps.Animation),
		markers: make(map[string]reconcile.MarkerState),
	}
	if view.Kind == KindTopology {
		c.network = &Network{
			Client:    deps.Client,
			Entities:  view.Topology,
			Filter:    view.Filter,
			Assembler: &route.Assembler{Palette: deps.Palette},
			Log:       log,
		}
	}
	c.sched = scheduler.New(deps.Clock, deps.Signal, view.Signature, deps.Timing, func(ctx context.Context, tick scheduler.Tick) {
		_ = c.Sync(ctx, tick)
	}, log)
	return c
}

// View returns the view the controller serves.
func (c *Controller) View() View { return c.view }

// Mount starts the lifecycle as if the view had just been opened.
func (c *Controller) Mount() bool { return c.sched.Enter() }

// Leave stops syncing until the view is entered again.
func (c *Controller) Leave() bool { return c.sched.Leave() }

// Unmount stops everything for good. Cycles still running finish but
// their results are discarded.
func (c *Controller) Unmount() { c.sched.Teardown() }

// Wait blocks until no cycle is running.
func (c *Controller) Wait() { c.sched.Wait() }

// Navigated reacts to a navigation update: arriving on the view starts
// the lifecycle. Leaving is noticed by the scheduler's watch task.
func (c *Controller) Navigated(sig nav.Signature) bool {
	if sig != c.view.Signature {
		return false
	}
	return c.sched.Enter()
}

// State returns the scheduler state.
func (c *Controller) State() scheduler.State { return c.sched.State() }

// errStale marks a cycle whose session ended while it was fetching.
var errStale = errors.New("session no longer active")

// Sync runs one cycle: fetch, then reconcile or assemble, then emit.
// A failed fetch leaves the displayed state untouched and raises a
// danger notification.
func (c *Controller) Sync(ctx context.Context, tick scheduler.Tick) error {
	start := c.deps.Clock.Now()

	ctx, cancel := context.WithTimeout(ctx, c.deps.FetchTimeout)
	defer cancel()

	var err error
	switch c.view.Kind {
	case KindTopology:
		err = c.syncTopology(ctx, tick)
	default:
		err = c.syncVehicles(ctx, tick)
	}
	if err != nil && !tick.Live() {
		err = errStale
	}

	switch {
	case errors.Is(err, errStale):
		c.stats.Discard()
		c.log.WithField("session", tick.Session).Debug("discarding result of ended session")
		return nil
	case err != nil:
		c.stats.Observe(c.deps.Clock.Now(), 0, err)
		c.log.WithError(err).WithFields(logrus.Fields{
			"transport":  remote.IsTransport(err),
			"validation": remote.IsValidation(err),
		}).Error("sync failed")
		c.deps.Notify.Notify(fmt.Sprintf("Failed to sync %s: %v", c.view.label(), err), notify.Danger)
		return err
	}
	c.stats.Observe(c.deps.Clock.Now(), c.deps.Clock.Since(start), nil)
	return nil
}

func (c *Controller) syncVehicles(ctx context.Context, tick scheduler.Tick) error {
	recs, err := c.deps.Client.FetchEntities(ctx, c.view.Entity, c.view.Fields.Columns(), c.view.Filter)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", c.view.Entity, err)
	}

	entities := make([]model.TrackedEntity, 0, len(recs))
	var rejected []error
	for _, rec := range recs {
		e, err := model.DecodeEntity(c.view.Entity, rec, c.view.Fields)
		if err != nil {
			rejected = append(rejected, err)
			continue
		}
		entities = append(entities, e)
	}
	valid, invalid := reconcile.FilterValid(c.view.Entity, entities)
	rejected = append(rejected, invalid...)
	for _, err := range rejected {
		c.log.WithError(err).Debug("record rejected")
	}
	if len(rejected) > 0 {
		c.log.WithFields(logrus.Fields{"rejected": len(rejected), "valid": len(valid)}).Warn("records without usable coordinates")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !tick.Live() {
		return errStale
	}

	next, cmds := c.engine.Reconcile(c.markers, valid, c.deps.Clock.Now())
	c.markers = next
	apply(c.deps.Widget, cmds)

	if len(valid) == 0 {
		if !c.emptyShown {
			c.emptyShown = true
			c.deps.Notify.Notify(fmt.Sprintf("No %s with valid coordinates found.", c.view.label()), notify.Warning)
		}
		return nil
	}
	c.emptyShown = false

	if !c.fitted {
		c.fitted = true
		coords := make([]geo.Point, len(valid))
		for i, e := range valid {
			coords[i] = e.Position()
		}
		c.deps.Widget.FitBounds(coords, FitPadding)
	}
	return nil
}

func (c *Controller) syncTopology(ctx context.Context, tick scheduler.Tick) error {
	res, err := c.network.Load(ctx)
	if err != nil {
		return err
	}
	sum, err := checksum(res)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !tick.Live() {
		return errStale
	}
	if sum == c.checksum {
		return nil
	}
	c.checksum = sum
	c.result = &res

	c.log.WithFields(logrus.Fields{
		"segments":  len(res.Segments),
		"endpoints": len(res.Endpoints),
		"waypoints": len(res.Waypoints),
		"checksum":  sum[:12],
	}).Info("network changed, redrawing")

	c.deps.Widget.Clear()
	draw(c.deps.Widget, res)
	if res.Empty() {
		c.deps.Notify.Notify("No valid line station coordinates found.", notify.Warning)
	}
	return nil
}

// Replay draws the current state onto w, for a widget attached after the
// view was first drawn.
func (c *Controller) Replay(w render.Widget) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replayLocked(w)
}

// Attach subscribes a channel to hub and replays the current state onto
// it. No cycle can emit between the two, so the channel never sees a
// command for a marker it was not told about.
func (c *Controller) Attach(hub *render.Hub, size int) (*render.Channel, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, unsubscribe := hub.Subscribe(size)
	c.replayLocked(ch)
	return ch, unsubscribe
}

func (c *Controller) replayLocked(w render.Widget) {
	if c.result != nil {
		w.Clear()
		draw(w, *c.result)
		return
	}

	now := c.deps.Clock.Now()
	for _, id := range sortedIDs(c.markers) {
		m := c.markers[id]
		pos := m.PositionAt(now)
		w.AddMarker(id, pos, m.Content)
		if !m.Settled(now) {
			remaining := m.AnimationDuration - now.Sub(m.AnimationStart)
			w.AnimateMarker(id, pos, m.Target, remaining)
		}
	}
	if len(c.markers) > 0 {
		coords := make([]geo.Point, 0, len(c.markers))
		for _, id := range sortedIDs(c.markers) {
			coords = append(coords, c.markers[id].Target)
		}
		w.FitBounds(coords, FitPadding)
	}
}

// Markers returns every marker's position at now, sorted by id.
func (c *Controller) Markers(now time.Time) []MarkerSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.engine.Frame(c.markers, now)
	out := make([]MarkerSnapshot, 0, len(c.markers))
	for _, id := range sortedIDs(c.markers) {
		m := c.markers[id]
		snap := MarkerSnapshot{
			ID:        id,
			Position:  m.Current,
			Target:    m.Target,
			Moving:    !m.Settled(now),
			Remaining: geo.Haversine(m.Current, m.Target),
			Content:   m.Content,
		}
		if !m.From.Equal(m.Target) {
			snap.Heading = geo.Bearing(m.From, m.Target)
		}
		out = append(out, snap)
	}
	return out
}

// Result returns the last drawn network of a topology view.
func (c *Controller) Result() (route.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return route.Result{}, false
	}
	return *c.result, true
}

// Stats returns cycle statistics.
func (c *Controller) Stats() metrics.CycleStats {
	return c.stats.Snapshot()
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	st := Status{
		View:      c.view.Name,
		Kind:      c.view.Kind,
		Scheduler: c.sched.Status(),
		Stats:     c.stats.Snapshot(),
	}
	c.mu.Lock()
	st.Markers = len(c.markers)
	if c.result != nil {
		st.Segments = len(c.result.Segments)
	}
	st.Checksum = c.checksum
	c.mu.Unlock()
	return st
}

// apply forwards reconciliation commands to the widget.
func apply(w render.Widget, cmds []reconcile.Command) {
	for _, cmd := range cmds {
		switch cmd.Kind {
		case reconcile.CommandAdd:
			w.AddMarker(cmd.ID, cmd.To, cmd.Content)
		case reconcile.CommandAnimate:
			w.AnimateMarker(cmd.ID, cmd.From, cmd.To, cmd.Duration)
		case reconcile.CommandUpdateContent:
			w.UpdateMarker(cmd.ID, cmd.Content)
		case reconcile.CommandRemove:
			w.RemoveMarker(cmd.ID)
		}
	}
}

// draw renders an assembled network: polylines first, then waypoint and
// endpoint circles on top, then the view is fitted.
func draw(w render.Widget, res route.Result) {
	for _, s := range res.Segments {
		w.DrawPolyline(s.Coordinates, render.LineStyle(s.Color), s.Content())
	}
	for _, m := range res.Waypoints {
		w.DrawCircle(m.Position, render.CircleStyle(m.Color, waypointRadius), m.Content)
	}
	for _, m := range res.Endpoints {
		w.DrawCircle(m.Position, render.CircleStyle(m.Color, endpointRadius), m.Content)
	}
	if coords := res.Coordinates(); len(coords) > 0 {
		w.FitBounds(coords, FitPadding)
	}
}

// checksum identifies an assembled network so unchanged data is not redrawn.
func checksum(res route.Result) (string, error) {
	b, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("failed to encode network: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func sortedIDs(markers map[string]reconcile.MarkerState) []string {
	ids := make([]string, 0, len(markers))
	for id := range markers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
