package mapsync

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fouezkebiche/memoire-projet/internal/geo"
	"github.com/fouezkebiche/memoire-projet/internal/nav"
	"github.com/fouezkebiche/memoire-projet/internal/notify"
	"github.com/fouezkebiche/memoire-projet/internal/remote"
	"github.com/fouezkebiche/memoire-projet/internal/render"
	"github.com/fouezkebiche/memoire-projet/internal/scheduler"
	"github.com/fouezkebiche/memoire-projet/internal/timeutil"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type fetchCall struct {
	Entity string
	Filter remote.Filter
}

// fakeClient serves records from memory. When gate is set every fetch
// blocks until it is closed.
type fakeClient struct {
	mu      sync.Mutex
	records map[string][]remote.Record
	err     error
	gate    chan struct{}
	calls   []fetchCall
}

func newFakeClient() *fakeClient {
	return &fakeClient{records: make(map[string][]remote.Record)}
}

func (f *fakeClient) set(entity string, recs ...remote.Record) {
	f.mu.Lock()
	f.records[entity] = recs
	f.mu.Unlock()
}

func (f *fakeClient) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeClient) FetchEntities(ctx context.Context, entityType string, fields []string, filter remote.Filter) ([]remote.Record, error) {
	f.mu.Lock()
	gate := f.gate
	f.calls = append(f.calls, fetchCall{Entity: entityType, Filter: filter})
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, &remote.TransportError{Op: "fetch " + entityType, Err: ctx.Err()}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []remote.Record
	for _, rec := range f.records[entityType] {
		if filter.Match(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeClient) callsFor(entity string) []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fetchCall
	for _, c := range f.calls {
		if c.Entity == entity {
			out = append(out, c)
		}
	}
	return out
}

var ridesView = View{
	Name:      "rides",
	Kind:      KindVehicles,
	Signature: nav.Signature{Model: "dynamics.ride", ViewType: "list"},
	Label:     "rides",
	Entity:    "dynamics.ride",
}

func ride(id int64, name string, lat, lng float64) remote.Record {
	return remote.Record{"id": id, "name": name, "lat": lat, "lng": lng}
}

type harness struct {
	clock   *timeutil.MockClock
	client  *fakeClient
	widget  *render.Recorder
	notes   *notify.Memory
	tracker *nav.Tracker
	ctrl    *Controller
}

func newHarness(t *testing.T, view View) *harness {
	t.Helper()
	h := &harness{
		clock:   timeutil.NewMockClock(time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)),
		client:  newFakeClient(),
		widget:  render.NewRecorder(),
		notes:   &notify.Memory{},
		tracker: nav.NewTracker(view.Signature),
	}
	h.ctrl = New(view, Deps{
		Client: h.client,
		Widget: h.widget,
		Notify: h.notes,
		Signal: h.tracker,
		Clock:  h.clock,
		Timing: scheduler.DefaultTiming(),
		Log:    testLogger(),
	})
	t.Cleanup(func() {
		h.ctrl.Unmount()
		h.ctrl.Wait()
	})
	return h
}

// activate mounts the view and lets the first cycle finish.
func (h *harness) activate(t *testing.T) {
	t.Helper()
	require.True(t, h.ctrl.Mount())
	h.clock.Advance(time.Second)
	require.Equal(t, scheduler.Active, h.ctrl.State())
	h.ctrl.Wait()
}

// tick advances one sync interval and waits for the cycle.
func (h *harness) tick() {
	h.clock.Advance(10 * time.Second)
	h.ctrl.Wait()
}

func TestVehicles_AddThenAnimate(t *testing.T) {
	h := newHarness(t, ridesView)
	h.client.set("dynamics.ride", ride(1, "A", 10, 10))

	h.activate(t)

	assert.Equal(t, []render.Op{render.OpAddMarker, render.OpFitBounds}, h.widget.Ops())
	cmds := h.widget.Commands()
	assert.Equal(t, "1", cmds[0].ID)
	assert.Equal(t, geo.Point{Lat: 10, Lng: 10}, *cmds[0].Position)
	assert.Equal(t, FitPadding, cmds[1].Padding)

	h.widget.Reset()
	h.client.set("dynamics.ride", ride(1, "A", 10, 20))
	h.tick()

	cmds = h.widget.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, render.OpAnimateMarker, cmds[0].Op)
	assert.Equal(t, geo.Point{Lat: 10, Lng: 10}, *cmds[0].From)
	assert.Equal(t, geo.Point{Lat: 10, Lng: 20}, *cmds[0].To)
	assert.Equal(t, int64(500), cmds[0].DurationMs)

	mid := h.ctrl.Markers(h.clock.Now().Add(250 * time.Millisecond))
	require.Len(t, mid, 1)
	assert.True(t, mid[0].Moving)
	assert.InDelta(t, 10.0, mid[0].Position.Lat, 1e-9)
	assert.InDelta(t, 15.0, mid[0].Position.Lng, 1e-9)
	assert.InDelta(t, 89.13, mid[0].Heading, 0.01, "heading east")
	assert.InDelta(t, 547523.0, mid[0].Remaining, 1.0)

	end := h.ctrl.Markers(h.clock.Now().Add(time.Second))
	assert.False(t, end[0].Moving)
	assert.Equal(t, geo.Point{Lat: 10, Lng: 20}, end[0].Position)
	assert.Zero(t, end[0].Remaining)
}

func TestVehicles_UnchangedEmitsNothing(t *testing.T) {
	h := newHarness(t, ridesView)
	h.client.set("dynamics.ride", ride(1, "A", 10, 10), ride(2, "B", 11, 11))
	h.activate(t)
	h.widget.Reset()

	h.tick()
	assert.Empty(t, h.widget.Commands())

	h.client.set("dynamics.ride", ride(1, "A renamed", 10, 10))
	h.tick()
	assert.Equal(t, []render.Op{render.OpUpdateMarker, render.OpRemoveMarker}, h.widget.Ops())
	assert.Equal(t, "2", h.widget.Commands()[1].ID)
}

func TestVehicles_RejectedRecordsWarnOnce(t *testing.T) {
	h := newHarness(t, ridesView)
	h.client.set("dynamics.ride", ride(1, "A", 0, 0), remote.Record{"name": "no id", "lat": 1.0, "lng": 1.0})

	h.activate(t)
	h.tick()

	notes := h.notes.All()
	require.Len(t, notes, 1)
	assert.Equal(t, "No rides with valid coordinates found.", notes[0].Message)
	assert.Equal(t, notify.Warning, notes[0].Severity)
	assert.Empty(t, h.ctrl.Markers(h.clock.Now()))
}

func TestVehicles_FetchFailureKeepsState(t *testing.T) {
	h := newHarness(t, ridesView)
	h.client.set("dynamics.ride", ride(1, "A", 10, 10))
	h.activate(t)
	h.widget.Reset()

	h.client.fail(&remote.TransportError{Op: "search_read", StatusCode: 502})
	h.tick()

	assert.Empty(t, h.widget.Commands())
	assert.Len(t, h.ctrl.Markers(h.clock.Now()), 1)

	notes := h.notes.All()
	require.Len(t, notes, 1)
	assert.Equal(t, notify.Danger, notes[0].Severity)
	assert.Contains(t, notes[0].Message, "Failed to sync rides: ")

	stats := h.ctrl.Stats()
	assert.Equal(t, 1, stats.Failures)
	assert.Equal(t, 2, stats.Cycles)

	// The scheduler keeps going; the next good cycle applies normally.
	h.client.fail(nil)
	h.client.set("dynamics.ride", ride(1, "A", 10, 11))
	h.tick()
	assert.Equal(t, []render.Op{render.OpAnimateMarker}, h.widget.Ops())
}

func TestVehicles_StaleResultDiscarded(t *testing.T) {
	h := newHarness(t, ridesView)
	h.client.set("dynamics.ride", ride(1, "A", 10, 10))
	h.client.gate = make(chan struct{})

	require.True(t, h.ctrl.Mount())
	h.clock.Advance(time.Second)
	require.Eventually(t, func() bool { return len(h.client.callsFor("dynamics.ride")) == 1 }, time.Second, time.Millisecond)

	h.ctrl.Leave()
	close(h.client.gate)
	h.ctrl.Wait()

	assert.Empty(t, h.widget.Commands())
	assert.Equal(t, 1, h.ctrl.Stats().Discarded)
	assert.Equal(t, 0, h.clock.Pending())
}

func TestVehicles_StaleFailureDiscarded(t *testing.T) {
	h := newHarness(t, ridesView)
	h.client.fail(&remote.TransportError{Op: "search_read", StatusCode: 502})
	h.client.gate = make(chan struct{})

	require.True(t, h.ctrl.Mount())
	h.clock.Advance(time.Second)
	require.Eventually(t, func() bool { return len(h.client.callsFor("dynamics.ride")) == 1 }, time.Second, time.Millisecond)

	h.ctrl.Leave()
	close(h.client.gate)
	h.ctrl.Wait()

	assert.Empty(t, h.notes.All(), "a failure of an ended session is not reported")
	stats := h.ctrl.Stats()
	assert.Equal(t, 0, stats.Failures)
	assert.Equal(t, 1, stats.Discarded)
}

func TestAttach_ReplayPrecedesLiveCommands(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC))
	client := newFakeClient()
	client.set("dynamics.ride", ride(1, "A", 10, 10))
	hub := render.NewHub()
	defer hub.Close()

	ctrl := New(ridesView, Deps{
		Client: client,
		Widget: hub,
		Notify: &notify.Memory{},
		Signal: nav.NewTracker(ridesView.Signature),
		Clock:  clock,
		Log:    testLogger(),
	})
	defer func() {
		ctrl.Unmount()
		ctrl.Wait()
	}()
	require.True(t, ctrl.Mount())
	clock.Advance(time.Second)
	ctrl.Wait()

	const steps = 20
	attached := make(chan *render.Channel, 1)
	go func() {
		ch, _ := ctrl.Attach(hub, render.DefaultBuffer)
		attached <- ch
	}()
	for i := 1; i <= steps; i++ {
		client.set("dynamics.ride", ride(1, "A", 10, 10+float64(i)))
		clock.Advance(10 * time.Second)
		ctrl.Wait()
	}
	ch := <-attached

	var cmds []render.Command
	for len(ch.Commands()) > 0 {
		cmds = append(cmds, <-ch.Commands())
	}
	require.NotEmpty(t, cmds)
	assert.Equal(t, render.OpAddMarker, cmds[0].Op, "replay comes first")

	var last geo.Point
	for _, cmd := range cmds {
		switch cmd.Op {
		case render.OpAddMarker:
			last = *cmd.Position
		case render.OpAnimateMarker:
			last = *cmd.To
		}
	}
	assert.Equal(t, geo.Point{Lat: 10, Lng: 10 + steps}, last)
	assert.Zero(t, ch.Dropped())
}

func TestVehicles_NavigationAwayStopsSync(t *testing.T) {
	h := newHarness(t, ridesView)
	h.client.set("dynamics.ride", ride(1, "A", 10, 10))
	h.activate(t)

	h.tracker.Set(nav.Signature{Model: "dynamics.ride", ViewType: "form"})
	h.clock.Advance(500 * time.Millisecond)
	assert.Equal(t, scheduler.Inactive, h.ctrl.State())
	assert.Equal(t, 0, h.clock.Pending())

	before := len(h.client.callsFor("dynamics.ride"))
	h.clock.Advance(time.Minute)
	h.ctrl.Wait()
	assert.Len(t, h.client.callsFor("dynamics.ride"), before)

	// Coming back restarts the lifecycle.
	h.tracker.Set(ridesView.Signature)
	assert.False(t, h.ctrl.Navigated(nav.Signature{Model: "res.partner", ViewType: "list"}))
	assert.True(t, h.ctrl.Navigated(ridesView.Signature))
	h.clock.Advance(time.Second)
	assert.Equal(t, scheduler.Active, h.ctrl.State())
}

func TestReplay(t *testing.T) {
	h := newHarness(t, ridesView)
	h.client.set("dynamics.ride", ride(1, "A", 10, 10))
	h.activate(t)
	h.client.set("dynamics.ride", ride(1, "A", 10, 20))
	h.tick()

	late := render.NewRecorder()
	h.ctrl.Replay(late)
	assert.Equal(t, []render.Op{render.OpAddMarker, render.OpAnimateMarker, render.OpFitBounds}, late.Ops())
	assert.Equal(t, int64(500), late.Commands()[1].DurationMs)
}

func TestSync_ValidationErrorNotified(t *testing.T) {
	h := newHarness(t, ridesView)
	h.client.fail(&remote.ValidationError{Field: "lat", Reason: "unknown field"})
	h.activate(t)

	notes := h.notes.All()
	require.Len(t, notes, 1)
	assert.Equal(t, notify.Danger, notes[0].Severity)
	assert.Contains(t, notes[0].Message, "unknown field")
}
