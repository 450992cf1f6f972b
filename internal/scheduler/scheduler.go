// Package scheduler starts and stops the periodic sync of a live view,
// gated on the navigation signature actually showing that view.
//
// A scheduler moves Inactive -> Pending -> Active -> Inactive. Enter arms a
// stabilization timer; when it fires the signature is sampled again and only
// a match activates the sync and watch tasks. The watch task re-samples the
// signature and stops both tasks as soon as the view is left. Teardown stops
// everything from any state.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fouezkebiche/memoire-projet/internal/nav"
	"github.com/fouezkebiche/memoire-projet/internal/timeutil"
)

// Lifecycle errors. They are logged, never treated as failures.
var (
	ErrAlreadyActive = errors.New("scheduler: view already active")
	ErrInactive      = errors.New("scheduler: view not active")
	ErrClosed        = errors.New("scheduler: torn down")
)

// State is the lifecycle state of a scheduler.
type State int

const (
	Inactive State = iota
	Pending
	Active
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Active:
		return "active"
	}
	return "inactive"
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "inactive":
		*s = Inactive
	case "pending":
		*s = Pending
	case "active":
		*s = Active
	default:
		return fmt.Errorf("scheduler: unknown state %q", text)
	}
	return nil
}

// Timing configures the scheduler's delays.
type Timing struct {
	Stabilization time.Duration
	SyncInterval  time.Duration
	WatchInterval time.Duration
	// SyncOnActivate runs one cycle as soon as the view becomes active
	// instead of waiting a full sync interval.
	SyncOnActivate bool
}

// DefaultTiming returns 1s stabilization, 10s sync and 500ms watch intervals.
func DefaultTiming() Timing {
	return Timing{
		Stabilization:  time.Second,
		SyncInterval:   10 * time.Second,
		WatchInterval:  500 * time.Millisecond,
		SyncOnActivate: true,
	}
}

// SyncFunc runs one fetch-and-refresh cycle.
type SyncFunc func(ctx context.Context, tick Tick)

// Tick identifies one sync cycle.
type Tick struct {
	Session uuid.UUID
	Seq     uint64
	owner   *Scheduler
}

// Live reports whether the session that issued the tick is still active.
// Results of a cycle whose tick is no longer live must be discarded.
func (t Tick) Live() bool {
	if t.owner == nil {
		return false
	}
	return t.owner.isLive(t.Session)
}

// Status is a snapshot of the scheduler.
type Status struct {
	State         State         `json:"state"`
	Session       string        `json:"session,omitempty"`
	Target        nav.Signature `json:"target"`
	LastSignature nav.Signature `json:"lastSignature"`
	InFlight      bool          `json:"inFlight"`
	Cycles        uint64        `json:"cycles"`
	Skipped       uint64        `json:"skipped"`
	Closed        bool          `json:"closed"`
}

// session is the state owned by one Pending or Active period.
type session struct {
	id        uuid.UUID
	stabilize timeutil.Timer
	syncTask  timeutil.Timer
	watchTask timeutil.Timer
	seq       uint64
}

// Scheduler owns at most one session at a time.
type Scheduler struct {
	mu      sync.Mutex
	clock   timeutil.Clock
	signal  nav.Signal
	target  nav.Signature
	timing  Timing
	sync    SyncFunc
	log     *logrus.Entry
	state   State
	session *session
	closed  bool

	// inFlight outlives the session that started the cycle, so a new
	// session cannot start a second cycle while an old one still runs.
	inFlight bool

	lastSignature nav.Signature
	cycles        uint64
	skipped       uint64

	// wg tracks running cycles so Wait can drain them.
	wg sync.WaitGroup
}

// New creates an inactive scheduler for the view identified by target.
func New(clock timeutil.Clock, signal nav.Signal, target nav.Signature, timing Timing, fn SyncFunc, log *logrus.Entry) *Scheduler {
	return &Scheduler{
		clock:  clock,
		signal: signal,
		target: target,
		timing: timing,
		sync:   fn,
		log:    log.WithField("view", target.String()),
	}
}

// Enter starts the stabilization window. It returns false when nothing
// changed because the scheduler is already pending, active or closed.
func (s *Scheduler) Enter() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.log.WithError(ErrClosed).Debug("enter ignored")
		return false
	}
	if s.state != Inactive {
		s.log.WithError(ErrAlreadyActive).WithField("state", s.state).Debug("enter ignored")
		return false
	}

	sess := &session{id: uuid.New()}
	s.session = sess
	s.state = Pending
	sess.stabilize = s.clock.AfterFunc(s.timing.Stabilization, func() { s.stabilized(sess) })

	s.log.WithField("session", sess.id).Debug("entered view, waiting for navigation to settle")
	return true
}

// Leave stops a pending or active session. It returns false when the
// scheduler was already inactive.
func (s *Scheduler) Leave() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Inactive {
		s.log.WithError(ErrInactive).Debug("leave ignored")
		return false
	}
	s.stopLocked("left view")
	return true
}

// Teardown stops everything regardless of state and closes the scheduler.
// Later calls to Enter are no-ops.
func (s *Scheduler) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Inactive {
		s.stopLocked("torn down")
	}
	s.closed = true
}

// Wait blocks until no cycle is running.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Target returns the signature this scheduler watches for.
func (s *Scheduler) Target() nav.Signature {
	return s.target
}

// Status returns a snapshot of the scheduler.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:         s.state,
		Target:        s.target,
		LastSignature: s.lastSignature,
		InFlight:      s.inFlight,
		Cycles:        s.cycles,
		Skipped:       s.skipped,
		Closed:        s.closed,
	}
	if s.session != nil {
		st.Session = s.session.id.String()
	}
	return st
}

func (s *Scheduler) isLive(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Active && s.session != nil && s.session.id == id
}

// current must be called with mu held. Callbacks from a stopped session
// can still run once with the real clock and must be ignored.
func (s *Scheduler) current(sess *session) bool {
	return s.session == sess
}

func (s *Scheduler) stabilized(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.current(sess) || s.state != Pending {
		return
	}
	sess.stabilize = nil

	sig := s.signal.Current()
	s.lastSignature = sig
	if sig != s.target {
		s.log.WithField("signature", sig.String()).Info("navigation settled elsewhere, not starting sync")
		s.stopLocked("signature mismatch after stabilization")
		return
	}

	s.state = Active
	sess.syncTask = s.clock.AfterFunc(s.timing.SyncInterval, func() { s.syncTick(sess) })
	sess.watchTask = s.clock.AfterFunc(s.timing.WatchInterval, func() { s.watchTick(sess) })

	s.log.WithFields(logrus.Fields{
		"session":        sess.id,
		"sync_interval":  s.timing.SyncInterval.String(),
		"watch_interval": s.timing.WatchInterval.String(),
	}).Info("view active, sync started")

	if s.timing.SyncOnActivate {
		s.tryCycleLocked(sess)
	}
}

func (s *Scheduler) syncTick(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.current(sess) || s.state != Active {
		return
	}
	sess.syncTask = s.clock.AfterFunc(s.timing.SyncInterval, func() { s.syncTick(sess) })
	s.tryCycleLocked(sess)
}

// tryCycleLocked starts a cycle unless one is still running, from this
// session or an earlier one.
func (s *Scheduler) tryCycleLocked(sess *session) {
	if s.inFlight {
		s.skipped++
		s.log.WithField("session", sess.id).Debug("previous cycle still running, tick skipped")
		return
	}
	s.startCycleLocked(sess)
}

// startCycleLocked launches one cycle on its own goroutine. The in-flight
// flag is set before the goroutine starts so a tick firing meanwhile is
// skipped rather than queued.
func (s *Scheduler) startCycleLocked(sess *session) {
	s.inFlight = true
	sess.seq++
	tick := Tick{Session: sess.id, Seq: sess.seq, owner: s}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.inFlight = false
			s.cycles++
			s.mu.Unlock()
		}()
		s.sync(context.Background(), tick)
	}()
}

func (s *Scheduler) watchTick(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.current(sess) || s.state != Active {
		return
	}

	sig := s.signal.Current()
	s.lastSignature = sig
	if sig != s.target {
		s.log.WithField("signature", sig.String()).Info("view left, sync stopped")
		s.stopLocked("signature changed")
		return
	}
	sess.watchTask = s.clock.AfterFunc(s.timing.WatchInterval, func() { s.watchTick(sess) })
}

// stopLocked cancels every timer of the current session and returns to
// Inactive. Both tasks are cancelled under the same lock so no observer
// can see one running without the other.
func (s *Scheduler) stopLocked(reason string) {
	sess := s.session
	if sess != nil {
		for _, t := range []timeutil.Timer{sess.stabilize, sess.syncTask, sess.watchTask} {
			if t != nil {
				t.Stop()
			}
		}
		s.log.WithFields(logrus.Fields{"session": sess.id, "reason": reason}).Debug("session stopped")
	}
	s.session = nil
	s.state = Inactive
}
