// Package reconcile turns successive snapshots of moving entities into
// marker commands: add new ones, animate moved ones, drop vanished ones.
package reconcile

import (
	"sort"
	"time"

	"github.com/fouezkebiche/memoire-projet/internal/geo"
	"github.com/fouezkebiche/memoire-projet/internal/model"
)

// DefaultAnimationDuration is how long a marker takes to glide to a new position.
const DefaultAnimationDuration = 500 * time.Millisecond

// CommandKind identifies a marker operation.
type CommandKind string

const (
	CommandAdd           CommandKind = "add"
	CommandAnimate       CommandKind = "animate"
	CommandUpdateContent CommandKind = "update"
	CommandRemove        CommandKind = "remove"
)

// Command is a marker operation for the rendering widget.
type Command struct {
	Kind     CommandKind   `json:"kind"`
	ID       string        `json:"id"`
	From     geo.Point     `json:"from"`
	To       geo.Point     `json:"to"`
	Duration time.Duration `json:"duration,omitempty"`
	Content  string        `json:"content,omitempty"`
}

// MarkerState tracks one displayed entity and its current animation.
type MarkerState struct {
	EntityID          string        `json:"entityId"`
	Current           geo.Point     `json:"current"`
	Target            geo.Point     `json:"target"`
	From              geo.Point     `json:"from"`
	AnimationStart    time.Time     `json:"animationStart"`
	AnimationDuration time.Duration `json:"animationDuration"`
	Content           string        `json:"content"`
}

// Progress returns the animation progress at now, clamped to [0, 1].
func (m MarkerState) Progress(now time.Time) float64 {
	if m.AnimationDuration <= 0 || m.AnimationStart.IsZero() {
		return 1
	}
	t := float64(now.Sub(m.AnimationStart)) / float64(m.AnimationDuration)
	return geo.Clamp(t, 0, 1)
}

// PositionAt returns where the marker is drawn at now.
func (m MarkerState) PositionAt(now time.Time) geo.Point {
	t := m.Progress(now)
	if t >= 1 {
		return m.Target
	}
	return geo.Interpolate(m.From, m.Target, t)
}

// Settled reports whether the animation has finished at now.
func (m MarkerState) Settled(now time.Time) bool {
	return m.Progress(now) >= 1
}

// Engine reconciles marker state against fresh entity snapshots.
type Engine struct {
	Duration time.Duration
}

// New returns an engine; a non-positive duration uses DefaultAnimationDuration.
func New(duration time.Duration) *Engine {
	if duration <= 0 {
		duration = DefaultAnimationDuration
	}
	return &Engine{Duration: duration}
}

// Reconcile diffs prev against fresh and returns the new marker set with
// the commands that bring the display from one to the other. prev is not
// modified. Fresh entities are expected to have passed FilterValid; when an
// id appears more than once the last occurrence wins.
func (e *Engine) Reconcile(prev map[string]MarkerState, fresh []model.TrackedEntity, now time.Time) (map[string]MarkerState, []Command) {
	latest := make(map[string]model.TrackedEntity, len(fresh))
	order := make([]string, 0, len(fresh))
	for _, ent := range fresh {
		if _, seen := latest[ent.ID]; !seen {
			order = append(order, ent.ID)
		}
		latest[ent.ID] = ent
	}

	next := make(map[string]MarkerState, len(latest))
	var cmds []Command

	for _, id := range order {
		ent := latest[id]
		pos := ent.Position()
		content := ent.Content()

		m, ok := prev[id]
		if !ok {
			next[id] = MarkerState{
				EntityID: id,
				Current:  pos,
				Target:   pos,
				From:     pos,
				Content:  content,
			}
			cmds = append(cmds, Command{Kind: CommandAdd, ID: id, To: pos, Content: content})
			continue
		}

		rendered := m.PositionAt(now)
		if m.Settled(now) {
			m.From = m.Target
		}
		m.Current = rendered

		if !pos.Equal(m.Target) {
			// Start from wherever the marker is drawn right now.
			m.From = rendered
			m.Target = pos
			m.AnimationStart = now
			m.AnimationDuration = e.Duration
			cmds = append(cmds, Command{Kind: CommandAnimate, ID: id, From: rendered, To: pos, Duration: e.Duration})
		}

		if content != m.Content {
			m.Content = content
			cmds = append(cmds, Command{Kind: CommandUpdateContent, ID: id, Content: content})
		}

		next[id] = m
	}

	var removed []string
	for id := range prev {
		if _, ok := latest[id]; !ok {
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	for _, id := range removed {
		cmds = append(cmds, Command{Kind: CommandRemove, ID: id})
	}

	return next, cmds
}

// Frame advances every marker's Current to its position at now and returns
// how many markers are still moving.
func (e *Engine) Frame(markers map[string]MarkerState, now time.Time) int {
	moving := 0
	for id, m := range markers {
		m.Current = m.PositionAt(now)
		if !m.Settled(now) {
			moving++
		}
		markers[id] = m
	}
	return moving
}

// FilterValid drops entities whose coordinates are missing, zero or out of
// range. Each dropped entity is returned as a *model.DataShapeError.
func FilterValid(entity string, entities []model.TrackedEntity) ([]model.TrackedEntity, []error) {
	valid := make([]model.TrackedEntity, 0, len(entities))
	var rejected []error
	for _, ent := range entities {
		if !geo.Valid(ent.Lat, ent.Lng) {
			rejected = append(rejected, &model.DataShapeError{
				Entity: entity,
				ID:     ent.ID,
				Reason: "missing or invalid coordinates",
			})
			continue
		}
		valid = append(valid, ent)
	}
	return valid, rejected
}
