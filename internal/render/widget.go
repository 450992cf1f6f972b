// Package render defines the map widget contract and its command wire
// format. Widgets are driven by commands; the browser-side map replays
// them.
package render

import (
	"time"

	"github.com/fouezkebiche/memoire-projet/internal/geo"
	"github.com/fouezkebiche/memoire-projet/internal/notify"
)

// Style describes how a polyline or circle is drawn.
type Style struct {
	Color       string  `json:"color"`
	Weight      int     `json:"weight,omitempty"`
	Opacity     float64 `json:"opacity,omitempty"`
	Radius      float64 `json:"radius,omitempty"`
	FillColor   string  `json:"fillColor,omitempty"`
	FillOpacity float64 `json:"fillOpacity,omitempty"`
}

// LineStyle is the style used for route polylines.
func LineStyle(color string) Style {
	return Style{Color: color, Weight: 4, Opacity: 0.8}
}

// CircleStyle is the style used for station circles.
func CircleStyle(color string, radius float64) Style {
	return Style{Color: color, Radius: radius, FillColor: color, FillOpacity: 0.8}
}

// Widget is the map surface. Calls must not block for long; a widget that
// cannot keep up may drop commands.
type Widget interface {
	AddMarker(id string, pos geo.Point, content string)
	AnimateMarker(id string, from, to geo.Point, d time.Duration)
	UpdateMarker(id string, content string)
	RemoveMarker(id string)
	DrawPolyline(coords []geo.Point, style Style, content string)
	DrawCircle(pos geo.Point, style Style, content string)
	FitBounds(coords []geo.Point, padding int)
	Clear()
}

// Op names a widget operation on the wire.
type Op string

const (
	OpAddMarker     Op = "add_marker"
	OpAnimateMarker Op = "animate_marker"
	OpUpdateMarker  Op = "update_marker"
	OpRemoveMarker  Op = "remove_marker"
	OpPolyline      Op = "polyline"
	OpCircle        Op = "circle"
	OpFitBounds     Op = "fit_bounds"
	OpClear         Op = "clear"
	OpNotify        Op = "notify"
)

// Command is one JSON message sent to the browser.
type Command struct {
	Op          Op              `json:"op"`
	ID          string          `json:"id,omitempty"`
	Position    *geo.Point      `json:"position,omitempty"`
	From        *geo.Point      `json:"from,omitempty"`
	To          *geo.Point      `json:"to,omitempty"`
	DurationMs  int64           `json:"durationMs,omitempty"`
	Coordinates []geo.Point     `json:"coordinates,omitempty"`
	Style       *Style          `json:"style,omitempty"`
	Content     string          `json:"content,omitempty"`
	Padding     int             `json:"padding,omitempty"`
	Message     string          `json:"message,omitempty"`
	Severity    notify.Severity `json:"severity,omitempty"`
}

func point(p geo.Point) *geo.Point { return &p }

func copyPoints(coords []geo.Point) []geo.Point {
	return append([]geo.Point(nil), coords...)
}

// encoder builds commands for each widget call and hands them to emit.
// Channel and Recorder share it.
type encoder struct {
	emit func(Command)
}

func (e encoder) AddMarker(id string, pos geo.Point, content string) {
	e.emit(Command{Op: OpAddMarker, ID: id, Position: point(pos), Content: content})
}

func (e encoder) AnimateMarker(id string, from, to geo.Point, d time.Duration) {
	e.emit(Command{Op: OpAnimateMarker, ID: id, From: point(from), To: point(to), DurationMs: d.Milliseconds()})
}

func (e encoder) UpdateMarker(id string, content string) {
	e.emit(Command{Op: OpUpdateMarker, ID: id, Content: content})
}

func (e encoder) RemoveMarker(id string) {
	e.emit(Command{Op: OpRemoveMarker, ID: id})
}

func (e encoder) DrawPolyline(coords []geo.Point, style Style, content string) {
	e.emit(Command{Op: OpPolyline, Coordinates: copyPoints(coords), Style: &style, Content: content})
}

func (e encoder) DrawCircle(pos geo.Point, style Style, content string) {
	e.emit(Command{Op: OpCircle, Position: point(pos), Style: &style, Content: content})
}

func (e encoder) FitBounds(coords []geo.Point, padding int) {
	e.emit(Command{Op: OpFitBounds, Coordinates: copyPoints(coords), Padding: padding})
}

func (e encoder) Clear() {
	e.emit(Command{Op: OpClear})
}

func (e encoder) Notify(message string, severity notify.Severity) {
	e.emit(Command{Op: OpNotify, Message: message, Severity: severity})
}
