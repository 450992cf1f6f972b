// Package route assembles line topology into directed polylines and the
// markers drawn along them.
package route

import (
	"fmt"
	"html"
	"sort"

	"github.com/fouezkebiche/memoire-projet/internal/geo"
	"github.com/fouezkebiche/memoire-projet/internal/model"
)

// DefaultLineColor is used for lines that carry no colour of their own.
const DefaultLineColor = "#000000"

// Palette holds the colours used when drawing a network.
type Palette struct {
	Going     string `json:"going" yaml:"going"`
	Returning string `json:"returning" yaml:"returning"`
	Departure string `json:"departure" yaml:"departure"`
	Terminus  string `json:"terminus" yaml:"terminus"`
}

// DefaultPalette returns the standard direction and endpoint colours.
func DefaultPalette() Palette {
	return Palette{
		Going:     "#00FF00",
		Returning: "#FF0000",
		Departure: "#007bff",
		Terminus:  "#ff7800",
	}
}

func (p Palette) direction(d model.Direction) string {
	if d == model.DirectionReturning {
		return p.Returning
	}
	return p.Going
}

// Segment is one drawable polyline.
type Segment struct {
	LineID      int64           `json:"lineId"`
	LineCode    string          `json:"lineCode"`
	Direction   model.Direction `json:"direction"`
	Coordinates []geo.Point     `json:"coordinates"`
	Color       string          `json:"color"`
	LineColor   string          `json:"lineColor"`
	Fallback    bool            `json:"fallback,omitempty"`
}

// Content renders the popup text for the segment.
func (s Segment) Content() string {
	content := fmt.Sprintf("<b>%s</b><br><b>Color:</b> %s", html.EscapeString(orUnknown(s.LineCode)), html.EscapeString(s.LineColor))
	if !s.Fallback {
		content += fmt.Sprintf("<br><b>Direction:</b> %s", s.Direction)
	}
	return content
}

// MarkerKind tells endpoint markers from waypoint markers.
type MarkerKind string

const (
	MarkerDeparture MarkerKind = "departure"
	MarkerTerminus  MarkerKind = "terminus"
	MarkerWaypoint  MarkerKind = "waypoint"
)

// Marker is a circle drawn at a station.
type Marker struct {
	Kind      MarkerKind      `json:"kind"`
	LineID    int64           `json:"lineId"`
	StationID int64           `json:"stationId,omitempty"`
	Direction model.Direction `json:"direction,omitempty"`
	Order     int             `json:"order,omitempty"`
	Position  geo.Point       `json:"position"`
	Color     string          `json:"color"`
	Content   string          `json:"content"`
}

// Warning reports a line or station that could not be drawn fully.
type Warning struct {
	LineID    int64  `json:"lineId,omitempty"`
	StationID int64  `json:"stationId,omitempty"`
	Reason    string `json:"reason"`
}

func (w Warning) String() string {
	switch {
	case w.LineID != 0 && w.StationID != 0:
		return fmt.Sprintf("line %d station %d: %s", w.LineID, w.StationID, w.Reason)
	case w.LineID != 0:
		return fmt.Sprintf("line %d: %s", w.LineID, w.Reason)
	}
	return w.Reason
}

// Result is everything needed to draw a network.
type Result struct {
	Segments  []Segment   `json:"segments"`
	Endpoints []Marker    `json:"endpoints"`
	Waypoints []Marker    `json:"waypoints"`
	Bounds    *geo.Bounds `json:"bounds,omitempty"`
	Warnings  []Warning   `json:"warnings,omitempty"`
}

// Coordinates lists every drawn position, for fitting the map view.
func (r Result) Coordinates() []geo.Point {
	var coords []geo.Point
	for _, s := range r.Segments {
		coords = append(coords, s.Coordinates...)
	}
	for _, m := range r.Endpoints {
		coords = append(coords, m.Position)
	}
	for _, m := range r.Waypoints {
		coords = append(coords, m.Position)
	}
	return coords
}

// Empty reports whether nothing at all can be drawn.
func (r Result) Empty() bool {
	return len(r.Segments) == 0 && len(r.Endpoints) == 0 && len(r.Waypoints) == 0
}

// Assembler turns lines, stations and line stations into a Result.
type Assembler struct {
	Palette Palette
}

// New returns an assembler using the default palette.
func New() *Assembler {
	return &Assembler{Palette: DefaultPalette()}
}

// Assemble groups waypoints by line and direction, orders them (GOING by
// ascending order, RETURNING by descending order, ties by id) and resolves
// each coordinate from the waypoint override or its station. Problems with
// individual lines or stations become warnings; assembly never fails.
func (a *Assembler) Assemble(lines []model.Line, stations []model.Station, lineStations []model.LineStation) Result {
	var res Result

	stationByID := make(map[int64]model.Station, len(stations))
	for _, s := range stations {
		stationByID[s.ID] = s
	}

	type groupKey struct {
		lineID    int64
		direction model.Direction
	}
	groups := make(map[groupKey][]model.LineStation)
	known := make(map[int64]bool, len(lines))
	ordered := make([]model.Line, 0, len(lines))
	for _, l := range lines {
		if known[l.ID] {
			continue
		}
		known[l.ID] = true
		ordered = append(ordered, l)
	}

	var orphans []model.Line
	for _, ls := range lineStations {
		key := groupKey{ls.Line.ID, ls.Direction}
		groups[key] = append(groups[key], ls)
		if !known[ls.Line.ID] {
			known[ls.Line.ID] = true
			orphans = append(orphans, model.Line{ID: ls.Line.ID, Code: ls.Line.Label})
		}
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i].ID < orphans[j].ID })
	ordered = append(ordered, orphans...)

	for _, line := range ordered {
		lineColor := line.Color
		if lineColor == "" {
			lineColor = DefaultLineColor
		}

		departure, depOK := a.endpoint(&res, line, line.Departure, MarkerDeparture, stationByID)
		terminus, termOK := a.endpoint(&res, line, line.Terminus, MarkerTerminus, stationByID)

		drawn := 0
		waypoints := 0
		for _, dir := range []model.Direction{model.DirectionGoing, model.DirectionReturning} {
			group := groups[groupKey{line.ID, dir}]
			waypoints += len(group)
			if len(group) == 0 {
				continue
			}
			sortGroup(group, dir)

			coords := make([]geo.Point, 0, len(group))
			for _, ls := range group {
				pos, ok := resolve(ls, stationByID)
				if !ok {
					res.Warnings = append(res.Warnings, Warning{LineID: line.ID, StationID: ls.Station.ID,
						Reason: fmt.Sprintf("waypoint %d has no valid coordinate", ls.ID)})
					continue
				}
				coords = append(coords, pos)
				res.Waypoints = append(res.Waypoints, Marker{
					Kind:      MarkerWaypoint,
					LineID:    line.ID,
					StationID: ls.Station.ID,
					Direction: dir,
					Order:     ls.Order,
					Position:  pos,
					Color:     a.Palette.direction(dir),
					Content:   waypointContent(ls, stationByID[ls.Station.ID], line.Code),
				})
			}

			if len(coords) < 2 {
				res.Warnings = append(res.Warnings, Warning{LineID: line.ID,
					Reason: fmt.Sprintf("%s has fewer than two resolvable waypoints", dir)})
				continue
			}
			res.Segments = append(res.Segments, Segment{
				LineID:      line.ID,
				LineCode:    line.Code,
				Direction:   dir,
				Coordinates: coords,
				Color:       a.Palette.direction(dir),
				LineColor:   lineColor,
			})
			drawn++
		}

		if drawn > 0 {
			continue
		}
		if depOK && termOK {
			res.Segments = append(res.Segments, Segment{
				LineID:      line.ID,
				LineCode:    line.Code,
				Direction:   model.DirectionGoing,
				Coordinates: []geo.Point{departure, terminus},
				Color:       lineColor,
				LineColor:   lineColor,
				Fallback:    true,
			})
			continue
		}
		if waypoints == 0 {
			res.Warnings = append(res.Warnings, Warning{LineID: line.ID,
				Reason: "no waypoints and no resolvable departure/terminus"})
		}
	}

	if b, ok := geo.BoundsOf(res.Coordinates()); ok {
		res.Bounds = &b
	}
	return res
}

// endpoint resolves a departure or terminus station and records its marker.
func (a *Assembler) endpoint(res *Result, line model.Line, ref *model.Reference, kind MarkerKind, stations map[int64]model.Station) (geo.Point, bool) {
	if ref == nil {
		return geo.Point{}, false
	}
	station, ok := stations[ref.ID]
	if !ok {
		res.Warnings = append(res.Warnings, Warning{LineID: line.ID, StationID: ref.ID,
			Reason: fmt.Sprintf("%s station not found", kind)})
		return geo.Point{}, false
	}
	pos, ok := station.Position()
	if !ok {
		res.Warnings = append(res.Warnings, Warning{LineID: line.ID, StationID: ref.ID,
			Reason: fmt.Sprintf("%s station has no valid coordinate", kind)})
		return geo.Point{}, false
	}

	color := a.Palette.Departure
	title := "Departure"
	if kind == MarkerTerminus {
		color = a.Palette.Terminus
		title = "Terminus"
	}
	name := station.Names.Best()
	if name == "" {
		name = ref.Label
	}
	res.Endpoints = append(res.Endpoints, Marker{
		Kind:      kind,
		LineID:    line.ID,
		StationID: station.ID,
		Position:  pos,
		Color:     color,
		Content: fmt.Sprintf("<b>%s:</b> %s<br><b>Name:</b> %s", title,
			html.EscapeString(orUnknown(line.Code)), html.EscapeString(orUnknown(name))),
	})
	return pos, true
}

func sortGroup(group []model.LineStation, dir model.Direction) {
	sort.SliceStable(group, func(i, j int) bool {
		if group[i].Order != group[j].Order {
			if dir == model.DirectionReturning {
				return group[i].Order > group[j].Order
			}
			return group[i].Order < group[j].Order
		}
		return group[i].ID < group[j].ID
	})
}

// resolve prefers the waypoint's own coordinate over its station's.
func resolve(ls model.LineStation, stations map[int64]model.Station) (geo.Point, bool) {
	if pos, ok := ls.Override(); ok {
		return pos, true
	}
	if station, ok := stations[ls.Station.ID]; ok {
		return station.Position()
	}
	return geo.Point{}, false
}

func waypointContent(ls model.LineStation, station model.Station, lineCode string) string {
	name := station.Names.Best()
	if name == "" {
		name = ls.Station.Label
	}
	return fmt.Sprintf("<b>Station:</b> %s<br><b>Line:</b> %s<br><b>Direction:</b> %s",
		html.EscapeString(orUnknown(name)), html.EscapeString(orUnknown(lineCode)), ls.Direction)
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
