// Package model holds the typed records the map engine works with and the
// decoding of the loosely shaped records returned by the data service.
package model

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/fouezkebiche/memoire-projet/internal/geo"
)

// TrackedEntity is a moving thing on the map, a vehicle or a ride.
type TrackedEntity struct {
	ID          string            `json:"id"`
	DisplayName string            `json:"displayName"`
	Lat         float64           `json:"lat"`
	Lng         float64           `json:"lng"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Position returns the entity coordinate.
func (e TrackedEntity) Position() geo.Point {
	return geo.Point{Lat: e.Lat, Lng: e.Lng}
}

// Content renders the popup text for the entity marker.
// Metadata keys are listed in sorted order so equal entities render equal content.
func (e TrackedEntity) Content() string {
	var b strings.Builder
	name := e.DisplayName
	if name == "" {
		name = "#" + e.ID
	}
	fmt.Fprintf(&b, "<b>%s</b>", html.EscapeString(name))

	keys := make([]string, 0, len(e.Metadata))
	for k := range e.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := e.Metadata[k]
		if v == "" {
			v = "Unknown"
		}
		fmt.Fprintf(&b, "<br>%s: %s", html.EscapeString(k), html.EscapeString(v))
	}
	return b.String()
}

// NameVariants holds the translated names of a station.
type NameVariants struct {
	En string `json:"en,omitempty"`
	Ar string `json:"ar,omitempty"`
	Fr string `json:"fr,omitempty"`
}

// Best returns the first non-empty name, preferring English.
func (n NameVariants) Best() string {
	for _, s := range []string{n.En, n.Fr, n.Ar} {
		if s != "" {
			return s
		}
	}
	return ""
}

// Station is static reference data.
type Station struct {
	ID    int64        `json:"id"`
	Names NameVariants `json:"names"`
	Lat   float64      `json:"lat"`
	Lng   float64      `json:"lng"`
}

// Position returns the station coordinate and whether it is usable.
func (s Station) Position() (geo.Point, bool) {
	return geo.Point{Lat: s.Lat, Lng: s.Lng}, geo.Valid(s.Lat, s.Lng)
}

// Line is a transit line with optional endpoint stations.
type Line struct {
	ID        int64      `json:"id"`
	Code      string     `json:"code"`
	Color     string     `json:"color"`
	Departure *Reference `json:"departure,omitempty"`
	Terminus  *Reference `json:"terminus,omitempty"`
}

// LineStation binds a station to a line in one direction with an ordering key.
// Lat/Lng override the station coordinate when valid.
type LineStation struct {
	ID         int64     `json:"id"`
	Line       Reference `json:"line"`
	Station    Reference `json:"station"`
	Order      int       `json:"order"`
	Direction  Direction `json:"direction"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	ExternalID int64     `json:"externalId,omitempty"`
}

// Override returns the waypoint's own coordinate when it is usable.
func (ls LineStation) Override() (geo.Point, bool) {
	return geo.Point{Lat: ls.Lat, Lng: ls.Lng}, geo.Valid(ls.Lat, ls.Lng)
}

// Direction is one of the two traversal directions of a line.
type Direction string

const (
	DirectionGoing     Direction = "GOING"
	DirectionReturning Direction = "RETURNING"
)

// ParseDirection accepts GOING, RETURNING and the legacy RETURN spelling.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "GOING":
		return DirectionGoing, nil
	case "RETURNING", "RETURN":
		return DirectionReturning, nil
	}
	return "", fmt.Errorf("unknown direction %q", s)
}

// Reference points at another record, optionally with its display label.
type Reference struct {
	ID    int64  `json:"id"`
	Label string `json:"label,omitempty"`
}

// DataShapeError reports a single record that cannot be used.
type DataShapeError struct {
	Entity string
	ID     string
	Reason string
}

func (e *DataShapeError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("invalid %s record: %s", e.Entity, e.Reason)
	}
	return fmt.Sprintf("invalid %s record %s: %s", e.Entity, e.ID, e.Reason)
}

// Topology is the static network: stations, lines and their waypoints.
type Topology struct {
	Stations     []Station     `json:"stations"`
	Lines        []Line        `json:"lines"`
	LineStations []LineStation `json:"lineStations"`
}
