// Package mapsync keeps a map view in step with the data service: it
// fetches on every scheduler tick, reconciles or assembles the result and
// drives the rendering widget.
package mapsync

import (
	"errors"
	"fmt"

	"github.com/fouezkebiche/memoire-projet/internal/model"
	"github.com/fouezkebiche/memoire-projet/internal/nav"
	"github.com/fouezkebiche/memoire-projet/internal/remote"
)

// Kind selects how a view turns records into map content.
type Kind string

const (
	// KindVehicles shows moving entities as animated markers.
	KindVehicles Kind = "vehicles"
	// KindTopology shows lines, their waypoints and endpoints.
	KindTopology Kind = "topology"
)

// TopologyEntities names the entity types a topology view reads.
type TopologyEntities struct {
	Lines        string `yaml:"lines" json:"lines"`
	Stations     string `yaml:"stations" json:"stations"`
	LineStations string `yaml:"line_stations" json:"lineStations"`
}

// DefaultTopologyEntities returns the infrastructure model names.
func DefaultTopologyEntities() TopologyEntities {
	return TopologyEntities{
		Lines:        "infrastructure.line",
		Stations:     "infrastructure.station",
		LineStations: "infrastructure.line.station",
	}
}

// View describes one live map view.
type View struct {
	Name      string        `yaml:"name" json:"name" validate:"required"`
	Kind      Kind          `yaml:"kind" json:"kind" validate:"required,oneof=vehicles topology"`
	Signature nav.Signature `yaml:"signature" json:"signature"`
	// Label is used in user-facing messages, e.g. "Failed to sync rides".
	Label string `yaml:"label" json:"label"`

	// Vehicles only.
	Entity string             `yaml:"entity" json:"entity,omitempty" validate:"required_if=Kind vehicles"`
	Fields model.EntityFields `yaml:"fields" json:"fields,omitempty" validate:"-"`

	// Topology only.
	Topology TopologyEntities `yaml:"topology" json:"topology,omitempty"`

	Filter remote.Filter `yaml:"filter" json:"filter,omitempty"`
}

// label returns the plural noun used in notifications.
func (v View) label() string {
	if v.Label != "" {
		return v.Label
	}
	return v.Name
}

// withDefaults fills the field mapping and entity names left empty.
func (v View) withDefaults() View {
	switch v.Kind {
	case KindVehicles:
		def := model.DefaultEntityFields()
		if v.Fields.ID == "" {
			v.Fields.ID = def.ID
		}
		if v.Fields.Lat == "" {
			v.Fields.Lat = def.Lat
		}
		if v.Fields.Lng == "" {
			v.Fields.Lng = def.Lng
		}
	case KindTopology:
		def := DefaultTopologyEntities()
		if v.Topology.Lines == "" {
			v.Topology.Lines = def.Lines
		}
		if v.Topology.Stations == "" {
			v.Topology.Stations = def.Stations
		}
		if v.Topology.LineStations == "" {
			v.Topology.LineStations = def.LineStations
		}
	}
	return v
}

// Check reports configuration problems not covered by struct validation.
func (v View) Check() error {
	switch v.Kind {
	case KindVehicles:
		if v.Entity == "" {
			return errors.New("vehicles view needs an entity")
		}
	case KindTopology:
	default:
		return fmt.Errorf("unknown view kind %q", v.Kind)
	}
	if v.Signature.Model == "" || v.Signature.ViewType == "" {
		return errors.New("view signature needs model and view_type")
	}
	return v.Filter.Validate()
}

// DefaultViews returns the rides, buses and lines views.
func DefaultViews() []View {
	return []View{
		{
			Name:      "rides",
			Kind:      KindVehicles,
			Signature: nav.Signature{Model: "dynamics.ride", ViewType: "list"},
			Label:     "rides",
			Entity:    "dynamics.ride",
			Fields: model.EntityFields{
				ID: "id", Name: "name", Lat: "lat", Lng: "lng",
				Metadata: []string{"driver", "status", "vehicle"},
			},
		},
		{
			Name:      "buses",
			Kind:      KindVehicles,
			Signature: nav.Signature{Model: "bus_tracking.bus", ViewType: "map"},
			Label:     "buses",
			Entity:    "bus_tracking.bus",
			Fields: model.EntityFields{
				ID: "id", Name: "name", Lat: "latitude", Lng: "longitude",
				Metadata: []string{"driver"},
			},
		},
		{
			Name:      "lines",
			Kind:      KindTopology,
			Signature: nav.Signature{Model: "infrastructure.line", ViewType: "map"},
			Label:     "lines",
			Topology:  DefaultTopologyEntities(),
		},
	}
}
