package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/fouezkebiche/memoire-projet/internal/mapsync"
	"github.com/fouezkebiche/memoire-projet/internal/model"
	"github.com/fouezkebiche/memoire-projet/internal/nav"
	"github.com/fouezkebiche/memoire-projet/internal/realtime/gtfsrt"
)

// viewsFile is the layout of VIEWS_FILE.
type viewsFile struct {
	Views []mapsync.View `yaml:"views" validate:"min=1"`
}

// LoadViews reads and validates a YAML list of views.
func LoadViews(path string) ([]mapsync.View, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read views file: %w", err)
	}
	return ParseViews(data)
}

// ParseViews decodes and validates views from YAML.
func ParseViews(data []byte) ([]mapsync.View, error) {
	var f viewsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse views: %w", err)
	}

	v := validator.New()
	if err := v.Struct(f); err != nil {
		return nil, fmt.Errorf("invalid views: %w", err)
	}
	seen := make(map[string]bool, len(f.Views))
	for _, view := range f.Views {
		if err := v.Struct(view); err != nil {
			return nil, fmt.Errorf("invalid view %q: %w", view.Name, err)
		}
		if err := view.Check(); err != nil {
			return nil, fmt.Errorf("invalid view %q: %w", view.Name, err)
		}
		if seen[view.Name] {
			return nil, fmt.Errorf("duplicate view %q", view.Name)
		}
		seen[view.Name] = true
	}
	return f.Views, nil
}

// VehiclesView shows the GTFS-Realtime vehicle positions feed.
func VehiclesView() mapsync.View {
	return mapsync.View{
		Name:      "vehicles",
		Kind:      mapsync.KindVehicles,
		Signature: nav.Signature{Model: "transit.vehicle", ViewType: "map"},
		Label:     "vehicles",
		Entity:    gtfsrt.EntityType,
		Fields: model.EntityFields{
			ID: "id", Name: "name", Lat: "lat", Lng: "lng",
			Metadata: []string{"route_id", "status", "timestamp"},
		},
	}
}
