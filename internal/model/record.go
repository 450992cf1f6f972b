package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Field names of the topology records as served by the data service.
var (
	StationFields     = []string{"name_en", "name_ar", "name_fr", "latitude", "longitude"}
	LineFields        = []string{"code", "color", "departure_station_id", "terminus_station_id"}
	LineStationFields = []string{"order", "direction", "lat", "lng", "line_id", "station_id", "external_id"}
)

// EntityFields maps the columns of a moving-entity record onto a TrackedEntity.
type EntityFields struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Lat      string   `yaml:"lat" validate:"required"`
	Lng      string   `yaml:"lng" validate:"required"`
	Metadata []string `yaml:"metadata"`
}

// DefaultEntityFields is the mapping used by ride records.
func DefaultEntityFields() EntityFields {
	return EntityFields{ID: "id", Name: "name", Lat: "lat", Lng: "lng"}
}

// Columns lists every field the mapping needs fetched.
func (f EntityFields) Columns() []string {
	cols := []string{f.idField()}
	if f.Name != "" {
		cols = append(cols, f.Name)
	}
	cols = append(cols, f.Lat, f.Lng)
	return append(cols, f.Metadata...)
}

func (f EntityFields) idField() string {
	if f.ID == "" {
		return "id"
	}
	return f.ID
}

// DecodeEntity builds a TrackedEntity from a raw record. Coordinates are
// copied as-is; validity is checked separately so rejected records can be
// reported with their id.
func DecodeEntity(entity string, rec map[string]any, f EntityFields) (TrackedEntity, error) {
	id, ok := asString(rec[f.idField()])
	if !ok || id == "" {
		return TrackedEntity{}, &DataShapeError{Entity: entity, Reason: "missing id"}
	}

	e := TrackedEntity{ID: id}
	if f.Name != "" {
		e.DisplayName, _ = asString(rec[f.Name])
	}
	e.Lat, _ = asFloat(rec[f.Lat])
	e.Lng, _ = asFloat(rec[f.Lng])

	if len(f.Metadata) > 0 {
		e.Metadata = make(map[string]string, len(f.Metadata))
		for _, key := range f.Metadata {
			v, _ := asString(rec[key])
			e.Metadata[key] = v
		}
	}
	return e, nil
}

// DecodeStation builds a Station from a raw record.
func DecodeStation(rec map[string]any) (Station, error) {
	id, ok := asInt64(rec["id"])
	if !ok {
		return Station{}, &DataShapeError{Entity: "station", Reason: "missing id"}
	}
	s := Station{ID: id}
	s.Names.En, _ = asString(rec["name_en"])
	s.Names.Ar, _ = asString(rec["name_ar"])
	s.Names.Fr, _ = asString(rec["name_fr"])
	s.Lat, _ = asFloat(rec["latitude"])
	s.Lng, _ = asFloat(rec["longitude"])
	return s, nil
}

// DecodeLine builds a Line from a raw record.
func DecodeLine(rec map[string]any) (Line, error) {
	id, ok := asInt64(rec["id"])
	if !ok {
		return Line{}, &DataShapeError{Entity: "line", Reason: "missing id"}
	}
	l := Line{ID: id}
	l.Code, _ = asString(rec["code"])
	l.Color, _ = asString(rec["color"])

	var err error
	if l.Departure, err = ParseReference(rec["departure_station_id"]); err != nil {
		return Line{}, &DataShapeError{Entity: "line", ID: strconv.FormatInt(id, 10), Reason: "departure: " + err.Error()}
	}
	if l.Terminus, err = ParseReference(rec["terminus_station_id"]); err != nil {
		return Line{}, &DataShapeError{Entity: "line", ID: strconv.FormatInt(id, 10), Reason: "terminus: " + err.Error()}
	}
	return l, nil
}

// DecodeLineStation builds a LineStation from a raw record.
func DecodeLineStation(rec map[string]any) (LineStation, error) {
	id, ok := asInt64(rec["id"])
	if !ok {
		return LineStation{}, &DataShapeError{Entity: "line_station", Reason: "missing id"}
	}
	sid := strconv.FormatInt(id, 10)
	shapeErr := func(reason string) error {
		return &DataShapeError{Entity: "line_station", ID: sid, Reason: reason}
	}

	ls := LineStation{ID: id}

	line, err := ParseReference(rec["line_id"])
	if err != nil {
		return LineStation{}, shapeErr("line: " + err.Error())
	}
	if line == nil {
		return LineStation{}, shapeErr("missing line")
	}
	ls.Line = *line

	station, err := ParseReference(rec["station_id"])
	if err != nil {
		return LineStation{}, shapeErr("station: " + err.Error())
	}
	if station != nil {
		ls.Station = *station
	}

	order, ok := asInt64(rec["order"])
	if !ok {
		return LineStation{}, shapeErr("missing order")
	}
	ls.Order = int(order)

	dir, _ := asString(rec["direction"])
	if ls.Direction, err = ParseDirection(dir); err != nil {
		return LineStation{}, shapeErr(err.Error())
	}

	ls.Lat, _ = asFloat(rec["lat"])
	ls.Lng, _ = asFloat(rec["lng"])
	ls.ExternalID, _ = asInt64(rec["external_id"])
	return ls, nil
}

// ParseReference normalises the shapes a relational field arrives in:
// an [id, label] pair, a bare id, an {"id", "label"|"name"} object, or
// false/null for an empty reference (returned as nil).
func ParseReference(v any) (*Reference, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case bool:
		if !val {
			return nil, nil
		}
		return nil, fmt.Errorf("unexpected reference value true")
	case []any:
		if len(val) == 0 {
			return nil, nil
		}
		id, ok := asInt64(val[0])
		if !ok {
			return nil, fmt.Errorf("reference id %v is not a number", val[0])
		}
		ref := &Reference{ID: id}
		if len(val) > 1 {
			ref.Label, _ = asString(val[1])
		}
		return ref, nil
	case map[string]any:
		id, ok := asInt64(val["id"])
		if !ok {
			return nil, fmt.Errorf("reference object without numeric id")
		}
		ref := &Reference{ID: id}
		for _, key := range []string{"label", "name", "display_name"} {
			if s, ok := asString(val[key]); ok && s != "" {
				ref.Label = s
				break
			}
		}
		return ref, nil
	case Reference:
		return &val, nil
	case *Reference:
		return val, nil
	}

	if id, ok := asInt64(v); ok {
		return &Reference{ID: id}, nil
	}
	return nil, fmt.Errorf("unsupported reference shape %T", v)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	}
	return 0, false
}

// asString renders scalar values and relational pairs as text. The data
// service sends false for empty text fields.
func asString(v any) (string, bool) {
	switch s := v.(type) {
	case nil:
		return "", false
	case string:
		return s, true
	case bool:
		if !s {
			return "", false
		}
		return "true", true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case int:
		return strconv.Itoa(s), true
	case json.Number:
		return s.String(), true
	case []any, map[string]any:
		ref, err := ParseReference(s)
		if err != nil || ref == nil {
			return "", false
		}
		if ref.Label != "" {
			return ref.Label, true
		}
		return strconv.FormatInt(ref.ID, 10), true
	}
	return fmt.Sprint(v), true
}
