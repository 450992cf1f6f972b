package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReference(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected *Reference
	}{
		{"pair", []any{float64(7), "Line 7"}, &Reference{ID: 7, Label: "Line 7"}},
		{"bare id", float64(12), &Reference{ID: 12}},
		{"object with label", map[string]any{"id": float64(3), "label": "Gare"}, &Reference{ID: 3, Label: "Gare"}},
		{"object with name", map[string]any{"id": float64(3), "name": "Gare"}, &Reference{ID: 3, Label: "Gare"}},
		{"false", false, nil},
		{"null", nil, nil},
		{"empty pair", []any{}, nil},
		{"json number", json.Number("42"), &Reference{ID: 42}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseReference(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestParseReference_Invalid(t *testing.T) {
	for _, input := range []any{true, []any{"x", "y"}, map[string]any{"label": "no id"}, 1.5} {
		_, err := ParseReference(input)
		assert.Error(t, err, "input %v", input)
	}
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("GOING")
	require.NoError(t, err)
	assert.Equal(t, DirectionGoing, d)

	d, err = ParseDirection("RETURN")
	require.NoError(t, err)
	assert.Equal(t, DirectionReturning, d)

	d, err = ParseDirection("returning")
	require.NoError(t, err)
	assert.Equal(t, DirectionReturning, d)

	_, err = ParseDirection("SIDEWAYS")
	assert.Error(t, err)
}

func TestDecodeLineStation(t *testing.T) {
	rec := map[string]any{
		"id":          float64(5),
		"line_id":     []any{float64(1), "L1"},
		"station_id":  []any{float64(9), "Gare routière"},
		"order":       float64(3),
		"direction":   "RETURN",
		"lat":         36.36,
		"lng":         6.61,
		"external_id": false,
	}

	ls, err := DecodeLineStation(rec)
	require.NoError(t, err)
	assert.Equal(t, int64(5), ls.ID)
	assert.Equal(t, Reference{ID: 1, Label: "L1"}, ls.Line)
	assert.Equal(t, int64(9), ls.Station.ID)
	assert.Equal(t, 3, ls.Order)
	assert.Equal(t, DirectionReturning, ls.Direction)
	assert.Equal(t, int64(0), ls.ExternalID)

	_, ok := ls.Override()
	assert.True(t, ok)
}

func TestDecodeLineStation_ShapeErrors(t *testing.T) {
	base := func() map[string]any {
		return map[string]any{
			"id":        float64(5),
			"line_id":   []any{float64(1), "L1"},
			"order":     float64(1),
			"direction": "GOING",
		}
	}

	missingLine := base()
	missingLine["line_id"] = false
	badDirection := base()
	badDirection["direction"] = "UP"
	missingOrder := base()
	delete(missingOrder, "order")

	for name, rec := range map[string]map[string]any{
		"missing line":  missingLine,
		"bad direction": badDirection,
		"missing order": missingOrder,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeLineStation(rec)
			var shapeErr *DataShapeError
			require.True(t, errors.As(err, &shapeErr), "expected DataShapeError, got %v", err)
			assert.Equal(t, "line_station", shapeErr.Entity)
			assert.Equal(t, "5", shapeErr.ID)
		})
	}
}

func TestDecodeLine(t *testing.T) {
	l, err := DecodeLine(map[string]any{
		"id":                   float64(2),
		"code":                 "L2",
		"color":                false,
		"departure_station_id": []any{float64(10), "Nord"},
		"terminus_station_id":  false,
	})
	require.NoError(t, err)
	assert.Equal(t, "L2", l.Code)
	assert.Equal(t, "", l.Color)
	require.NotNil(t, l.Departure)
	assert.Equal(t, int64(10), l.Departure.ID)
	assert.Nil(t, l.Terminus)
}

func TestDecodeStation(t *testing.T) {
	s, err := DecodeStation(map[string]any{
		"id":        float64(4),
		"name_en":   false,
		"name_fr":   "Gare",
		"latitude":  36.3,
		"longitude": 6.6,
	})
	require.NoError(t, err)
	assert.Equal(t, "Gare", s.Names.Best())
	_, ok := s.Position()
	assert.True(t, ok)
}

func TestDecodeEntity(t *testing.T) {
	fields := EntityFields{ID: "id", Name: "name", Lat: "latitude", Lng: "longitude", Metadata: []string{"driver"}}
	e, err := DecodeEntity("bus", map[string]any{
		"id":        float64(17),
		"name":      "Bus 17",
		"latitude":  36.365,
		"longitude": 6.6147,
		"driver":    false,
	}, fields)
	require.NoError(t, err)
	assert.Equal(t, "17", e.ID)
	assert.Equal(t, "Bus 17", e.DisplayName)
	assert.Equal(t, "<b>Bus 17</b><br>driver: Unknown", e.Content())
	assert.Equal(t, []string{"id", "name", "latitude", "longitude", "driver"}, fields.Columns())

	_, err = DecodeEntity("bus", map[string]any{"name": "no id"}, fields)
	var shapeErr *DataShapeError
	assert.True(t, errors.As(err, &shapeErr))
}

func TestTrackedEntity_ContentEscapes(t *testing.T) {
	e := TrackedEntity{ID: "1", DisplayName: "<script>"}
	assert.Equal(t, "<b>&lt;script&gt;</b>", e.Content())

	assert.Equal(t, "<b>#9</b>", TrackedEntity{ID: "9"}.Content())
}
