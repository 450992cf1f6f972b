package db

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fouezkebiche/memoire-projet/internal/model"
	"github.com/fouezkebiche/memoire-projet/internal/remote"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestBuildSelect(t *testing.T) {
	query, args, err := buildSelect("infrastructure.line.station", []string{"order", "direction", "lat"},
		remote.Where("line_id", remote.OpIn, []int64{1, 2}).And("direction", remote.OpNe, "GOING"))
	require.NoError(t, err)

	assert.Equal(t,
		`SELECT "id", "order", "direction", "lat" FROM infrastructure_line_station WHERE "line_id" IN (?, ?) AND "direction" <> ? ORDER BY "id"`,
		query)
	assert.Equal(t, []any{int64(1), int64(2), "GOING"}, args)
}

func TestBuildSelect_EmptyLists(t *testing.T) {
	query, args, err := buildSelect("infrastructure.station", nil, remote.Where("id", remote.OpIn, []int64{}))
	require.NoError(t, err)
	assert.Contains(t, query, "WHERE 1 = 0")
	assert.Empty(t, args)

	query, _, err = buildSelect("infrastructure.station", nil, remote.Where("id", remote.OpNotIn, []int64{}))
	require.NoError(t, err)
	assert.NotContains(t, query, "WHERE")
}

func TestBuildSelect_RejectsInjection(t *testing.T) {
	tests := []struct {
		name   string
		entity string
		fields []string
		filter remote.Filter
	}{
		{"entity", "rides; DROP TABLE x", nil, nil},
		{"field", "dynamics.ride", []string{`lat" FROM x --`}, nil},
		{"filter field", "dynamics.ride", nil, remote.Where("lat OR 1=1", remote.OpEq, 1)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := buildSelect(tc.entity, tc.fields, tc.filter)
			assert.True(t, remote.IsValidation(err), "expected ValidationError, got %v", err)
		})
	}
}

func TestFetchEntities_Mock(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	store := New(sqlx.NewDb(mockDB, "sqlmock"), testLogger())

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(`SELECT "id", "name", "latitude", "longitude" FROM bus_tracking_bus WHERE "id" = \?`).
			WithArgs(7).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "latitude", "longitude"}).
				AddRow(int64(7), []byte("Bus 7"), 36.365, 6.6147))

		records, err := store.FetchEntities(context.Background(), "bus_tracking.bus",
			[]string{"name", "latitude", "longitude"}, remote.Where("id", remote.OpEq, 7))
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "Bus 7", records[0]["name"])
		assert.Equal(t, int64(7), records[0]["id"])

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Database Error", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .* FROM bus_tracking_bus`).
			WillReturnError(errors.New("connection reset by peer"))

		_, err := store.FetchEntities(context.Background(), "bus_tracking.bus", nil, nil)
		assert.True(t, remote.IsTransport(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Unknown Column", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .* FROM bus_tracking_bus`).
			WillReturnError(errors.New("SQL logic error: no such column: speed (1)"))

		_, err := store.FetchEntities(context.Background(), "bus_tracking.bus", []string{"speed"}, nil)
		assert.True(t, remote.IsValidation(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestImportAndFetch_SQLite(t *testing.T) {
	store, err := Connect(filepath.Join(t.TempDir(), "livemap.db"), testLogger())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.EnsureSchema(ctx))
	// Idempotent
	require.NoError(t, store.EnsureSchema(ctx))

	topo := model.Topology{
		Stations: []model.Station{
			{ID: 1, Names: model.NameVariants{En: "North"}, Lat: 36.40, Lng: 6.60},
			{ID: 2, Names: model.NameVariants{En: "South"}, Lat: 36.30, Lng: 6.62},
		},
		Lines: []model.Line{
			{ID: 10, Code: "L1", Color: "#123456", Departure: &model.Reference{ID: 1}, Terminus: &model.Reference{ID: 2}},
		},
		LineStations: []model.LineStation{
			{ID: 100, Line: model.Reference{ID: 10}, Station: model.Reference{ID: 1}, Order: 1, Direction: model.DirectionGoing},
			{ID: 101, Line: model.Reference{ID: 10}, Station: model.Reference{ID: 2}, Order: 2, Direction: model.DirectionGoing, Lat: 36.31, Lng: 6.63},
		},
	}

	stats, err := store.ImportTopology(ctx, topo)
	require.NoError(t, err)
	assert.Equal(t, ImportStats{Stations: 2, Lines: 1, LineStations: 2}, stats)

	// Re-import updates in place
	topo.Lines[0].Color = "#654321"
	_, err = store.ImportTopology(ctx, topo)
	require.NoError(t, err)

	lines, err := store.FetchEntities(ctx, "infrastructure.line", model.LineFields, nil)
	require.NoError(t, err)
	require.Len(t, lines, 1)

	line, err := model.DecodeLine(lines[0])
	require.NoError(t, err)
	assert.Equal(t, "#654321", line.Color)
	require.NotNil(t, line.Departure)
	assert.Equal(t, int64(1), line.Departure.ID)

	records, err := store.FetchEntities(ctx, "infrastructure.line.station", model.LineStationFields,
		remote.Where("line_id", remote.OpIn, []int64{10}))
	require.NoError(t, err)
	require.Len(t, records, 2)

	first, err := model.DecodeLineStation(records[0])
	require.NoError(t, err)
	assert.Equal(t, model.DirectionGoing, first.Direction)
	_, hasOverride := first.Override()
	assert.False(t, hasOverride)

	second, err := model.DecodeLineStation(records[1])
	require.NoError(t, err)
	_, hasOverride = second.Override()
	assert.True(t, hasOverride)

	_, err = store.FetchEntities(ctx, "infrastructure.line", []string{"missing_column"}, nil)
	assert.True(t, remote.IsValidation(err))
}
