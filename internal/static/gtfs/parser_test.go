package gtfs

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fouezkebiche/memoire-projet/internal/model"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func writeFeed(t *testing.T, files map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gtfs.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(w, content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

var sampleFeed = map[string]string{
	"routes.txt": "\ufeffroute_id,route_short_name,route_long_name,route_color\n" +
		"R1,L1,Line One,ff7800\n" +
		"R2,,Line Two,\n",
	"stops.txt": "stop_id,stop_name,stop_lat,stop_lon,location_type\n" +
		"A,Gare Nord,36.40,6.60,0\n" +
		"B,Centre,36.36,6.61,0\n" +
		"C,Gare Sud,36.30,6.62,0\n" +
		"E,Entrance,36.30,6.62,2\n",
	"trips.txt": "route_id,service_id,trip_id,direction_id\n" +
		"R1,WK,t1,0\n" +
		"R1,WK,t2,0\n" +
		"R1,WK,t3,1\n" +
		"R2,WK,t4,0\n",
	"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
		"t1,08:00:00,08:00:00,A,1\n" +
		"t1,08:10:00,08:10:00,C,3\n" +
		"t1,08:05:00,08:05:00,B,2\n" +
		"t2,09:00:00,09:00:00,A,1\n" +
		"t2,09:10:00,09:10:00,C,2\n" +
		"t3,10:00:00,10:00:00,C,1\n" +
		"t3,10:05:00,10:05:00,B,2\n" +
		"t3,10:10:00,10:10:00,A,3\n" +
		"t4,11:00:00,11:00:00,B,1\n" +
		"t4,11:05:00,11:05:00,unknown,2\n",
}

func TestParse(t *testing.T) {
	data, err := Parse(writeFeed(t, sampleFeed), testLogger())
	require.NoError(t, err)

	assert.Len(t, data.Routes, 2)
	assert.Equal(t, "R1", data.Routes[0].RouteID)
	assert.Len(t, data.Stops, 4)
	assert.InDelta(t, 36.40, data.Stops[0].StopLat, 1e-9)
	assert.Len(t, data.Trips, 4)
	assert.Len(t, data.StopTimes, 10)
}

func TestParse_MissingFile(t *testing.T) {
	files := map[string]string{"routes.txt": sampleFeed["routes.txt"]}
	_, err := Parse(writeFeed(t, files), testLogger())
	assert.Error(t, err)
}

func TestBuildTopology(t *testing.T) {
	data, err := Parse(writeFeed(t, sampleFeed), testLogger())
	require.NoError(t, err)

	topo := BuildTopology(data)

	// Entrances are not stations
	require.Len(t, topo.Stations, 3)
	assert.Equal(t, 3, ValidStations(topo))
	assert.Equal(t, "Gare Nord", topo.Stations[0].Names.En)

	require.Len(t, topo.Lines, 2)
	l1 := topo.Lines[0]
	assert.Equal(t, "L1", l1.Code)
	assert.Equal(t, "#FF7800", l1.Color)
	require.NotNil(t, l1.Departure)
	require.NotNil(t, l1.Terminus)
	assert.Equal(t, model.Reference{ID: 1, Label: "Gare Nord"}, *l1.Departure)
	assert.Equal(t, model.Reference{ID: 3, Label: "Gare Sud"}, *l1.Terminus)

	l2 := topo.Lines[1]
	assert.Equal(t, "Line Two", l2.Code)
	assert.Equal(t, "", l2.Color)

	var going, returning []model.LineStation
	for _, ls := range topo.LineStations {
		if ls.Line.ID != l1.ID {
			continue
		}
		if ls.Direction == model.DirectionGoing {
			going = append(going, ls)
		} else {
			returning = append(returning, ls)
		}
	}

	// t1 has more stops than t2 and is the GOING pattern
	require.Len(t, going, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{going[0].Station.ID, going[1].Station.ID, going[2].Station.ID})
	assert.Equal(t, []int{1, 2, 3}, []int{going[0].Order, going[1].Order, going[2].Order})

	// RETURNING travels C -> B -> A; descending order gives travel order
	require.Len(t, returning, 3)
	assert.Equal(t, int64(3), returning[0].Station.ID)
	assert.Equal(t, 3, returning[0].Order)
	assert.Equal(t, int64(1), returning[2].Station.ID)
	assert.Equal(t, 1, returning[2].Order)
}
