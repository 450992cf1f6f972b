package gtfsrt

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"github.com/fouezkebiche/memoire-projet/internal/remote"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func vehicleEntity(id, label, route string, lat, lng float32, status gtfs.VehiclePosition_VehicleStopStatus) *gtfs.FeedEntity {
	return &gtfs.FeedEntity{
		Id: proto.String(id),
		Vehicle: &gtfs.VehiclePosition{
			Vehicle:       &gtfs.VehicleDescriptor{Id: proto.String("veh-" + id), Label: proto.String(label)},
			Trip:          &gtfs.TripDescriptor{RouteId: proto.String(route)},
			Position:      &gtfs.Position{Latitude: proto.Float32(lat), Longitude: proto.Float32(lng)},
			CurrentStatus: status.Enum(),
			Timestamp:     proto.Uint64(1735689600),
		},
	}
}

func feedServer(t *testing.T, entities ...*gtfs.FeedEntity) *httptest.Server {
	t.Helper()
	feed := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(1735689600),
		},
		Entity: entities,
	}
	body, err := proto.Marshal(feed)
	require.NoError(t, err)

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-protobuf")
		w.Write(body)
	}))
}

func TestFetchEntities(t *testing.T) {
	srv := feedServer(t,
		vehicleEntity("1", "R4-77626", "R4", 41.38, 2.17, gtfs.VehiclePosition_IN_TRANSIT_TO),
		vehicleEntity("2", "R2-12345", "R2", 41.40, 2.19, gtfs.VehiclePosition_STOPPED_AT),
		&gtfs.FeedEntity{Id: proto.String("alert-only")},
	)
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, testLogger())
	records, err := c.FetchEntities(context.Background(), EntityType, Fields, nil)
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "veh-1", first["id"])
	assert.Equal(t, "R4-77626", first["name"])
	assert.Equal(t, "R4", first["route_id"])
	assert.Equal(t, "IN_TRANSIT_TO", first["status"])
	assert.Equal(t, "2025-01-01T00:00:00Z", first["timestamp"])
	assert.InDelta(t, 41.38, first["lat"].(float64), 1e-5)

	assert.Equal(t, "STOPPED_AT", records[1]["status"])
}

func TestFetchEntities_FilterAndProjection(t *testing.T) {
	srv := feedServer(t,
		vehicleEntity("1", "R4-1", "R4", 41.38, 2.17, gtfs.VehiclePosition_IN_TRANSIT_TO),
		vehicleEntity("2", "R2-1", "R2", 41.40, 2.19, gtfs.VehiclePosition_STOPPED_AT),
		vehicleEntity("3", "R1-1", "R1", 41.41, 2.20, gtfs.VehiclePosition_STOPPED_AT),
	)
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, testLogger())
	records, err := c.FetchEntities(context.Background(), EntityType, []string{"lat", "lng"},
		remote.Where("route_id", remote.OpIn, []string{"R1", "R2"}))
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "veh-2", records[0]["id"])
	assert.NotContains(t, records[0], "route_id")
	assert.Contains(t, records[0], "lat")
}

func TestFetchEntities_Errors(t *testing.T) {
	c := NewClient("http://unused", time.Second, testLogger())
	_, err := c.FetchEntities(context.Background(), "dynamics.ride", nil, nil)
	assert.True(t, remote.IsValidation(err))

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer bad.Close()

	_, err = NewClient(bad.URL, time.Second, testLogger()).FetchEntities(context.Background(), EntityType, nil, nil)
	assert.True(t, remote.IsTransport(err))

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "not a protobuf")
	}))
	defer garbage.Close()

	_, err = NewClient(garbage.URL, time.Second, testLogger()).FetchEntities(context.Background(), EntityType, nil, nil)
	assert.True(t, remote.IsTransport(err))
}
