// Package gtfsrt serves moving-entity records from a GTFS-Realtime
// VehiclePositions feed.
package gtfsrt

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/proto"

	"github.com/fouezkebiche/memoire-projet/internal/remote"
)

// EntityType is the only entity type the feed serves.
const EntityType = "vehicle"

// Fields lists the record fields produced for each vehicle.
var Fields = []string{"id", "name", "lat", "lng", "route_id", "status", "timestamp"}

// StatusMap maps GTFS-RT VehicleStopStatus enum to string
var StatusMap = map[int32]string{
	0: "INCOMING_AT",
	1: "STOPPED_AT",
	2: "IN_TRANSIT_TO",
}

// Client implements remote.Client over a VehiclePositions feed.
type Client struct {
	feedURL string
	client  *http.Client
	log     *logrus.Entry
}

// NewClient creates a feed client.
func NewClient(feedURL string, timeout time.Duration, log *logrus.Entry) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		feedURL: feedURL,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

// FetchEntities implements remote.Client. The filter is evaluated in memory.
func (c *Client) FetchEntities(ctx context.Context, entityType string, fields []string, filter remote.Filter) ([]remote.Record, error) {
	if entityType != EntityType {
		return nil, &remote.ValidationError{Reason: fmt.Sprintf("feed only serves %q, not %q", EntityType, entityType)}
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	feed, err := c.fetchFeed(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]remote.Record, 0, len(feed.Entity))
	for _, entity := range feed.Entity {
		rec := vehicleRecord(entity)
		if rec == nil || !filter.Match(rec) {
			continue
		}
		records = append(records, project(rec, fields))
	}

	c.log.WithFields(logrus.Fields{
		"entities": len(feed.Entity),
		"vehicles": len(records),
	}).Debug("vehicle positions fetched")

	return records, nil
}

// vehicleRecord flattens one feed entity. Entities without a vehicle are skipped.
func vehicleRecord(entity *gtfs.FeedEntity) remote.Record {
	vehicle := entity.GetVehicle()
	if vehicle == nil {
		return nil
	}

	id := entity.GetId()
	name := ""
	if desc := vehicle.GetVehicle(); desc != nil {
		if desc.GetId() != "" {
			id = desc.GetId()
		}
		name = desc.GetLabel()
	}
	if name == "" {
		name = id
	}

	rec := remote.Record{
		"id":       id,
		"name":     name,
		"route_id": vehicle.GetTrip().GetRouteId(),
		"status":   "",
	}

	// Missing positions are kept at zero so the caller can report them.
	if pos := vehicle.GetPosition(); pos != nil {
		rec["lat"] = float64(pos.GetLatitude())
		rec["lng"] = float64(pos.GetLongitude())
	} else {
		rec["lat"] = float64(0)
		rec["lng"] = float64(0)
	}

	if vehicle.CurrentStatus != nil {
		if status, ok := StatusMap[int32(vehicle.GetCurrentStatus())]; ok {
			rec["status"] = status
		}
	}

	if vehicle.Timestamp != nil {
		rec["timestamp"] = time.Unix(int64(vehicle.GetTimestamp()), 0).UTC().Format(time.RFC3339)
	} else {
		rec["timestamp"] = false
	}

	return rec
}

func project(rec remote.Record, fields []string) remote.Record {
	if len(fields) == 0 {
		return rec
	}
	out := remote.Record{"id": rec["id"]}
	for _, f := range fields {
		if v, ok := rec[f]; ok {
			out[f] = v
		}
	}
	return out
}

// fetchFeed fetches the GTFS-RT feed
func (c *Client) fetchFeed(ctx context.Context) (*gtfs.FeedMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &remote.TransportError{Op: "fetch feed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &remote.TransportError{Op: "fetch feed", StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &remote.TransportError{Op: "read feed", Err: err}
	}

	feed := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, feed); err != nil {
		return nil, &remote.TransportError{Op: "parse feed", Err: fmt.Errorf("failed to parse protobuf (%d bytes): %w", len(body), err)}
	}

	return feed, nil
}
