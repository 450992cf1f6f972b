// Package gtfs reads a static GTFS zip and derives the line topology the
// route assembler draws: stations, lines and ordered line stations.
package gtfs

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Parse reads a GTFS zip file and returns parsed data
func Parse(zipPath string, log *logrus.Entry) (*Data, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip: %w", err)
	}
	defer r.Close()

	files := make(map[string]*zip.File)
	for _, f := range r.File {
		files[f.Name] = f
	}

	for _, required := range []string{"routes.txt", "stops.txt", "trips.txt", "stop_times.txt"} {
		if _, ok := files[required]; !ok {
			return nil, fmt.Errorf("feed is missing %s", required)
		}
	}

	data := &Data{}

	if err := eachRow(files["routes.txt"], func(get func(string) string) {
		data.Routes = append(data.Routes, Route{
			RouteID:        get("route_id"),
			RouteShortName: get("route_short_name"),
			RouteLongName:  get("route_long_name"),
			RouteColor:     get("route_color"),
		})
	}); err != nil {
		return nil, fmt.Errorf("failed to parse routes.txt: %w", err)
	}

	if err := eachRow(files["stops.txt"], func(get func(string) string) {
		lat, _ := strconv.ParseFloat(get("stop_lat"), 64)
		lon, _ := strconv.ParseFloat(get("stop_lon"), 64)
		locType, _ := strconv.Atoi(get("location_type"))
		data.Stops = append(data.Stops, Stop{
			StopID:       get("stop_id"),
			StopName:     get("stop_name"),
			StopLat:      lat,
			StopLon:      lon,
			LocationType: locType,
		})
	}); err != nil {
		return nil, fmt.Errorf("failed to parse stops.txt: %w", err)
	}

	if err := eachRow(files["trips.txt"], func(get func(string) string) {
		directionID, _ := strconv.Atoi(get("direction_id"))
		data.Trips = append(data.Trips, Trip{
			RouteID:     get("route_id"),
			TripID:      get("trip_id"),
			DirectionID: directionID,
		})
	}); err != nil {
		return nil, fmt.Errorf("failed to parse trips.txt: %w", err)
	}

	if err := eachRow(files["stop_times.txt"], func(get func(string) string) {
		seq, _ := strconv.Atoi(get("stop_sequence"))
		data.StopTimes = append(data.StopTimes, StopTime{
			TripID:       get("trip_id"),
			StopID:       get("stop_id"),
			StopSequence: seq,
		})
	}); err != nil {
		return nil, fmt.Errorf("failed to parse stop_times.txt: %w", err)
	}

	log.WithFields(logrus.Fields{
		"routes":     len(data.Routes),
		"stops":      len(data.Stops),
		"trips":      len(data.Trips),
		"stop_times": len(data.StopTimes),
	}).Info("GTFS parsed")

	return data, nil
}

// eachRow calls fn for every well-formed data row of a CSV member.
// Malformed rows are skipped.
func eachRow(f *zip.File, fn func(get func(string) string)) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	reader := csv.NewReader(rc)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return err
	}

	idx := makeIndex(header)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			continue
		}
		fn(func(field string) string { return getField(record, idx, field) })
	}
}

func makeIndex(header []string) map[string]int {
	idx := make(map[string]int)
	for i, h := range header {
		// Some exporters prepend a UTF-8 BOM to the first column name
		idx[strings.TrimPrefix(strings.TrimSpace(h), "\ufeff")] = i
	}
	return idx
}

func getField(record []string, idx map[string]int, field string) string {
	if i, ok := idx[field]; ok && i < len(record) {
		return strings.TrimSpace(record[i])
	}
	return ""
}
