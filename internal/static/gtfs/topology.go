package gtfs

import (
	"sort"
	"strings"

	"github.com/fouezkebiche/memoire-projet/internal/geo"
	"github.com/fouezkebiche/memoire-projet/internal/model"
)

// BuildTopology derives stations, lines and line stations from a feed.
//
// Each route becomes a line. For every direction_id the trip with the most
// stops is taken as the representative stop pattern. Direction 0 maps to
// GOING and direction 1 to RETURNING. Orders follow the GOING geography so
// a RETURNING pattern sorted by descending order is in travel order.
// Numeric ids are assigned in sorted GTFS id order so re-imports are stable.
func BuildTopology(data *Data) model.Topology {
	var topo model.Topology

	stopIDs := make(map[string]int64)
	stops := make([]Stop, 0, len(data.Stops))
	for _, s := range data.Stops {
		if s.LocationType == 0 || s.LocationType == 1 {
			stops = append(stops, s)
		}
	}
	sort.Slice(stops, func(i, j int) bool { return stops[i].StopID < stops[j].StopID })
	for i, s := range stops {
		id := int64(i + 1)
		stopIDs[s.StopID] = id
		topo.Stations = append(topo.Stations, model.Station{
			ID:    id,
			Names: model.NameVariants{En: s.StopName},
			Lat:   s.StopLat,
			Lng:   s.StopLon,
		})
	}

	tripStops := make(map[string][]StopTime)
	for _, st := range data.StopTimes {
		tripStops[st.TripID] = append(tripStops[st.TripID], st)
	}

	type patternKey struct {
		routeID   string
		direction int
	}
	patterns := make(map[patternKey]string)
	for _, trip := range data.Trips {
		key := patternKey{trip.RouteID, trip.DirectionID}
		best, ok := patterns[key]
		if !ok || len(tripStops[trip.TripID]) > len(tripStops[best]) ||
			(len(tripStops[trip.TripID]) == len(tripStops[best]) && trip.TripID < best) {
			patterns[key] = trip.TripID
		}
	}

	routes := append([]Route(nil), data.Routes...)
	sort.Slice(routes, func(i, j int) bool { return routes[i].RouteID < routes[j].RouteID })

	var lineStationID int64
	for i, route := range routes {
		line := model.Line{
			ID:    int64(i + 1),
			Code:  routeCode(route),
			Color: routeColor(route.RouteColor),
		}

		for _, dir := range []int{0, 1} {
			tripID, ok := patterns[patternKey{route.RouteID, dir}]
			if !ok {
				continue
			}
			seq := orderedStops(tripStops[tripID], stopIDs)
			if len(seq) == 0 {
				continue
			}

			direction := model.DirectionGoing
			if dir == 1 {
				direction = model.DirectionReturning
			} else {
				line.Departure = &model.Reference{ID: seq[0], Label: stationName(topo.Stations, seq[0])}
				line.Terminus = &model.Reference{ID: seq[len(seq)-1], Label: stationName(topo.Stations, seq[len(seq)-1])}
			}

			for pos, stationID := range seq {
				order := pos + 1
				if direction == model.DirectionReturning {
					order = len(seq) - pos
				}
				lineStationID++
				topo.LineStations = append(topo.LineStations, model.LineStation{
					ID:        lineStationID,
					Line:      model.Reference{ID: line.ID, Label: line.Code},
					Station:   model.Reference{ID: stationID, Label: stationName(topo.Stations, stationID)},
					Order:     order,
					Direction: direction,
				})
			}
		}

		topo.Lines = append(topo.Lines, line)
	}

	return topo
}

// orderedStops returns the station ids of a trip in stop_sequence order,
// skipping stops that are not known stations.
func orderedStops(stopTimes []StopTime, stopIDs map[string]int64) []int64 {
	sorted := append([]StopTime(nil), stopTimes...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StopSequence < sorted[j].StopSequence })

	ids := make([]int64, 0, len(sorted))
	for _, st := range sorted {
		if id, ok := stopIDs[st.StopID]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func stationName(stations []model.Station, id int64) string {
	// Station ids are assigned densely from 1
	if id < 1 || int(id) > len(stations) {
		return ""
	}
	return stations[id-1].Names.Best()
}

func routeCode(r Route) string {
	if r.RouteShortName != "" {
		return r.RouteShortName
	}
	if r.RouteLongName != "" {
		return r.RouteLongName
	}
	return r.RouteID
}

func routeColor(c string) string {
	c = strings.TrimPrefix(strings.TrimSpace(c), "#")
	if len(c) != 6 {
		return ""
	}
	return "#" + strings.ToUpper(c)
}

// ValidStations counts stations with usable coordinates.
func ValidStations(topo model.Topology) int {
	n := 0
	for _, s := range topo.Stations {
		if geo.Valid(s.Lat, s.Lng) {
			n++
		}
	}
	return n
}
