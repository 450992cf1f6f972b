package gtfs

// Data represents the parsed parts of a static GTFS feed the topology needs
type Data struct {
	Routes    []Route
	Stops     []Stop
	Trips     []Trip
	StopTimes []StopTime
}

// Route represents a route from routes.txt
type Route struct {
	RouteID        string
	RouteShortName string
	RouteLongName  string
	RouteColor     string
}

// Stop represents a stop from stops.txt
type Stop struct {
	StopID       string
	StopName     string
	StopLat      float64
	StopLon      float64
	LocationType int
}

// Trip represents a trip from trips.txt
type Trip struct {
	RouteID     string
	TripID      string
	DirectionID int
}

// StopTime represents a stop time from stop_times.txt
type StopTime struct {
	TripID       string
	StopID       string
	StopSequence int
}
