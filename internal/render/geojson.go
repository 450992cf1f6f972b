package render

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/fouezkebiche/memoire-projet/internal/geo"
	"github.com/fouezkebiche/memoire-projet/internal/route"
)

// FeatureCollection exports an assembled network as GeoJSON: one
// LineString per segment, with its length in meters, and one Point per
// endpoint and waypoint marker.
func FeatureCollection(res route.Result) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	for _, s := range res.Segments {
		ls := make(orb.LineString, 0, len(s.Coordinates))
		for _, c := range s.Coordinates {
			ls = append(ls, toOrb(c))
		}
		f := geojson.NewFeature(ls)
		f.Properties["kind"] = "segment"
		f.Properties["line_id"] = s.LineID
		f.Properties["line_code"] = s.LineCode
		f.Properties["direction"] = string(s.Direction)
		f.Properties["color"] = s.Color
		f.Properties["line_color"] = s.LineColor
		f.Properties["fallback"] = s.Fallback
		f.Properties["length_m"] = geo.PathLength(s.Coordinates)
		fc.Append(f)
	}

	for _, markers := range [][]route.Marker{res.Endpoints, res.Waypoints} {
		for _, m := range markers {
			f := geojson.NewFeature(toOrb(m.Position))
			f.Properties["kind"] = string(m.Kind)
			f.Properties["line_id"] = m.LineID
			f.Properties["station_id"] = m.StationID
			f.Properties["color"] = m.Color
			if m.Direction != "" {
				f.Properties["direction"] = string(m.Direction)
				f.Properties["order"] = m.Order
			}
			fc.Append(f)
		}
	}

	if res.Bounds != nil {
		b := orb.MultiPoint{toOrb(res.Bounds.SouthWest), toOrb(res.Bounds.NorthEast)}.Bound()
		fc.BBox = geojson.NewBBox(b)
	}
	return fc
}

// GeoJSON uses [lng, lat] order.
func toOrb(p geo.Point) orb.Point {
	return orb.Point{p.Lng, p.Lat}
}
