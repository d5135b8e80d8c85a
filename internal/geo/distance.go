package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// EarthRadiusMeters is the mean Earth radius used for all distance calculations
const EarthRadiusMeters = 6371000.0

// metersPerDegreeLat is the length of one degree of latitude on the mean sphere
const metersPerDegreeLat = EarthRadiusMeters * math.Pi / 180.0

// Coordinate is a WGS84 latitude/longitude pair
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate checks that the coordinate lies inside the valid lat/lng ranges
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) {
		return fmt.Errorf("coordinate (%v, %v) is not a number", c.Lat, c.Lng)
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("latitude %.6f out of range [-90, 90]", c.Lat)
	}
	if c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("longitude %.6f out of range [-180, 180]", c.Lng)
	}
	return nil
}

// IsZero reports whether the coordinate was never set
func (c Coordinate) IsZero() bool {
	return c.Lat == 0 && c.Lng == 0
}

// Point converts the coordinate to an orb point (x = lng, y = lat)
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Lng, c.Lat}
}

// FromPoint converts an orb point back to a coordinate
func FromPoint(p orb.Point) Coordinate {
	return Coordinate{Lat: p.Lat(), Lng: p.Lon()}
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", c.Lat, c.Lng)
}

// DistanceMeters returns the great-circle (haversine) distance between two coordinates
func DistanceMeters(a, b Coordinate) float64 {
	if a == b {
		return 0
	}

	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := lat2 - lat1
	dLng := toRadians(b.Lng - a.Lng)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng
	if h > 1 {
		h = 1
	}

	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// WithinRadius reports whether b lies within radiusMeters of a
func WithinRadius(a, b Coordinate, radiusMeters float64) bool {
	return DistanceMeters(a, b) <= radiusMeters
}

// PointInPolygon tests whether p lies inside the polygon using ray casting.
// Polygons with fewer than three points contain nothing. Points exactly on the
// boundary may be classified either way.
func PointInPolygon(p Coordinate, polygon []Coordinate) bool {
	if len(polygon) < 3 {
		return false
	}

	ring := make(orb.Ring, 0, len(polygon)+1)
	for _, c := range polygon {
		ring = append(ring, c.Point())
	}
	if !ring.Closed() {
		ring = append(ring, ring[0])
	}

	return planar.RingContains(ring, p.Point())
}

// BoundingBox returns the smallest lat/lng box containing all points
func BoundingBox(points []Coordinate) orb.Bound {
	if len(points) == 0 {
		return orb.Bound{}
	}

	mp := make(orb.MultiPoint, 0, len(points))
	for _, c := range points {
		mp = append(mp, c.Point())
	}
	return mp.Bound()
}

// Centroid returns the arithmetic mean of the points. An empty slice yields the zero coordinate.
func Centroid(points []Coordinate) Coordinate {
	if len(points) == 0 {
		return Coordinate{}
	}

	var sumLat, sumLng float64
	for _, c := range points {
		sumLat += c.Lat
		sumLng += c.Lng
	}
	n := float64(len(points))
	return Coordinate{Lat: sumLat / n, Lng: sumLng / n}
}

// BoundsAround returns lat/lng boxes that together contain every point within radiusMeters of
// center. A box crossing the antimeridian is split in two; a radius reaching a pole spans all
// longitudes. Repositories use the boxes as a cheap index pre-filter before exact distance checks.
func BoundsAround(center Coordinate, radiusMeters float64) []orb.Bound {
	dLat := radiusMeters / metersPerDegreeLat
	minLat := math.Max(-90, center.Lat-dLat)
	maxLat := math.Min(90, center.Lat+dLat)

	cosLat := math.Cos(toRadians(center.Lat))
	dLng := 180.0
	if cosLat > 1e-9 && maxLat < 90 && minLat > -90 {
		dLng = math.Min(180.0, dLat/cosLat)
	}

	box := func(lo, hi float64) orb.Bound {
		return orb.Bound{Min: orb.Point{lo, minLat}, Max: orb.Point{hi, maxLat}}
	}

	lo, hi := center.Lng-dLng, center.Lng+dLng
	switch {
	case dLng >= 180:
		return []orb.Bound{box(-180, 180)}
	case lo < -180:
		return []orb.Bound{box(-180, hi), box(lo+360, 180)}
	case hi > 180:
		return []orb.Bound{box(lo, 180), box(-180, hi-360)}
	default:
		return []orb.Bound{box(lo, hi)}
	}
}

// InBounds reports whether the coordinate falls inside any of the boxes
func InBounds(bounds []orb.Bound, c Coordinate) bool {
	for _, b := range bounds {
		if b.Contains(c.Point()) {
			return true
		}
	}
	return false
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
