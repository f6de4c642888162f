package geospatial

import (
	"math"

	"github.com/samirrijal/trackzone/internal/core/domain"
)

// DefaultEarthRadiusMeters is the mean earth radius used by the spherical model.
const DefaultEarthRadiusMeters = 6371000.0

// Sphere is a spherical earth model. Projection and distance must share one
// instance so that a projected point measures back to its radius.
type Sphere struct {
	RadiusMeters float64
}

// Earth is the default sphere. Config may replace it at startup.
var Earth = Sphere{RadiusMeters: DefaultEarthRadiusMeters}

// NewSphere returns a sphere of the given radius, falling back to the mean
// earth radius for non-positive input.
func NewSphere(radiusMeters float64) Sphere {
	if radiusMeters <= 0 || math.IsNaN(radiusMeters) {
		radiusMeters = DefaultEarthRadiusMeters
	}
	return Sphere{RadiusMeters: radiusMeters}
}

// Distance returns the haversine great-circle distance in meters.
func (s Sphere) Distance(a, b domain.GeoPoint) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	if h > 1 {
		h = 1
	}

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return s.RadiusMeters * c
}

// Distance is Earth.Distance.
func Distance(a, b domain.GeoPoint) float64 {
	return Earth.Distance(a, b)
}

// Haversine calculates the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	return Earth.Distance(domain.GeoPoint{Lat: lat1, Lon: lon1}, domain.GeoPoint{Lat: lat2, Lon: lon2})
}

// BoundingBox returns a bounding box around a point with the given radius in meters.
func BoundingBox(lat, lon, radiusMeters float64) (minLat, minLon, maxLat, maxLon float64) {
	latDelta := radiusMeters / metersPerDegree
	lonDelta := radiusMeters / (metersPerDegree * math.Cos(toRad(lat)))

	return lat - latDelta, lon - lonDelta, lat + latDelta, lon + lonDelta
}

const metersPerDegree = 111320.0

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}
