package geospatial

import (
	"math"

	"github.com/samirrijal/trackzone/internal/core/domain"
)

// DefaultCircleStep is the angular sampling step for circle rings, in degrees.
const DefaultCircleStep = 6.0

// CircleLen returns the number of points Circle produces for step.
func CircleLen(step float64) int {
	if step <= 0 || math.IsNaN(step) {
		step = DefaultCircleStep
	}
	return int(math.Floor(360/step)) + 2
}

// Circle approximates a circle as a closed ring. Bearings 0, step, 2*step ...
// up to and including 360 are projected, and the first point is repeated at
// the end so the ring is closed for any step.
func (s Sphere) Circle(center domain.GeoPoint, radiusMeters, step float64) []domain.GeoPoint {
	if step <= 0 || math.IsNaN(step) {
		step = DefaultCircleStep
	}
	n := int(math.Floor(360 / step))
	ring := make([]domain.GeoPoint, 0, n+2)
	for k := 0; k <= n; k++ {
		ring = append(ring, s.Project(center, radiusMeters, float64(k)*step))
	}
	return append(ring, ring[0])
}

// Circle is Earth.Circle.
func Circle(center domain.GeoPoint, radiusMeters, step float64) []domain.GeoPoint {
	return Earth.Circle(center, radiusMeters, step)
}

// RadiusPoints returns the points at bearings 0, 90, 180 and 270.
func (s Sphere) RadiusPoints(center domain.GeoPoint, radiusMeters float64) []domain.GeoPoint {
	return []domain.GeoPoint{
		s.Project(center, radiusMeters, 0),
		s.Project(center, radiusMeters, 90),
		s.Project(center, radiusMeters, 180),
		s.Project(center, radiusMeters, 270),
	}
}

// Rectangle returns the closed ring TL, TR, BR, BL, TL spanned by two opposite corners.
func Rectangle(a, b domain.GeoPoint) []domain.GeoPoint {
	top, bottom := math.Max(a.Lat, b.Lat), math.Min(a.Lat, b.Lat)
	left, right := math.Min(a.Lon, b.Lon), math.Max(a.Lon, b.Lon)

	tl := domain.GeoPoint{Lat: top, Lon: left}
	return []domain.GeoPoint{
		tl,
		{Lat: top, Lon: right},
		{Lat: bottom, Lon: right},
		{Lat: bottom, Lon: left},
		tl,
	}
}

// ClosePolygon returns pts with the first point appended when the ring is open.
func ClosePolygon(pts []domain.GeoPoint) []domain.GeoPoint {
	if len(pts) == 0 {
		return nil
	}
	out := append([]domain.GeoPoint(nil), pts...)
	if out[0] != out[len(out)-1] {
		out = append(out, out[0])
	}
	return out
}
