package geospatial

import (
	"math"

	"github.com/samirrijal/trackzone/internal/core/domain"
)

const (
	// MinSpanMeters floors each bounds span so a single point still yields a
	// finite meters-per-pixel value.
	MinSpanMeters = 1.0

	// DefaultViewportWidth and DefaultViewportHeight are used when the caller
	// does not know the map size.
	DefaultViewportWidth  = 680
	DefaultViewportHeight = 470
)

// BoundsAccumulator tracks the lat/lon extent of the points it has seen.
// The zero value is an empty accumulator.
type BoundsAccumulator struct {
	b domain.Bounds
	n int
}

// Extend widens the extent to include p.
func (a *BoundsAccumulator) Extend(p domain.GeoPoint) {
	if a.n == 0 {
		a.b = domain.Bounds{MinLat: p.Lat, MinLon: p.Lon, MaxLat: p.Lat, MaxLon: p.Lon}
		a.n = 1
		return
	}
	a.b.MinLat = math.Min(a.b.MinLat, p.Lat)
	a.b.MinLon = math.Min(a.b.MinLon, p.Lon)
	a.b.MaxLat = math.Max(a.b.MaxLat, p.Lat)
	a.b.MaxLon = math.Max(a.b.MaxLon, p.Lon)
	a.n++
}

// ExtendAll extends by every point in pts.
func (a *BoundsAccumulator) ExtendAll(pts []domain.GeoPoint) {
	for _, p := range pts {
		a.Extend(p)
	}
}

// IsEmpty reports whether no point has been added yet.
func (a *BoundsAccumulator) IsEmpty() bool {
	return a.n == 0
}

// Count returns the number of points added.
func (a *BoundsAccumulator) Count() int {
	return a.n
}

// Bounds returns the extent and false when the accumulator is empty.
func (a *BoundsAccumulator) Bounds() (domain.Bounds, bool) {
	return a.b, a.n > 0
}

// Center returns the midpoint of the extent.
func (a *BoundsAccumulator) Center() (domain.GeoPoint, bool) {
	if a.n == 0 {
		return domain.GeoPoint{}, false
	}
	return domain.GeoPoint{
		Lat: (a.b.MinLat + a.b.MaxLat) / 2,
		Lon: (a.b.MinLon + a.b.MaxLon) / 2,
	}, true
}

// MetersPerPixel returns the ground distance per pixel needed to fit the
// whole extent in a width x height viewport. Longitude spans are compressed
// by cos(latitude) at the extent's center. An empty accumulator returns 0.
func (a *BoundsAccumulator) MetersPerPixel(width, height int) float64 {
	if a.n == 0 {
		return 0
	}
	if width <= 0 || height <= 0 {
		width, height = DefaultViewportWidth, DefaultViewportHeight
	}
	center, _ := a.Center()

	latSpan := (a.b.MaxLat - a.b.MinLat) * metersPerDegree
	lonSpan := (a.b.MaxLon - a.b.MinLon) * metersPerDegree * math.Abs(math.Cos(toRad(center.Lat)))
	latSpan = math.Max(latSpan, MinSpanMeters)
	lonSpan = math.Max(lonSpan, MinSpanMeters)

	return math.Max(lonSpan/float64(width), latSpan/float64(height))
}
