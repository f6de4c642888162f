package geospatial

import (
	"math"

	"github.com/samirrijal/trackzone/internal/core/domain"
)

// Project returns the point radiusMeters away from center along the initial
// bearing (degrees, 0 = north, clockwise). It is defined everywhere, poles
// included, and never fails.
func (s Sphere) Project(center domain.GeoPoint, radiusMeters, bearingDeg float64) domain.GeoPoint {
	d := radiusMeters / s.RadiusMeters
	lat1 := toRad(center.Lat)
	lon1 := toRad(center.Lon)
	theta := toRad(bearingDeg)

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(theta))
	lon2 := lon1 + math.Atan2(
		math.Sin(theta)*math.Sin(d)*math.Cos(lat1),
		math.Cos(d)-math.Sin(lat1)*math.Sin(lat2),
	)

	return domain.GeoPoint{Lat: toDeg(lat2), Lon: toDeg(lon2)}
}

// Project is Earth.Project.
func Project(center domain.GeoPoint, radiusMeters, bearingDeg float64) domain.GeoPoint {
	return Earth.Project(center, radiusMeters, bearingDeg)
}

// Bearing returns the initial bearing from one point toward another,
// normalised to [0, 360).
func Bearing(from, to domain.GeoPoint) float64 {
	lat1 := toRad(from.Lat)
	lat2 := toRad(to.Lat)
	dLon := toRad(to.Lon - from.Lon)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	b := math.Mod(toDeg(math.Atan2(y, x))+360, 360)
	if b >= 360 {
		b = 0
	}
	return b
}

// WrapLon folds a longitude into [-180, 180].
func WrapLon(lon float64) float64 {
	if lon >= -180 && lon <= 180 {
		return lon
	}
	w := math.Mod(lon+180, 360)
	if w < 0 {
		w += 360
	}
	return w - 180
}
