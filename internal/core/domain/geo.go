package domain

import "math"

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// IsUnset reports whether p is the (0,0) sentinel used for empty zone slots
// and invalid fixes.
func (p GeoPoint) IsUnset() bool {
	return p.Lat == 0 && p.Lon == 0
}

// IsValid reports whether p lies inside the WGS 84 coordinate ranges.
func (p GeoPoint) IsValid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Bounds represents a geographic bounding box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// DefaultColor is used for shapes and routes drawn without an explicit color.
const DefaultColor = "#0000FF"

// Style describes how an overlay is stroked and filled.
type Style struct {
	Color       string  `json:"color"`
	StrokeWidth float64 `json:"stroke_width"`
	StrokeAlpha float64 `json:"stroke_alpha"`
	FillAlpha   float64 `json:"fill_alpha"`
}

// WithDefaults fills unset fields with the console defaults.
func (s Style) WithDefaults() Style {
	if s.Color == "" {
		s.Color = DefaultColor
	}
	if s.StrokeWidth <= 0 {
		s.StrokeWidth = 1
	}
	if s.StrokeAlpha <= 0 {
		s.StrokeAlpha = 0.9
	}
	if s.FillAlpha <= 0 {
		s.FillAlpha = 0.1
	}
	return s
}

// ShapeKind selects how a Shape's points are interpreted.
type ShapeKind string

const (
	ShapeCircle    ShapeKind = "circle"
	ShapeRectangle ShapeKind = "rectangle"
	ShapePolygon   ShapeKind = "polygon"
	ShapeCenter    ShapeKind = "center"
)

// Shape is a free-form overlay. Circles use RadiusMeters around every point,
// rectangles use the first two points as opposite corners.
type Shape struct {
	Kind         ShapeKind  `json:"kind"`
	Points       []GeoPoint `json:"points"`
	RadiusMeters float64    `json:"radius_meters,omitempty"`
	Style        Style      `json:"style"`
}
