package domain

import (
	"math"
	"strconv"
	"strings"
)

// RadiusPolicy bounds every geozone radius write.
type RadiusPolicy struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Default float64 `json:"default"`
}

// DefaultRadiusPolicy mirrors the limits the tracking console ships with.
var DefaultRadiusPolicy = RadiusPolicy{Min: 5, Max: 500000, Default: 20000}

// Clamp maps r into [Min, Max]. Non-positive and NaN values mean "unset" and
// resolve to Default rather than Min.
func (p RadiusPolicy) Clamp(r float64) float64 {
	if math.IsNaN(r) || r <= 0 {
		r = p.Default
	}
	return p.Bound(r)
}

// Bound limits r to [Min, Max] without the unset-to-default rule. Drag
// gestures use it so a pointer on the center yields Min, not Default.
func (p RadiusPolicy) Bound(r float64) float64 {
	if math.IsNaN(r) {
		return p.Min
	}
	if r > p.Max {
		r = p.Max
	}
	if r < p.Min {
		r = p.Min
	}
	return r
}

// ParseFloatOrZero parses form input, returning 0 for anything unparsable.
func ParseFloatOrZero(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
