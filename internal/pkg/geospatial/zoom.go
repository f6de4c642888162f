package geospatial

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// ZoomProfile maps meters-per-pixel to a provider's discrete zoom levels:
//
//	zoom = clamp(round(MaxZoom - log2(mpp/C)) - Bias, MinZoom, MaxZoom)
//
// C is the meters-per-pixel of the provider at MaxZoom.
type ZoomProfile struct {
	Name    string  `json:"name" mapstructure:"name"`
	C       float64 `json:"c" mapstructure:"c"`
	MinZoom int     `json:"min_zoom" mapstructure:"min_zoom"`
	MaxZoom int     `json:"max_zoom" mapstructure:"max_zoom"`
	Bias    int     `json:"bias" mapstructure:"bias"`
}

// Zoom returns the level that fits mpp. Unknown scales (zero, negative, NaN)
// map to MaxZoom.
func (p ZoomProfile) Zoom(mpp float64) int {
	if mpp <= 0 || math.IsNaN(mpp) || p.C <= 0 {
		return p.MaxZoom
	}
	z := int(math.Round(float64(p.MaxZoom)-math.Log2(mpp/p.C))) - p.Bias
	if z < p.MinZoom {
		z = p.MinZoom
	}
	if z > p.MaxZoom {
		z = p.MaxZoom
	}
	return z
}

// Validate checks the profile's constants.
func (p ZoomProfile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("zoom profile name is required")
	}
	if p.C <= 0 {
		return fmt.Errorf("zoom profile %s: c must be positive", p.Name)
	}
	if p.MinZoom > p.MaxZoom {
		return fmt.Errorf("zoom profile %s: min_zoom %d exceeds max_zoom %d", p.Name, p.MinZoom, p.MaxZoom)
	}
	return nil
}

// Built-in providers. Both derive from the 256px web-mercator ground
// resolution at the equator (156543.03392804097 m/px at zoom 0).
var (
	TileMapProfile = ZoomProfile{
		Name:    "tilemap",
		C:       156543.03392804097 / (1 << 21),
		MinZoom: 1,
		MaxZoom: 21,
	}
	VirtualEarthProfile = ZoomProfile{
		Name:    "virtualearth",
		C:       0.2985821533203125,
		MinZoom: 1,
		MaxZoom: 19,
		Bias:    1,
	}
)

var (
	profilesMu sync.RWMutex
	profiles   = map[string]ZoomProfile{
		TileMapProfile.Name:      TileMapProfile,
		VirtualEarthProfile.Name: VirtualEarthProfile,
	}
)

// RegisterProfile adds or replaces a provider profile.
func RegisterProfile(p ZoomProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	profilesMu.Lock()
	defer profilesMu.Unlock()
	profiles[p.Name] = p
	return nil
}

// LookupProfile returns the named profile.
func LookupProfile(name string) (ZoomProfile, bool) {
	profilesMu.RLock()
	defer profilesMu.RUnlock()
	p, ok := profiles[name]
	return p, ok
}

// ProfileNames lists registered profiles in sorted order.
func ProfileNames() []string {
	profilesMu.RLock()
	defer profilesMu.RUnlock()
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
