package http

import (
	"context"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/trackzone/internal/core/usecases"
	"github.com/samirrijal/trackzone/internal/pkg/geospatial"
)

// Pinger is a dependency the readiness check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// MapSettings selects the default provider profile and viewport of rendered maps.
type MapSettings struct {
	Provider string
	Width    int
	Height   int
}

// Profile returns the named zoom profile, falling back to the configured
// provider and then to the tile-map profile.
func (m MapSettings) Profile(name string) (geospatial.ZoomProfile, bool) {
	if name == "" {
		name = m.Provider
	}
	if name == "" {
		return geospatial.TileMapProfile, true
	}
	return geospatial.LookupProfile(name)
}

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Geozones  *usecases.GeozoneService
	Geocoder  *usecases.GeocodeService
	Positions *usecases.PositionService
	Replays   *usecases.ReplayService
	Maps      *usecases.MapService
	Map       MapSettings
	// Edit configures the sessions served on /ws/editor.
	Edit  usecases.EditOptions
	NATS  *nats.Conn
	DB    Pinger
	Cache Pinger
}
