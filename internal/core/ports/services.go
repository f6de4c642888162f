package ports

import (
	"context"
	"errors"

	"github.com/samirrijal/trackzone/internal/core/domain"
	"github.com/samirrijal/trackzone/internal/pkg/geospatial"
)

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishGeozoneChange(ctx context.Context, change *domain.GeozoneChange) error
	PublishPosition(ctx context.Context, pos *domain.DevicePosition) error
	PublishFenceEvent(ctx context.Context, event *domain.FenceEvent) error
	PublishReplayFrame(ctx context.Context, frame *domain.ReplayFrame) error
	PublishReplayStatus(ctx context.Context, status *domain.ReplayStatus) error
}

// EventSubscriber subscribes to domain events from a message broker.
type EventSubscriber interface {
	SubscribePositions(ctx context.Context, handler func(ctx context.Context, pos *domain.DevicePosition) error) error
	SubscribeGeozoneChanges(ctx context.Context, handler func(ctx context.Context, change *domain.GeozoneChange) error) error
}

// ErrCacheMiss is returned by CacheService.Get for absent or expired keys.
var ErrCacheMiss = errors.New("cache miss")

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// Geocoder resolves a free-form address to a coordinate. ok is false when
// the lookup produced no usable result; err is reserved for transport failures.
type Geocoder interface {
	Geocode(ctx context.Context, addr, country string) (p domain.GeoPoint, ok bool, err error)
}

// MapBackend is the capability set every map renderer implements. All
// geometry is computed by the caller; a backend only places overlays.
type MapBackend interface {
	Name() string
	ZoomProfile() geospatial.ZoomProfile
	// Viewport returns the drawable size in pixels.
	Viewport() (width, height int)
	Clear(ctx context.Context) error
	SetCenter(ctx context.Context, center domain.GeoPoint, zoom int) error
	AddMarker(ctx context.Context, pin domain.Pushpin) error
	AddPolyline(ctx context.Context, path []domain.GeoPoint, style domain.Style) error
	AddPolygon(ctx context.Context, ring []domain.GeoPoint, style domain.Style) error
	Unload(ctx context.Context) error
}
