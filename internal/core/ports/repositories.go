package ports

import (
	"context"
	"time"

	"github.com/samirrijal/trackzone/internal/core/domain"
)

// GeozoneRepository persists geozones and their points.
type GeozoneRepository interface {
	Upsert(ctx context.Context, zone *domain.Geozone) error
	GetByID(ctx context.Context, id string) (*domain.Geozone, error)
	// List returns one page of an account's zones and the account's total count.
	List(ctx context.Context, accountID string, offset, limit int) ([]domain.Geozone, int, error)
	ListAll(ctx context.Context) ([]domain.Geozone, error)
	Delete(ctx context.Context, id string) error
	// FindContaining returns zones with at least one point within radius of p.
	FindContaining(ctx context.Context, p domain.GeoPoint, limit int) ([]domain.Geozone, error)
}

// TrackRepository persists device positions.
type TrackRepository interface {
	Insert(ctx context.Context, pos *domain.DevicePosition) error
	InsertBatch(ctx context.Context, positions []domain.DevicePosition) error
	// Range returns a device's positions in [from, to], oldest first.
	Range(ctx context.Context, deviceID string, from, to time.Time, limit int) ([]domain.DevicePosition, error)
	Latest(ctx context.Context, deviceID string) (*domain.DevicePosition, error)
}
