package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samirrijal/trackzone/internal/core/domain"
	"github.com/samirrijal/trackzone/internal/core/ports"
	"github.com/samirrijal/trackzone/internal/pkg/metrics"
)

// ErrInvalidPosition wraps rejected device fixes.
var ErrInvalidPosition = errors.New("invalid position")

// FenceObserver turns a position into geofence crossings. FenceMonitor implements it.
type FenceObserver interface {
	Observe(ctx context.Context, pos *domain.DevicePosition) []domain.FenceEvent
}

// PositionService processes incoming device positions.
type PositionService struct {
	tracks    ports.TrackRepository
	publisher ports.EventPublisher
	fences    FenceObserver
	now       func() time.Time
}

// NewPositionService creates a new PositionService. publisher and fences may
// be nil; without a FenceObserver crossings are left to a downstream consumer
// of the published positions.
func NewPositionService(
	tracks ports.TrackRepository,
	publisher ports.EventPublisher,
	fences FenceObserver,
) *PositionService {
	return &PositionService{tracks: tracks, publisher: publisher, fences: fences, now: time.Now}
}

// Ingest stores a position, broadcasts it and returns any geofence crossings.
func (s *PositionService) Ingest(ctx context.Context, pos *domain.DevicePosition) ([]domain.FenceEvent, error) {
	if pos.DeviceID == "" {
		return nil, fmt.Errorf("%w: device_id is required", ErrInvalidPosition)
	}
	if pos.Location.IsUnset() || !pos.Location.IsValid() {
		return nil, fmt.Errorf("%w: location %v", ErrInvalidPosition, pos.Location)
	}
	if pos.Time.IsZero() {
		pos.Time = s.now()
	}

	if err := s.tracks.Insert(ctx, pos); err != nil {
		return nil, fmt.Errorf("insert device position: %w", err)
	}
	metrics.PositionsIngested.Inc()

	// Serialization is left to the publisher implementation.
	if s.publisher != nil {
		if err := s.publisher.PublishPosition(ctx, pos); err != nil {
			slog.WarnContext(ctx, "publish position failed", "device_id", pos.DeviceID, "error", err)
		}
	}

	if s.fences == nil {
		return nil, nil
	}
	return s.fences.Observe(ctx, pos), nil
}

// Latest returns a device's most recent position.
func (s *PositionService) Latest(ctx context.Context, deviceID string) (*domain.DevicePosition, error) {
	return s.tracks.Latest(ctx, deviceID)
}
