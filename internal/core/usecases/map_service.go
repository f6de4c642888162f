package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/samirrijal/trackzone/internal/core/domain"
	"github.com/samirrijal/trackzone/internal/core/mapview"
	"github.com/samirrijal/trackzone/internal/core/ports"
	"github.com/samirrijal/trackzone/internal/pkg/metrics"
	"github.com/samirrijal/trackzone/internal/pkg/telemetry"
)

// GeozoneReader loads a single zone. GeozoneService implements it.
type GeozoneReader interface {
	Get(ctx context.Context, id string) (*domain.Geozone, error)
}

// MapService renders stored zones and tracks onto a map backend.
type MapService struct {
	zones     GeozoneReader
	tracks    ports.TrackRepository
	opts      mapview.Options
	maxPoints int
}

// NewMapService creates a new MapService.
func NewMapService(zones GeozoneReader, tracks ports.TrackRepository, opts mapview.Options) *MapService {
	return &MapService{zones: zones, tracks: tracks, opts: opts, maxPoints: 5000}
}

// RenderGeozone draws every point of a zone onto backend with point 0 as
// primary. The error is only set when the zone cannot be loaded; drawing
// failures are in the report.
func (s *MapService) RenderGeozone(ctx context.Context, id string, backend ports.MapBackend) (*domain.BatchReport, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanRenderGeozone,
		attribute.String("geozone.id", id),
		attribute.String("map.backend", backend.Name()),
	)
	defer span.End()

	zone, err := s.zones.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get geozone %s: %w", id, err)
	}
	report := mapview.New(backend, s.opts).DrawGeozone(ctx, zone, 0, domain.Style{})
	s.observe(ctx, report)
	return report, nil
}

// RenderTrack draws a device's positions in [from, to] as markers joined by
// a route line, fitted to the view.
func (s *MapService) RenderTrack(ctx context.Context, deviceID string, from, to time.Time, backend ports.MapBackend) (*domain.BatchReport, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanRenderTrack,
		attribute.String("device.id", deviceID),
		attribute.String("map.backend", backend.Name()),
	)
	defer span.End()

	positions, err := s.tracks.Range(ctx, deviceID, from, to, s.maxPoints)
	if err != nil {
		return nil, fmt.Errorf("load track: %w", err)
	}
	pins := make([]domain.Pushpin, len(positions))
	path := make([]domain.GeoPoint, len(positions))
	for i, p := range positions {
		pins[i] = p.Pushpin()
		path[i] = p.Location
	}

	view := mapview.New(backend, s.opts)
	report := domain.NewBatchReport("render_track")
	report.Merge(view.DrawPushpins(ctx, pins, mapview.RecenterFit))
	report.Merge(view.DrawRoute(ctx, path, mapview.RouteStyle))
	s.observe(ctx, report)
	return report, nil
}

func (s *MapService) observe(ctx context.Context, report *domain.BatchReport) {
	metrics.ObserveBatch(report.Operation, len(report.Failures))
	if !report.OK() {
		slog.WarnContext(ctx, "map render had failures",
			"operation", report.Operation,
			"error", report.Err(),
		)
	}
}
