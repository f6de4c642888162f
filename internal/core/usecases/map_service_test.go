package usecases_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samirrijal/trackzone/internal/core/domain"
	"github.com/samirrijal/trackzone/internal/core/mapview"
	"github.com/samirrijal/trackzone/internal/core/usecases"
	"github.com/samirrijal/trackzone/internal/pkg/geospatial"
)

// --- Recording MapBackend ---

type recordingBackend struct {
	markers   []domain.Pushpin
	polylines [][]domain.GeoPoint
	polygons  [][]domain.GeoPoint
	centers   []domain.GeoPoint
	markerErr error
}

func (b *recordingBackend) Name() string { return "recording" }

func (b *recordingBackend) ZoomProfile() geospatial.ZoomProfile { return geospatial.TileMapProfile }

func (b *recordingBackend) Viewport() (int, int) { return 640, 480 }

func (b *recordingBackend) Clear(ctx context.Context) error { return nil }

func (b *recordingBackend) SetCenter(ctx context.Context, c domain.GeoPoint, zoom int) error {
	b.centers = append(b.centers, c)
	return nil
}

func (b *recordingBackend) AddMarker(ctx context.Context, pin domain.Pushpin) error {
	if b.markerErr != nil {
		return b.markerErr
	}
	b.markers = append(b.markers, pin)
	return nil
}

func (b *recordingBackend) AddPolyline(ctx context.Context, path []domain.GeoPoint, style domain.Style) error {
	b.polylines = append(b.polylines, path)
	return nil
}

func (b *recordingBackend) AddPolygon(ctx context.Context, ring []domain.GeoPoint, style domain.Style) error {
	b.polygons = append(b.polygons, ring)
	return nil
}

func (b *recordingBackend) Unload(ctx context.Context) error { return nil }

type zoneReader func(ctx context.Context, id string) (*domain.Geozone, error)

func (f zoneReader) Get(ctx context.Context, id string) (*domain.Geozone, error) { return f(ctx, id) }

// --- Tests ---

func TestMapService_RenderGeozone(t *testing.T) {
	zones := zoneReader(func(ctx context.Context, id string) (*domain.Geozone, error) {
		return &domain.Geozone{ID: id, Points: []domain.GeoPoint{depot, {}, harbour}, RadiusMeters: 250}, nil
	})
	svc := usecases.NewMapService(zones, &mockTrackRepo{}, mapview.Options{})
	backend := &recordingBackend{}

	report, err := svc.RenderGeozone(context.Background(), "z1", backend)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.OK() || report.Total != 2 {
		t.Errorf("expected 2 clean items, got %+v", report)
	}
	if len(backend.polygons) != 2 {
		t.Errorf("expected 2 polygons, got %d", len(backend.polygons))
	}
	if len(backend.centers) != 1 {
		t.Errorf("expected the view to be fitted once, got %d", len(backend.centers))
	}
}

func TestMapService_RenderGeozone_NotFound(t *testing.T) {
	zones := zoneReader(func(ctx context.Context, id string) (*domain.Geozone, error) {
		return nil, domain.ErrNotFound
	})
	svc := usecases.NewMapService(zones, &mockTrackRepo{}, mapview.Options{})

	if _, err := svc.RenderGeozone(context.Background(), "nope", &recordingBackend{}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMapService_RenderTrack(t *testing.T) {
	svc := usecases.NewMapService(nil, trackOf(depot, domain.GeoPoint{}, harbour), mapview.Options{})
	backend := &recordingBackend{}

	report, err := svc.RenderTrack(context.Background(), "truck-1", time.Time{}, time.Now(), backend)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Operation != "render_track" {
		t.Errorf("unexpected operation %q", report.Operation)
	}
	if len(backend.markers) != 2 {
		t.Errorf("expected 2 markers, got %d", len(backend.markers))
	}
	if len(backend.polylines) != 1 || len(backend.polylines[0]) != 2 {
		t.Errorf("expected one 2-point route, got %v", backend.polylines)
	}
}

func TestMapService_RenderTrack_MarkerFailuresAreReported(t *testing.T) {
	svc := usecases.NewMapService(nil, trackOf(depot, harbour), mapview.Options{})
	backend := &recordingBackend{markerErr: errors.New("quota")}

	report, err := svc.RenderTrack(context.Background(), "truck-1", time.Time{}, time.Now(), backend)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Failures) != 2 {
		t.Errorf("expected 2 marker failures, got %+v", report.Failures)
	}
	if len(backend.polylines) != 1 {
		t.Error("route must still be drawn after marker failures")
	}
}
