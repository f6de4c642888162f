package mapview_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/samirrijal/trackzone/internal/core/domain"
	"github.com/samirrijal/trackzone/internal/core/mapview"
	"github.com/samirrijal/trackzone/internal/pkg/geospatial"
)

// --- Mock MapBackend ---

type centerCall struct {
	point domain.GeoPoint
	zoom  int
}

type polygonCall struct {
	ring  []domain.GeoPoint
	style domain.Style
}

type mockBackend struct {
	clearFn  func() error
	markerFn func(pin domain.Pushpin) error

	cleared   int
	markers   []domain.Pushpin
	polylines [][]domain.GeoPoint
	polygons  []polygonCall
	centers   []centerCall
	unloaded  bool
}

func (m *mockBackend) Name() string                        { return "mock" }
func (m *mockBackend) ZoomProfile() geospatial.ZoomProfile { return geospatial.VirtualEarthProfile }
func (m *mockBackend) Viewport() (int, int)                { return 680, 470 }

func (m *mockBackend) Clear(ctx context.Context) error {
	m.cleared++
	if m.clearFn != nil {
		return m.clearFn()
	}
	return nil
}

func (m *mockBackend) SetCenter(ctx context.Context, p domain.GeoPoint, zoom int) error {
	m.centers = append(m.centers, centerCall{p, zoom})
	return nil
}

func (m *mockBackend) AddMarker(ctx context.Context, pin domain.Pushpin) error {
	if m.markerFn != nil {
		if err := m.markerFn(pin); err != nil {
			return err
		}
	}
	m.markers = append(m.markers, pin)
	return nil
}

func (m *mockBackend) AddPolyline(ctx context.Context, path []domain.GeoPoint, style domain.Style) error {
	m.polylines = append(m.polylines, path)
	return nil
}

func (m *mockBackend) AddPolygon(ctx context.Context, ring []domain.GeoPoint, style domain.Style) error {
	m.polygons = append(m.polygons, polygonCall{ring, style})
	return nil
}

func (m *mockBackend) Unload(ctx context.Context) error {
	m.unloaded = true
	return nil
}

var defaultCenter = domain.GeoPoint{Lat: 39.5, Lon: -98.5}

func newView(b *mockBackend) *mapview.View {
	return mapview.New(b, mapview.Options{DefaultCenter: defaultCenter, DefaultZoom: 4})
}

// --- Tests ---

func TestView_DrawPushpins_BestEffort(t *testing.T) {
	b := &mockBackend{
		markerFn: func(pin domain.Pushpin) error {
			if pin.DeviceID == "bad" {
				return errors.New("icon missing")
			}
			return nil
		},
	}
	v := newView(b)

	pins := []domain.Pushpin{
		{DeviceID: "a", Location: domain.GeoPoint{Lat: 43.26, Lon: -2.93}},
		{DeviceID: "skip"},
		{DeviceID: "bad", Location: domain.GeoPoint{Lat: 43.27, Lon: -2.92}},
		{DeviceID: "c", Location: domain.GeoPoint{Lat: 43.30, Lon: -2.90}},
	}
	report := v.DrawPushpins(context.Background(), pins, mapview.RecenterFit)

	if b.cleared != 1 {
		t.Errorf("expected one clear, got %d", b.cleared)
	}
	if len(b.markers) != 2 {
		t.Fatalf("expected 2 markers drawn, got %d", len(b.markers))
	}
	if report.Total != 3 || len(report.Failures) != 1 {
		t.Fatalf("expected 3 attempts / 1 failure, got %d / %d", report.Total, len(report.Failures))
	}
	if f := report.Failures[0]; f.Index != 2 || f.Key != "bad" {
		t.Errorf("unexpected failure %+v", f)
	}
	if len(b.centers) != 1 {
		t.Fatalf("expected the view to be fitted once, got %d", len(b.centers))
	}
	c := b.centers[0]
	if math.Abs(c.point.Lat-43.28) > 1e-9 {
		t.Errorf("center lat = %v, want 43.28", c.point.Lat)
	}
	p := geospatial.VirtualEarthProfile
	if c.zoom < p.MinZoom || c.zoom > p.MaxZoom {
		t.Errorf("zoom %d out of profile range", c.zoom)
	}
}

func TestView_DrawPushpins_RecenterModes(t *testing.T) {
	pins := []domain.Pushpin{
		{DeviceID: "a", Location: domain.GeoPoint{Lat: 1, Lon: 1}},
		{DeviceID: "b", Location: domain.GeoPoint{Lat: 2, Lon: 2}},
	}

	b := &mockBackend{}
	newView(b).DrawPushpins(context.Background(), pins, mapview.RecenterNone)
	if len(b.centers) != 0 {
		t.Errorf("recenter none moved the view")
	}

	b = &mockBackend{}
	newView(b).DrawPushpins(context.Background(), pins, mapview.RecenterLast)
	if len(b.centers) != 1 || b.centers[0].point != pins[1].Location || b.centers[0].zoom != -1 {
		t.Errorf("expected center on last point keeping zoom, got %+v", b.centers)
	}

	b = &mockBackend{}
	newView(b).DrawPushpins(context.Background(), []domain.Pushpin{{DeviceID: "x"}}, mapview.RecenterFit)
	if len(b.centers) != 1 || b.centers[0].point != defaultCenter || b.centers[0].zoom != 4 {
		t.Errorf("expected default center, got %+v", b.centers)
	}
}

func TestView_DrawPushpins_ClearFailureContinues(t *testing.T) {
	b := &mockBackend{clearFn: func() error { return errors.New("detached") }}
	report := newView(b).DrawPushpins(context.Background(), []domain.Pushpin{
		{DeviceID: "a", Location: domain.GeoPoint{Lat: 1, Lon: 1}},
	}, mapview.RecenterNone)

	if len(b.markers) != 1 {
		t.Errorf("marker not drawn after clear failure")
	}
	if report.OK() || report.Succeeded() != 1 {
		t.Errorf("expected a step failure and 1 success, got %+v", report)
	}
}

func TestView_DrawGeozone(t *testing.T) {
	b := &mockBackend{}
	zone := &domain.Geozone{
		ID: "z1",
		Points: []domain.GeoPoint{
			{Lat: 43.26, Lon: -2.93},
			{},
			{Lat: 43.30, Lon: -2.90},
		},
		RadiusMeters: 1e9,
	}

	report := newView(b).DrawGeozone(context.Background(), zone, 2, domain.Style{})
	if !report.OK() || report.Total != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(b.polygons) != 2 {
		t.Fatalf("expected 2 circles, got %d", len(b.polygons))
	}
	if b.polygons[0].style != mapview.SecondaryStyle || b.polygons[1].style != mapview.PrimaryStyle {
		t.Errorf("primary style not applied to point 2")
	}

	ring := b.polygons[0].ring
	if len(ring) != geospatial.CircleLen(geospatial.DefaultCircleStep) {
		t.Errorf("unexpected ring length %d", len(ring))
	}
	// The radius was clamped to the policy maximum.
	d := geospatial.Distance(zone.Points[0], ring[10])
	if math.Abs(d-domain.DefaultRadiusPolicy.Max) > 1 {
		t.Errorf("circle radius = %v, want %v", d, domain.DefaultRadiusPolicy.Max)
	}
	if len(b.centers) != 1 || b.centers[0].zoom < 1 {
		t.Errorf("expected a fitted view, got %+v", b.centers)
	}
}

func TestView_DrawGeozone_NaNRadius(t *testing.T) {
	b := &mockBackend{}
	zone := &domain.Geozone{Points: []domain.GeoPoint{{Lat: 10, Lon: 10}}, RadiusMeters: math.NaN()}

	newView(b).DrawGeozone(context.Background(), zone, 0, domain.Style{})
	d := geospatial.Distance(zone.Points[0], b.polygons[0].ring[0])
	if math.Abs(d-mapview.FallbackZoneRadius) > 1e-3 {
		t.Errorf("radius = %v, want fallback %v", d, mapview.FallbackZoneRadius)
	}
}

func TestView_DrawGeozone_NothingDrawn(t *testing.T) {
	b := &mockBackend{}
	zone := &domain.Geozone{Points: make([]domain.GeoPoint, domain.MaxZonePoints), RadiusMeters: 100}

	report := newView(b).DrawGeozone(context.Background(), zone, 0, domain.Style{})
	if report.Total != 0 || len(b.polygons) != 0 {
		t.Errorf("expected nothing drawn, got %+v", report)
	}
	if len(b.centers) != 1 || b.centers[0].point != defaultCenter || b.centers[0].zoom != 4 {
		t.Errorf("expected default view, got %+v", b.centers)
	}
}

func TestView_DrawShape(t *testing.T) {
	ctx := context.Background()

	b := &mockBackend{}
	v := newView(b)
	report := v.DrawShape(ctx, domain.Shape{
		Kind:   domain.ShapeRectangle,
		Points: []domain.GeoPoint{{Lat: 1, Lon: 1}, {Lat: 2, Lon: 3}},
	}, true)
	if !report.OK() || len(b.polygons) != 1 || len(b.polygons[0].ring) != 5 {
		t.Fatalf("rectangle not drawn: %+v", report)
	}
	if b.polygons[0].style.Color != domain.DefaultColor {
		t.Errorf("expected default color, got %q", b.polygons[0].style.Color)
	}
	if len(b.centers) != 1 {
		t.Errorf("expected zoom to shape")
	}

	b = &mockBackend{}
	report = newView(b).DrawShape(ctx, domain.Shape{
		Kind:   domain.ShapePolygon,
		Points: []domain.GeoPoint{{Lat: 1, Lon: 1}, {Lat: 2, Lon: 1}},
	}, false)
	if report.OK() || len(b.polygons) != 0 {
		t.Errorf("two-point polygon must fail without drawing")
	}

	b = &mockBackend{}
	newView(b).DrawShape(ctx, domain.Shape{
		Kind:         domain.ShapeCircle,
		Points:       []domain.GeoPoint{{Lat: 1, Lon: 1}, {}, {Lat: 1.1, Lon: 1}},
		RadiusMeters: 200,
	}, false)
	if len(b.polygons) != 2 || len(b.centers) != 0 {
		t.Errorf("expected 2 circles without recentering, got %d / %d", len(b.polygons), len(b.centers))
	}

	b = &mockBackend{}
	newView(b).DrawShape(ctx, domain.Shape{Kind: domain.ShapeCenter, Points: []domain.GeoPoint{{Lat: 5, Lon: 5}}}, true)
	if len(b.polygons) != 0 || len(b.centers) != 1 || b.centers[0].point != (domain.GeoPoint{Lat: 5, Lon: 5}) {
		t.Errorf("center shape should only move the view, got %+v", b.centers)
	}
}

func TestView_DrawRoute(t *testing.T) {
	b := &mockBackend{}
	v := newView(b)

	v.DrawRoute(context.Background(), []domain.GeoPoint{{Lat: 1, Lon: 1}}, domain.Style{})
	if len(b.polylines) != 0 {
		t.Errorf("single point route must not be drawn")
	}

	report := v.DrawRoute(context.Background(), []domain.GeoPoint{{Lat: 1, Lon: 1}, {}, {Lat: 2, Lon: 2}}, domain.Style{})
	if !report.OK() || len(b.polylines) != 1 || len(b.polylines[0]) != 2 {
		t.Errorf("expected one 2-point polyline, got %v", b.polylines)
	}
}

func TestView_Unload(t *testing.T) {
	b := &mockBackend{}
	if err := newView(b).Unload(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !b.unloaded {
		t.Error("backend not unloaded")
	}
}
