// Package mapview holds the overlay logic shared by every map backend:
// which points are drawn, how circles are built and how the view is fitted.
// Backends only place what they are handed.
package mapview

import (
	"context"
	"fmt"
	"math"

	"github.com/samirrijal/trackzone/internal/core/domain"
	"github.com/samirrijal/trackzone/internal/core/ports"
	"github.com/samirrijal/trackzone/internal/pkg/geospatial"
)

// FallbackZoneRadius replaces a NaN geozone radius before clamping.
const FallbackZoneRadius = 5000.0

// Recenter selects how DrawPushpins positions the view.
type Recenter int

const (
	RecenterNone Recenter = iota
	RecenterLast
	RecenterFit
)

var (
	// PrimaryStyle outlines the zone point being edited.
	PrimaryStyle = domain.Style{Color: "#640000", StrokeWidth: 1, StrokeAlpha: 1, FillAlpha: 0.1}
	// SecondaryStyle outlines the other points of the same zone.
	SecondaryStyle = domain.Style{Color: "#00B400", StrokeWidth: 1, StrokeAlpha: 1, FillAlpha: 0.1}
	// RouteStyle is used for track lines drawn without a style.
	RouteStyle = domain.Style{Color: "#FF2222", StrokeWidth: 2, StrokeAlpha: 1}
)

// Options are the view's geometry settings.
type Options struct {
	Sphere        geospatial.Sphere
	Policy        domain.RadiusPolicy
	CircleStep    float64
	DefaultCenter domain.GeoPoint
	DefaultZoom   int
}

// View draws overlays onto one backend. It is not safe for concurrent use;
// callers own a View per rendering.
type View struct {
	backend ports.MapBackend
	opts    Options
}

// New creates a view over backend.
func New(backend ports.MapBackend, opts Options) *View {
	if opts.Sphere.RadiusMeters <= 0 {
		opts.Sphere = geospatial.Earth
	}
	if opts.Policy == (domain.RadiusPolicy{}) {
		opts.Policy = domain.DefaultRadiusPolicy
	}
	if opts.CircleStep <= 0 {
		opts.CircleStep = geospatial.DefaultCircleStep
	}
	return &View{backend: backend, opts: opts}
}

// Backend returns the backend the view draws on.
func (v *View) Backend() ports.MapBackend {
	return v.backend
}

// DrawPushpins clears the map and adds a marker per pin. Unset pins are
// skipped without counting as failures.
func (v *View) DrawPushpins(ctx context.Context, pins []domain.Pushpin, mode Recenter) *domain.BatchReport {
	report := domain.NewBatchReport("draw_pushpins")
	report.Fail("clear", v.backend.Clear(ctx))

	var bounds geospatial.BoundsAccumulator
	var last domain.GeoPoint
	for i, pin := range pins {
		if pin.Location.IsUnset() {
			continue
		}
		report.Record(i, pin.DeviceID, v.backend.AddMarker(ctx, pin))
		bounds.Extend(pin.Location)
		last = pin.Location
	}

	switch {
	case mode == RecenterNone:
	case bounds.IsEmpty():
		report.Fail("center", v.backend.SetCenter(ctx, v.opts.DefaultCenter, v.opts.DefaultZoom))
	case mode == RecenterLast:
		report.Fail("center", v.backend.SetCenter(ctx, last, -1))
	default:
		report.Fail("center", v.fit(ctx, &bounds))
	}
	return report
}

// DrawRoute adds a polyline through pts. Fewer than two points draw nothing.
func (v *View) DrawRoute(ctx context.Context, pts []domain.GeoPoint, style domain.Style) *domain.BatchReport {
	report := domain.NewBatchReport("draw_route")
	path := make([]domain.GeoPoint, 0, len(pts))
	for _, p := range pts {
		if !p.IsUnset() {
			path = append(path, p)
		}
	}
	if len(path) < 2 {
		return report
	}
	if style.Color == "" {
		style.Color = RouteStyle.Color
		style.StrokeWidth = RouteStyle.StrokeWidth
	}
	report.Record(0, "route", v.backend.AddPolyline(ctx, path, style.WithDefaults()))
	return report
}

// DrawShape draws a free-form overlay and optionally zooms to it.
func (v *View) DrawShape(ctx context.Context, shape domain.Shape, zoomTo bool) *domain.BatchReport {
	report := domain.NewBatchReport("draw_shape")
	style := shape.Style.WithDefaults()

	var bounds geospatial.BoundsAccumulator
	switch shape.Kind {
	case domain.ShapeCircle:
		for i, c := range shape.Points {
			if c.IsUnset() {
				continue
			}
			ring := v.opts.Sphere.Circle(c, shape.RadiusMeters, v.opts.CircleStep)
			report.Record(i, string(shape.Kind), v.backend.AddPolygon(ctx, ring, style))
			v.extendRadius(&bounds, c, shape.RadiusMeters)
		}
	case domain.ShapeRectangle:
		if len(shape.Points) < 2 {
			report.Fail("rectangle", fmt.Errorf("need 2 corners, got %d", len(shape.Points)))
			break
		}
		ring := geospatial.Rectangle(shape.Points[0], shape.Points[1])
		report.Record(0, string(shape.Kind), v.backend.AddPolygon(ctx, ring, style))
		bounds.Extend(shape.Points[0])
		bounds.Extend(shape.Points[1])
	case domain.ShapePolygon:
		if len(shape.Points) < 3 {
			report.Fail("polygon", fmt.Errorf("need 3 vertices, got %d", len(shape.Points)))
			break
		}
		ring := geospatial.ClosePolygon(shape.Points)
		report.Record(0, string(shape.Kind), v.backend.AddPolygon(ctx, ring, style))
		bounds.ExtendAll(shape.Points)
	case domain.ShapeCenter:
		bounds.ExtendAll(shape.Points)
	default:
		report.Fail("shape", fmt.Errorf("unsupported shape kind %q", shape.Kind))
	}

	if zoomTo && !bounds.IsEmpty() {
		report.Fail("center", v.fit(ctx, &bounds))
	}
	return report
}

// DrawGeozone clears the map, draws a circle for every set point of zone and
// fits the view to them. The point at primary is drawn in PrimaryStyle. A
// non-empty style overrides SecondaryStyle for the other points.
func (v *View) DrawGeozone(ctx context.Context, zone *domain.Geozone, primary int, style domain.Style) *domain.BatchReport {
	report := domain.NewBatchReport("draw_geozone")
	report.Fail("clear", v.backend.Clear(ctx))

	secondary := SecondaryStyle
	if style.Color != "" {
		secondary = style.WithDefaults()
	}

	radius := zone.RadiusMeters
	if math.IsNaN(radius) {
		radius = FallbackZoneRadius
	}
	radius = v.opts.Policy.Clamp(radius)

	var bounds geospatial.BoundsAccumulator
	for i, c := range zone.Points {
		if c.IsUnset() {
			continue
		}
		st := secondary
		if i == primary {
			st = PrimaryStyle
		}
		ring := v.opts.Sphere.Circle(c, radius, v.opts.CircleStep)
		report.Record(i, zone.ID, v.backend.AddPolygon(ctx, ring, st))
		v.extendRadius(&bounds, c, radius)
	}

	if bounds.IsEmpty() {
		report.Fail("center", v.backend.SetCenter(ctx, v.opts.DefaultCenter, v.opts.DefaultZoom))
		return report
	}
	report.Fail("center", v.fit(ctx, &bounds))
	return report
}

// Center moves the view. A negative zoom keeps the backend's current zoom.
func (v *View) Center(ctx context.Context, p domain.GeoPoint, zoom int) error {
	if err := v.backend.SetCenter(ctx, p, zoom); err != nil {
		return fmt.Errorf("set center: %w", err)
	}
	return nil
}

// Unload releases the backend.
func (v *View) Unload(ctx context.Context) error {
	if err := v.backend.Unload(ctx); err != nil {
		return fmt.Errorf("unload %s: %w", v.backend.Name(), err)
	}
	return nil
}

// BestZoom returns the zoom that fits bounds into the backend viewport.
func (v *View) BestZoom(bounds *geospatial.BoundsAccumulator) int {
	w, h := v.backend.Viewport()
	return v.backend.ZoomProfile().Zoom(bounds.MetersPerPixel(w, h))
}

func (v *View) fit(ctx context.Context, bounds *geospatial.BoundsAccumulator) error {
	center, ok := bounds.Center()
	if !ok {
		return nil
	}
	return v.backend.SetCenter(ctx, center, v.BestZoom(bounds))
}

func (v *View) extendRadius(bounds *geospatial.BoundsAccumulator, c domain.GeoPoint, radius float64) {
	bounds.Extend(c)
	bounds.ExtendAll(v.opts.Sphere.RadiusPoints(c, radius))
}
