// Package kmlmap renders overlays into a KML document.
package kmlmap

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/twpayne/go-kml"

	"github.com/samirrijal/trackzone/internal/core/domain"
	"github.com/samirrijal/trackzone/internal/pkg/geospatial"
)

// ContentType is the media type of the written document.
const ContentType = "application/vnd.google-earth.kml+xml"

// ErrUnloaded is returned by every call after Unload.
var ErrUnloaded = errors.New("kml backend unloaded")

// Options configures a Backend.
type Options struct {
	Name    string
	Profile geospatial.ZoomProfile
	Width   int
	Height  int
}

// Backend implements ports.MapBackend by collecting KML placemarks.
type Backend struct {
	opts Options

	mu       sync.Mutex
	features []kml.Element
	center   *domain.GeoPoint
	rangeM   float64
	unloaded bool
}

// New creates an empty KML backend.
func New(opts Options) *Backend {
	if opts.Profile.Name == "" {
		opts.Profile = geospatial.TileMapProfile
	}
	if opts.Width <= 0 {
		opts.Width = geospatial.DefaultViewportWidth
	}
	if opts.Height <= 0 {
		opts.Height = geospatial.DefaultViewportHeight
	}
	if opts.Name == "" {
		opts.Name = "trackzone"
	}
	return &Backend{opts: opts}
}

func (b *Backend) Name() string { return "kml" }

func (b *Backend) ZoomProfile() geospatial.ZoomProfile { return b.opts.Profile }

func (b *Backend) Viewport() (int, int) { return b.opts.Width, b.opts.Height }

func (b *Backend) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unloaded {
		return ErrUnloaded
	}
	b.features = nil
	return nil
}

// SetCenter sets the document's LookAt. Its range shows the ground height
// the zoom level shows in the provider profile; a negative zoom keeps the
// current range.
func (b *Backend) SetCenter(ctx context.Context, center domain.GeoPoint, zoom int) error {
	if !center.IsValid() {
		return fmt.Errorf("center %v out of range", center)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unloaded {
		return ErrUnloaded
	}
	b.center = &center
	if zoom >= 0 || b.rangeM == 0 {
		if zoom < 0 {
			zoom = b.opts.Profile.MaxZoom
		}
		p := b.opts.Profile
		mpp := p.C * math.Pow(2, float64(p.MaxZoom-zoom))
		b.rangeM = mpp * float64(b.opts.Height)
	}
	return nil
}

func (b *Backend) AddMarker(ctx context.Context, pin domain.Pushpin) error {
	if pin.Location.IsUnset() || !pin.Location.IsValid() {
		return fmt.Errorf("marker %s: invalid location %v", pin.DeviceID, pin.Location)
	}
	children := []kml.Element{
		kml.Name(pin.Label),
		kml.Point(kml.Coordinates(coordinate(pin.Location))),
	}
	if pin.Popup != "" {
		children = append(children, kml.Description(pin.Popup))
	}
	if !pin.Time.IsZero() {
		children = append(children, kml.TimeStamp(kml.When(pin.Time)))
	}
	return b.add(kml.Placemark(children...))
}

func (b *Backend) AddPolyline(ctx context.Context, path []domain.GeoPoint, style domain.Style) error {
	if len(path) < 2 {
		return fmt.Errorf("polyline needs at least 2 points, got %d", len(path))
	}
	style = style.WithDefaults()
	return b.add(kml.Placemark(
		kml.Style(
			kml.LineStyle(
				kml.Color(rgba(style.Color, style.StrokeAlpha)),
				kml.Width(style.StrokeWidth),
			),
		),
		kml.LineString(kml.Coordinates(coordinates(path)...)),
	))
}

func (b *Backend) AddPolygon(ctx context.Context, ring []domain.GeoPoint, style domain.Style) error {
	if len(ring) < 3 {
		return fmt.Errorf("polygon needs at least 3 points, got %d", len(ring))
	}
	style = style.WithDefaults()
	return b.add(kml.Placemark(
		kml.Style(
			kml.LineStyle(
				kml.Color(rgba(style.Color, style.StrokeAlpha)),
				kml.Width(style.StrokeWidth),
			),
			kml.PolyStyle(kml.Color(rgba(style.Color, style.FillAlpha))),
		),
		kml.Polygon(
			kml.OuterBoundaryIs(
				kml.LinearRing(kml.Coordinates(coordinates(geospatial.ClosePolygon(ring))...)),
			),
		),
	))
}

func (b *Backend) Unload(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unloaded = true
	b.features = nil
	b.center = nil
	return nil
}

// Len returns the number of placemarks drawn since the last Clear.
func (b *Backend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.features)
}

// Encode writes the document.
func (b *Backend) Encode(w io.Writer) error {
	b.mu.Lock()
	children := []kml.Element{kml.Name(b.opts.Name)}
	if b.center != nil {
		children = append(children, kml.LookAt(
			kml.Latitude(b.center.Lat),
			kml.Longitude(b.center.Lon),
			kml.Range(b.rangeM),
		))
	}
	children = append(children, b.features...)
	b.mu.Unlock()

	return kml.KML(kml.Document(children...)).WriteIndent(w, "", "  ")
}

func (b *Backend) add(e kml.Element) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unloaded {
		return ErrUnloaded
	}
	b.features = append(b.features, e)
	return nil
}

func coordinate(p domain.GeoPoint) kml.Coordinate {
	return kml.Coordinate{Lon: p.Lon, Lat: p.Lat}
}

func coordinates(pts []domain.GeoPoint) []kml.Coordinate {
	out := make([]kml.Coordinate, len(pts))
	for i, p := range pts {
		out[i] = coordinate(p)
	}
	return out
}

// rgba converts a #RRGGBB color and an opacity in [0,1]. Unparsable colors
// fall back to domain.DefaultColor.
func rgba(hex string, alpha float64) color.RGBA {
	v, err := strconv.ParseUint(strings.TrimPrefix(hex, "#"), 16, 32)
	if err != nil || len(strings.TrimPrefix(hex, "#")) != 6 {
		v, _ = strconv.ParseUint(strings.TrimPrefix(domain.DefaultColor, "#"), 16, 32)
	}
	alpha = math.Max(0, math.Min(1, alpha))
	return color.RGBA{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: uint8(math.Round(alpha * 255)),
	}
}
