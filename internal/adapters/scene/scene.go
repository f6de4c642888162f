// Package scene records overlay commands for a browser map client. Paths
// are sent as encoded polylines and zoom levels follow the client's provider
// profile.
package scene

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/twpayne/go-polyline"

	"github.com/samirrijal/trackzone/internal/core/domain"
	"github.com/samirrijal/trackzone/internal/pkg/geospatial"
)

// Op names a scene command.
type Op string

const (
	OpClear    Op = "clear"
	OpCenter   Op = "center"
	OpMarker   Op = "marker"
	OpPolyline Op = "polyline"
	OpPolygon  Op = "polygon"
)

// ErrUnloaded is returned by every call after Unload.
var ErrUnloaded = errors.New("scene unloaded")

// Command is one overlay operation.
type Command struct {
	Op     Op               `json:"op"`
	Center *domain.GeoPoint `json:"center,omitempty"`
	Zoom   *int             `json:"zoom,omitempty"`
	Pin    *domain.Pushpin  `json:"pin,omitempty"`
	Path   string           `json:"path,omitempty"`
	Style  *domain.Style    `json:"style,omitempty"`
}

// Scene is the serialized form of a Recorder.
type Scene struct {
	Provider string    `json:"provider"`
	MinZoom  int       `json:"min_zoom"`
	MaxZoom  int       `json:"max_zoom"`
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	Commands []Command `json:"commands"`
}

// Recorder implements ports.MapBackend by appending commands. A Clear
// drops the commands recorded before it.
type Recorder struct {
	profile       geospatial.ZoomProfile
	width, height int

	mu       sync.Mutex
	commands []Command
	unloaded bool
	// onCommand, when set, sees every command as it is recorded.
	onCommand func(Command)
}

// NewRecorder creates a recorder for the given provider profile and viewport.
func NewRecorder(profile geospatial.ZoomProfile, width, height int) *Recorder {
	if width <= 0 {
		width = geospatial.DefaultViewportWidth
	}
	if height <= 0 {
		height = geospatial.DefaultViewportHeight
	}
	return &Recorder{profile: profile, width: width, height: height}
}

// OnCommand registers fn to receive every recorded command. fn runs under
// the recorder's lock and must not call back into it.
func (r *Recorder) OnCommand(fn func(Command)) {
	r.mu.Lock()
	r.onCommand = fn
	r.mu.Unlock()
}

func (r *Recorder) Name() string { return "scene:" + r.profile.Name }

func (r *Recorder) ZoomProfile() geospatial.ZoomProfile { return r.profile }

func (r *Recorder) Viewport() (int, int) { return r.width, r.height }

func (r *Recorder) Clear(ctx context.Context) error {
	return r.record(Command{Op: OpClear})
}

// SetCenter records a center command. A negative zoom keeps the client's
// current zoom and is sent without one.
func (r *Recorder) SetCenter(ctx context.Context, center domain.GeoPoint, zoom int) error {
	if !center.IsValid() {
		return fmt.Errorf("center %v out of range", center)
	}
	cmd := Command{Op: OpCenter, Center: &center}
	if zoom >= 0 {
		z := min(max(zoom, r.profile.MinZoom), r.profile.MaxZoom)
		cmd.Zoom = &z
	}
	return r.record(cmd)
}

func (r *Recorder) AddMarker(ctx context.Context, pin domain.Pushpin) error {
	if pin.Location.IsUnset() || !pin.Location.IsValid() {
		return fmt.Errorf("marker %s: invalid location %v", pin.DeviceID, pin.Location)
	}
	return r.record(Command{Op: OpMarker, Pin: &pin})
}

func (r *Recorder) AddPolyline(ctx context.Context, path []domain.GeoPoint, style domain.Style) error {
	if len(path) < 2 {
		return fmt.Errorf("polyline needs at least 2 points, got %d", len(path))
	}
	style = style.WithDefaults()
	return r.record(Command{Op: OpPolyline, Path: Encode(path), Style: &style})
}

func (r *Recorder) AddPolygon(ctx context.Context, ring []domain.GeoPoint, style domain.Style) error {
	if len(ring) < 3 {
		return fmt.Errorf("polygon needs at least 3 points, got %d", len(ring))
	}
	style = style.WithDefaults()
	return r.record(Command{Op: OpPolygon, Path: Encode(ring), Style: &style})
}

func (r *Recorder) Unload(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unloaded = true
	r.commands = nil
	return nil
}

// Scene returns the commands recorded since the last Clear.
func (r *Recorder) Scene() Scene {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Scene{
		Provider: r.Name(),
		MinZoom:  r.profile.MinZoom,
		MaxZoom:  r.profile.MaxZoom,
		Width:    r.width,
		Height:   r.height,
		Commands: append([]Command(nil), r.commands...),
	}
}

func (r *Recorder) record(cmd Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unloaded {
		return ErrUnloaded
	}
	if cmd.Op == OpClear {
		r.commands = r.commands[:0]
	}
	r.commands = append(r.commands, cmd)
	if r.onCommand != nil {
		r.onCommand(cmd)
	}
	return nil
}

// Encode returns pts as an encoded polyline (precision 1e-5).
func Encode(pts []domain.GeoPoint) string {
	coords := make([][]float64, len(pts))
	for i, p := range pts {
		coords[i] = []float64{p.Lat, p.Lon}
	}
	return string(polyline.EncodeCoords(coords))
}

// Decode parses an encoded polyline.
func Decode(s string) ([]domain.GeoPoint, error) {
	coords, rest, err := polyline.DecodeCoords([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("decode polyline: %w", err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("decode polyline: %d trailing bytes", len(rest))
	}
	out := make([]domain.GeoPoint, len(coords))
	for i, c := range coords {
		out[i] = domain.GeoPoint{Lat: c[0], Lon: c[1]}
	}
	return out, nil
}
