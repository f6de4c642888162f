package usecases

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/samirrijal/trackzone/internal/core/domain"
	"github.com/samirrijal/trackzone/internal/core/editor"
	"github.com/samirrijal/trackzone/internal/pkg/geospatial"
	"github.com/samirrijal/trackzone/internal/pkg/metrics"
)

var (
	// ErrStaleGeocode is returned when a newer address lookup superseded this one.
	ErrStaleGeocode = errors.New("geocode result superseded by a newer lookup")
	// ErrUnknownPointerKind is returned for pointer events the editor does not handle.
	ErrUnknownPointerKind = errors.New("unknown pointer event kind")
	// ErrPointIndex is returned for a point index outside the zone.
	ErrPointIndex = errors.New("point index out of range")
)

// AddressLookup resolves an address. GeocodeService implements it.
type AddressLookup interface {
	Lookup(ctx context.Context, addr, country string) (domain.GeoPoint, bool, error)
}

// GeozoneSaver persists a zone. GeozoneService implements it.
type GeozoneSaver interface {
	Save(ctx context.Context, zone *domain.Geozone) error
}

// PointerKind names the pointer callback an event came from.
type PointerKind string

const (
	PointerDown   PointerKind = "down"
	PointerMove   PointerKind = "move"
	PointerUp     PointerKind = "up"
	PointerClick  PointerKind = "click"
	PointerCancel PointerKind = "cancel"
)

// PointerInput is a pointer event tagged with its kind.
type PointerInput struct {
	Kind PointerKind `json:"kind"`
	editor.PointerEvent
}

// EditOptions configures an EditSession.
type EditOptions struct {
	Policy     domain.RadiusPolicy
	Sphere     geospatial.Sphere
	CircleStep float64
}

// EditSnapshot is the session state sent to a client.
type EditSnapshot struct {
	Zone    *domain.Geozone    `json:"zone"`
	Primary int                `json:"primary"`
	Spec    domain.GeozoneSpec `json:"spec"`
}

// EditSession edits one geozone interactively. The primary point lives in
// the editor's Sink; the sink's observer mirrors every change back into the
// zone, and the other set points become the editor's read-only secondaries.
type EditSession struct {
	mu      sync.Mutex
	zone    *domain.Geozone
	primary int

	sink   *editor.Sink
	editor *editor.Editor
	seq    editor.Sequencer
	// geoMu serializes the staleness check with applying a geocode result.
	geoMu sync.Mutex

	lookup      AddressLookup
	saver       GeozoneSaver
	unsubscribe func()
}

// NewEditSession starts editing zone with point 0 as primary. A nil zone
// starts an empty one.
func NewEditSession(zone *domain.Geozone, saver GeozoneSaver, lookup AddressLookup, opts EditOptions) *EditSession {
	if opts.Policy == (domain.RadiusPolicy{}) {
		opts.Policy = domain.DefaultRadiusPolicy
	}
	if zone == nil {
		zone = &domain.Geozone{}
	} else {
		zone = zone.Clone()
	}
	for len(zone.Points) < domain.MaxZonePoints {
		zone.Points = append(zone.Points, domain.GeoPoint{})
	}
	zone.RadiusMeters = opts.Policy.Clamp(zone.RadiusMeters)

	s := &EditSession{zone: zone, lookup: lookup, saver: saver}
	s.sink = editor.NewSink(opts.Policy, zone.Spec(0, true))
	s.editor = editor.New(s.sink, opts.Sphere, opts.CircleStep)
	s.unsubscribe = s.sink.Subscribe(s.mirror)
	s.editor.SetSecondaries(s.secondaries())
	return s
}

// Close detaches the session from its sink.
func (s *EditSession) Close() {
	s.editor.Cancel()
	s.unsubscribe()
}

// Editor returns the session's state machine.
func (s *EditSession) Editor() *editor.Editor {
	return s.editor
}

// Pointer dispatches a pointer event to the editor.
func (s *EditSession) Pointer(in PointerInput) (editor.Feedback, error) {
	var fb editor.Feedback
	switch in.Kind {
	case PointerDown:
		fb = s.editor.PointerDown(in.PointerEvent)
	case PointerMove:
		fb = s.editor.PointerMove(in.PointerEvent)
	case PointerUp:
		fb = s.editor.PointerUp(in.PointerEvent)
	case PointerClick:
		fb = s.editor.Click(in.PointerEvent)
	case PointerCancel:
		s.editor.Cancel()
		fb = editor.Feedback{State: editor.Idle, Draft: s.sink.Get()}
	default:
		return editor.Feedback{}, fmt.Errorf("%w: %q", ErrUnknownPointerKind, in.Kind)
	}
	if fb.Committed {
		metrics.EditorCommits.WithLabelValues(string(in.Kind)).Inc()
	}
	return fb, nil
}

// SelectPoint makes point i the primary. An unset point can be placed with
// the next click.
func (s *EditSession) SelectPoint(i int) error {
	s.mu.Lock()
	if i < 0 || i >= len(s.zone.Points) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrPointIndex, i)
	}
	s.primary = i
	spec := s.zone.Spec(i, true)
	s.mu.Unlock()

	s.editor.Cancel()
	s.sink.Set(spec.Center, spec.RadiusMeters)
	s.editor.SetSecondaries(s.secondaries())
	return nil
}

// ApplyForm sets the primary point from text fields. Unparsable numbers
// become 0; the radius is then clamped like any other write.
func (s *EditSession) ApplyForm(lat, lon, radius string) domain.GeozoneSpec {
	center := domain.GeoPoint{
		Lat: domain.ParseFloatOrZero(lat),
		Lon: domain.ParseFloatOrZero(lon),
	}
	return s.sink.Set(center, domain.ParseFloatOrZero(radius))
}

// CenterOnAddress geocodes addr and, on success, rebuilds the zone around
// the result: point 0 becomes the only set point and the radius is a tenth
// of the maximum. A lookup overtaken by a newer one returns ErrStaleGeocode
// and changes nothing; a lookup without a result returns ok=false.
func (s *EditSession) CenterOnAddress(ctx context.Context, addr, country string) (domain.GeoPoint, bool, error) {
	ctx, ticket := s.seq.Begin(ctx)
	defer s.seq.Finish(ticket)

	p, ok, err := s.lookup.Lookup(ctx, addr, country)

	s.geoMu.Lock()
	defer s.geoMu.Unlock()
	if !s.seq.Current(ticket) {
		metrics.GeocodeLookups.WithLabelValues("stale").Inc()
		return domain.GeoPoint{}, false, ErrStaleGeocode
	}
	if err != nil {
		return domain.GeoPoint{}, false, err
	}
	if !ok || p.IsUnset() {
		return domain.GeoPoint{}, false, nil
	}

	radius := s.sink.Policy().Max / 10
	s.mu.Lock()
	s.primary = 0
	for i := range s.zone.Points {
		s.zone.Points[i] = domain.GeoPoint{}
	}
	s.mu.Unlock()

	s.editor.Cancel()
	s.sink.Set(p, radius)
	s.editor.SetSecondaries(nil)
	return p, true, nil
}

// Save persists the zone being edited.
func (s *EditSession) Save(ctx context.Context) (*domain.Geozone, error) {
	zone := s.Zone()
	if len(zone.ActivePoints()) == 0 {
		return nil, fmt.Errorf("%w: at least one point must be set", ErrInvalidGeozone)
	}
	if err := s.saver.Save(ctx, zone); err != nil {
		return nil, fmt.Errorf("save geozone: %w", err)
	}

	s.mu.Lock()
	s.zone.ID = zone.ID
	s.zone.UpdatedAt = zone.UpdatedAt
	s.mu.Unlock()
	return zone, nil
}

// Zone returns a copy of the zone being edited.
func (s *EditSession) Zone() *domain.Geozone {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zone.Clone()
}

// Snapshot returns the zone, the primary index and the primary spec.
func (s *EditSession) Snapshot() EditSnapshot {
	spec := s.sink.Get()
	s.mu.Lock()
	defer s.mu.Unlock()
	return EditSnapshot{Zone: s.zone.Clone(), Primary: s.primary, Spec: spec}
}

// mirror copies a sink change into the zone.
func (s *EditSession) mirror(spec domain.GeozoneSpec) {
	s.mu.Lock()
	s.zone.Points[s.primary] = spec.Center
	s.zone.RadiusMeters = spec.RadiusMeters
	s.mu.Unlock()
	s.editor.SetSecondaries(s.secondaries())
}

func (s *EditSession) secondaries() []domain.GeozoneSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.GeozoneSpec
	for _, i := range s.zone.ActivePoints() {
		if i != s.primary {
			out = append(out, s.zone.Spec(i, false))
		}
	}
	return out
}
