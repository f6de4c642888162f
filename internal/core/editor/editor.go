// Package editor implements the interactive point-radius geozone editor: a
// pointer-driven state machine that moves or resizes the primary zone held in
// a Sink, plus a ruler gesture for measuring distances.
package editor

import (
	"math"
	"sync"

	"github.com/samirrijal/trackzone/internal/core/domain"
	"github.com/samirrijal/trackzone/internal/pkg/geospatial"
)

// State is the gesture currently in progress.
type State int

const (
	Idle State = iota
	DraggingRadius
	DraggingCenter
	MeasuringRuler
)

func (s State) String() string {
	switch s {
	case DraggingRadius:
		return "dragging_radius"
	case DraggingCenter:
		return "dragging_center"
	case MeasuringRuler:
		return "measuring_ruler"
	default:
		return "idle"
	}
}

// MarshalText lets State travel as a string in JSON feedback.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Button identifies the pointer button of a press.
type Button int

const (
	ButtonLeft Button = iota
	ButtonMiddle
	ButtonRight
)

// Modifiers are the keys held when a pointer event fired.
type Modifiers struct {
	Shift bool `json:"shift"`
	Ctrl  bool `json:"ctrl"`
	Alt   bool `json:"alt"`
}

// Any reports whether any modifier is held.
func (m Modifiers) Any() bool {
	return m.Shift || m.Ctrl || m.Alt
}

// PointerEvent is a pointer sample in map coordinates.
type PointerEvent struct {
	Point     domain.GeoPoint `json:"point"`
	Button    Button          `json:"button"`
	Modifiers Modifiers       `json:"modifiers"`
}

// DragSession is the transient state of one gesture.
type DragSession struct {
	State     State
	Anchor    domain.GeoPoint
	OffsetLat float64
	OffsetLon float64
	Draft     domain.GeozoneSpec
	Pressed   bool
	Moved     bool
	// Released is where a moved gesture ended; the click the release
	// produces lands there.
	Released  domain.GeoPoint
}

// Feedback tells the rendering layer what to draw after an event.
type Feedback struct {
	State       State              `json:"state"`
	Draft       domain.GeozoneSpec `json:"draft"`
	Circle      []domain.GeoPoint  `json:"circle,omitempty"`
	Ruler       []domain.GeoPoint  `json:"ruler,omitempty"`
	RulerMeters float64            `json:"ruler_meters,omitempty"`
	Committed   bool               `json:"committed"`
}

// Editor interprets pointer gestures against the primary zone in its Sink.
// Secondary zones are read-only; they only matter to the click test.
type Editor struct {
	mu          sync.Mutex
	sink        *Sink
	sphere      geospatial.Sphere
	step        float64
	secondaries []domain.GeozoneSpec
	session     DragSession
}

// New creates an editor writing to sink. A zero step uses the default circle step.
func New(sink *Sink, sphere geospatial.Sphere, step float64) *Editor {
	if sphere.RadiusMeters <= 0 {
		sphere = geospatial.Earth
	}
	if step <= 0 {
		step = geospatial.DefaultCircleStep
	}
	return &Editor{sink: sink, sphere: sphere, step: step}
}

// Sink returns the value sink the editor commits to.
func (e *Editor) Sink() *Sink {
	return e.sink
}

// SetSecondaries replaces the read-only zones displayed next to the primary.
func (e *Editor) SetSecondaries(specs []domain.GeozoneSpec) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.secondaries = append([]domain.GeozoneSpec(nil), specs...)
}

// Session returns a copy of the current gesture state.
func (e *Editor) Session() DragSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// PointerDown starts a gesture. Non-left buttons, alt, and ctrl+shift are ignored.
func (e *Editor) PointerDown(ev PointerEvent) Feedback {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.State != Idle {
		return e.feedback()
	}
	e.session = DragSession{State: Idle, Anchor: ev.Point, Pressed: true}

	mods := ev.Modifiers
	if ev.Button != ButtonLeft || mods.Alt || (mods.Ctrl && mods.Shift) {
		return e.feedback()
	}

	if mods.Ctrl {
		e.session.State = MeasuringRuler
		return e.feedback()
	}

	spec := e.sink.Get()
	if !spec.Editable || !e.inside(spec, ev.Point) {
		return e.feedback()
	}

	e.session.Draft = spec
	if mods.Shift {
		e.session.State = DraggingRadius
	} else {
		e.session.State = DraggingCenter
		e.session.OffsetLat = ev.Point.Lat - spec.Center.Lat
		e.session.OffsetLon = ev.Point.Lon - spec.Center.Lon
	}
	return e.feedback()
}

// PointerMove updates the gesture in progress.
func (e *Editor) PointerMove(ev PointerEvent) Feedback {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.Pressed && ev.Point != e.session.Anchor {
		e.session.Moved = true
	}
	e.track(ev.Point)
	return e.feedback()
}

// PointerUp ends the gesture. Drags commit their final draft to the sink;
// a ruler is discarded.
func (e *Editor) PointerUp(ev PointerEvent) Feedback {
	e.mu.Lock()
	state := e.session.State
	if state == DraggingRadius || state == DraggingCenter {
		e.track(ev.Point)
	}
	if e.session.Pressed && ev.Point != e.session.Anchor {
		e.session.Moved = true
	}
	draft := e.session.Draft
	if e.session.Moved {
		e.session.Released = ev.Point
	}
	e.session.State = Idle
	e.session.Pressed = false
	e.session.Draft = domain.GeozoneSpec{}
	e.mu.Unlock()

	switch state {
	case DraggingRadius, DraggingCenter:
		spec := e.sink.Set(draft.Center, draft.RadiusMeters)
		return Feedback{State: Idle, Draft: spec, Circle: e.circle(spec), Committed: true}
	default:
		return Feedback{State: Idle, Draft: e.sink.Get()}
	}
}

// Click recenters the primary zone on the clicked point. The click a drag
// release produces at its end point is swallowed; the drag mark is cleared by
// the first click either way. Clicks with modifiers held or inside any
// displayed zone are ignored.
func (e *Editor) Click(ev PointerEvent) Feedback {
	e.mu.Lock()
	closesDrag := false
	if e.session.State == Idle && e.session.Moved {
		closesDrag = ev.Point == e.session.Released
		e.session.Moved = false
		e.session.Released = domain.GeoPoint{}
	}
	if e.session.State != Idle || closesDrag || ev.Modifiers.Any() {
		fb := e.feedback()
		e.mu.Unlock()
		return fb
	}
	spec := e.sink.Get()
	hit := e.inside(spec, ev.Point)
	for _, s := range e.secondaries {
		if hit {
			break
		}
		hit = e.inside(s, ev.Point)
	}
	e.mu.Unlock()

	if !spec.Editable || hit {
		return Feedback{State: Idle, Draft: spec}
	}
	spec = e.sink.Set(ev.Point, spec.RadiusMeters)
	return Feedback{State: Idle, Draft: spec, Circle: e.circle(spec), Committed: true}
}

// Cancel abandons the current gesture without committing.
func (e *Editor) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session = DragSession{}
}

// Distance measures between two points on the editor's sphere.
func (e *Editor) Distance(a, b domain.GeoPoint) float64 {
	return e.sphere.Distance(a, b)
}

// track applies a pointer position to the active gesture. Callers hold e.mu.
func (e *Editor) track(p domain.GeoPoint) {
	switch e.session.State {
	case DraggingRadius:
		r := math.Round(e.sphere.Distance(e.session.Draft.Center, p))
		e.session.Draft.RadiusMeters = e.sink.Policy().Bound(r)
	case DraggingCenter:
		e.session.Draft.Center = domain.GeoPoint{
			Lat: math.Max(-90, math.Min(90, p.Lat-e.session.OffsetLat)),
			Lon: geospatial.WrapLon(p.Lon - e.session.OffsetLon),
		}
	case MeasuringRuler:
		e.session.Draft.Center = p
	}
}

// feedback describes the current session. Callers hold e.mu.
func (e *Editor) feedback() Feedback {
	fb := Feedback{State: e.session.State, Draft: e.session.Draft}
	switch e.session.State {
	case DraggingRadius, DraggingCenter:
		fb.Circle = e.circle(e.session.Draft)
	case MeasuringRuler:
		end := e.session.Anchor
		if !e.session.Draft.Center.IsUnset() {
			end = e.session.Draft.Center
		}
		fb.Draft = domain.GeozoneSpec{}
		fb.Ruler = []domain.GeoPoint{e.session.Anchor, end}
		fb.RulerMeters = e.sphere.Distance(e.session.Anchor, end)
	default:
		fb.Draft = e.sink.Get()
	}
	return fb
}

func (e *Editor) circle(spec domain.GeozoneSpec) []domain.GeoPoint {
	if spec.Center.IsUnset() {
		return nil
	}
	return e.sphere.Circle(spec.Center, spec.RadiusMeters, e.step)
}

func (e *Editor) inside(spec domain.GeozoneSpec, p domain.GeoPoint) bool {
	if spec.Center.IsUnset() {
		return false
	}
	return spec.Contains(e.sphere.Distance(spec.Center, p))
}
