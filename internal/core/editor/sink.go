package editor

import (
	"sync"

	"github.com/samirrijal/trackzone/internal/core/domain"
)

// Sink holds the primary geozone being edited. It is the only place the
// editor writes to; renderers and form mirrors subscribe to it.
type Sink struct {
	// writeMu is held from a write through its notifications, so observers
	// see changes in the order they were stored.
	writeMu   sync.Mutex
	mu        sync.Mutex
	policy    domain.RadiusPolicy
	spec      domain.GeozoneSpec
	nextID    int
	observers []observer
}

type observer struct {
	id int
	fn func(domain.GeozoneSpec)
}

// NewSink creates a sink holding initial, with its radius clamped by policy.
func NewSink(policy domain.RadiusPolicy, initial domain.GeozoneSpec) *Sink {
	initial.RadiusMeters = policy.Clamp(initial.RadiusMeters)
	return &Sink{policy: policy, spec: initial}
}

// Get returns the current spec.
func (s *Sink) Get() domain.GeozoneSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spec
}

// Policy returns the radius policy applied on every write.
func (s *Sink) Policy() domain.RadiusPolicy {
	return s.policy
}

// Set stores a new center and radius and notifies observers. The radius is
// clamped; the stored spec is returned.
func (s *Sink) Set(center domain.GeoPoint, radiusMeters float64) domain.GeozoneSpec {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.spec.Center = center
	s.spec.RadiusMeters = s.policy.Clamp(radiusMeters)
	spec := s.spec
	obs := s.snapshot()
	s.mu.Unlock()

	notify(obs, spec)
	return spec
}

// SetEditable toggles whether the editor may move or resize the zone.
func (s *Sink) SetEditable(editable bool) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.spec.Editable == editable {
		s.mu.Unlock()
		return
	}
	s.spec.Editable = editable
	spec := s.spec
	obs := s.snapshot()
	s.mu.Unlock()

	notify(obs, spec)
}

// Subscribe registers fn for change notifications. Observers run in
// subscription order, one write at a time. They may read the sink but must
// not write to it. The returned func unsubscribes.
func (s *Sink) Subscribe(fn func(domain.GeozoneSpec)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.observers = append(s.observers, observer{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, o := range s.observers {
			if o.id == id {
				s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

func (s *Sink) snapshot() []observer {
	return append([]observer(nil), s.observers...)
}

func notify(obs []observer, spec domain.GeozoneSpec) {
	for _, o := range obs {
		o.fn(spec)
	}
}
