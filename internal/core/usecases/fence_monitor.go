package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/samirrijal/trackzone/internal/core/domain"
	"github.com/samirrijal/trackzone/internal/core/ports"
	"github.com/samirrijal/trackzone/internal/pkg/geospatial"
	"github.com/samirrijal/trackzone/internal/pkg/metrics"
	"github.com/samirrijal/trackzone/internal/pkg/telemetry"
)

// FenceMonitor tracks which geozones each device is inside and reports the
// crossings. Zones are held in memory; Reload and Apply keep them current.
type FenceMonitor struct {
	zones     ports.GeozoneRepository
	publisher ports.EventPublisher
	sphere    geospatial.Sphere

	mu     sync.Mutex
	byID   map[string]*domain.Geozone
	inside map[string]map[string]struct{} // device -> zone IDs
}

// NewFenceMonitor creates a FenceMonitor. publisher may be nil.
func NewFenceMonitor(zones ports.GeozoneRepository, publisher ports.EventPublisher, sphere geospatial.Sphere) *FenceMonitor {
	if sphere.RadiusMeters <= 0 {
		sphere = geospatial.Earth
	}
	return &FenceMonitor{
		zones:     zones,
		publisher: publisher,
		sphere:    sphere,
		byID:      make(map[string]*domain.Geozone),
		inside:    make(map[string]map[string]struct{}),
	}
}

// Reload replaces the zone set with the repository's contents. Device
// membership is kept so a reload does not replay arrivals.
func (m *FenceMonitor) Reload(ctx context.Context) error {
	all, err := m.zones.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list geozones: %w", err)
	}
	byID := make(map[string]*domain.Geozone, len(all))
	for i := range all {
		byID[all[i].ID] = all[i].Clone()
	}

	m.mu.Lock()
	m.byID = byID
	for _, set := range m.inside {
		for id := range set {
			if _, ok := byID[id]; !ok {
				delete(set, id)
			}
		}
	}
	m.mu.Unlock()

	slog.InfoContext(ctx, "fence monitor loaded zones", "count", len(byID))
	return nil
}

// Apply folds a geozone change into the zone set. A deleted zone is dropped
// from every device without a depart event.
func (m *FenceMonitor) Apply(change *domain.GeozoneChange) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch change.Kind {
	case domain.ChangeDeleted:
		delete(m.byID, change.ZoneID)
		for _, set := range m.inside {
			delete(set, change.ZoneID)
		}
	case domain.ChangeUpserted:
		if change.Zone != nil {
			m.byID[change.ZoneID] = change.Zone.Clone()
		}
	}
}

// Zones returns the number of zones being watched.
func (m *FenceMonitor) Zones() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// Inside returns the IDs of the zones a device is currently inside, sorted.
func (m *FenceMonitor) Inside(deviceID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedKeys(m.inside[deviceID])
}

// Observe compares the zones containing pos with the device's previous set
// and returns an arrive or depart event for every crossing of a zone that
// asks for that notification. Positions without a fix change nothing.
func (m *FenceMonitor) Observe(ctx context.Context, pos *domain.DevicePosition) []domain.FenceEvent {
	if pos.Location.IsUnset() || !pos.Location.IsValid() {
		return nil
	}
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanFenceObserve, attribute.String("device.id", pos.DeviceID))
	defer span.End()

	m.mu.Lock()
	now := make(map[string]struct{})
	for id, z := range m.byID {
		if pos.AccountID != "" && z.AccountID != pos.AccountID {
			continue
		}
		if m.contains(z, pos.Location) {
			now[id] = struct{}{}
		}
	}
	prev := m.inside[pos.DeviceID]

	var events []domain.FenceEvent
	for _, id := range sortedKeys(now) {
		if _, was := prev[id]; !was && m.byID[id].ArriveNotify {
			events = append(events, m.event(pos, id, domain.FenceArrive))
		}
	}
	for _, id := range sortedKeys(prev) {
		if _, is := now[id]; is {
			continue
		}
		if z, ok := m.byID[id]; ok && z.DepartNotify {
			events = append(events, m.event(pos, id, domain.FenceDepart))
		}
	}
	m.inside[pos.DeviceID] = now
	m.mu.Unlock()

	span.SetAttributes(attribute.Int("fence.events", len(events)))
	for i := range events {
		metrics.FenceEvents.WithLabelValues(string(events[i].Transition)).Inc()
		if m.publisher == nil {
			continue
		}
		if err := m.publisher.PublishFenceEvent(ctx, &events[i]); err != nil {
			slog.WarnContext(ctx, "publish fence event failed",
				"device_id", pos.DeviceID,
				"zone_id", events[i].ZoneID,
				"error", err,
			)
		}
	}
	return events
}

func (m *FenceMonitor) contains(z *domain.Geozone, p domain.GeoPoint) bool {
	for _, i := range z.ActivePoints() {
		if z.Spec(i, false).Contains(m.sphere.Distance(z.Points[i], p)) {
			return true
		}
	}
	return false
}

func (m *FenceMonitor) event(pos *domain.DevicePosition, zoneID string, t domain.FenceTransition) domain.FenceEvent {
	return domain.FenceEvent{
		DeviceID:   pos.DeviceID,
		ZoneID:     zoneID,
		Transition: t,
		Location:   pos.Location,
		Time:       pos.Time,
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
