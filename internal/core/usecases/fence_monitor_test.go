package usecases_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samirrijal/trackzone/internal/core/domain"
	"github.com/samirrijal/trackzone/internal/core/ports"
	"github.com/samirrijal/trackzone/internal/core/usecases"
	"github.com/samirrijal/trackzone/internal/pkg/geospatial"
)

var (
	depot     = domain.GeoPoint{Lat: 43.2630, Lon: -2.9350}
	harbour   = domain.GeoPoint{Lat: 43.3400, Lon: -3.0100}
	outside   = domain.GeoPoint{Lat: 43.3000, Lon: -2.9700}
	inDepot   = domain.GeoPoint{Lat: 43.2632, Lon: -2.9350} // ~22 m from depot
	inHarbour = domain.GeoPoint{Lat: 43.3401, Lon: -3.0100}
)

func fenceZones() []domain.Geozone {
	return []domain.Geozone{
		{ID: "depot", AccountID: "acme", Points: []domain.GeoPoint{depot}, RadiusMeters: 200, ArriveNotify: true, DepartNotify: true},
		{ID: "harbour", AccountID: "acme", Points: []domain.GeoPoint{{}, harbour}, RadiusMeters: 300, ArriveNotify: true},
		{ID: "rival", AccountID: "other", Points: []domain.GeoPoint{depot}, RadiusMeters: 200, ArriveNotify: true},
	}
}

func newMonitor(t *testing.T, pub *mockPublisher) *usecases.FenceMonitor {
	t.Helper()
	repo := &mockGeozoneRepo{
		listAllFn: func(ctx context.Context) ([]domain.Geozone, error) { return fenceZones(), nil },
	}
	var publisher ports.EventPublisher
	if pub != nil {
		publisher = pub
	}
	m := usecases.NewFenceMonitor(repo, publisher, geospatial.Earth)
	if err := m.Reload(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return m
}

func at(p domain.GeoPoint) *domain.DevicePosition {
	return &domain.DevicePosition{DeviceID: "truck-1", AccountID: "acme", Location: p, Time: time.Now()}
}

func transitions(events []domain.FenceEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = string(e.Transition) + ":" + e.ZoneID
	}
	return out
}

func TestFenceMonitor_ArriveDepartSequence(t *testing.T) {
	pub := &mockPublisher{}
	m := newMonitor(t, pub)
	if m.Zones() != 3 {
		t.Fatalf("expected 3 zones, got %d", m.Zones())
	}

	steps := []struct {
		p    domain.GeoPoint
		want []string
	}{
		{outside, nil},
		{inDepot, []string{"arrive:depot"}},
		{depot, nil},
		{outside, []string{"depart:depot"}},
		{inHarbour, []string{"arrive:harbour"}},
		{outside, nil}, // harbour does not ask for departures
	}
	total := 0
	for i, s := range steps {
		got := transitions(m.Observe(context.Background(), at(s.p)))
		total += len(got)
		if len(got) != len(s.want) {
			t.Fatalf("step %d: expected %v, got %v", i, s.want, got)
		}
		for j := range got {
			if got[j] != s.want[j] {
				t.Errorf("step %d: expected %v, got %v", i, s.want, got)
			}
		}
	}
	if len(pub.fences) != total {
		t.Errorf("expected %d published events, got %d", total, len(pub.fences))
	}
}

func TestFenceMonitor_IgnoresUnsetFix(t *testing.T) {
	m := newMonitor(t, nil)
	m.Observe(context.Background(), at(inDepot))

	if ev := m.Observe(context.Background(), at(domain.GeoPoint{})); len(ev) != 0 {
		t.Errorf("expected no events for an unset fix, got %v", transitions(ev))
	}
	if inside := m.Inside("truck-1"); len(inside) != 1 || inside[0] != "depot" {
		t.Errorf("membership must survive an unset fix, got %v", inside)
	}
}

func TestFenceMonitor_ApplyChanges(t *testing.T) {
	m := newMonitor(t, nil)
	m.Observe(context.Background(), at(inDepot))

	m.Apply(&domain.GeozoneChange{Kind: domain.ChangeDeleted, ZoneID: "depot"})
	if inside := m.Inside("truck-1"); len(inside) != 0 {
		t.Errorf("deleted zone must be dropped, got %v", inside)
	}
	if ev := m.Observe(context.Background(), at(outside)); len(ev) != 0 {
		t.Errorf("no depart for a deleted zone, got %v", transitions(ev))
	}

	m.Apply(&domain.GeozoneChange{
		Kind:   domain.ChangeUpserted,
		ZoneID: "yard",
		Zone:   &domain.Geozone{ID: "yard", AccountID: "acme", Points: []domain.GeoPoint{outside}, RadiusMeters: 50, ArriveNotify: true},
	})
	m.Observe(context.Background(), at(harbour))
	if got := transitions(m.Observe(context.Background(), at(outside))); len(got) != 1 || got[0] != "arrive:yard" {
		t.Errorf("expected arrive:yard, got %v", got)
	}
}

func TestFenceMonitor_ReloadError(t *testing.T) {
	repo := &mockGeozoneRepo{
		listAllFn: func(ctx context.Context) ([]domain.Geozone, error) { return nil, errors.New("db down") },
	}
	m := usecases.NewFenceMonitor(repo, nil, geospatial.Sphere{})
	if err := m.Reload(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestPositionService_Ingest(t *testing.T) {
	tracks := &mockTrackRepo{}
	pub := &mockPublisher{}
	svc := usecases.NewPositionService(tracks, pub, newMonitor(t, pub))

	pos := &domain.DevicePosition{DeviceID: "truck-1", AccountID: "acme", Location: inDepot}
	events, err := svc.Ingest(context.Background(), pos)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos.Time.IsZero() {
		t.Error("expected time to be stamped")
	}
	if len(tracks.inserted) != 1 || len(pub.position) != 1 {
		t.Errorf("expected stored and published position, got %d/%d", len(tracks.inserted), len(pub.position))
	}
	if got := transitions(events); len(got) != 1 || got[0] != "arrive:depot" {
		t.Errorf("expected arrive:depot, got %v", got)
	}

	latest, err := svc.Latest(context.Background(), "truck-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest.Location != inDepot {
		t.Errorf("unexpected latest %+v", latest)
	}
}

func TestPositionService_IngestRejects(t *testing.T) {
	tracks := &mockTrackRepo{
		insertFn: func(ctx context.Context, pos *domain.DevicePosition) error { return errors.New("db down") },
	}
	svc := usecases.NewPositionService(tracks, nil, nil)

	tests := []struct {
		name    string
		pos     domain.DevicePosition
		invalid bool
	}{
		{"missing device", domain.DevicePosition{Location: depot}, true},
		{"unset location", domain.DevicePosition{DeviceID: "x"}, true},
		{"out of range", domain.DevicePosition{DeviceID: "x", Location: domain.GeoPoint{Lat: 95, Lon: 1}}, true},
		{"store failure", domain.DevicePosition{DeviceID: "x", Location: depot}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Ingest(context.Background(), &tt.pos)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, usecases.ErrInvalidPosition); got != tt.invalid {
				t.Errorf("expected ErrInvalidPosition=%v, got %v", tt.invalid, err)
			}
		})
	}
}
