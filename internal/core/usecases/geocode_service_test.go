package usecases_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samirrijal/trackzone/internal/core/domain"
	"github.com/samirrijal/trackzone/internal/core/usecases"
)

// --- Mock Geocoder ---

type mockGeocoder struct {
	geocodeFn func(ctx context.Context, addr, country string) (domain.GeoPoint, bool, error)
	calls     int
}

func (m *mockGeocoder) Geocode(ctx context.Context, addr, country string) (domain.GeoPoint, bool, error) {
	m.calls++
	if m.geocodeFn != nil {
		return m.geocodeFn(ctx, addr, country)
	}
	return domain.GeoPoint{}, false, nil
}

// --- Tests ---

func TestGeocodeService_Lookup_CachesNormalizedQuery(t *testing.T) {
	geo := &mockGeocoder{
		geocodeFn: func(ctx context.Context, addr, country string) (domain.GeoPoint, bool, error) {
			if addr != "Gran Via 1,  Bilbao" {
				t.Errorf("expected trimmed address, got %q", addr)
			}
			return bilbao, true, nil
		},
	}
	cache := newMockCache()
	svc := usecases.NewGeocodeService(geo, cache, time.Hour)

	p, ok, err := svc.Lookup(context.Background(), "  Gran Via 1,  Bilbao ", "ES")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || p != bilbao {
		t.Fatalf("expected %v, got %v (ok=%v)", bilbao, p, ok)
	}
	if cache.ttls["geocode:es:gran via 1, bilbao"] != 3600 {
		t.Errorf("expected normalized cache key with ttl 3600, got %v", cache.ttls)
	}

	p, ok, err = svc.Lookup(context.Background(), "GRAN VIA 1, bilbao", "es")
	if err != nil || !ok || p != bilbao {
		t.Fatalf("expected cached hit, got %v %v %v", p, ok, err)
	}
	if geo.calls != 1 {
		t.Errorf("expected 1 upstream call, got %d", geo.calls)
	}
}

func TestGeocodeService_Lookup_NoResult(t *testing.T) {
	tests := []struct {
		name string
		p    domain.GeoPoint
		ok   bool
	}{
		{"not found", domain.GeoPoint{}, false},
		{"zero point", domain.GeoPoint{}, true},
		{"out of range", domain.GeoPoint{Lat: 123, Lon: 4}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			geo := &mockGeocoder{
				geocodeFn: func(ctx context.Context, addr, country string) (domain.GeoPoint, bool, error) {
					return tt.p, tt.ok, nil
				},
			}
			cache := newMockCache()
			svc := usecases.NewGeocodeService(geo, cache, 0)

			_, ok, err := svc.Lookup(context.Background(), "nowhere", "")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ok {
				t.Error("expected no result")
			}
			if len(cache.data) != 0 {
				t.Error("empty results must not be cached")
			}
		})
	}
}

func TestGeocodeService_Lookup_EmptyAddress(t *testing.T) {
	geo := &mockGeocoder{}
	svc := usecases.NewGeocodeService(geo, nil, 0)

	_, ok, err := svc.Lookup(context.Background(), "   ", "ES")
	if err != nil || ok {
		t.Errorf("expected no result and no error, got ok=%v err=%v", ok, err)
	}
	if geo.calls != 0 {
		t.Error("geocoder should not be called for an empty address")
	}
}

func TestGeocodeService_Lookup_UpstreamError(t *testing.T) {
	boom := errors.New("connection refused")
	geo := &mockGeocoder{
		geocodeFn: func(ctx context.Context, addr, country string) (domain.GeoPoint, bool, error) {
			return domain.GeoPoint{}, false, boom
		},
	}
	svc := usecases.NewGeocodeService(geo, nil, 0)

	_, ok, err := svc.Lookup(context.Background(), "Bilbao", "")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped upstream error, got %v", err)
	}
	if ok {
		t.Error("expected ok=false on error")
	}
}
