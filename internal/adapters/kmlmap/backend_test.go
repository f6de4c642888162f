package kmlmap

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/samirrijal/trackzone/internal/core/domain"
	"github.com/samirrijal/trackzone/internal/core/mapview"
)

func TestBackend_OnePlacemarkPerOverlay(t *testing.T) {
	ctx := context.Background()
	b := New(Options{Name: "zones"})
	view := mapview.New(b, mapview.Options{})

	zone := &domain.Geozone{
		ID:           "z1",
		RadiusMeters: 300,
		Points: []domain.GeoPoint{
			{Lat: 43.263, Lon: -2.935},
			{},
			{Lat: 43.27, Lon: -2.94},
		},
	}
	report := view.DrawGeozone(ctx, zone, 0, domain.Style{})
	if !report.OK() {
		t.Fatalf("unexpected failures: %v", report.Err())
	}

	pins := []domain.Pushpin{
		{DeviceID: "truck-1", Label: "truck-1", Location: domain.GeoPoint{Lat: 43.26, Lon: -2.93}, Time: time.Unix(1700000000, 0).UTC(), Popup: "Gran Vía"},
	}
	for _, p := range pins {
		if err := b.AddMarker(ctx, p); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := b.Encode(&buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	doc := buf.String()

	if got := strings.Count(doc, "<Placemark>"); got != 3 {
		t.Errorf("expected 3 placemarks, got %d\n%s", got, doc)
	}
	if got := b.Len(); got != 3 {
		t.Errorf("expected Len 3, got %d", got)
	}
	for _, want := range []string{"<Polygon>", "<Point>", "<LookAt>", "<name>zones</name>", "-2.93,43.26", "2023-11-14T22:13:20Z"} {
		if !strings.Contains(doc, want) {
			t.Errorf("expected %q in document", want)
		}
	}
}

func TestBackend_ClearAndUnload(t *testing.T) {
	ctx := context.Background()
	b := New(Options{})

	path := []domain.GeoPoint{{Lat: 1, Lon: 1}, {Lat: 2, Lon: 2}}
	if err := b.AddPolyline(ctx, path, domain.Style{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.Clear(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Len() != 0 {
		t.Errorf("expected empty document after Clear, got %d", b.Len())
	}

	if err := b.Unload(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.AddPolyline(ctx, path, domain.Style{}); !errors.Is(err, ErrUnloaded) {
		t.Errorf("expected ErrUnloaded, got %v", err)
	}
}

func TestBackend_RejectsBadGeometry(t *testing.T) {
	ctx := context.Background()
	b := New(Options{})

	if err := b.AddMarker(ctx, domain.Pushpin{DeviceID: "d"}); err == nil {
		t.Error("expected error for unset marker")
	}
	if err := b.AddPolyline(ctx, []domain.GeoPoint{{Lat: 1, Lon: 1}}, domain.Style{}); err == nil {
		t.Error("expected error for one-point polyline")
	}
	if err := b.AddPolygon(ctx, []domain.GeoPoint{{Lat: 1, Lon: 1}, {Lat: 2, Lon: 2}}, domain.Style{}); err == nil {
		t.Error("expected error for two-point polygon")
	}
}

func TestRGBA(t *testing.T) {
	c := rgba("#640000", 1)
	if c.R != 0x64 || c.G != 0 || c.B != 0 || c.A != 255 {
		t.Errorf("unexpected color %+v", c)
	}
	c = rgba("nonsense", 0.5)
	if c.B != 0xFF || c.A != 128 {
		t.Errorf("expected default blue at half alpha, got %+v", c)
	}
}
