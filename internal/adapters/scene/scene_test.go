package scene

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/samirrijal/trackzone/internal/core/domain"
	"github.com/samirrijal/trackzone/internal/core/mapview"
	"github.com/samirrijal/trackzone/internal/pkg/geospatial"
)

func TestRecorder_PathDecodesToCircleRing(t *testing.T) {
	ctx := context.Background()
	rec := NewRecorder(geospatial.VirtualEarthProfile, 0, 0)
	view := mapview.New(rec, mapview.Options{})

	center := domain.GeoPoint{Lat: 43.263, Lon: -2.935}
	zone := &domain.Geozone{ID: "z", RadiusMeters: 1000, Points: []domain.GeoPoint{center}}
	if report := view.DrawGeozone(ctx, zone, 0, domain.Style{}); !report.OK() {
		t.Fatalf("unexpected failures: %v", report.Err())
	}

	sc := rec.Scene()
	if sc.Provider != rec.Name() || sc.Provider != "scene:virtualearth" {
		t.Errorf("expected scene:virtualearth provider, got %q", sc.Provider)
	}
	if len(sc.Commands) != 3 {
		t.Fatalf("expected clear, polygon, center; got %+v", sc.Commands)
	}
	if sc.Commands[0].Op != OpClear || sc.Commands[1].Op != OpPolygon || sc.Commands[2].Op != OpCenter {
		t.Fatalf("unexpected command order %+v", sc.Commands)
	}
	if z := sc.Commands[2].Zoom; z == nil || *z < sc.MinZoom || *z > sc.MaxZoom {
		t.Errorf("expected zoom within profile, got %v", z)
	}

	got, err := Decode(sc.Commands[1].Path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := geospatial.Circle(center, 1000, geospatial.DefaultCircleStep)
	if len(got) != len(want) {
		t.Fatalf("expected %d ring points, got %d", len(want), len(got))
	}
	for i := range want {
		if math.Abs(got[i].Lat-want[i].Lat) > 1e-5 || math.Abs(got[i].Lon-want[i].Lon) > 1e-5 {
			t.Fatalf("point %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestRecorder_ClearDropsEarlierCommands(t *testing.T) {
	ctx := context.Background()
	rec := NewRecorder(geospatial.TileMapProfile, 100, 100)

	var seen []Op
	rec.OnCommand(func(c Command) { seen = append(seen, c.Op) })

	_ = rec.AddMarker(ctx, domain.Pushpin{DeviceID: "d", Location: domain.GeoPoint{Lat: 1, Lon: 1}})
	_ = rec.Clear(ctx)
	_ = rec.SetCenter(ctx, domain.GeoPoint{Lat: 1, Lon: 1}, -1)

	sc := rec.Scene()
	if len(sc.Commands) != 2 || sc.Commands[1].Zoom != nil {
		t.Errorf("unexpected commands %+v", sc.Commands)
	}
	if len(seen) != 3 {
		t.Errorf("expected observer to see 3 commands, got %v", seen)
	}
}

func TestRecorder_Unload(t *testing.T) {
	ctx := context.Background()
	rec := NewRecorder(geospatial.TileMapProfile, 0, 0)
	_ = rec.Unload(ctx)
	if err := rec.Clear(ctx); !errors.Is(err, ErrUnloaded) {
		t.Errorf("expected ErrUnloaded, got %v", err)
	}
}

func TestDecode_Invalid(t *testing.T) {
	if _, err := Decode("_p~iF~ps|U_"); err == nil {
		t.Error("expected error for truncated polyline")
	}
}
