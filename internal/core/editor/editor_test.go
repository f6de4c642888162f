package editor_test

import (
	"math"
	"testing"

	"github.com/samirrijal/trackzone/internal/core/domain"
	"github.com/samirrijal/trackzone/internal/core/editor"
	"github.com/samirrijal/trackzone/internal/pkg/geospatial"
)

var bilbao = domain.GeoPoint{Lat: 43.2630, Lon: -2.9350}

func newEditor(t *testing.T, editable bool) (*editor.Editor, *editor.Sink) {
	t.Helper()
	sink := editor.NewSink(domain.DefaultRadiusPolicy, domain.GeozoneSpec{
		Center:       bilbao,
		RadiusMeters: 1000,
		Editable:     editable,
	})
	return editor.New(sink, geospatial.Earth, 0), sink
}

func left(p domain.GeoPoint) editor.PointerEvent {
	return editor.PointerEvent{Point: p, Button: editor.ButtonLeft}
}

func shift(p domain.GeoPoint) editor.PointerEvent {
	return editor.PointerEvent{Point: p, Button: editor.ButtonLeft, Modifiers: editor.Modifiers{Shift: true}}
}

func TestEditor_DragCenter(t *testing.T) {
	ed, sink := newEditor(t, true)

	grab := geospatial.Project(bilbao, 300, 45)
	fb := ed.PointerDown(left(grab))
	if fb.State != editor.DraggingCenter {
		t.Fatalf("expected dragging_center, got %s", fb.State)
	}

	mid := domain.GeoPoint{Lat: grab.Lat + 0.01, Lon: grab.Lon}
	fb = ed.PointerMove(left(mid))
	if len(fb.Circle) != geospatial.CircleLen(geospatial.DefaultCircleStep) {
		t.Errorf("expected draft circle, got %d points", len(fb.Circle))
	}
	if sink.Get().Center != bilbao {
		t.Error("sink must not change before pointer up")
	}

	end := domain.GeoPoint{Lat: grab.Lat + 0.02, Lon: grab.Lon - 0.03}
	fb = ed.PointerUp(left(end))
	if !fb.Committed || fb.State != editor.Idle {
		t.Fatalf("expected committed idle feedback, got %+v", fb)
	}

	got := sink.Get()
	wantLat := end.Lat - (grab.Lat - bilbao.Lat)
	wantLon := end.Lon - (grab.Lon - bilbao.Lon)
	if math.Abs(got.Center.Lat-wantLat) > 1e-9 || math.Abs(got.Center.Lon-wantLon) > 1e-9 {
		t.Errorf("center = %+v, want (%v, %v)", got.Center, wantLat, wantLon)
	}
	if got.RadiusMeters != 1000 {
		t.Errorf("radius changed during center drag: %v", got.RadiusMeters)
	}
}

func TestEditor_DragRadius_Monotonic(t *testing.T) {
	ed, sink := newEditor(t, true)

	if fb := ed.PointerDown(shift(geospatial.Project(bilbao, 100, 90))); fb.State != editor.DraggingRadius {
		t.Fatalf("expected dragging_radius, got %s", fb.State)
	}

	prev := 0.0
	for d := 100.0; d <= 5000; d += 250 {
		fb := ed.PointerMove(shift(geospatial.Project(bilbao, d, 90)))
		r := fb.Draft.RadiusMeters
		if r < prev {
			t.Fatalf("radius decreased from %v to %v at %v m", prev, r, d)
		}
		if r != math.Round(r) {
			t.Fatalf("radius not rounded: %v", r)
		}
		prev = r
	}

	ed.PointerUp(shift(geospatial.Project(bilbao, 2500, 90)))
	if got := sink.Get().RadiusMeters; got != 2500 {
		t.Errorf("expected committed radius 2500, got %v", got)
	}
	if sink.Get().Center != bilbao {
		t.Error("center moved during radius drag")
	}
}

func TestEditor_DragRadius_Bounds(t *testing.T) {
	ed, sink := newEditor(t, true)

	ed.PointerDown(shift(geospatial.Project(bilbao, 10, 0)))
	ed.PointerUp(shift(bilbao))
	if got := sink.Get().RadiusMeters; got != domain.DefaultRadiusPolicy.Min {
		t.Errorf("dragging onto the center should yield the minimum, got %v", got)
	}

	sink.Set(bilbao, 1000)
	ed.PointerDown(shift(geospatial.Project(bilbao, 10, 0)))
	ed.PointerUp(shift(domain.GeoPoint{Lat: 50, Lon: 10}))
	if got := sink.Get().RadiusMeters; got != domain.DefaultRadiusPolicy.Max {
		t.Errorf("expected the maximum, got %v", got)
	}
}

func TestEditor_DownOutsideDoesNotDrag(t *testing.T) {
	ed, sink := newEditor(t, true)

	fb := ed.PointerDown(left(geospatial.Project(bilbao, 5000, 0)))
	if fb.State != editor.Idle {
		t.Fatalf("expected idle, got %s", fb.State)
	}
	ed.PointerUp(left(geospatial.Project(bilbao, 5000, 0)))
	if sink.Get().Center != bilbao {
		t.Error("sink changed by a press outside the zone")
	}
}

func TestEditor_IgnoredPresses(t *testing.T) {
	inside := geospatial.Project(bilbao, 100, 0)
	cases := []struct {
		name string
		ev   editor.PointerEvent
	}{
		{"right button", editor.PointerEvent{Point: inside, Button: editor.ButtonRight}},
		{"middle button", editor.PointerEvent{Point: inside, Button: editor.ButtonMiddle}},
		{"alt", editor.PointerEvent{Point: inside, Modifiers: editor.Modifiers{Alt: true}}},
		{"ctrl+shift", editor.PointerEvent{Point: inside, Modifiers: editor.Modifiers{Ctrl: true, Shift: true}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ed, _ := newEditor(t, true)
			if fb := ed.PointerDown(tc.ev); fb.State != editor.Idle {
				t.Errorf("expected idle, got %s", fb.State)
			}
		})
	}
}

func TestEditor_NotEditable(t *testing.T) {
	ed, sink := newEditor(t, false)

	if fb := ed.PointerDown(left(geospatial.Project(bilbao, 100, 0))); fb.State != editor.Idle {
		t.Fatalf("expected idle on a read-only zone, got %s", fb.State)
	}
	ed.PointerUp(left(geospatial.Project(bilbao, 100, 0)))

	far := geospatial.Project(bilbao, 9000, 180)
	ed.PointerDown(left(far))
	ed.PointerUp(left(far))
	if fb := ed.Click(left(far)); fb.Committed {
		t.Error("click must not recenter a read-only zone")
	}
	if sink.Get().Center != bilbao {
		t.Error("read-only zone moved")
	}
}

func TestEditor_ClickRecenters(t *testing.T) {
	ed, sink := newEditor(t, true)

	var seen []domain.GeozoneSpec
	sink.Subscribe(func(s domain.GeozoneSpec) { seen = append(seen, s) })

	far := geospatial.Project(bilbao, 9000, 180)
	ed.PointerDown(left(far))
	ed.PointerUp(left(far))
	fb := ed.Click(left(far))
	if !fb.Committed {
		t.Fatal("expected click to commit")
	}
	if sink.Get().Center != far {
		t.Errorf("center = %+v, want %+v", sink.Get().Center, far)
	}
	if len(seen) != 1 || seen[0].RadiusMeters != 1000 {
		t.Errorf("expected one notification keeping the radius, got %+v", seen)
	}
}

func TestEditor_ClickInsideIsSelection(t *testing.T) {
	ed, sink := newEditor(t, true)
	other := domain.GeoPoint{Lat: 43.30, Lon: -2.90}
	ed.SetSecondaries([]domain.GeozoneSpec{{Center: other, RadiusMeters: 800}})

	for _, p := range []domain.GeoPoint{
		geospatial.Project(bilbao, 200, 10),
		geospatial.Project(other, 200, 10),
	} {
		if fb := ed.Click(left(p)); fb.Committed {
			t.Errorf("click at %+v inside a zone must not recenter", p)
		}
	}
	if sink.Get().Center != bilbao {
		t.Error("primary moved")
	}
}

func TestEditor_ClickAfterDragIgnored(t *testing.T) {
	ed, sink := newEditor(t, true)

	start := geospatial.Project(bilbao, 5000, 0)
	end := geospatial.Project(bilbao, 8000, 0)
	ed.PointerDown(left(start))
	ed.PointerMove(left(end))
	ed.PointerUp(left(end))

	if fb := ed.Click(left(end)); fb.Committed {
		t.Error("click following a pan must be ignored")
	}
	if sink.Get().Center != bilbao {
		t.Error("primary moved")
	}
}

func TestEditor_ClickElsewhereAfterDragRecenters(t *testing.T) {
	ed, sink := newEditor(t, true)

	start := geospatial.Project(bilbao, 5000, 0)
	end := geospatial.Project(bilbao, 8000, 0)
	ed.PointerDown(left(start))
	ed.PointerMove(left(end))
	ed.PointerUp(left(end))

	far := geospatial.Project(bilbao, 9000, 180)
	fb := ed.Click(left(far))
	if !fb.Committed {
		t.Fatal("click away from the release point must not be swallowed")
	}
	if sink.Get().Center != far {
		t.Errorf("center = %+v, want %+v", sink.Get().Center, far)
	}
	if s := ed.Session(); s.Moved {
		t.Error("drag mark must be cleared once the gesture is closed")
	}
}

func TestEditor_DragMarkSwallowsOneClick(t *testing.T) {
	ed, sink := newEditor(t, true)

	start := geospatial.Project(bilbao, 5000, 0)
	end := geospatial.Project(bilbao, 8000, 0)
	ed.PointerDown(left(start))
	ed.PointerMove(left(end))
	ed.PointerUp(left(end))

	if fb := ed.Click(left(end)); fb.Committed {
		t.Fatal("click closing the pan must be ignored")
	}
	if fb := ed.Click(left(end)); !fb.Committed {
		t.Fatal("second click at the same point must recenter")
	}
	if sink.Get().Center != end {
		t.Errorf("center = %+v, want %+v", sink.Get().Center, end)
	}
}

func TestEditor_DragCenterAcrossAntimeridian(t *testing.T) {
	sink := editor.NewSink(domain.DefaultRadiusPolicy, domain.GeozoneSpec{
		Center:       domain.GeoPoint{Lat: 0, Lon: 179.9},
		RadiusMeters: 1000,
		Editable:     true,
	})
	ed := editor.New(sink, geospatial.Earth, 0)

	grab := domain.GeoPoint{Lat: 0, Lon: 179.9}
	ed.PointerDown(left(grab))
	fb := ed.PointerMove(left(domain.GeoPoint{Lat: 0, Lon: 180.1}))
	if lon := fb.Draft.Center.Lon; lon < -180 || lon > 180 {
		t.Fatalf("draft longitude %v outside [-180, 180]", lon)
	}
	ed.PointerUp(left(domain.GeoPoint{Lat: 0, Lon: 180.2}))

	got := sink.Get().Center
	if math.Abs(got.Lon-(-179.8)) > 1e-9 {
		t.Errorf("center lon = %v, want -179.8", got.Lon)
	}
	if got.Lat != 0 {
		t.Errorf("center lat = %v, want 0", got.Lat)
	}
}

func TestEditor_ClickWithModifiersIgnored(t *testing.T) {
	ed, sink := newEditor(t, true)

	far := geospatial.Project(bilbao, 9000, 180)
	ev := editor.PointerEvent{Point: far, Modifiers: editor.Modifiers{Shift: true}}
	if fb := ed.Click(ev); fb.Committed {
		t.Error("shift-click must be ignored")
	}
	if sink.Get().Center != bilbao {
		t.Error("primary moved")
	}
}

func TestEditor_Ruler(t *testing.T) {
	ed, sink := newEditor(t, true)

	ctrl := editor.Modifiers{Ctrl: true}
	start := geospatial.Project(bilbao, 100, 0)
	fb := ed.PointerDown(editor.PointerEvent{Point: start, Modifiers: ctrl})
	if fb.State != editor.MeasuringRuler {
		t.Fatalf("expected measuring_ruler, got %s", fb.State)
	}

	end := geospatial.Project(start, 1234, 270)
	fb = ed.PointerMove(editor.PointerEvent{Point: end, Modifiers: ctrl})
	if len(fb.Ruler) != 2 || fb.Ruler[0] != start || fb.Ruler[1] != end {
		t.Fatalf("unexpected ruler %+v", fb.Ruler)
	}
	if math.Abs(fb.RulerMeters-1234) > 0.01 {
		t.Errorf("ruler = %v m, want 1234", fb.RulerMeters)
	}

	fb = ed.PointerUp(editor.PointerEvent{Point: end, Modifiers: ctrl})
	if fb.Committed || fb.Ruler != nil {
		t.Errorf("ruler must be discarded on release, got %+v", fb)
	}
	if got := sink.Get(); got.Center != bilbao || got.RadiusMeters != 1000 {
		t.Errorf("ruler changed the zone: %+v", got)
	}
}

func TestEditor_Cancel(t *testing.T) {
	ed, sink := newEditor(t, true)

	ed.PointerDown(left(geospatial.Project(bilbao, 100, 0)))
	ed.PointerMove(left(domain.GeoPoint{Lat: 44, Lon: -3}))
	ed.Cancel()

	if s := ed.Session(); s.State != editor.Idle {
		t.Errorf("expected idle after cancel, got %s", s.State)
	}
	if fb := ed.PointerUp(left(domain.GeoPoint{Lat: 44, Lon: -3})); fb.Committed {
		t.Error("cancelled drag must not commit")
	}
	if sink.Get().Center != bilbao {
		t.Error("primary moved")
	}
}
