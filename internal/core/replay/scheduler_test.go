package replay_test

import (
	"sync"
	"testing"
	"time"

	"github.com/samirrijal/trackzone/internal/core/domain"
	"github.com/samirrijal/trackzone/internal/core/replay"
)

// --- Manual clock ---

type manualTicker struct {
	ch      chan time.Time
	d       time.Duration
	stopped chan struct{}
	once    sync.Once
}

func (m *manualTicker) Chan() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()                  { m.once.Do(func() { close(m.stopped) }) }

type manualClock struct {
	mu      sync.Mutex
	tickers []*manualTicker
}

func (c *manualClock) NewTicker(d time.Duration) replay.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTicker{ch: make(chan time.Time), d: d, stopped: make(chan struct{})}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *manualClock) last() *manualTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tickers[len(c.tickers)-1]
}

// tick delivers one tick to the newest ticker. It reports false when no task
// is listening.
func (c *manualClock) tick() bool {
	t := c.last()
	select {
	case t.ch <- time.Now():
		return true
	case <-t.stopped:
		return false
	case <-time.After(200 * time.Millisecond):
		return false
	}
}

func (m *manualTicker) waitStopped(t *testing.T) {
	t.Helper()
	select {
	case <-m.stopped:
	case <-time.After(time.Second):
		t.Fatal("ticker was not stopped")
	}
}

// --- Harness ---

type harness struct {
	clock  *manualClock
	sched  *replay.Scheduler
	frames chan replay.Frame
	states chan replay.State
}

func newHarness() *harness {
	h := &harness{
		clock:  &manualClock{},
		frames: make(chan replay.Frame, 64),
		states: make(chan replay.State, 64),
	}
	h.sched = replay.NewScheduler(replay.Options{
		Clock:   h.clock,
		OnFrame: func(f replay.Frame) { h.frames <- f },
		OnState: func(s replay.State) { h.states <- s },
	})
	return h
}

func (h *harness) nextFrame(t *testing.T) replay.Frame {
	t.Helper()
	select {
	case f := <-h.frames:
		return f
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return replay.Frame{}
	}
}

func (h *harness) waitState(t *testing.T, want replay.State) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case s := <-h.states:
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func pins(points ...domain.GeoPoint) []domain.Pushpin {
	out := make([]domain.Pushpin, len(points))
	for i, p := range points {
		out[i] = domain.Pushpin{DeviceID: "truck-1", Location: p}
	}
	return out
}

var (
	unset = domain.GeoPoint{}
	p1    = domain.GeoPoint{Lat: 43.26, Lon: -2.93}
	p2    = domain.GeoPoint{Lat: 43.27, Lon: -2.94}
	p3    = domain.GeoPoint{Lat: 43.28, Lon: -2.95}
)

// --- Tests ---

func TestScheduler_SkipsSentinelsAndAutoStops(t *testing.T) {
	h := newHarness()
	track := pins(unset, p1, unset, unset, p2, p3, unset)

	h.sched.Start(track, time.Second)
	h.waitState(t, replay.Running)

	var got []replay.Frame
	for i := 0; i < 3; i++ {
		if !h.clock.tick() {
			t.Fatalf("tick %d not consumed", i)
		}
		got = append(got, h.nextFrame(t))
	}
	if got[0].Index != 1 || got[1].Index != 4 || got[2].Index != 5 {
		t.Errorf("unexpected frame indexes: %d %d %d", got[0].Index, got[1].Index, got[2].Index)
	}
	if got[0].Total != len(track) {
		t.Errorf("expected total %d, got %d", len(track), got[0].Total)
	}

	// The trailing sentinel is consumed by one more tick that ends the replay.
	h.clock.tick()
	h.waitState(t, replay.Stopped)

	if h.clock.tick() {
		t.Error("ticker still consumed after auto-stop")
	}
	select {
	case f := <-h.frames:
		t.Errorf("unexpected frame after stop: %+v", f)
	default:
	}
	if h.sched.State() != replay.Stopped || h.sched.Index() != 0 {
		t.Errorf("expected stopped at 0, got %s at %d", h.sched.State(), h.sched.Index())
	}
}

func TestScheduler_StopsRightAfterLastPoint(t *testing.T) {
	h := newHarness()
	h.sched.Start(pins(p1, p2), time.Second)

	h.clock.tick()
	h.nextFrame(t)
	h.clock.tick()
	h.nextFrame(t)
	h.waitState(t, replay.Stopped)
}

func TestScheduler_ClampsInterval(t *testing.T) {
	h := newHarness()
	h.sched.Start(pins(p1), 10*time.Millisecond)
	if d := h.clock.last().d; d != replay.MinInterval {
		t.Errorf("expected interval %v, got %v", replay.MinInterval, d)
	}
	h.sched.Stop()
}

func TestScheduler_PauseResumeKeepsIndex(t *testing.T) {
	h := newHarness()
	h.sched.Start(pins(p1, p2, p3), time.Second)

	h.clock.tick()
	if f := h.nextFrame(t); f.Index != 0 {
		t.Fatalf("expected index 0, got %d", f.Index)
	}

	if st := h.sched.Pause(); st != replay.Paused {
		t.Fatalf("expected paused, got %s", st)
	}
	h.clock.last().waitStopped(t)
	if h.clock.tick() {
		t.Error("paused replay consumed a tick")
	}
	if h.sched.Index() != 1 {
		t.Errorf("pause changed the index to %d", h.sched.Index())
	}

	if st := h.sched.Resume(); st != replay.Running {
		t.Fatalf("expected running, got %s", st)
	}
	h.clock.tick()
	if f := h.nextFrame(t); f.Index != 1 {
		t.Errorf("expected index 1 after resume, got %d", f.Index)
	}
	h.sched.Stop()
}

func TestScheduler_TogglePause(t *testing.T) {
	h := newHarness()

	if st := h.sched.TogglePause(); st != replay.Stopped {
		t.Errorf("toggle on a stopped replay should stay stopped, got %s", st)
	}

	h.sched.Start(pins(p1, p2), time.Second)
	if st := h.sched.TogglePause(); st != replay.Paused {
		t.Errorf("expected paused, got %s", st)
	}
	if st := h.sched.TogglePause(); st != replay.Running {
		t.Errorf("expected running, got %s", st)
	}
	h.sched.Stop()
}

func TestScheduler_StopThenStartRestartsAtZero(t *testing.T) {
	h := newHarness()
	track := pins(p1, p2, p3)

	h.sched.Start(track, time.Second)
	h.clock.tick()
	h.nextFrame(t)
	h.clock.tick()
	h.nextFrame(t)

	h.sched.Stop()
	if h.sched.Index() != 0 {
		t.Fatalf("stop must rewind, index=%d", h.sched.Index())
	}
	h.clock.last().waitStopped(t)
	if h.clock.tick() {
		t.Error("stopped replay consumed a tick")
	}

	h.sched.Start(track, time.Second)
	h.clock.tick()
	if f := h.nextFrame(t); f.Index != 0 {
		t.Errorf("expected restart at index 0, got %d", f.Index)
	}
	h.sched.Stop()
}

func TestScheduler_StartReplacesRunningTask(t *testing.T) {
	h := newHarness()

	h.sched.Start(pins(p1, p2, p3), time.Second)
	first := h.clock.last()
	h.sched.Start(pins(p3), time.Second)
	first.waitStopped(t)

	h.clock.tick()
	if f := h.nextFrame(t); f.Pushpin.Location != p3 || f.Total != 1 {
		t.Errorf("unexpected frame from replaced replay: %+v", f)
	}
}

func TestScheduler_SystemClock(t *testing.T) {
	frames := make(chan replay.Frame, 4)
	done := make(chan struct{})
	sched := replay.NewScheduler(replay.Options{
		OnFrame: func(f replay.Frame) { frames <- f },
		OnState: func(s replay.State) {
			if s == replay.Stopped {
				close(done)
			}
		},
	})

	sched.Start(pins(p1, unset, p2), 0)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("replay did not finish")
	}
	if len(frames) != 2 {
		t.Errorf("expected 2 frames, got %d", len(frames))
	}
}
