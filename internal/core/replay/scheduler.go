// Package replay plays a recorded device track back one pushpin at a time.
package replay

import (
	"sync"
	"time"

	"github.com/samirrijal/trackzone/internal/core/domain"
)

// MinInterval is the shortest delay allowed between two frames.
const MinInterval = 100 * time.Millisecond

// State is the lifecycle state of a replay.
type State int

const (
	Stopped State = iota
	Running
	Paused
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

// Frame is one emitted replay step.
type Frame struct {
	Index   int
	Total   int
	Pushpin domain.Pushpin
}

// Options configures a Scheduler. OnFrame and OnState are invoked while the
// scheduler's lock is held and must not call back into the scheduler.
type Options struct {
	Clock   Clock
	OnFrame func(Frame)
	OnState func(State)
}

// Scheduler owns a single replay task. Every task is tied to a generation;
// cancelling bumps the generation and closes the task's stop channel before
// returning, so a tick already in flight sees it is stale and emits nothing.
type Scheduler struct {
	mu       sync.Mutex
	opts     Options
	pins     []domain.Pushpin
	index    int
	interval time.Duration
	state    State
	gen      uint64
	stop     chan struct{}
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(opts Options) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	return &Scheduler{opts: opts}
}

// Start replaces any running replay and begins emitting pins from index 0.
// Intervals below MinInterval are raised to it.
func (s *Scheduler) Start(pins []domain.Pushpin, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.halt()
	if interval < MinInterval {
		interval = MinInterval
	}
	s.pins = append([]domain.Pushpin(nil), pins...)
	s.index = 0
	s.interval = interval
	s.launch()
	s.setState(Running)
}

// Pause suspends a running replay, keeping its position.
func (s *Scheduler) Pause() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Running {
		s.halt()
		s.setState(Paused)
	}
	return s.state
}

// Resume continues a paused replay from where it stopped.
func (s *Scheduler) Resume() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Paused {
		s.launch()
		s.setState(Running)
	}
	return s.state
}

// TogglePause pauses a running replay or resumes a paused one.
func (s *Scheduler) TogglePause() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Running:
		s.halt()
		s.setState(Paused)
	case Paused:
		s.launch()
		s.setState(Running)
	}
	return s.state
}

// Stop ends the replay and rewinds to index 0.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finish()
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Index returns the position of the next pin to be considered.
func (s *Scheduler) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// Total returns the number of pins in the current replay.
func (s *Scheduler) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pins)
}

func (s *Scheduler) launch() {
	s.gen++
	s.stop = make(chan struct{})
	t := s.opts.Clock.NewTicker(s.interval)
	go s.run(s.gen, t, s.stop)
}

// halt cancels the running task, if any. Callers hold s.mu.
func (s *Scheduler) halt() {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.gen++
}

// finish halts, clears the track and reports Stopped. Callers hold s.mu.
func (s *Scheduler) finish() {
	s.halt()
	s.pins = nil
	s.index = 0
	if s.state != Stopped {
		s.setState(Stopped)
	}
}

func (s *Scheduler) setState(st State) {
	s.state = st
	if s.opts.OnState != nil {
		s.opts.OnState(st)
	}
}

func (s *Scheduler) run(gen uint64, t Ticker, stop <-chan struct{}) {
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.Chan():
			if !s.tick(gen) {
				return
			}
		}
	}
}

// tick emits the next valid pin. It returns false once the task is over.
func (s *Scheduler) tick(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || s.state != Running {
		return false
	}

	for s.index < len(s.pins) && s.pins[s.index].Location.IsUnset() {
		s.index++
	}
	if s.index >= len(s.pins) {
		s.finish()
		return false
	}

	i := s.index
	s.index++
	if s.opts.OnFrame != nil {
		s.opts.OnFrame(Frame{Index: i, Total: len(s.pins), Pushpin: s.pins[i]})
	}

	if s.index >= len(s.pins) {
		s.finish()
		return false
	}
	return true
}
