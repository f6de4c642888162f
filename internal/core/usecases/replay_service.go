package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/samirrijal/trackzone/internal/core/domain"
	"github.com/samirrijal/trackzone/internal/core/ports"
	"github.com/samirrijal/trackzone/internal/core/replay"
	"github.com/samirrijal/trackzone/internal/pkg/metrics"
	"github.com/samirrijal/trackzone/internal/pkg/telemetry"
)

var (
	// ErrSessionNotFound is returned for unknown or finished replay sessions.
	ErrSessionNotFound = errors.New("replay session not found")
	// ErrEmptyTrack is returned when a device has no positions in the range.
	ErrEmptyTrack = errors.New("no positions in range")
)

// ReplayRequest asks for a device track to be replayed.
type ReplayRequest struct {
	DeviceID   string    `json:"device_id"`
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
	IntervalMS int       `json:"interval_ms"`
	Popup      bool      `json:"popup"`
}

// ReplayOptions configures a ReplayService.
type ReplayOptions struct {
	Clock           replay.Clock
	DefaultInterval time.Duration
	MaxPoints       int
}

type replaySession struct {
	id       string
	deviceID string
	started  time.Time
	sched    *replay.Scheduler
}

// ReplayService runs track replays and streams their frames to the broker.
// A device has at most one session; starting another replaces it.
type ReplayService struct {
	tracks    ports.TrackRepository
	publisher ports.EventPublisher
	opts      ReplayOptions

	mu       sync.Mutex
	sessions map[string]*replaySession
	byDevice map[string]*replaySession
}

// NewReplayService creates a new ReplayService. publisher may be nil.
func NewReplayService(tracks ports.TrackRepository, publisher ports.EventPublisher, opts ReplayOptions) *ReplayService {
	if opts.Clock == nil {
		opts.Clock = replay.SystemClock
	}
	if opts.DefaultInterval <= 0 {
		opts.DefaultInterval = time.Second
	}
	if opts.MaxPoints <= 0 {
		opts.MaxPoints = 5000
	}
	return &ReplayService{
		tracks:    tracks,
		publisher: publisher,
		opts:      opts,
		sessions:  make(map[string]*replaySession),
		byDevice:  make(map[string]*replaySession),
	}
}

// Start loads the requested track and begins replaying it.
func (s *ReplayService) Start(ctx context.Context, req ReplayRequest) (domain.ReplayStatus, error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanReplayStart, attribute.String("device.id", req.DeviceID))
	defer span.End()

	if req.DeviceID == "" {
		return domain.ReplayStatus{}, fmt.Errorf("device_id is required")
	}
	if req.To.IsZero() {
		req.To = time.Now()
	}
	if req.From.IsZero() {
		req.From = req.To.Add(-24 * time.Hour)
	}
	if req.From.After(req.To) {
		return domain.ReplayStatus{}, fmt.Errorf("from %s is after to %s", req.From.Format(time.RFC3339), req.To.Format(time.RFC3339))
	}

	positions, err := s.tracks.Range(ctx, req.DeviceID, req.From, req.To, s.opts.MaxPoints)
	if err != nil {
		return domain.ReplayStatus{}, fmt.Errorf("load track: %w", err)
	}
	if len(positions) == 0 {
		return domain.ReplayStatus{}, ErrEmptyTrack
	}
	pins := make([]domain.Pushpin, len(positions))
	for i, p := range positions {
		pins[i] = p.Pushpin()
	}

	interval := s.opts.DefaultInterval
	if req.IntervalMS > 0 {
		interval = time.Duration(req.IntervalMS) * time.Millisecond
	}
	mode := domain.ReplayHighlight
	if req.Popup {
		mode = domain.ReplayPopup
	}

	sess := &replaySession{id: uuid.NewString(), deviceID: req.DeviceID, started: time.Now()}
	sess.sched = replay.NewScheduler(replay.Options{
		Clock:   s.opts.Clock,
		OnFrame: func(f replay.Frame) { s.onFrame(sess, mode, f) },
		OnState: func(st replay.State) { s.onState(sess, st) },
	})

	s.mu.Lock()
	prev := s.byDevice[req.DeviceID]
	s.sessions[sess.id] = sess
	s.byDevice[req.DeviceID] = sess
	s.mu.Unlock()

	if prev != nil {
		prev.sched.Stop()
	}
	metrics.ReplaySessions.Inc()
	sess.sched.Start(pins, interval)

	slog.InfoContext(ctx, "replay started",
		"session_id", sess.id,
		"device_id", req.DeviceID,
		"points", len(pins),
		"interval", interval.String(),
	)
	return s.status(sess), nil
}

// Get returns the status of a live session.
func (s *ReplayService) Get(id string) (domain.ReplayStatus, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return domain.ReplayStatus{}, err
	}
	return s.status(sess), nil
}

// Pause suspends a session.
func (s *ReplayService) Pause(id string) (domain.ReplayStatus, error) {
	return s.control(id, func(sc *replay.Scheduler) { sc.Pause() })
}

// Resume continues a paused session.
func (s *ReplayService) Resume(id string) (domain.ReplayStatus, error) {
	return s.control(id, func(sc *replay.Scheduler) { sc.Resume() })
}

// Toggle pauses a running session or resumes a paused one.
func (s *ReplayService) Toggle(id string) (domain.ReplayStatus, error) {
	return s.control(id, func(sc *replay.Scheduler) { sc.TogglePause() })
}

// Stop ends a session.
func (s *ReplayService) Stop(id string) (domain.ReplayStatus, error) {
	return s.control(id, func(sc *replay.Scheduler) { sc.Stop() })
}

// Shutdown stops every session.
func (s *ReplayService) Shutdown() {
	s.mu.Lock()
	all := make([]*replaySession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	s.mu.Unlock()

	for _, sess := range all {
		sess.sched.Stop()
	}
}

func (s *ReplayService) control(id string, fn func(*replay.Scheduler)) (domain.ReplayStatus, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return domain.ReplayStatus{}, err
	}
	fn(sess.sched)
	return s.status(sess), nil
}

func (s *ReplayService) lookup(id string) (*replaySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

func (s *ReplayService) status(sess *replaySession) domain.ReplayStatus {
	return domain.ReplayStatus{
		SessionID: sess.id,
		DeviceID:  sess.deviceID,
		State:     sess.sched.State().String(),
		Index:     sess.sched.Index(),
		Total:     sess.sched.Total(),
		StartedAt: sess.started,
	}
}

// onFrame runs under the scheduler lock.
func (s *ReplayService) onFrame(sess *replaySession, mode domain.ReplayMode, f replay.Frame) {
	metrics.ReplayFrames.Inc()
	if s.publisher == nil {
		return
	}
	frame := &domain.ReplayFrame{
		SessionID: sess.id,
		Index:     f.Index,
		Total:     f.Total,
		Mode:      mode,
		Pushpin:   f.Pushpin,
	}
	if err := s.publisher.PublishReplayFrame(context.Background(), frame); err != nil {
		slog.Warn("publish replay frame failed", "session_id", sess.id, "error", err)
	}
}

// onState runs under the scheduler lock, so forgetting a finished session
// happens on its own goroutine.
func (s *ReplayService) onState(sess *replaySession, st replay.State) {
	if s.publisher != nil {
		status := &domain.ReplayStatus{
			SessionID: sess.id,
			DeviceID:  sess.deviceID,
			State:     st.String(),
			StartedAt: sess.started,
		}
		if err := s.publisher.PublishReplayStatus(context.Background(), status); err != nil {
			slog.Warn("publish replay status failed", "session_id", sess.id, "error", err)
		}
	}
	if st == replay.Stopped {
		go s.forget(sess)
	}
}

func (s *ReplayService) forget(sess *replaySession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.id]; !ok {
		return
	}
	delete(s.sessions, sess.id)
	if s.byDevice[sess.deviceID] == sess {
		delete(s.byDevice, sess.deviceID)
	}
	metrics.ReplaySessions.Dec()
}
