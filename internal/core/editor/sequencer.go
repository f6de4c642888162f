package editor

import (
	"context"
	"sync"
)

// Sequencer numbers outstanding lookups (geocoding) so that only the most
// recent one may mutate editor state. Starting a new lookup cancels the
// previous one; a response carrying an older ticket must be discarded.
type Sequencer struct {
	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// Begin cancels any in-flight lookup and returns a context and ticket for a new one.
func (s *Sequencer) Begin(parent context.Context) (context.Context, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.seq++
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	return ctx, s.seq
}

// Current reports whether ticket belongs to the latest lookup.
func (s *Sequencer) Current(ticket uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ticket == s.seq
}

// Finish releases the lookup's context if ticket is still the latest.
func (s *Sequencer) Finish(ticket uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ticket == s.seq && s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
