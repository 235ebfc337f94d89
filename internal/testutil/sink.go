package testutil

import (
	"context"
	"sync"

	"github.com/roach88/dyneval/internal/engine"
)

// MemorySink is an in-memory engine.TraceSink.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type MemorySink struct {
	mu            sync.Mutex
	subscriptions []engine.TraceSubscription
	emissions     []engine.TraceEmission
	err           error
}

// NewMemorySink creates an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// FailWith makes every later write return err (nil restores success).
func (s *MemorySink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// BeginSubscription records sub.
func (s *MemorySink) BeginSubscription(_ context.Context, sub engine.TraceSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.subscriptions = append(s.subscriptions, sub)
	return nil
}

// RecordEmission records em.
func (s *MemorySink) RecordEmission(_ context.Context, em engine.TraceEmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.emissions = append(s.emissions, em)
	return nil
}

// Subscriptions returns a copy of the recorded subscriptions.
func (s *MemorySink) Subscriptions() []engine.TraceSubscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]engine.TraceSubscription(nil), s.subscriptions...)
}

// Emissions returns a copy of the recorded emissions in write order.
func (s *MemorySink) Emissions() []engine.TraceEmission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]engine.TraceEmission(nil), s.emissions...)
}
