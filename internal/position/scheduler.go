package position

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultBaseInterval is the nominal spacing between ticks.
	DefaultBaseInterval = 50 * time.Second
	// DefaultMaxJitter is added to each interval to avoid correlated
	// bursts across symbols.
	DefaultMaxJitter = 10 * time.Second
	// DefaultFailureBackoff delays the next tick after a failed one.
	DefaultFailureBackoff = 60 * time.Second
)

var errTickPanic = errors.New("tick panicked")

// Scheduler drives one manager on an independent cancellable loop. Ticks are
// strictly serialized; stopping never aborts an in-flight tick.
type Scheduler struct {
	manager *Manager
	log     zerolog.Logger

	mu             sync.Mutex
	baseInterval   time.Duration
	maxJitter      time.Duration
	failureBackoff time.Duration
	cancel         context.CancelFunc
	done           chan struct{}
	running        bool
}

// NewScheduler wraps a manager in a tick loop with default timing.
func NewScheduler(m *Manager, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		manager:        m,
		baseInterval:   DefaultBaseInterval,
		maxJitter:      DefaultMaxJitter,
		failureBackoff: DefaultFailureBackoff,
		log:            logger.With().Str("component", "scheduler").Str("symbol", m.Symbol()).Logger(),
	}
}

// SetIntervals overrides the loop timing, mainly for tests. Safe to call
// while the loop runs; the new values apply from the next tick.
func (s *Scheduler) SetIntervals(base, jitter, backoff time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseInterval = base
	s.maxJitter = jitter
	s.failureBackoff = backoff
}

func (s *Scheduler) intervals() (base, jitter, backoff time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseInterval, s.maxJitter, s.failureBackoff
}

// Start launches the loop. The first tick fires immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(loopCtx)
	s.log.Info().Msg("scheduler started")
}

// Stop cancels the loop and waits for any in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.running = false
	s.mu.Unlock()

	cancel()
	<-done
	s.log.Info().Msg("scheduler stopped")
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		err := s.safeTick(ctx)

		base, jitter, backoff := s.intervals()
		var next time.Duration
		if err != nil {
			next = backoff
		} else {
			next = base
			if jitter > 0 {
				next += time.Duration(rand.Int63n(int64(jitter)))
			}
		}
		timer.Reset(next)
	}
}

// safeTick isolates panics so a single bad tick never halts the loop.
func (s *Scheduler) safeTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("tick panicked")
			err = errTickPanic
		}
	}()
	return s.manager.Tick(ctx)
}
