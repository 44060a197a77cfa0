// Package scheduler runs the periodic ticks of publishers and subscribers.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/zoneagent/errors"
	"github.com/c360/zoneagent/metric"
)

// Disabled is the frequency value meaning "no periodic work"
const Disabled time.Duration = 0

// FallbackPeriod is the repeat interval of entities whose work is disabled
const FallbackPeriod = 3600 * time.Second

// ErrStopTimeout is returned when in-flight ticks outlast the stop timeout
var ErrStopTimeout = fmt.Errorf("scheduler stop timeout")

// Mode selects how entities of one kind share goroutines
type Mode int

const (
	// Isolated gives every entity its own goroutine; ticks run in parallel.
	Isolated Mode = iota
	// Shared runs all entities on one goroutine; ticks never overlap.
	Shared
)

// String implements fmt.Stringer
func (m Mode) String() string {
	if m == Shared {
		return "shared"
	}
	return "isolated"
}

// Timing is when an entity first runs and how often it repeats
type Timing struct {
	InitialDelay time.Duration
	Period       time.Duration
	// Enabled is false when the configured frequency was the disabled
	// sentinel; the entity is still scheduled at FallbackPeriod.
	Enabled bool
}

// Plan computes the timing of the index-th entity of a kind
func Plan(index int, startDelay, frequency time.Duration) Timing {
	t := Timing{
		InitialDelay: time.Duration(index) * startDelay,
		Period:       frequency,
		Enabled:      frequency != Disabled,
	}
	if !t.Enabled {
		t.Period = FallbackPeriod
	}
	return t
}

// TickFunc is one unit of periodic work
type TickFunc func(ctx context.Context)

type entry struct {
	id     string
	timing Timing
	tick   TickFunc
}

// Scheduler runs registered entities with fixed-delay semantics: the next
// run of an entity starts Period after its previous run finished.
type Scheduler struct {
	name    string
	mode    Mode
	logger  *slog.Logger
	metrics *metric.Metrics
	now     func() time.Time

	mu      sync.Mutex
	entries []entry
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics counts ticks per entity
func WithMetrics(metrics *metric.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = metrics
	}
}

// New creates a scheduler. name labels its log lines.
func New(name string, mode Mode, opts ...Option) *Scheduler {
	s := &Scheduler{
		name:   name,
		mode:   mode,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("scheduler", name, "mode", mode.String())
	return s
}

// Add registers an entity. It must be called before Start.
func (s *Scheduler) Add(id string, timing Timing, tick TickFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Scheduler", "Add", "add "+id)
	}
	if tick == nil {
		return errors.WrapInvalid(fmt.Errorf("nil tick for %s", id), "Scheduler", "Add", "add "+id)
	}
	if timing.Period <= 0 {
		timing.Period = FallbackPeriod
	}
	s.entries = append(s.entries, entry{id: id, timing: timing, tick: tick})
	return nil
}

// Len returns the number of registered entities
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Start begins ticking. The scheduler stops when ctx is cancelled or Stop is
// called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Scheduler", "Start", "start "+s.name)
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, e := range s.entries {
		s.logger.Info("Scheduling entity",
			"entity", e.id,
			"initial_delay", e.timing.InitialDelay,
			"period", e.timing.Period,
			"enabled", e.timing.Enabled)
	}

	if len(s.entries) == 0 {
		return nil
	}

	switch s.mode {
	case Shared:
		entries := append([]entry(nil), s.entries...)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runShared(runCtx, entries)
		}()
	default:
		for _, e := range s.entries {
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.runIsolated(runCtx, e)
			}()
		}
	}
	return nil
}

// Stop cancels all timers and waits up to timeout for running ticks to
// return. It is safe to call more than once.
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if s.stopped || !s.started {
		s.stopped = true
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		s.logger.Debug("Scheduler stopped")
		return nil
	case <-timer.C:
		s.logger.Warn("Scheduler stop timed out with ticks still running", "timeout", timeout)
		return ErrStopTimeout
	}
}

func (s *Scheduler) runIsolated(ctx context.Context, e entry) {
	if !sleep(ctx, e.timing.InitialDelay) {
		return
	}
	for {
		s.run(ctx, e)
		if !sleep(ctx, e.timing.Period) {
			return
		}
	}
}

// runShared serializes every entity on one goroutine. Each entity keeps its
// own next-run time.
func (s *Scheduler) runShared(ctx context.Context, entries []entry) {
	start := s.now()
	next := make([]time.Time, len(entries))
	for i, e := range entries {
		next[i] = start.Add(e.timing.InitialDelay)
	}

	for {
		due := 0
		for i := range next {
			if next[i].Before(next[due]) {
				due = i
			}
		}

		if !sleep(ctx, next[due].Sub(s.now())) {
			return
		}
		s.run(ctx, entries[due])
		next[due] = s.now().Add(entries[due].timing.Period)
	}
}

// run invokes one tick. Panics are recovered and logged.
func (s *Scheduler) run(ctx context.Context, e entry) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Scheduled tick panicked", "entity", e.id, "panic", r)
			if s.metrics != nil {
				s.metrics.RecordError(e.id, "panic")
			}
		}
	}()

	if s.metrics != nil {
		s.metrics.RecordTick(e.id)
	}
	e.tick(ctx)
}

// sleep waits d or until ctx is done. It reports whether the wait completed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
