// Package progress drives a best-effort progress indicator for an
// outstanding search. It has no signal from the backend: steps advance on a
// fixed interval and only settlement marks the search done.
package progress

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// DefaultInterval is the time between automatic step advances.
const DefaultInterval = 2 * time.Second

// Step is a coarse phase of backend work.
type Step int

const (
	StepIdle Step = iota
	StepReformulating
	StepRetrieving
	StepReading
	StepSummarizing
	StepDone
)

// lastAutoStep is the ceiling for ticks; only Settle goes past it.
const lastAutoStep = StepSummarizing

func (s Step) String() string {
	switch s {
	case StepIdle:
		return "idle"
	case StepReformulating:
		return "Generating search queries"
	case StepRetrieving:
		return "Searching the web"
	case StepReading:
		return "Reading sources"
	case StepSummarizing:
		return "Writing the answer"
	case StepDone:
		return "done"
	}
	return "unknown"
}

// ErrRunning is returned by Start when the previous run was not settled.
var ErrRunning = errors.New("progress: simulator already running")

// TickSource returns a channel of ticks every d and a func that stops it.
type TickSource func(d time.Duration) (<-chan time.Time, func())

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(s *Simulator) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithTickSource replaces the wall-clock ticker.
func WithTickSource(src TickSource) Option {
	return func(s *Simulator) { s.tickSource = src }
}

// WithObserver registers fn to receive every step change. fn runs with the
// simulator locked and must not call back into it.
func WithObserver(fn func(Step)) Option {
	return func(s *Simulator) { s.observer = fn }
}

// Simulator is the single progress indicator of a session. Every Start opens
// a new generation; ticks belonging to an older generation are ignored.
type Simulator struct {
	interval   time.Duration
	tickSource TickSource
	observer   func(Step)

	mu      sync.Mutex
	step    Step
	gen     uint64
	running bool
	stop    func()
	done    chan struct{}
}

func New(opts ...Option) *Simulator {
	s := &Simulator{
		interval:   DefaultInterval,
		tickSource: realTicker,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start activates step 1 and begins ticking.
func (s *Simulator) Start() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return s.gen, ErrRunning
	}

	s.gen++
	s.running = true
	s.done = make(chan struct{})
	ticks, stop := s.tickSource(s.interval)
	s.stop = stop
	s.setStepLocked(StepReformulating)

	go s.run(s.gen, ticks, s.done)

	return s.gen, nil
}

func (s *Simulator) run(gen uint64, ticks <-chan time.Time, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ticks:
			s.tick(gen)
		}
	}
}

// tick advances one step unless gen is stale or the ceiling is reached.
func (s *Simulator) tick(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || !s.running || s.step >= lastAutoStep {
		return
	}
	s.setStepLocked(s.step + 1)
}

// Settle stops ticking and marks every step completed. Safe to call any
// number of times, running or not.
func (s *Simulator) Settle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.running = false
		s.stop()
		close(s.done)
		// invalidate any tick already in flight
		s.gen++
	}
	if s.step != StepDone {
		s.setStepLocked(StepDone)
	}
}

func (s *Simulator) setStepLocked(step Step) {
	s.step = step
	if s.observer != nil {
		s.observer(step)
	}
}

// Step returns the active step.
func (s *Simulator) Step() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// Running reports whether a run is waiting for settlement.
func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Completed reports whether step n is marked completed.
func (s *Simulator) Completed(n Step) bool {
	return n < s.Step()
}
