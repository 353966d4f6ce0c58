package progress

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (m *manualTicker) source(time.Duration) (<-chan time.Time, func()) {
	m.ch = make(chan time.Time)
	return m.ch, func() {
		m.mu.Lock()
		m.stopped = true
		m.mu.Unlock()
	}
}

func (m *manualTicker) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

type recorder struct {
	mu    sync.Mutex
	steps []Step
	ch    chan Step
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan Step, 32)}
}

func (r *recorder) observe(s Step) {
	r.mu.Lock()
	r.steps = append(r.steps, s)
	r.mu.Unlock()
	r.ch <- s
}

func (r *recorder) wait(t *testing.T, want Step) {
	t.Helper()
	select {
	case got := <-r.ch:
		require.Equal(t, want, got)
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for step %v", want)
	}
}

func (r *recorder) all() []Step {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Step(nil), r.steps...)
}

func TestSimulator_StartActivatesFirstStep(t *testing.T) {
	ticker := &manualTicker{}
	s := New(WithTickSource(ticker.source))

	_, err := s.Start()
	require.NoError(t, err)
	defer s.Settle()

	assert.Equal(t, StepReformulating, s.Step())
	assert.True(t, s.Running())
}

func TestSimulator_TicksStopAtCeiling(t *testing.T) {
	ticker := &manualTicker{}
	rec := newRecorder()
	s := New(WithTickSource(ticker.source), WithObserver(rec.observe))

	_, err := s.Start()
	require.NoError(t, err)
	rec.wait(t, StepReformulating)

	ticker.ch <- time.Now()
	rec.wait(t, StepRetrieving)
	ticker.ch <- time.Now()
	rec.wait(t, StepReading)
	ticker.ch <- time.Now()
	rec.wait(t, StepSummarizing)

	// further ticks never reach done on their own
	ticker.ch <- time.Now()
	ticker.ch <- time.Now()
	assert.Equal(t, StepSummarizing, s.Step())

	s.Settle()
	rec.wait(t, StepDone)
	assert.Equal(t, []Step{StepReformulating, StepRetrieving, StepReading, StepSummarizing, StepDone}, rec.all())
	assert.True(t, s.Completed(StepSummarizing))
}

func TestSimulator_SettleStopsTicking(t *testing.T) {
	ticker := &manualTicker{}
	s := New(WithTickSource(ticker.source))

	gen, err := s.Start()
	require.NoError(t, err)

	s.Settle()
	assert.Equal(t, StepDone, s.Step())
	assert.False(t, s.Running())
	assert.True(t, ticker.isStopped())

	// a tick from the settled run is inert
	s.tick(gen)
	assert.Equal(t, StepDone, s.Step())
}

func TestSimulator_SettleIdempotent(t *testing.T) {
	rec := newRecorder()
	s := New(WithObserver(rec.observe))

	// never started
	s.Settle()
	s.Settle()
	assert.Equal(t, StepDone, s.Step())
	assert.Equal(t, []Step{StepDone}, rec.all())
}

func TestSimulator_StartWhileRunningIsRejected(t *testing.T) {
	ticker := &manualTicker{}
	s := New(WithTickSource(ticker.source))

	_, err := s.Start()
	require.NoError(t, err)

	_, err = s.Start()
	assert.ErrorIs(t, err, ErrRunning)

	s.Settle()
	_, err = s.Start()
	assert.NoError(t, err)
	s.Settle()
}

func TestSimulator_StaleGenerationIgnored(t *testing.T) {
	ticker := &manualTicker{}
	s := New(WithTickSource(ticker.source))

	first, err := s.Start()
	require.NoError(t, err)
	s.Settle()

	second, err := s.Start()
	require.NoError(t, err)
	defer s.Settle()
	require.NotEqual(t, first, second)

	s.tick(first)
	assert.Equal(t, StepReformulating, s.Step())

	s.tick(second)
	assert.Equal(t, StepRetrieving, s.Step())
}

func TestSimulator_RealTicker(t *testing.T) {
	rec := newRecorder()
	s := New(WithInterval(5*time.Millisecond), WithObserver(rec.observe))

	_, err := s.Start()
	require.NoError(t, err)
	rec.wait(t, StepReformulating)
	rec.wait(t, StepRetrieving)

	s.Settle()
	assert.Equal(t, StepDone, s.Step())
}

func TestStep_String(t *testing.T) {
	assert.Equal(t, "Searching the web", StepRetrieving.String())
	assert.Equal(t, "unknown", Step(42).String())
}
