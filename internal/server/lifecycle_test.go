package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/bestm80eva/Solace/internal/game/clock"
)

type mockService struct {
	started atomic.Bool
	stopped atomic.Bool
	startFn func() error
}

func (m *mockService) Start() error {
	m.started.Store(true)
	if m.startFn != nil {
		return m.startFn()
	}
	for !m.stopped.Load() {
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

func (m *mockService) Stop() {
	m.stopped.Store(true)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("condition not met in time")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestLifecycleStartsAndStopsServices(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	svc1 := &mockService{}
	svc2 := &mockService{}
	lc.Add("svc1", svc1)
	lc.Add("svc2", svc2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()

	waitFor(t, func() bool { return svc1.started.Load() && svc2.started.Load() })
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
	}
	assert.True(t, svc1.stopped.Load())
	assert.True(t, svc2.stopped.Load())
}

func TestLifecycleReturnsServiceFailure(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t))
	healthy := &mockService{}
	lc.Add("healthy", healthy)
	lc.Add("broken", &mockService{startFn: func() error { return errors.New("boom") }})

	err := lc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service broken: boom")
	assert.True(t, healthy.stopped.Load())
}

func TestFuncService(t *testing.T) {
	started, stopped := false, false
	svc := &FuncService{
		StartFn: func() error { started = true; return nil },
		StopFn:  func() { stopped = true },
	}
	assert.NoError(t, svc.Start())
	assert.True(t, started)
	svc.Stop()
	assert.True(t, stopped)
}

func TestBackground_BlocksUntilStop(t *testing.T) {
	var starts, stops atomic.Int32
	svc := Background(func() { starts.Add(1) }, func() { stops.Add(1) })

	done := make(chan error, 1)
	go func() { done <- svc.Start() }()
	waitFor(t, func() bool { return starts.Load() == 1 })

	select {
	case <-done:
		t.Fatal("Start returned before Stop")
	case <-time.After(20 * time.Millisecond):
	}
	svc.Stop()
	svc.Stop()
	assert.NoError(t, <-done)
	assert.Equal(t, int32(1), stops.Load())
}

type fakeHandle struct{ cancelled atomic.Bool }

func (h *fakeHandle) Cancel() { h.cancelled.Store(true) }

type fakeScheduler struct {
	mu     sync.Mutex
	names  []string
	fns    []func()
	handle *fakeHandle
}

func (s *fakeScheduler) Interval(name string, _ time.Duration, fn func()) clock.Cancelable {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, name)
	s.fns = append(s.fns, fn)
	s.handle = &fakeHandle{}
	return s.handle
}

func (s *fakeScheduler) registered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fns)
}

func TestInterval_RegistersAndCancels(t *testing.T) {
	sched := &fakeScheduler{}
	var calls atomic.Int32
	svc := Interval(sched, "regen", time.Second, func() { calls.Add(1) })

	done := make(chan error, 1)
	go func() { done <- svc.Start() }()
	waitFor(t, func() bool { return sched.registered() == 1 })

	sched.fns[0]()
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []string{"regen"}, sched.names)

	svc.Stop()
	require.NoError(t, <-done)
	assert.True(t, sched.handle.cancelled.Load())
}
