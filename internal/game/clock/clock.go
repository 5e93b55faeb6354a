// Package clock provides the process-wide periodic scheduler that drives
// battle rounds and other interval work.
package clock

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Cancelable is a registration that can be withdrawn.
type Cancelable interface {
	// Cancel stops future invocations. Safe to call multiple times.
	Cancel()
}

// Scheduler registers callbacks invoked at a fixed interval.
type Scheduler interface {
	Interval(name string, period time.Duration, fn func()) Cancelable
}

// Clock runs one ticker goroutine per registered interval.
// Callbacks for a single registration never overlap; a panicking callback is
// logged and the interval keeps running.
type Clock struct {
	logger  *zap.Logger
	mu      sync.Mutex
	handles map[*Handle]struct{}
}

// New creates a Clock with no registrations.
//
// Precondition: logger must be non-nil.
func New(logger *zap.Logger) *Clock {
	return &Clock{
		logger:  logger,
		handles: make(map[*Handle]struct{}),
	}
}

// Handle is a single interval registration.
type Handle struct {
	name    string
	period  time.Duration
	done    chan struct{}
	mu      sync.Mutex
	stopped bool
	once    sync.Once
	onStop  func(*Handle)
}

// Name returns the registration name.
func (h *Handle) Name() string { return h.name }

// Cancel stops the interval. A tick that has not yet started will not run.
func (h *Handle) Cancel() {
	h.once.Do(func() {
		h.mu.Lock()
		h.stopped = true
		h.mu.Unlock()
		close(h.done)
		if h.onStop != nil {
			h.onStop(h)
		}
	})
}

func (h *Handle) active() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.stopped
}

// Interval invokes fn every period until the returned handle is cancelled.
//
// Precondition: period > 0; fn must not be nil.
// Postcondition: Returns a running *Handle.
func (c *Clock) Interval(name string, period time.Duration, fn func()) Cancelable {
	if period <= 0 {
		panic(fmt.Sprintf("clock: interval %q: period must be > 0", name))
	}
	h := &Handle{
		name:   name,
		period: period,
		done:   make(chan struct{}),
		onStop: c.forget,
	}
	c.mu.Lock()
	c.handles[h] = struct{}{}
	c.mu.Unlock()

	c.logger.Debug("interval registered",
		zap.String("interval", name),
		zap.Duration("period", period),
	)
	go c.run(h, fn)
	return h
}

func (c *Clock) run(h *Handle, fn func()) {
	ticker := time.NewTicker(h.period)
	defer ticker.Stop()
	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			if !h.active() {
				return
			}
			c.invoke(h, fn)
		}
	}
}

func (c *Clock) invoke(h *Handle, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("interval callback panicked",
				zap.String("interval", h.name),
				zap.Any("panic", r),
			)
		}
	}()
	fn()
}

func (c *Clock) forget(h *Handle) {
	c.mu.Lock()
	delete(c.handles, h)
	c.mu.Unlock()
	c.logger.Debug("interval cancelled", zap.String("interval", h.name))
}

// Len returns the number of live registrations.
func (c *Clock) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

// Stop cancels every registration. Idempotent.
func (c *Clock) Stop() {
	c.mu.Lock()
	handles := make([]*Handle, 0, len(c.handles))
	for h := range c.handles {
		handles = append(handles, h)
	}
	c.mu.Unlock()
	for _, h := range handles {
		h.Cancel()
	}
}
