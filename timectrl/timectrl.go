// Package timectrl drives the simulation clock. A TickController runs every
// registered listener on one goroutine, in registration order, once per tick;
// that goroutine is the simulation thread.
package timectrl

import (
	"context"
	"sync"
	"time"
)

// Mode describes how the TickController advances ticks.
type Mode int

const (
	// RealTime advances one tick per Interval of wall-clock time.
	RealTime Mode = iota
	// Accelerated advances as quickly as the listeners allow.
	Accelerated
)

// TickController counts ticks and notifies registered listeners.
type TickController struct {
	Interval time.Duration
	Mode     Mode

	mu        sync.RWMutex
	tick      uint64
	listeners []func(tick uint64)
	running   bool
}

// NewTickController constructs a controller at tick 0.
func NewTickController(interval time.Duration, mode Mode) *TickController {
	return &TickController{
		Interval: interval,
		Mode:     mode,
	}
}

// Tick returns the last tick delivered to listeners.
func (tc *TickController) Tick() uint64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.tick
}

// AddListener registers a callback invoked on every tick. Listeners added
// after Start are not called.
func (tc *TickController) AddListener(fn func(tick uint64)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Step advances one tick synchronously on the caller's goroutine. It must not
// be mixed with a running Start loop.
func (tc *TickController) Step() uint64 {
	tc.mu.Lock()
	tc.tick++
	tick := tc.tick
	listeners := tc.listeners
	tc.mu.Unlock()

	for _, fn := range listeners {
		fn(tick)
	}
	return tick
}

// Start runs the controller in a separate goroutine until ctx is done. It
// returns a channel that is closed when the loop exits. Calling Start on a
// running controller returns an already-closed channel.
func (tc *TickController) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})

	tc.mu.Lock()
	if tc.running {
		tc.mu.Unlock()
		close(done)
		return done
	}
	tc.running = true
	tc.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			tc.mu.Lock()
			tc.running = false
			tc.mu.Unlock()
		}()

		var tickC <-chan time.Time
		if tc.Mode == RealTime && tc.Interval > 0 {
			ticker := time.NewTicker(tc.Interval)
			defer ticker.Stop()
			tickC = ticker.C
		}

		for {
			if tickC != nil {
				select {
				case <-ctx.Done():
					return
				case <-tickC:
				}
			} else if ctx.Err() != nil {
				return
			}
			tc.Step()
		}
	}()
	return done
}
