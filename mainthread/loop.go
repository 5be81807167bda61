// Package mainthread provides the main execution context that UI-affine OS
// calls must run on.
//
// A Loop is driven from the program's main goroutine:
//
//	loop := mainthread.New()
//	go app(loop) // posts work from anywhere
//	loop.Run(ctx)
package mainthread

import (
	"context"
	"runtime"
	"sync"
)

// Loop runs posted functions one at a time, in posting order, on the goroutine
// that called Run. That goroutine is locked to its OS thread while Run is active.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	stopped bool
}

// New creates an idle Loop.
func New() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post queues fn for the loop. It never blocks. Functions posted after Run
// has returned are dropped.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run drains posted functions until ctx is done and returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	defer func() {
		l.mu.Lock()
		l.stopped = true
		l.queue = nil
		l.mu.Unlock()
	}()

	for {
		for {
			fn := l.next()
			if fn == nil {
				break
			}
			fn()
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Pending returns the number of queued functions.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *Loop) next() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn
}

// Immediate runs posted functions inline on the caller's goroutine.
type Immediate struct{}

// Post calls fn.
func (Immediate) Post(fn func()) {
	if fn != nil {
		fn()
	}
}
