package clock

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// ErrLoopClosed is returned when posting to a loop that has stopped
var ErrLoopClosed = errors.New("event loop closed")

const (
	timerPending int32 = iota
	timerFired
	timerStopped
)

// Loop serializes events and timer callbacks onto a single goroutine
type Loop struct {
	events chan func()
	done   chan struct{}
	once   sync.Once
}

// NewLoop creates a loop with the given event queue size
func NewLoop(queueSize int) *Loop {
	return &Loop{
		events: make(chan func(), queueSize),
		done:   make(chan struct{}),
	}
}

// Run executes posted events until the context is cancelled
func (l *Loop) Run(ctx context.Context) error {
	defer l.once.Do(func() { close(l.done) })

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-l.events:
			l.execute(f)
		}
	}
}

// execute runs one event, recovering so that a single failing event never
// stops the loop
func (l *Loop) execute(f func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in event loop: %v", r)
		}
	}()
	f()
}

// Post queues f to run on the loop goroutine. It blocks while the queue is
// full and fails once the loop has stopped.
func (l *Loop) Post(f func()) error {
	select {
	case <-l.done:
		return ErrLoopClosed
	default:
	}

	select {
	case l.events <- f:
		return nil
	case <-l.done:
		return ErrLoopClosed
	}
}

// Do runs f on the loop goroutine and waits for it to finish
func (l *Loop) Do(ctx context.Context, f func()) error {
	finished := make(chan struct{})
	if err := l.Post(func() {
		defer close(finished)
		f()
	}); err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Now returns the wall clock time
func (l *Loop) Now() time.Time {
	return time.Now()
}

// AfterFunc schedules f to run on the loop goroutine after d
func (l *Loop) AfterFunc(d time.Duration, f func()) Timer {
	t := &loopTimer{}
	t.timer = time.AfterFunc(d, func() {
		err := l.Post(func() {
			// Checked on the loop goroutine, so a Stop issued by an earlier
			// event always wins over an already queued callback.
			if t.state.CompareAndSwap(timerPending, timerFired) {
				f()
			}
		})
		if err != nil {
			t.state.CompareAndSwap(timerPending, timerStopped)
		}
	})
	return t
}

type loopTimer struct {
	timer *time.Timer
	state atomic.Int32
}

func (t *loopTimer) Stop() bool {
	t.timer.Stop()
	return t.state.CompareAndSwap(timerPending, timerStopped)
}
