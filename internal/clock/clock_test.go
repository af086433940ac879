package clock

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestManual_AdvanceFiresInDeadlineOrder(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	var order []string
	m.AfterFunc(3*time.Second, func() { order = append(order, "c") })
	m.AfterFunc(1*time.Second, func() { order = append(order, "a") })
	m.AfterFunc(2*time.Second, func() { order = append(order, "b") })

	m.Advance(2 * time.Second)
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("Unexpected order after 2s: %v", order)
	}

	m.Advance(time.Second)
	if len(order) != 3 || order[2] != "c" {
		t.Fatalf("Unexpected order after 3s: %v", order)
	}
	if m.Pending() != 0 {
		t.Errorf("Expected no pending timers, got %d", m.Pending())
	}
}

func TestManual_RescheduleWithinAdvance(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	start := m.Now()

	var fired []time.Duration
	var tick func()
	tick = func() {
		fired = append(fired, m.Now().Sub(start))
		m.AfterFunc(100*time.Millisecond, tick)
	}
	m.AfterFunc(100*time.Millisecond, tick)

	m.Advance(time.Second)

	if len(fired) != 10 {
		t.Fatalf("Expected 10 ticks, got %d", len(fired))
	}
	for i, d := range fired {
		if want := time.Duration(i+1) * 100 * time.Millisecond; d != want {
			t.Errorf("tick %d at %v, want %v", i, d, want)
		}
	}
	if got := m.Now().Sub(start); got != time.Second {
		t.Errorf("Now advanced by %v, want 1s", got)
	}
}

func TestManual_Stop(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	fired := false
	timer := m.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Error("Stop() should report stopping a pending timer")
	}
	if timer.Stop() {
		t.Error("Second Stop() should report false")
	}

	m.Advance(2 * time.Second)
	if fired {
		t.Error("Stopped timer fired")
	}
}

func TestLoop_PostAndDo(t *testing.T) {
	loop := NewLoop(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = loop.Run(ctx) }()

	var counter int
	for i := 0; i < 5; i++ {
		if err := loop.Post(func() { counter++ }); err != nil {
			t.Fatalf("Post() failed: %v", err)
		}
	}

	var observed int
	if err := loop.Do(ctx, func() { observed = counter }); err != nil {
		t.Fatalf("Do() failed: %v", err)
	}
	if observed != 5 {
		t.Errorf("Expected 5 events before Do, got %d", observed)
	}
}

func TestLoop_RecoversFromPanic(t *testing.T) {
	loop := NewLoop(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = loop.Run(ctx) }()

	if err := loop.Post(func() { panic("bad sample") }); err != nil {
		t.Fatalf("Post() failed: %v", err)
	}

	ran := false
	if err := loop.Do(ctx, func() { ran = true }); err != nil {
		t.Fatalf("Do() failed after panic: %v", err)
	}
	if !ran {
		t.Error("Loop did not continue after panic")
	}
}

func TestLoop_AfterFuncAndStop(t *testing.T) {
	loop := NewLoop(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = loop.Run(ctx) }()

	fired := make(chan struct{})
	loop.AfterFunc(10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("Timer did not fire")
	}

	var stoppedFired atomic.Bool
	timer := loop.AfterFunc(50*time.Millisecond, func() { stoppedFired.Store(true) })
	if !timer.Stop() {
		t.Error("Stop() should report stopping a pending timer")
	}

	time.Sleep(100 * time.Millisecond)
	_ = loop.Do(ctx, func() {})
	if stoppedFired.Load() {
		t.Error("Stopped timer fired")
	}
}

func TestLoop_PostAfterStop(t *testing.T) {
	loop := NewLoop(1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error)
	go func() { done <- loop.Run(ctx) }()
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() returned %v, want context.Canceled", err)
	}
	if err := loop.Post(func() {}); !errors.Is(err, ErrLoopClosed) {
		t.Errorf("Post() after stop returned %v, want ErrLoopClosed", err)
	}
}
