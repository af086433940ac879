// Package clock provides the scheduling primitives used by the ride engine.
//
// Every engine component waits only through a Scheduler. In production the
// Loop runs all sensor events and timer callbacks on one goroutine, so the
// components never need locks. Tests use Manual to step time explicitly.
package clock

import (
	"time"
)

// Timer is a pending one-shot callback
type Timer interface {
	// Stop prevents the callback from running. It reports whether the call
	// stopped the timer, false if it already ran or was already stopped.
	Stop() bool
}

// Scheduler schedules one-shot callbacks
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
	Now() time.Time
}
