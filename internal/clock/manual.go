package clock

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Scheduler whose time only moves when Advance is called.
// Callbacks run synchronously on the goroutine calling Advance, in
// deadline order, and may schedule further timers.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*manualTimer
}

// NewManual creates a manual clock starting at the given time
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the current manual time
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// AfterFunc schedules f to run once the clock has advanced by d
func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	t := &manualTimer{
		clock:    m,
		deadline: m.now.Add(d),
		seq:      m.seq,
		fn:       f,
	}
	m.timers = append(m.timers, t)
	return t
}

// Advance moves the clock forward by d, firing every timer that falls due
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	end := m.now.Add(d)
	m.mu.Unlock()

	for {
		t := m.nextDue(end)
		if t == nil {
			break
		}
		t.fn()
	}

	m.mu.Lock()
	m.now = end
	m.mu.Unlock()
}

// Pending returns the number of timers that have not fired or been stopped
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// nextDue removes and returns the earliest timer due at or before end,
// moving the clock to its deadline
func (m *Manual) nextDue(end time.Time) *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.timers) == 0 {
		return nil
	}

	sort.Slice(m.timers, func(i, j int) bool {
		if m.timers[i].deadline.Equal(m.timers[j].deadline) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].deadline.Before(m.timers[j].deadline)
	})

	t := m.timers[0]
	if t.deadline.After(end) {
		return nil
	}
	m.timers = m.timers[1:]
	if t.deadline.After(m.now) {
		m.now = t.deadline
	}
	return t
}

func (m *Manual) remove(target *manualTimer) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, t := range m.timers {
		if t == target {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			return true
		}
	}
	return false
}

type manualTimer struct {
	clock    *Manual
	deadline time.Time
	seq      uint64
	fn       func()
}

func (t *manualTimer) Stop() bool {
	return t.clock.remove(t)
}
