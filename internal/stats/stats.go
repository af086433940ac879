package stats

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saviobatista/ride-guardian/internal/types"
)

// eventKinds is the number of counters kept per sensor event kind. Index 0
// counts lines that did not parse into a known kind.
const eventKinds = int(types.EventControl) + 1

// Store persists statistics snapshots
type Store interface {
	StoreSystemStats(stats *types.SystemStats) error
}

// Stats tracks sensor processing and ride statistics
type Stats struct {
	// Message counts
	TotalMessages  uint64
	ParsedMessages uint64
	FailedMessages uint64

	// Per event kind counts
	EventCounts [eventKinds]uint64

	// Ride counts
	RideDataPoints uint64
	CrashAlerts    uint64
	SMSSent        uint64
	SMSFailed      uint64
	StartedRides   uint64
	CompletedRides uint64
	ActiveRides    uint64

	// Timing
	LastMessageTime time.Time
	ProcessingTime  time.Duration
	startedAt       time.Time

	store Store

	mu sync.RWMutex
}

// New creates a new Stats instance
func New() *Stats {
	now := time.Now()
	return &Stats{
		LastMessageTime: now,
		startedAt:       now,
	}
}

// SetStore sets the store used for persistence
func (s *Stats) SetStore(store Store) {
	s.mu.Lock()
	s.store = store
	s.mu.Unlock()
}

// Persist stores the current statistics
func (s *Stats) Persist() error {
	s.mu.RLock()
	store := s.store
	s.mu.RUnlock()
	if store == nil {
		return fmt.Errorf("stats store not set")
	}

	return store.StoreSystemStats(s.GetStats())
}

// IncrementTotalMessages increments the total messages counter
func (s *Stats) IncrementTotalMessages() {
	atomic.AddUint64(&s.TotalMessages, 1)
}

// IncrementParsedMessages increments the parsed messages counter
func (s *Stats) IncrementParsedMessages() {
	atomic.AddUint64(&s.ParsedMessages, 1)
}

// IncrementFailedMessages increments the failed messages counter
func (s *Stats) IncrementFailedMessages() {
	atomic.AddUint64(&s.FailedMessages, 1)
}

// IncrementEvent increments the counter of a sensor event kind
func (s *Stats) IncrementEvent(kind types.SensorEventKind) {
	if kind >= 0 && int(kind) < len(s.EventCounts) {
		atomic.AddUint64(&s.EventCounts[kind], 1)
	}
}

// IncrementRideDataPoints increments the emitted ride data counter
func (s *Stats) IncrementRideDataPoints() {
	atomic.AddUint64(&s.RideDataPoints, 1)
}

// IncrementCrashAlerts increments the crash alerts counter
func (s *Stats) IncrementCrashAlerts() {
	atomic.AddUint64(&s.CrashAlerts, 1)
}

// IncrementSMSSent increments the sent text messages counter
func (s *Stats) IncrementSMSSent() {
	atomic.AddUint64(&s.SMSSent, 1)
}

// IncrementSMSFailed increments the failed text messages counter
func (s *Stats) IncrementSMSFailed() {
	atomic.AddUint64(&s.SMSFailed, 1)
}

// RideStarted counts a started ride
func (s *Stats) RideStarted() {
	atomic.AddUint64(&s.StartedRides, 1)
	atomic.AddUint64(&s.ActiveRides, 1)
}

// RideCompleted counts a completed ride
func (s *Stats) RideCompleted() {
	atomic.AddUint64(&s.CompletedRides, 1)
	for {
		active := atomic.LoadUint64(&s.ActiveRides)
		if active == 0 || atomic.CompareAndSwapUint64(&s.ActiveRides, active, active-1) {
			return
		}
	}
}

// UpdateLastMessageTime updates the last message time
func (s *Stats) UpdateLastMessageTime() {
	s.mu.Lock()
	s.LastMessageTime = time.Now()
	s.mu.Unlock()
}

// AddProcessingTime adds to the total processing time
func (s *Stats) AddProcessingTime(duration time.Duration) {
	s.mu.Lock()
	s.ProcessingTime += duration
	s.mu.Unlock()
}

// GetStats returns a snapshot of the current statistics
func (s *Stats) GetStats() *types.SystemStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make([]int64, len(s.EventCounts))
	for i := range s.EventCounts {
		counts[i] = int64(atomic.LoadUint64(&s.EventCounts[i]))
	}

	return &types.SystemStats{
		TotalMessages:  atomic.LoadUint64(&s.TotalMessages),
		ParsedMessages: atomic.LoadUint64(&s.ParsedMessages),
		FailedMessages: atomic.LoadUint64(&s.FailedMessages),
		EventCounts:    counts,
		RideDataPoints: atomic.LoadUint64(&s.RideDataPoints),
		CrashAlerts:    atomic.LoadUint64(&s.CrashAlerts),
		SMSSent:        atomic.LoadUint64(&s.SMSSent),
		SMSFailed:      atomic.LoadUint64(&s.SMSFailed),
		StartedRides:   atomic.LoadUint64(&s.StartedRides),
		CompletedRides: atomic.LoadUint64(&s.CompletedRides),
		ActiveRides:    atomic.LoadUint64(&s.ActiveRides),
		LastMessage:    s.LastMessageTime,
		ProcessingTime: s.ProcessingTime,
		Uptime:         time.Since(s.startedAt),
		Timestamp:      time.Now().UTC(),
	}
}

// String returns a string representation of the statistics
func (s *Stats) String() string {
	stats := s.GetStats()
	return fmt.Sprintf(
		"Total Messages: %d\n"+
			"Parsed Messages: %d\n"+
			"Failed Messages: %d\n"+
			"Ride Data Points: %d\n"+
			"Crash Alerts: %d\n"+
			"SMS Sent: %d\n"+
			"SMS Failed: %d\n"+
			"Completed Rides: %d\n"+
			"Active Rides: %d\n"+
			"Last Message Time: %s\n"+
			"Processing Time: %s\n"+
			"Uptime: %s",
		stats.TotalMessages,
		stats.ParsedMessages,
		stats.FailedMessages,
		stats.RideDataPoints,
		stats.CrashAlerts,
		stats.SMSSent,
		stats.SMSFailed,
		stats.CompletedRides,
		stats.ActiveRides,
		stats.LastMessage.Format(time.RFC3339),
		stats.ProcessingTime,
		stats.Uptime.Truncate(time.Second),
	)
}

// StartPersistence persists statistics every interval until ctx is done
func (s *Stats) StartPersistence(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final persistence before shutdown
			if err := s.Persist(); err != nil {
				fmt.Printf("Failed to persist final statistics: %v\n", err)
			}
			return
		case <-ticker.C:
			if err := s.Persist(); err != nil {
				fmt.Printf("Failed to persist statistics: %v\n", err)
			}
		}
	}
}
