package ride

import (
	"math"

	"github.com/saviobatista/ride-guardian/internal/clock"
	"github.com/saviobatista/ride-guardian/internal/config"
)

// StoppedSpeed is the speed in m/s below which the bike is considered stationary
const StoppedSpeed = 1.0

// CrashState is the debounce state of a CrashDetector
type CrashState int

const (
	CrashClear CrashState = iota
	CrashPending
)

func (s CrashState) String() string {
	switch s {
	case CrashClear:
		return "clear"
	case CrashPending:
		return "pending"
	default:
		return "unknown"
	}
}

// CrashDetector raises an alert once the lean angle has stayed above the
// alert angle, with the bike stationary, for the whole alert window.
type CrashDetector struct {
	sched    clock.Scheduler
	settings *config.Settings
	onAlert  func()
	armed    func() bool
	pending  clock.Timer
}

// NewCrashDetector creates a detector. armed is consulted when the debounce
// timer fires; a detector that is not armed at that moment stays silent.
func NewCrashDetector(sched clock.Scheduler, settings *config.Settings, onAlert func(), armed func() bool) *CrashDetector {
	return &CrashDetector{
		sched:    sched,
		settings: settings,
		onAlert:  onAlert,
		armed:    armed,
	}
}

// Check feeds one lean angle/speed observation into the state machine
func (d *CrashDetector) Check(leanAngle, speed float64) {
	breach := math.Abs(leanAngle) > d.settings.AlertAngle && speed < StoppedSpeed

	if d.pending == nil {
		if breach {
			d.pending = d.sched.AfterFunc(d.settings.AlertAfter, d.fire)
		}
		return
	}

	if !breach {
		// A blip, not a crash
		d.Reset()
	}
}

// Reset cancels any pending alert
func (d *CrashDetector) Reset() {
	if d.pending != nil {
		d.pending.Stop()
		d.pending = nil
	}
}

// State returns the current debounce state
func (d *CrashDetector) State() CrashState {
	if d.pending != nil {
		return CrashPending
	}
	return CrashClear
}

func (d *CrashDetector) fire() {
	d.pending = nil
	if d.armed != nil && !d.armed() {
		return
	}
	if d.onAlert != nil {
		safeCall("alert callback", d.onAlert)
	}
}
