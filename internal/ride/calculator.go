// Package ride turns raw tilt and position updates into smoothed ride data
// and detects crashes.
package ride

import (
	"log"
	"math"

	"github.com/saviobatista/ride-guardian/internal/clock"
	"github.com/saviobatista/ride-guardian/internal/config"
	"github.com/saviobatista/ride-guardian/internal/smoothing"
	"github.com/saviobatista/ride-guardian/internal/types"
)

// initialGPSAccuracy is reported until the first position fix arrives
const initialGPSAccuracy = 99.0

// Calculator samples the latest tilt reading on a fixed period, smooths it
// with a moving average and calls back with RideData.
//
// Until Start is called every tick re-captures the neutral lean, and the
// reported lean angle is 0. Start freezes the neutral lean and enables
// crash detection.
//
// All methods must be called from the scheduler's goroutine.
type Calculator struct {
	sched    clock.Scheduler
	settings *config.Settings
	onData   func(types.RideData)
	buffer   *smoothing.SampleBuffer
	crash    *CrashDetector

	started       bool
	centeredLean  float64
	rawLeanAngle  float64
	callbackCount int

	latitude    float64
	longitude   float64
	speed       float64
	gpsAccuracy float64

	running bool
	tick    clock.Timer
}

// NewCalculator creates a calculator. The moving average size is taken from
// settings once and stays fixed for the calculator's lifetime.
func NewCalculator(sched clock.Scheduler, settings *config.Settings, onData func(types.RideData), onAlert func()) *Calculator {
	log.Printf("Lean angle calculator using moving average of %d samples", settings.NumberSamples)

	c := &Calculator{
		sched:       sched,
		settings:    settings,
		onData:      onData,
		buffer:      smoothing.NewSampleBuffer(settings.NumberSamples),
		gpsAccuracy: initialGPSAccuracy,
	}
	c.crash = NewCrashDetector(sched, settings, onAlert, c.Started)
	return c
}

// Open starts the sample loop
func (c *Calculator) Open() {
	if c.running {
		return
	}
	c.running = true
	c.tick = c.sched.AfterFunc(c.settings.SampleInterval, c.onTick)
}

// Close stops the sample loop and cancels every outstanding timer. It is
// safe to call more than once.
func (c *Calculator) Close() {
	c.running = false
	if c.tick != nil {
		c.tick.Stop()
		c.tick = nil
	}
	c.crash.Reset()
}

// Start freezes the neutral lean and starts checking for crashes
func (c *Calculator) Start() {
	c.started = true
}

// Stop resumes re-centering and clears any pending crash alert. It is safe
// to call more than once.
func (c *Calculator) Stop() {
	c.started = false
	c.crash.Reset()
}

// Started reports whether a ride is being measured
func (c *Calculator) Started() bool {
	return c.started
}

// CenteredLean returns the current neutral lean reference
func (c *Calculator) CenteredLean() float64 {
	return c.centeredLean
}

// CrashState returns the state of the embedded crash detector
func (c *Calculator) CrashState() CrashState {
	return c.crash.State()
}

// SetAlertAngle changes the crash threshold. A pending alert keeps its timer.
func (c *Calculator) SetAlertAngle(angle float64) error {
	return c.settings.UpdateConfig(config.SettingsUpdate{AlertAngle: &angle})
}

// OnOrientation stores the latest tilt reading for the next tick
func (c *Calculator) OnOrientation(sample types.OrientationSample) {
	if math.IsNaN(sample.Beta) || math.IsInf(sample.Beta, 0) {
		log.Printf("Ignoring invalid orientation sample: %v", sample.Beta)
		return
	}
	c.rawLeanAngle = sample.Beta
}

// OnPosition stores the latest position fix. No staleness check is made;
// the values are used by every tick until the next fix.
func (c *Calculator) OnPosition(fix types.PositionFix) {
	c.latitude = fix.Latitude
	c.longitude = fix.Longitude
	c.speed = fix.SpeedOrZero()
	c.gpsAccuracy = fix.Accuracy
}

// OnPositionError logs a geolocation failure; the last known values are kept
func (c *Calculator) OnPositionError(err error) {
	log.Printf("GPS error: %v", err)
}

// LastPosition returns the last known latitude and longitude
func (c *Calculator) LastPosition() (float64, float64) {
	return c.latitude, c.longitude
}

func (c *Calculator) onTick() {
	c.tick = nil
	if !c.running {
		return
	}

	c.buffer.Push(c.rawLeanAngle)
	movingAverage := c.buffer.Average()

	var leanAngle float64
	if c.started {
		leanAngle = movingAverage - c.centeredLean
		c.crash.Check(leanAngle, c.speed)
	} else {
		c.centeredLean = movingAverage
	}

	c.callbackCount++
	if c.callbackCount >= max(c.settings.CallbackEveryNSamples, 1) {
		c.callbackCount = 0
		data := types.RideData{
			LeanAngle:   leanAngle,
			Speed:       c.speed,
			Latitude:    c.latitude,
			Longitude:   c.longitude,
			GPSAccuracy: c.gpsAccuracy,
			Timestamp:   c.sched.Now(),
		}
		if c.onData != nil {
			safeCall("ride data callback", func() { c.onData(data) })
		}
	}

	// Scheduled after the callback so a slow callback stretches the period
	// instead of stacking ticks. The callback may have closed or reopened us.
	if c.running && c.tick == nil {
		c.tick = c.sched.AfterFunc(c.settings.SampleInterval, c.onTick)
	}
}

func safeCall(name string, f func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in %s: %v", name, r)
		}
	}()
	f()
}
