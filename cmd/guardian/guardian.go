package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/saviobatista/ride-guardian/internal/clock"
	"github.com/saviobatista/ride-guardian/internal/config"
	"github.com/saviobatista/ride-guardian/internal/escalation"
	"github.com/saviobatista/ride-guardian/internal/parser"
	"github.com/saviobatista/ride-guardian/internal/recorder"
	"github.com/saviobatista/ride-guardian/internal/ride"
	"github.com/saviobatista/ride-guardian/internal/route"
	"github.com/saviobatista/ride-guardian/internal/stats"
	"github.com/saviobatista/ride-guardian/internal/types"
)

const storeTimeout = 2 * time.Second

// ErrClosed is returned for events arriving after Close
var ErrClosed = errors.New("guardian closed")

// Publisher interface for testability
type Publisher interface {
	PublishRideData(riderID string, data *types.RideData) error
	PublishAlert(event *types.AlertEvent) error
	PublishRideSummary(ride *types.Ride) error
	PublishSMS(req *types.SMSRequest) error
}

// RideStore interface for testability
type RideStore interface {
	StoreRide(ride *types.Ride) error
	StoreAlertEvent(event *types.AlertEvent) error
}

// LiveStore interface for testability
type LiveStore interface {
	StoreRideData(ctx context.Context, riderID string, data *types.RideData) error
	DeleteRideData(ctx context.Context, riderID string) error
	StoreAlert(ctx context.Context, event *types.AlertEvent) error
	DeleteAlert(ctx context.Context, riderID string) error
	StoreLastRide(ctx context.Context, ride *types.Ride) error
}

// SettingsWriter persists rider setting changes
type SettingsWriter interface {
	SetSetting(ctx context.Context, key, value string) error
}

// Guardian owns the ride state of one rider: the lean calculator, the crash
// escalation and the recording of the current ride. All methods run on the
// scheduler's goroutine.
type Guardian struct {
	riderID   string
	sched     clock.Scheduler
	settings  *config.Settings
	calc      *ride.Calculator
	sequencer *escalation.Sequencer
	recorder  *recorder.Recorder

	publisher Publisher
	rides     RideStore
	live      LiveStore
	writer    SettingsWriter
	stats     *stats.Stats
	newID     func() string
	closed    bool
}

// Dependencies are the collaborators of a Guardian. Stores and the writer
// may be nil.
type Dependencies struct {
	Publisher Publisher
	Rides     RideStore
	Live      LiveStore
	Settings  SettingsWriter
	Alarm     escalation.Alarm
	Stats     *stats.Stats
}

// NewGuardian creates the controller for a rider
func NewGuardian(riderID string, sched clock.Scheduler, settings *config.Settings, deps Dependencies) *Guardian {
	g := &Guardian{
		riderID:   riderID,
		sched:     sched,
		settings:  settings,
		recorder:  recorder.New(),
		publisher: deps.Publisher,
		rides:     deps.Rides,
		live:      deps.Live,
		writer:    deps.Settings,
		stats:     deps.Stats,
		newID:     func() string { return uuid.New().String() },
	}
	if g.stats == nil {
		g.stats = stats.New()
	}

	g.calc = ride.NewCalculator(sched, settings, g.onRideData, g.onCrash)
	sms := &smsSender{publisher: deps.Publisher, stats: g.stats, now: sched.Now}
	g.sequencer = escalation.NewSequencer(sched, settings, deps.Alarm, sms, g.calc, g.onAlertEvent)
	return g
}

// Open starts sampling
func (g *Guardian) Open() {
	g.calc.Open()
}

// Close ends any ride in progress and stops every timer. Later events are
// rejected with ErrClosed.
func (g *Guardian) Close() {
	if g.closed {
		return
	}
	g.closed = true
	if g.calc.Started() {
		g.stop()
	}
	g.sequencer.Cancel()
	g.calc.Close()
}

// HandleMessage parses a raw bridge line and dispatches it
func (g *Guardian) HandleMessage(msg *types.SensorMessage) error {
	if g.closed {
		return ErrClosed
	}
	start := time.Now()
	g.stats.IncrementTotalMessages()
	g.stats.UpdateLastMessageTime()

	event, err := parser.ParseMessage(msg.Raw, msg.Timestamp)
	if err != nil {
		g.stats.IncrementFailedMessages()
		return fmt.Errorf("failed to parse message: %w", err)
	}
	g.stats.IncrementParsedMessages()
	g.stats.IncrementEvent(event.Kind)

	switch event.Kind {
	case types.EventOrientation:
		g.calc.OnOrientation(*event.Orientation)
	case types.EventPosition:
		g.calc.OnPosition(*event.Position)
	case types.EventPositionError:
		g.calc.OnPositionError(errors.New(event.Error))
	case types.EventControl:
		if err := g.HandleControl(event.Control); err != nil {
			return err
		}
	}

	g.stats.AddProcessingTime(time.Since(start))
	return nil
}

// HandleControl applies a rider action
func (g *Guardian) HandleControl(cmd *types.ControlCommand) error {
	if g.closed {
		return ErrClosed
	}
	switch cmd.Action {
	case types.ActionStart:
		g.start()
	case types.ActionStop:
		g.stop()
	case types.ActionCancel:
		g.sequencer.Cancel()
	case types.ActionAlertAngle:
		return g.setAlertAngle(cmd.Value)
	default:
		return fmt.Errorf("unknown control action %q", cmd.Action)
	}
	return nil
}

func (g *Guardian) start() {
	if g.calc.Started() {
		return
	}
	g.calc.Start()
	g.recorder.Begin(g.newID(), g.sched.Now())
	g.stats.RideStarted()
	log.Printf("Ride started for rider %s", g.riderID)
}

// stop ends the ride. Escalation is always cancelled, even when no ride
// was in progress.
func (g *Guardian) stop() *types.Ride {
	g.calc.Stop()
	g.sequencer.Cancel()

	recording, ok := g.recorder.Finish(g.sched.Now())
	if !ok {
		return nil
	}
	g.stats.RideCompleted()

	segments := route.NewSummarizer(g.settings).Segments(recording.Points, recording.Stats)
	completed := &types.Ride{
		ID:         recording.RideID,
		RiderID:    g.riderID,
		StartedAt:  recording.StartedAt,
		EndedAt:    recording.EndedAt,
		PointCount: len(recording.Points),
		MapType:    g.settings.MapType,
		Stats:      recording.Stats,
		Segments:   segments,
	}
	log.Printf("Ride %s finished for rider %s: %d points, %d segments",
		completed.ID, g.riderID, completed.PointCount, len(segments))

	g.persistRide(completed)
	return completed
}

func (g *Guardian) persistRide(completed *types.Ride) {
	if g.rides != nil {
		if err := g.rides.StoreRide(completed); err != nil {
			log.Printf("Failed to store ride %s: %v", completed.ID, err)
		}
	}

	if g.live != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := g.live.StoreLastRide(ctx, completed); err != nil {
			log.Printf("Warning: Failed to cache last ride in Redis: %v", err)
		}
		if err := g.live.DeleteRideData(ctx, g.riderID); err != nil {
			log.Printf("Warning: Failed to delete live ride data from Redis: %v", err)
		}
	}

	if g.publisher != nil {
		if err := g.publisher.PublishRideSummary(completed); err != nil {
			log.Printf("Failed to publish ride summary: %v", err)
		}
	}
}

func (g *Guardian) setAlertAngle(angle float64) error {
	if err := g.calc.SetAlertAngle(angle); err != nil {
		return fmt.Errorf("failed to set alert angle: %w", err)
	}
	log.Printf("Alert angle set to %.1f", angle)

	if g.writer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		value := strconv.FormatFloat(angle, 'f', -1, 64)
		if err := g.writer.SetSetting(ctx, config.KeyAlertAngle, value); err != nil {
			log.Printf("Warning: Failed to persist alert angle: %v", err)
		}
	}
	return nil
}

func (g *Guardian) onRideData(data types.RideData) {
	g.stats.IncrementRideDataPoints()
	data.RideID = g.recorder.RideID()
	g.recorder.Record(data)

	if g.live != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := g.live.StoreRideData(ctx, g.riderID, &data); err != nil {
			log.Printf("Warning: Failed to store ride data in Redis: %v", err)
		}
	}

	if g.publisher != nil {
		if err := g.publisher.PublishRideData(g.riderID, &data); err != nil {
			log.Printf("Failed to publish ride data: %v", err)
		}
	}
}

// onCrash runs on every detector fire. A bike that stays down re-fires
// while the escalation is latched; only the first fire is counted.
func (g *Guardian) onCrash() {
	if !g.sequencer.Active() {
		g.stats.IncrementCrashAlerts()
	}
	g.sequencer.Trigger()
}

func (g *Guardian) onAlertEvent(event types.AlertEvent) {
	event.RiderID = g.riderID

	if g.publisher != nil {
		if err := g.publisher.PublishAlert(&event); err != nil {
			log.Printf("Failed to publish alert: %v", err)
		}
	}

	if g.live != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		var err error
		if event.Type == types.AlertCleared {
			err = g.live.DeleteAlert(ctx, g.riderID)
		} else {
			err = g.live.StoreAlert(ctx, &event)
		}
		if err != nil {
			log.Printf("Warning: Failed to update alert in Redis: %v", err)
		}
	}

	// Countdown ticks are only kept as live state
	if g.rides != nil && event.Type != types.AlertCountdown {
		if err := g.rides.StoreAlertEvent(&event); err != nil {
			log.Printf("Failed to store alert event: %v", err)
		}
	}
}

// smsSender hands crash texts to the SMS gateway over NATS
type smsSender struct {
	publisher Publisher
	stats     *stats.Stats
	now       func() time.Time
}

func (s *smsSender) Send(number, message string) error {
	if s.publisher == nil {
		return errors.New("no SMS gateway configured")
	}
	err := s.publisher.PublishSMS(&types.SMSRequest{
		Number:    number,
		Message:   message,
		Timestamp: s.now(),
	})
	if err != nil {
		s.stats.IncrementSMSFailed()
		return err
	}
	s.stats.IncrementSMSSent()
	return nil
}

// loopAlarm delivers the alarm's finished callback onto the event loop
type loopAlarm struct {
	alarm escalation.Alarm
	post  func(func()) error
}

func (a *loopAlarm) Play(done func()) error {
	return a.alarm.Play(func() {
		if err := a.post(done); err != nil {
			log.Printf("Dropping alarm finished event: %v", err)
		}
	})
}

func (a *loopAlarm) Stop() {
	a.alarm.Stop()
}
