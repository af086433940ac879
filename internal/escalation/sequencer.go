// Package escalation runs the crash alert sequence: an alarm loop, a
// countdown, and rounds of SMS messages to the rider's contacts.
package escalation

import (
	"log"
	"time"

	"github.com/saviobatista/ride-guardian/internal/clock"
	"github.com/saviobatista/ride-guardian/internal/config"
	"github.com/saviobatista/ride-guardian/internal/types"
)

const countdownPeriod = time.Second

// Alarm plays the crash alert sound. Play calls done once the sound has
// finished playing; done must be delivered on the scheduler's goroutine.
type Alarm interface {
	Play(done func()) error
	Stop()
}

// SMSSender hands one text message to the SMS transport
type SMSSender interface {
	Send(number, message string) error
}

// Locator supplies the last known position for the crash message
type Locator interface {
	LastPosition() (latitude, longitude float64)
}

// Sequencer escalates a detected crash. It is latched: once triggered,
// further triggers are ignored until the sequence is cancelled or has sent
// all of its SMS rounds.
//
// All methods must be called from the scheduler's goroutine.
type Sequencer struct {
	sched    clock.Scheduler
	settings *config.Settings
	alarm    Alarm
	sms      SMSSender
	locator  Locator
	notify   func(types.AlertEvent)

	crashDetected    bool
	alertPlaying     bool
	playGeneration   int
	secondsRemaining int
	retriesRemaining int
	countdown        clock.Timer
}

// NewSequencer creates a sequencer. notify may be nil.
func NewSequencer(sched clock.Scheduler, settings *config.Settings, alarm Alarm, sms SMSSender, locator Locator, notify func(types.AlertEvent)) *Sequencer {
	return &Sequencer{
		sched:    sched,
		settings: settings,
		alarm:    alarm,
		sms:      sms,
		locator:  locator,
		notify:   notify,
	}
}

// Trigger starts the escalation sequence unless one is already running
func (s *Sequencer) Trigger() {
	if s.crashDetected {
		return
	}
	s.crashDetected = true
	log.Printf("Crash detected, sending texts in %ds", s.settings.WarningSecondsBeforeSendingTexts)

	s.alertPlaying = true
	s.playAlarm()

	s.secondsRemaining = s.settings.WarningSecondsBeforeSendingTexts
	s.retriesRemaining = s.settings.NumberTexts
	s.countdown = s.sched.AfterFunc(countdownPeriod, s.onCountdown)

	s.publish(types.AlertCrash)
}

// Cancel stops the alarm and the countdown. It is safe to call at any time.
func (s *Sequencer) Cancel() {
	if !s.crashDetected {
		return
	}
	log.Printf("Crash alert cancelled")
	s.clear()
}

// OnAlarmFinished restarts the alarm while the alert is still playing
func (s *Sequencer) OnAlarmFinished() {
	if s.alertPlaying {
		s.playAlarm()
	}
}

// Active reports whether an escalation is in progress
func (s *Sequencer) Active() bool {
	return s.crashDetected
}

// SecondsRemaining returns the seconds left until the next SMS round
func (s *Sequencer) SecondsRemaining() int {
	return s.secondsRemaining
}

// RetriesRemaining returns the number of SMS rounds still to be sent
func (s *Sequencer) RetriesRemaining() int {
	return s.retriesRemaining
}

func (s *Sequencer) onCountdown() {
	s.countdown = nil
	if !s.crashDetected {
		return
	}

	s.secondsRemaining--
	if s.secondsRemaining <= 0 {
		s.sendRound()
		s.retriesRemaining--
		s.secondsRemaining = s.settings.SendTextsEveryNSeconds
		s.publish(types.AlertRound)

		if s.retriesRemaining <= 0 {
			log.Printf("All SMS rounds sent, clearing crash alert")
			s.clear()
			return
		}
	} else {
		s.publish(types.AlertCountdown)
	}

	if s.crashDetected && s.countdown == nil {
		s.countdown = s.sched.AfterFunc(countdownPeriod, s.onCountdown)
	}
}

func (s *Sequencer) sendRound() {
	latitude, longitude := 0.0, 0.0
	if s.locator != nil {
		latitude, longitude = s.locator.LastPosition()
	}
	message := BuildMessage(s.settings.CrashMessage, latitude, longitude)

	for _, number := range SplitNumbers(s.settings.PhoneNumbers) {
		if s.settings.DesktopMode {
			log.Printf("Desktop mode, not sending SMS to %q: %s", number, message)
			continue
		}
		s.send(number, message)
	}
}

func (s *Sequencer) send(number, message string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic sending SMS to %q: %v", number, r)
		}
	}()

	if err := s.sms.Send(number, message); err != nil {
		log.Printf("Failed to send SMS to %q: %v", number, err)
		return
	}
	log.Printf("Sent SMS to %q", number)
}

func (s *Sequencer) playAlarm() {
	if s.alarm == nil {
		return
	}
	s.playGeneration++
	generation := s.playGeneration

	// A finish from an earlier alert must not restart the alarm of a newer one
	done := func() {
		if generation == s.playGeneration {
			s.OnAlarmFinished()
		}
	}
	if err := s.alarm.Play(done); err != nil {
		log.Printf("Failed to play alarm: %v", err)
	}
}

func (s *Sequencer) clear() {
	s.crashDetected = false
	s.alertPlaying = false
	s.playGeneration++
	if s.alarm != nil {
		s.alarm.Stop()
	}
	if s.countdown != nil {
		s.countdown.Stop()
		s.countdown = nil
	}
	s.publish(types.AlertCleared)
}

func (s *Sequencer) publish(alertType string) {
	if s.notify == nil {
		return
	}
	event := types.AlertEvent{
		Type:             alertType,
		SecondsRemaining: s.secondsRemaining,
		RetriesRemaining: s.retriesRemaining,
		Timestamp:        s.sched.Now(),
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in alert notifier: %v", r)
		}
	}()
	s.notify(event)
}
