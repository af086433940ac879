package escalation

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/saviobatista/ride-guardian/internal/clock"
	"github.com/saviobatista/ride-guardian/internal/config"
	"github.com/saviobatista/ride-guardian/internal/types"
)

// MockAlarm implements Alarm for testing
type MockAlarm struct {
	plays   int
	stops   int
	done    []func()
	playErr error
}

func (m *MockAlarm) Play(done func()) error {
	if m.playErr != nil {
		return m.playErr
	}
	m.plays++
	m.done = append(m.done, done)
	return nil
}

func (m *MockAlarm) Stop() {
	m.stops++
}

// finish reports the most recently started sound as finished
func (m *MockAlarm) finish() {
	m.done[len(m.done)-1]()
}

// MockSMSSender implements SMSSender for testing
type MockSMSSender struct {
	sent    []types.SMSRequest
	failFor map[string]bool
}

func (m *MockSMSSender) Send(number, message string) error {
	if m.failFor[number] {
		return errors.New("transport unavailable")
	}
	m.sent = append(m.sent, types.SMSRequest{Number: number, Message: message})
	return nil
}

type fixedLocator struct {
	latitude, longitude float64
}

func (l fixedLocator) LastPosition() (float64, float64) {
	return l.latitude, l.longitude
}

type sequencerHarness struct {
	clock    *clock.Manual
	settings *config.Settings
	alarm    *MockAlarm
	sms      *MockSMSSender
	events   []types.AlertEvent
	seq      *Sequencer
}

func newSequencerHarness(configure func(*config.Settings)) *sequencerHarness {
	h := &sequencerHarness{
		clock:    clock.NewManual(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)),
		settings: config.DefaultSettings(),
		alarm:    &MockAlarm{},
		sms:      &MockSMSSender{},
	}
	h.settings.PhoneNumbers = "+15550001,+15550002"
	h.settings.NumberTexts = 3
	h.settings.WarningSecondsBeforeSendingTexts = 30
	h.settings.SendTextsEveryNSeconds = 60
	if configure != nil {
		configure(h.settings)
	}

	h.seq = NewSequencer(h.clock, h.settings, h.alarm, h.sms, fixedLocator{52.2053, 0.1218}, func(e types.AlertEvent) {
		h.events = append(h.events, e)
	})
	return h
}

func (h *sequencerHarness) count(alertType string) int {
	n := 0
	for _, e := range h.events {
		if e.Type == alertType {
			n++
		}
	}
	return n
}

func TestSequencer_TriggerIsLatched(t *testing.T) {
	h := newSequencerHarness(nil)

	h.seq.Trigger()
	h.seq.Trigger()

	if h.alarm.plays != 1 {
		t.Errorf("Expected 1 alarm loop, got %d", h.alarm.plays)
	}
	if h.clock.Pending() != 1 {
		t.Errorf("Expected 1 countdown timer, got %d", h.clock.Pending())
	}
	if h.count(types.AlertCrash) != 1 {
		t.Errorf("Expected 1 crash event, got %d", h.count(types.AlertCrash))
	}
	if !h.seq.Active() {
		t.Error("Expected sequencer to be active")
	}
	if h.seq.SecondsRemaining() != 30 || h.seq.RetriesRemaining() != 3 {
		t.Errorf("Unexpected initial countdown: %ds, %d retries", h.seq.SecondsRemaining(), h.seq.RetriesRemaining())
	}
}

func TestSequencer_ClearsAfterAllRounds(t *testing.T) {
	h := newSequencerHarness(nil)

	h.seq.Trigger()

	h.clock.Advance(29 * time.Second)
	if len(h.sms.sent) != 0 {
		t.Fatalf("Expected no texts during the warning period, got %d", len(h.sms.sent))
	}
	if h.seq.SecondsRemaining() != 1 {
		t.Errorf("Expected 1 second remaining, got %d", h.seq.SecondsRemaining())
	}

	h.clock.Advance(time.Second)
	if len(h.sms.sent) != 2 {
		t.Fatalf("Expected first round to text both numbers, got %d texts", len(h.sms.sent))
	}
	if h.seq.RetriesRemaining() != 2 || h.seq.SecondsRemaining() != 60 {
		t.Errorf("Unexpected state after first round: %ds, %d retries", h.seq.SecondsRemaining(), h.seq.RetriesRemaining())
	}

	h.clock.Advance(60 * time.Second)
	if len(h.sms.sent) != 4 || !h.seq.Active() {
		t.Fatalf("Expected second round and active sequencer, got %d texts", len(h.sms.sent))
	}

	h.clock.Advance(60 * time.Second)
	if len(h.sms.sent) != 6 {
		t.Errorf("Expected 6 texts after 3 rounds, got %d", len(h.sms.sent))
	}
	if h.seq.Active() {
		t.Error("Expected escalation to clear itself after the last round")
	}
	if h.alarm.stops != 1 {
		t.Errorf("Expected alarm to be stopped once, got %d", h.alarm.stops)
	}
	if h.clock.Pending() != 0 {
		t.Errorf("Expected no pending timers, got %d", h.clock.Pending())
	}
	if h.count(types.AlertRound) != 3 || h.count(types.AlertCleared) != 1 {
		t.Errorf("Unexpected events: %d rounds, %d cleared", h.count(types.AlertRound), h.count(types.AlertCleared))
	}

	h.clock.Advance(time.Hour)
	if len(h.sms.sent) != 6 {
		t.Errorf("Expected no texts after clearing, got %d", len(h.sms.sent))
	}
}

func TestSequencer_MessageContainsLocation(t *testing.T) {
	h := newSequencerHarness(func(s *config.Settings) {
		s.CrashMessage = "Help!"
		s.WarningSecondsBeforeSendingTexts = 1
		s.NumberTexts = 1
	})

	h.seq.Trigger()
	h.clock.Advance(time.Second)

	if len(h.sms.sent) != 2 {
		t.Fatalf("Expected 2 texts, got %d", len(h.sms.sent))
	}
	want := "Help! https://maps.google.com/?q=52.2053,0.1218"
	for _, sms := range h.sms.sent {
		if sms.Message != want {
			t.Errorf("Message = %q, want %q", sms.Message, want)
		}
	}
	if h.sms.sent[0].Number != "+15550001" || h.sms.sent[1].Number != "+15550002" {
		t.Errorf("Unexpected recipients: %+v", h.sms.sent)
	}
}

func TestSequencer_Cancel(t *testing.T) {
	h := newSequencerHarness(nil)

	h.seq.Cancel()
	if len(h.events) != 0 || h.alarm.stops != 0 {
		t.Fatal("Expected cancel without a crash to do nothing")
	}

	h.seq.Trigger()
	h.clock.Advance(10 * time.Second)
	h.seq.Cancel()
	h.seq.Cancel()

	if h.seq.Active() {
		t.Error("Expected sequencer to be inactive after cancel")
	}
	if h.alarm.stops != 1 {
		t.Errorf("Expected alarm to be stopped once, got %d", h.alarm.stops)
	}
	if h.count(types.AlertCleared) != 1 {
		t.Errorf("Expected 1 cleared event, got %d", h.count(types.AlertCleared))
	}
	if h.clock.Pending() != 0 {
		t.Errorf("Expected no pending timers, got %d", h.clock.Pending())
	}

	h.clock.Advance(time.Hour)
	if len(h.sms.sent) != 0 {
		t.Errorf("Expected no texts after cancel, got %d", len(h.sms.sent))
	}
}

func TestSequencer_RetriggerAfterCancel(t *testing.T) {
	h := newSequencerHarness(nil)

	h.seq.Trigger()
	h.seq.Cancel()
	h.seq.Trigger()

	if h.alarm.plays != 2 {
		t.Errorf("Expected alarm to play again, got %d plays", h.alarm.plays)
	}
	if h.clock.Pending() != 1 {
		t.Errorf("Expected a single countdown timer, got %d", h.clock.Pending())
	}
	if h.seq.SecondsRemaining() != 30 || h.seq.RetriesRemaining() != 3 {
		t.Errorf("Expected a fresh countdown, got %ds, %d retries", h.seq.SecondsRemaining(), h.seq.RetriesRemaining())
	}
}

func TestSequencer_AlarmLoops(t *testing.T) {
	h := newSequencerHarness(nil)

	h.seq.Trigger()
	h.alarm.finish()
	h.alarm.finish()
	if h.alarm.plays != 3 {
		t.Errorf("Expected alarm to restart after each finish, got %d plays", h.alarm.plays)
	}

	h.seq.Cancel()
	h.alarm.finish()
	if h.alarm.plays != 3 {
		t.Errorf("Expected no restart after cancel, got %d plays", h.alarm.plays)
	}
}

func TestSequencer_StaleAlarmFinishIgnored(t *testing.T) {
	h := newSequencerHarness(nil)

	h.seq.Trigger()
	stale := h.alarm.done[0]
	h.seq.Cancel()
	h.seq.Trigger()

	stale()
	if h.alarm.plays != 2 {
		t.Errorf("Expected stale finish to be ignored, got %d plays", h.alarm.plays)
	}
}

func TestSequencer_AlarmErrorDoesNotStopEscalation(t *testing.T) {
	h := newSequencerHarness(func(s *config.Settings) {
		s.WarningSecondsBeforeSendingTexts = 2
	})
	h.alarm.playErr = errors.New("no audio device")

	h.seq.Trigger()
	h.clock.Advance(2 * time.Second)

	if len(h.sms.sent) != 2 {
		t.Errorf("Expected texts despite alarm failure, got %d", len(h.sms.sent))
	}
}

func TestSequencer_FailedSendDoesNotStopRound(t *testing.T) {
	h := newSequencerHarness(func(s *config.Settings) {
		s.PhoneNumbers = "bad,+15550002"
		s.WarningSecondsBeforeSendingTexts = 1
	})
	h.sms.failFor = map[string]bool{"bad": true}

	h.seq.Trigger()
	h.clock.Advance(time.Second)

	if len(h.sms.sent) != 1 || h.sms.sent[0].Number != "+15550002" {
		t.Errorf("Expected the second number to be texted, got %+v", h.sms.sent)
	}
	if h.seq.RetriesRemaining() != 2 {
		t.Errorf("Expected the round to count, got %d retries remaining", h.seq.RetriesRemaining())
	}
}

func TestSequencer_DesktopModeSkipsSends(t *testing.T) {
	h := newSequencerHarness(func(s *config.Settings) {
		s.DesktopMode = true
		s.WarningSecondsBeforeSendingTexts = 1
		s.SendTextsEveryNSeconds = 1
	})

	h.seq.Trigger()
	h.clock.Advance(5 * time.Second)

	if len(h.sms.sent) != 0 {
		t.Errorf("Expected no texts in desktop mode, got %d", len(h.sms.sent))
	}
	if h.seq.Active() {
		t.Error("Expected rounds to count in desktop mode")
	}
}

func TestSequencer_CountdownEvents(t *testing.T) {
	h := newSequencerHarness(func(s *config.Settings) {
		s.WarningSecondsBeforeSendingTexts = 3
	})

	h.seq.Trigger()
	h.clock.Advance(2 * time.Second)

	var remaining []int
	for _, e := range h.events {
		if e.Type == types.AlertCountdown {
			remaining = append(remaining, e.SecondsRemaining)
		}
	}
	if len(remaining) != 2 || remaining[0] != 2 || remaining[1] != 1 {
		t.Errorf("Unexpected countdown events: %v", remaining)
	}
}

func TestSplitNumbers(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"+15550001", []string{"+15550001"}},
		{"+15550001, +15550002", []string{"+15550001", "+15550002"}},
		{"a,,b", []string{"a", "", "b"}},
		{"", []string{""}},
	}

	for _, tt := range tests {
		got := SplitNumbers(tt.input)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
			t.Errorf("SplitNumbers(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestBuildMessage(t *testing.T) {
	if got := BuildMessage("", -33.8688, 151.2093); got != "https://maps.google.com/?q=-33.8688,151.2093" {
		t.Errorf("BuildMessage() without text = %q", got)
	}
	if got := BuildMessage("Crashed.", 1.5, -2); got != "Crashed. https://maps.google.com/?q=1.5,-2" {
		t.Errorf("BuildMessage() = %q", got)
	}
}
