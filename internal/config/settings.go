package config

import (
	"context"
	"fmt"
	"log"
	"math"
	"strconv"
	"time"
)

// Setting keys as stored by the rider's settings store
const (
	KeyAlertAngle                       = "alertAngle"
	KeyAlertAfterSeconds                = "alertAfterSeconds"
	KeyPhoneNumbers                     = "phoneNumbers"
	KeyCrashMessage                     = "crashMessage"
	KeyNumberTexts                      = "numberTexts"
	KeyWarningSecondsBeforeSendingTexts = "warningSecondsBeforeSendingTexts"
	KeySendTextsEveryNSeconds           = "sendTextsEveryNSeconds"
	KeySampleSpeedMS                    = "sampleSpeedMS"
	KeyNumberSamples                    = "numberSamples"
	KeyCallbackEveryNSamples            = "callbackEveryNSamples"
	KeyMapSignificantDistanceMeters     = "mapSignificantDistanceMeters"
	KeyMapSignificantLeanDelta          = "mapSignificantLeanDelta"
	KeyMapSignificantSpeedDelta         = "mapSignificantSpeedDelta"
	KeySpeedUnits                       = "speedUnits"
	KeyMapType                          = "mapType"
)

// Speed units and map types accepted by the settings
const (
	UnitsMPH = "mph"
	UnitsKPH = "kph"

	MapTypeLean  = "lean"
	MapTypeSpeed = "speed"
)

// Settings holds the rider-tunable parameters of the ride engine. A single
// instance is shared by reference between the components of one rider and
// is only mutated from the event loop.
type Settings struct {
	AlertAngle                       float64
	AlertAfter                       time.Duration
	PhoneNumbers                     string
	CrashMessage                     string
	NumberTexts                      int
	WarningSecondsBeforeSendingTexts int
	SendTextsEveryNSeconds           int
	SampleInterval                   time.Duration
	NumberSamples                    int
	CallbackEveryNSamples            int
	MapSignificantDistanceMeters     float64
	MapSignificantLeanDelta          float64
	MapSignificantSpeedDelta         float64
	SpeedUnits                       string
	MapType                          string
	DesktopMode                      bool
}

// DefaultSettings returns the settings used when the store has no value
func DefaultSettings() *Settings {
	return &Settings{
		AlertAngle:                       60.0,
		AlertAfter:                       5 * time.Second,
		CrashMessage:                     "I may have crashed my motorbike. This is my location:",
		NumberTexts:                      3,
		WarningSecondsBeforeSendingTexts: 30,
		SendTextsEveryNSeconds:           60,
		SampleInterval:                   50 * time.Millisecond,
		NumberSamples:                    10,
		CallbackEveryNSamples:            2,
		MapSignificantDistanceMeters:     50,
		MapSignificantLeanDelta:          2,
		MapSignificantSpeedDelta:         2,
		SpeedUnits:                       UnitsMPH,
		MapType:                          MapTypeLean,
	}
}

// ValueError reports a setting that could not be used
type ValueError struct {
	Key   string
	Value string
	Err   error
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("invalid value %q for %s: %v", e.Value, e.Key, e.Err)
}

func (e *ValueError) Unwrap() error {
	return e.Err
}

// SettingsStore is the rider's key/value settings store
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
}

type binder struct {
	key   string
	apply func(s *Settings, raw string) error
}

var binders = []binder{
	{KeyAlertAngle, func(s *Settings, raw string) error {
		v, err := parseFloat(raw, 0, 180)
		if err == nil {
			s.AlertAngle = v
		}
		return err
	}},
	{KeyAlertAfterSeconds, func(s *Settings, raw string) error {
		v, err := parseFloat(raw, 0.1, 3600)
		if err == nil {
			s.AlertAfter = time.Duration(v * float64(time.Second))
		}
		return err
	}},
	{KeyPhoneNumbers, func(s *Settings, raw string) error {
		s.PhoneNumbers = raw
		return nil
	}},
	{KeyCrashMessage, func(s *Settings, raw string) error {
		s.CrashMessage = raw
		return nil
	}},
	{KeyNumberTexts, func(s *Settings, raw string) error {
		v, err := parseInt(raw, 1, 100)
		if err == nil {
			s.NumberTexts = v
		}
		return err
	}},
	{KeyWarningSecondsBeforeSendingTexts, func(s *Settings, raw string) error {
		v, err := parseInt(raw, 0, 3600)
		if err == nil {
			s.WarningSecondsBeforeSendingTexts = v
		}
		return err
	}},
	{KeySendTextsEveryNSeconds, func(s *Settings, raw string) error {
		v, err := parseInt(raw, 1, 86400)
		if err == nil {
			s.SendTextsEveryNSeconds = v
		}
		return err
	}},
	{KeySampleSpeedMS, func(s *Settings, raw string) error {
		v, err := parseInt(raw, 1, 10000)
		if err == nil {
			s.SampleInterval = time.Duration(v) * time.Millisecond
		}
		return err
	}},
	{KeyNumberSamples, func(s *Settings, raw string) error {
		v, err := parseInt(raw, 1, 1000)
		if err == nil {
			s.NumberSamples = v
		}
		return err
	}},
	{KeyCallbackEveryNSamples, func(s *Settings, raw string) error {
		v, err := parseInt(raw, 1, 1000)
		if err == nil {
			s.CallbackEveryNSamples = v
		}
		return err
	}},
	{KeyMapSignificantDistanceMeters, func(s *Settings, raw string) error {
		v, err := parseFloat(raw, 0, 100000)
		if err == nil {
			s.MapSignificantDistanceMeters = v
		}
		return err
	}},
	{KeyMapSignificantLeanDelta, func(s *Settings, raw string) error {
		v, err := parseFloat(raw, 0, 180)
		if err == nil {
			s.MapSignificantLeanDelta = v
		}
		return err
	}},
	{KeyMapSignificantSpeedDelta, func(s *Settings, raw string) error {
		v, err := parseFloat(raw, 0, 1000)
		if err == nil {
			s.MapSignificantSpeedDelta = v
		}
		return err
	}},
	{KeySpeedUnits, func(s *Settings, raw string) error {
		if raw != UnitsMPH && raw != UnitsKPH {
			return fmt.Errorf("expected %s or %s", UnitsMPH, UnitsKPH)
		}
		s.SpeedUnits = raw
		return nil
	}},
	{KeyMapType, func(s *Settings, raw string) error {
		if raw != MapTypeLean && raw != MapTypeSpeed {
			return fmt.Errorf("expected %s or %s", MapTypeLean, MapTypeSpeed)
		}
		s.MapType = raw
		return nil
	}},
}

// LoadSettings reads every setting from the store. Missing keys keep their
// default; malformed values are logged and the default is retained.
func LoadSettings(ctx context.Context, store SettingsStore) *Settings {
	s := DefaultSettings()
	if store == nil {
		return s
	}

	for _, b := range binders {
		raw, ok, err := store.GetSetting(ctx, b.key)
		if err != nil {
			log.Printf("Warning: failed to read setting %s: %v", b.key, err)
			continue
		}
		if !ok {
			continue
		}
		if err := b.apply(s, raw); err != nil {
			log.Printf("Warning: %v, keeping default", &ValueError{Key: b.key, Value: raw, Err: err})
		}
	}

	return s
}

// Set applies a single raw setting value, validating it like LoadSettings does
func (s *Settings) Set(key, raw string) error {
	for _, b := range binders {
		if b.key != key {
			continue
		}
		if err := b.apply(s, raw); err != nil {
			return &ValueError{Key: key, Value: raw, Err: err}
		}
		return nil
	}
	return fmt.Errorf("unknown setting: %s", key)
}

// SettingsUpdate is a partial update; nil fields are left untouched
type SettingsUpdate struct {
	AlertAngle                       *float64
	AlertAfter                       *time.Duration
	PhoneNumbers                     *string
	CrashMessage                     *string
	NumberTexts                      *int
	WarningSecondsBeforeSendingTexts *int
	SendTextsEveryNSeconds           *int
	CallbackEveryNSamples            *int
	SpeedUnits                       *string
	MapType                          *string
}

// UpdateConfig validates and applies a partial update. Nothing is applied
// if any field is invalid.
func (s *Settings) UpdateConfig(u SettingsUpdate) error {
	next := *s

	if u.AlertAngle != nil {
		if err := next.Set(KeyAlertAngle, strconv.FormatFloat(*u.AlertAngle, 'f', -1, 64)); err != nil {
			return err
		}
	}
	if u.AlertAfter != nil {
		if err := next.Set(KeyAlertAfterSeconds, strconv.FormatFloat(u.AlertAfter.Seconds(), 'f', -1, 64)); err != nil {
			return err
		}
	}
	if u.PhoneNumbers != nil {
		next.PhoneNumbers = *u.PhoneNumbers
	}
	if u.CrashMessage != nil {
		next.CrashMessage = *u.CrashMessage
	}
	if u.NumberTexts != nil {
		if err := next.Set(KeyNumberTexts, strconv.Itoa(*u.NumberTexts)); err != nil {
			return err
		}
	}
	if u.WarningSecondsBeforeSendingTexts != nil {
		if err := next.Set(KeyWarningSecondsBeforeSendingTexts, strconv.Itoa(*u.WarningSecondsBeforeSendingTexts)); err != nil {
			return err
		}
	}
	if u.SendTextsEveryNSeconds != nil {
		if err := next.Set(KeySendTextsEveryNSeconds, strconv.Itoa(*u.SendTextsEveryNSeconds)); err != nil {
			return err
		}
	}
	if u.CallbackEveryNSamples != nil {
		if err := next.Set(KeyCallbackEveryNSamples, strconv.Itoa(*u.CallbackEveryNSamples)); err != nil {
			return err
		}
	}
	if u.SpeedUnits != nil {
		if err := next.Set(KeySpeedUnits, *u.SpeedUnits); err != nil {
			return err
		}
	}
	if u.MapType != nil {
		if err := next.Set(KeyMapType, *u.MapType); err != nil {
			return err
		}
	}

	*s = next
	return nil
}

func parseFloat(raw string, lower, upper float64) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || v < lower || v > upper {
		return 0, fmt.Errorf("out of range [%g, %g]", lower, upper)
	}
	return v, nil
}

func parseInt(raw string, lower, upper int) (int, error) {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if v < lower || v > upper {
		return 0, fmt.Errorf("out of range [%d, %d]", lower, upper)
	}
	return v, nil
}
