package parser

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/saviobatista/ride-guardian/internal/types"
)

// MessageKind is the first field of a sensor bridge line
type MessageKind string

const (
	// Sensor bridge message kinds
	KindOrientation   MessageKind = "ORI"
	KindPosition      MessageKind = "GPS"
	KindPositionError MessageKind = "GPSERR"
	KindControl       MessageKind = "CTL"
)

// ParseMessage parses a raw sensor bridge line into a sensor event.
//
//	ORI,<beta>
//	GPS,<latitude>,<longitude>,<speed|empty>,<accuracy>
//	GPSERR,<message>
//	CTL,<start|stop|cancel|alert_angle>[,<value>]
func ParseMessage(raw string, timestamp time.Time) (*types.SensorEvent, error) {
	fields := strings.Split(strings.TrimSpace(raw), ",")
	if len(fields) < 2 {
		return nil, fmt.Errorf("invalid message format: expected at least 2 fields, got %d", len(fields))
	}

	event := &types.SensorEvent{Timestamp: timestamp}

	switch MessageKind(fields[0]) {
	case KindOrientation:
		beta, err := parseFinite(fields[1])
		if err != nil {
			return nil, fmt.Errorf("invalid beta angle: %w", err)
		}
		event.Kind = types.EventOrientation
		event.Orientation = &types.OrientationSample{Beta: beta, Timestamp: timestamp}

	case KindPosition:
		if len(fields) < 5 {
			return nil, fmt.Errorf("invalid GPS message: expected 5 fields, got %d", len(fields))
		}
		fix, err := parsePosition(fields[1:5], timestamp)
		if err != nil {
			return nil, err
		}
		event.Kind = types.EventPosition
		event.Position = fix

	case KindPositionError:
		event.Kind = types.EventPositionError
		// The message itself may contain commas
		event.Error = strings.Join(fields[1:], ",")

	case KindControl:
		cmd, err := parseControl(fields[1:])
		if err != nil {
			return nil, err
		}
		event.Kind = types.EventControl
		event.Control = cmd

	default:
		return nil, fmt.Errorf("unknown message kind: %q", fields[0])
	}

	return event, nil
}

func parsePosition(fields []string, timestamp time.Time) (*types.PositionFix, error) {
	lat, err := parseFinite(fields[0])
	if err != nil || lat < -90 || lat > 90 {
		return nil, fmt.Errorf("invalid latitude: %q", fields[0])
	}
	lon, err := parseFinite(fields[1])
	if err != nil || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("invalid longitude: %q", fields[1])
	}
	accuracy, err := parseFinite(fields[3])
	if err != nil {
		return nil, fmt.Errorf("invalid accuracy: %w", err)
	}

	fix := &types.PositionFix{
		Latitude:  lat,
		Longitude: lon,
		Accuracy:  accuracy,
		Timestamp: timestamp,
	}

	// Devices without a speed reading send an empty field
	if s := strings.TrimSpace(fields[2]); s != "" && s != "null" {
		speed, err := parseFinite(s)
		if err != nil {
			return nil, fmt.Errorf("invalid speed: %w", err)
		}
		fix.Speed = &speed
	}

	return fix, nil
}

func parseControl(fields []string) (*types.ControlCommand, error) {
	cmd := &types.ControlCommand{Action: strings.ToLower(strings.TrimSpace(fields[0]))}

	switch cmd.Action {
	case types.ActionStart, types.ActionStop, types.ActionCancel:
	case types.ActionAlertAngle:
		if len(fields) < 2 {
			return nil, fmt.Errorf("missing value for %s", cmd.Action)
		}
		v, err := parseFinite(fields[1])
		if err != nil {
			return nil, fmt.Errorf("invalid alert angle: %w", err)
		}
		cmd.Value = v
	default:
		return nil, fmt.Errorf("unknown control action: %q", cmd.Action)
	}

	return cmd, nil
}

func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a finite number: %q", s)
	}
	return v, nil
}
