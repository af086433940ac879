package parser

import (
	"testing"
	"time"

	"github.com/saviobatista/ride-guardian/internal/testutils"
	"github.com/saviobatista/ride-guardian/internal/types"
)

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantErr  bool
		wantKind types.SensorEventKind
	}{
		{name: "orientation", raw: "ORI,12.75", wantKind: types.EventOrientation},
		{name: "orientation with whitespace", raw: "ORI, -3.5 \r\n", wantKind: types.EventOrientation},
		{name: "position", raw: "GPS,51.5074,-0.1278,13.2,5", wantKind: types.EventPosition},
		{name: "position without speed", raw: "GPS,51.5074,-0.1278,,5", wantKind: types.EventPosition},
		{name: "position with null speed", raw: "GPS,51.5074,-0.1278,null,5", wantKind: types.EventPosition},
		{name: "position error", raw: "GPSERR,Timeout expired", wantKind: types.EventPositionError},
		{name: "start", raw: "CTL,start", wantKind: types.EventControl},
		{name: "upper case action", raw: "CTL,STOP", wantKind: types.EventControl},
		{name: "alert angle", raw: "CTL,alert_angle,45", wantKind: types.EventControl},
		{name: "too few fields", raw: "ORI", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
		{name: "bad beta", raw: "ORI,abc", wantErr: true},
		{name: "NaN beta", raw: "ORI,NaN", wantErr: true},
		{name: "short position", raw: "GPS,51.5,-0.12", wantErr: true},
		{name: "latitude out of range", raw: "GPS,91,-0.12,,5", wantErr: true},
		{name: "longitude out of range", raw: "GPS,51.5,-181,,5", wantErr: true},
		{name: "bad speed", raw: "GPS,51.5,-0.12,fast,5", wantErr: true},
		{name: "bad accuracy", raw: "GPS,51.5,-0.12,3,", wantErr: true},
		{name: "unknown action", raw: "CTL,reboot", wantErr: true},
		{name: "alert angle without value", raw: "CTL,alert_angle", wantErr: true},
		{name: "unknown kind", raw: "ACC,1,2,3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := ParseMessage(tt.raw, time.Now().UTC())

			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseMessage() expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("ParseMessage() unexpected error: %v", err)
				return
			}

			if event == nil {
				t.Errorf("ParseMessage() returned nil event")
				return
			}

			if event.Kind != tt.wantKind {
				t.Errorf("ParseMessage() Kind = %v, want %v", event.Kind, tt.wantKind)
			}
		})
	}
}

func TestParseMessage_Position(t *testing.T) {
	ts := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	event, err := ParseMessage("GPS,51.5074,-0.1278,13.2,5", ts)
	if err != nil {
		t.Fatalf("ParseMessage() unexpected error: %v", err)
	}

	fix := event.Position
	if fix.Latitude != 51.5074 || fix.Longitude != -0.1278 || fix.Accuracy != 5 {
		t.Errorf("Unexpected position: %+v", fix)
	}
	if fix.Speed == nil || *fix.Speed != 13.2 {
		t.Errorf("Expected speed 13.2, got %v", fix.Speed)
	}
	if !fix.Timestamp.Equal(ts) {
		t.Errorf("Expected timestamp %v, got %v", ts, fix.Timestamp)
	}

	event, err = ParseMessage("GPS,51.5074,-0.1278,,5", ts)
	if err != nil {
		t.Fatalf("ParseMessage() unexpected error: %v", err)
	}
	if event.Position.Speed != nil {
		t.Errorf("Expected no speed, got %v", *event.Position.Speed)
	}
}

func TestParseMessage_PositionErrorKeepsCommas(t *testing.T) {
	event, err := ParseMessage("GPSERR,code 3, timeout", time.Now())
	if err != nil {
		t.Fatalf("ParseMessage() unexpected error: %v", err)
	}
	if event.Error != "code 3, timeout" {
		t.Errorf("Error = %q, want %q", event.Error, "code 3, timeout")
	}
}

func TestParseMessage_Control(t *testing.T) {
	event, err := ParseMessage("CTL,alert_angle,42.5", time.Now())
	if err != nil {
		t.Fatalf("ParseMessage() unexpected error: %v", err)
	}
	if event.Control.Action != types.ActionAlertAngle || event.Control.Value != 42.5 {
		t.Errorf("Unexpected control command: %+v", event.Control)
	}
}

func TestParseMessageWithMock(t *testing.T) {
	mockMsg := testutils.MockPositionMessage(48.8566, 2.3522, nil, 12)
	event, err := ParseMessage(mockMsg.Raw, mockMsg.Timestamp)

	if err != nil {
		t.Errorf("ParseMessage() with mock failed: %v", err)
		return
	}

	if event == nil || event.Position == nil {
		t.Errorf("ParseMessage() with mock returned no position")
		return
	}

	if event.Position.SpeedOrZero() != 0 {
		t.Errorf("ParseMessage() with mock speed = %v, want 0", event.Position.SpeedOrZero())
	}

	mockMsg = testutils.MockOrientationMessage(33.3)
	event, err = ParseMessage(mockMsg.Raw, mockMsg.Timestamp)
	if err != nil {
		t.Fatalf("ParseMessage() with mock failed: %v", err)
	}
	if event.Orientation.Beta != 33.3 {
		t.Errorf("ParseMessage() with mock Beta = %v, want 33.3", event.Orientation.Beta)
	}
}
