package testutils

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/saviobatista/ride-guardian/internal/types"
)

// MockOrientationMessage creates a mock orientation line for testing
func MockOrientationMessage(beta float64) *types.SensorMessage {
	return mockMessage(fmt.Sprintf("ORI,%s", formatFloat(beta)))
}

// MockPositionMessage creates a mock GPS line for testing. A nil speed is
// sent as an empty field.
func MockPositionMessage(lat, lon float64, speed *float64, accuracy float64) *types.SensorMessage {
	speedField := ""
	if speed != nil {
		speedField = formatFloat(*speed)
	}
	return mockMessage(fmt.Sprintf("GPS,%s,%s,%s,%s", formatFloat(lat), formatFloat(lon), speedField, formatFloat(accuracy)))
}

// MockControlMessage creates a mock control line for testing
func MockControlMessage(action string) *types.SensorMessage {
	return mockMessage("CTL," + action)
}

// RiderID is the rider of every mock sensor message
const RiderID = "alice"

func mockMessage(raw string) *types.SensorMessage {
	return &types.SensorMessage{
		RiderID:   RiderID,
		Raw:       raw,
		Timestamp: time.Now().UTC(),
		Source:    "test-source",
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(condition func() bool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for condition")
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}
