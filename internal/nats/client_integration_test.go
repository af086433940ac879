package nats

import (
	"context"
	"testing"
	"time"

	"github.com/saviobatista/ride-guardian/internal/testutils"
	"github.com/saviobatista/ride-guardian/internal/types"
	"github.com/testcontainers/testcontainers-go"
	natscontainer "github.com/testcontainers/testcontainers-go/modules/nats"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestClient starts a NATS container and connects a client to it
func setupTestClient(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()

	natsContainer, err := natscontainer.Run(ctx, "nats:2.9-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server is ready"),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start NATS container: %v", err)
	}
	t.Cleanup(func() {
		if err := natsContainer.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate NATS container: %v", err)
		}
	})

	natsURL, err := natsContainer.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("Failed to get NATS connection string: %v", err)
	}

	client, err := New(natsURL)
	if err != nil {
		t.Fatalf("Failed to create NATS client: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

// TestNATSClient_Integration_Connection tests basic NATS connection
func TestNATSClient_Integration_Connection(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client := setupTestClient(t)

	if client.conn == nil {
		t.Error("Expected connection to be initialized")
	}
	if client.js == nil {
		t.Error("Expected JetStream context to be initialized")
	}

	// A second client must reuse the existing stream
	second, err := New(client.conn.ConnectedUrl())
	if err != nil {
		t.Fatalf("Expected existing stream to be reused, got: %v", err)
	}
	second.Close()
}

// TestNATSClient_Integration_SensorStream tests the raw sensor publish/subscribe workflow
func TestNATSClient_Integration_SensorStream(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client := setupTestClient(t)

	received := make(chan *types.SensorMessage, 10)
	if err := client.SubscribeSensorRaw(testutils.RiderID, func(msg *types.SensorMessage) {
		received <- msg
	}); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	others := make(chan *types.SensorMessage, 10)
	if err := client.SubscribeSensorRaw("bob", func(msg *types.SensorMessage) {
		others <- msg
	}); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	// Give subscription time to establish
	time.Sleep(100 * time.Millisecond)

	testMsg := testutils.MockPositionMessage(51.5, -0.12, testutils.Float(9.5), 4)
	if err := client.PublishSensorMessage(testMsg); err != nil {
		t.Fatalf("Failed to publish message: %v", err)
	}

	select {
	case msg := <-received:
		if msg.Raw != testMsg.Raw {
			t.Errorf("Expected raw message %s, got %s", testMsg.Raw, msg.Raw)
		}
		if msg.Source != testMsg.Source {
			t.Errorf("Expected source %s, got %s", testMsg.Source, msg.Source)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for message")
	}

	select {
	case msg := <-others:
		t.Errorf("Expected bob not to receive %s's line, got %q", testutils.RiderID, msg.Raw)
	case <-time.After(200 * time.Millisecond):
	}
}

// TestNATSClient_Integration_RideData tests per-rider ride data delivery
func TestNATSClient_Integration_RideData(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client := setupTestClient(t)

	type delivery struct {
		riderID string
		data    *types.RideData
	}
	received := make(chan delivery, 10)
	if err := client.SubscribeRideData(func(riderID string, data *types.RideData) {
		received <- delivery{riderID, data}
	}); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	data := &types.RideData{LeanAngle: 31.5, Speed: 14, Latitude: 51.5, Longitude: -0.12, Timestamp: time.Now().UTC()}
	if err := client.PublishRideData("alice", data); err != nil {
		t.Fatalf("Failed to publish ride data: %v", err)
	}
	if err := client.Flush(); err != nil {
		t.Fatalf("Failed to flush: %v", err)
	}

	select {
	case d := <-received:
		if d.riderID != "alice" {
			t.Errorf("Expected rider alice, got %s", d.riderID)
		}
		if d.data.LeanAngle != 31.5 || d.data.Speed != 14 {
			t.Errorf("Unexpected ride data: %+v", d.data)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for ride data")
	}
}

// TestNATSClient_Integration_AlertsAndSMS tests escalation subjects
func TestNATSClient_Integration_AlertsAndSMS(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client := setupTestClient(t)

	alerts := make(chan *types.AlertEvent, 10)
	sms := make(chan *types.SMSRequest, 10)
	controls := make(chan *types.ControlCommand, 10)
	if err := client.SubscribeAlerts(func(e *types.AlertEvent) { alerts <- e }); err != nil {
		t.Fatalf("Failed to subscribe to alerts: %v", err)
	}
	if err := client.SubscribeSMS(func(r *types.SMSRequest) { sms <- r }); err != nil {
		t.Fatalf("Failed to subscribe to SMS: %v", err)
	}
	if err := client.SubscribeControl("alice", func(c *types.ControlCommand) { controls <- c }); err != nil {
		t.Fatalf("Failed to subscribe to control: %v", err)
	}

	if err := client.PublishAlert(&types.AlertEvent{Type: types.AlertCrash, RiderID: "alice", RetriesRemaining: 3}); err != nil {
		t.Fatalf("Failed to publish alert: %v", err)
	}
	if err := client.PublishSMS(&types.SMSRequest{Number: "+15550001", Message: "Help"}); err != nil {
		t.Fatalf("Failed to publish SMS: %v", err)
	}
	if err := client.PublishControl("alice", &types.ControlCommand{Action: types.ActionCancel}); err != nil {
		t.Fatalf("Failed to publish control: %v", err)
	}

	select {
	case e := <-alerts:
		if e.Type != types.AlertCrash || e.RiderID != "alice" {
			t.Errorf("Unexpected alert: %+v", e)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for alert")
	}

	select {
	case r := <-sms:
		if r.Number != "+15550001" {
			t.Errorf("Unexpected SMS request: %+v", r)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for SMS request")
	}

	select {
	case c := <-controls:
		if c.Action != types.ActionCancel {
			t.Errorf("Unexpected control command: %+v", c)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for control command")
	}
}
