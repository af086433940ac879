package nats

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/saviobatista/ride-guardian/internal/types"
)

const (
	SubjectSensorRaw   = "sensor.raw"
	SubjectRideData    = "ride.data"
	SubjectRideAlert   = "ride.alert"
	SubjectRideSummary = "ride.summary"
	SubjectRideControl = "ride.control"
	SubjectSMSOutbound = "sms.outbound"

	StreamSensorRaw = "SENSOR_RAW"
)

// Client represents a NATS client
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// New creates a new NATS client and makes sure the raw sensor stream exists
func New(url string) (*Client, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	// Create stream if it doesn't exist
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     StreamSensorRaw,
		Subjects: []string{RiderSubject(SubjectSensorRaw, "*")},
		Storage:  nats.FileStorage,
		MaxAge:   24 * time.Hour,
	})
	if err != nil && !strings.Contains(err.Error(), "stream name already in use") {
		nc.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	return &Client{
		conn: nc,
		js:   js,
	}, nil
}

// RiderSubject returns the per-rider subject under base
func RiderSubject(base, riderID string) string {
	return base + "." + riderID
}

// riderFromSubject returns the last token of a per-rider subject
func riderFromSubject(subject string) string {
	if i := strings.LastIndexByte(subject, '.'); i >= 0 {
		return subject[i+1:]
	}
	return subject
}

// PublishSensorMessage publishes a raw sensor line to the JetStream stream
// under the subject of its rider
func (c *Client) PublishSensorMessage(msg *types.SensorMessage) error {
	if msg.RiderID == "" {
		return errors.New("sensor message has no rider")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	_, err = c.js.Publish(RiderSubject(SubjectSensorRaw, msg.RiderID), data)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	return nil
}

// SubscribeSensorRaw subscribes to the raw sensor lines of a rider
func (c *Client) SubscribeSensorRaw(riderID string, handler func(*types.SensorMessage)) error {
	_, err := c.js.Subscribe(RiderSubject(SubjectSensorRaw, riderID), func(msg *nats.Msg) {
		var sensorMsg types.SensorMessage
		if err := json.Unmarshal(msg.Data, &sensorMsg); err != nil {
			fmt.Printf("Error unmarshaling message: %v\n", err)
			return
		}
		handler(&sensorMsg)
	}, nats.DeliverNew())
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	return nil
}

// PublishRideData publishes live ride data for a rider
func (c *Client) PublishRideData(riderID string, data *types.RideData) error {
	return c.publish(RiderSubject(SubjectRideData, riderID), data)
}

// SubscribeRideData subscribes to live ride data of every rider
func (c *Client) SubscribeRideData(handler func(riderID string, data *types.RideData)) error {
	return subscribe(c, RiderSubject(SubjectRideData, "*"), func(subject string, data *types.RideData) {
		handler(riderFromSubject(subject), data)
	})
}

// PublishAlert publishes a crash escalation update
func (c *Client) PublishAlert(event *types.AlertEvent) error {
	return c.publish(RiderSubject(SubjectRideAlert, event.RiderID), event)
}

// SubscribeAlerts subscribes to crash escalation updates of every rider
func (c *Client) SubscribeAlerts(handler func(*types.AlertEvent)) error {
	return subscribe(c, RiderSubject(SubjectRideAlert, "*"), func(_ string, event *types.AlertEvent) {
		handler(event)
	})
}

// PublishRideSummary publishes a completed ride
func (c *Client) PublishRideSummary(ride *types.Ride) error {
	return c.publish(RiderSubject(SubjectRideSummary, ride.RiderID), ride)
}

// PublishSMS hands a text message to the SMS gateway
func (c *Client) PublishSMS(req *types.SMSRequest) error {
	return c.publish(SubjectSMSOutbound, req)
}

// SubscribeSMS subscribes to outbound text messages
func (c *Client) SubscribeSMS(handler func(*types.SMSRequest)) error {
	return subscribe(c, SubjectSMSOutbound, func(_ string, req *types.SMSRequest) {
		handler(req)
	})
}

// SubscribeControl subscribes to rider actions sent outside the sensor bridge
func (c *Client) SubscribeControl(riderID string, handler func(*types.ControlCommand)) error {
	return subscribe(c, RiderSubject(SubjectRideControl, riderID), func(_ string, cmd *types.ControlCommand) {
		handler(cmd)
	})
}

// PublishControl sends a rider action
func (c *Client) PublishControl(riderID string, cmd *types.ControlCommand) error {
	return c.publish(RiderSubject(SubjectRideControl, riderID), cmd)
}

func (c *Client) publish(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", subject, err)
	}
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s message: %w", subject, err)
	}
	return nil
}

func subscribe[T any](c *Client, subject string, handler func(subject string, v *T)) error {
	_, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		var v T
		if err := json.Unmarshal(msg.Data, &v); err != nil {
			fmt.Printf("Error unmarshaling %s message: %v\n", msg.Subject, err)
			return
		}
		handler(msg.Subject, &v)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	return nil
}

// Flush waits until the server has processed all pending publishes
func (c *Client) Flush() error {
	return c.conn.Flush()
}

// Close closes the NATS connection
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
