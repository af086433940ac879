package types

import (
	"time"
)

// SensorMessage represents a raw line received from a rider's phone sensor
// bridge
type SensorMessage struct {
	RiderID   string    `json:"rider_id"`
	Raw       string    `json:"raw"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// OrientationSample is a single device tilt reading
type OrientationSample struct {
	Beta      float64   `json:"beta"`
	Timestamp time.Time `json:"timestamp"`
}

// PositionFix is a single geolocation update. Speed is nil when the
// device did not report one.
type PositionFix struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     *float64  `json:"speed,omitempty"` // m/s
	Accuracy  float64   `json:"accuracy"`        // meters
	Timestamp time.Time `json:"timestamp"`
}

// SpeedOrZero returns the reported speed, or 0 when none was reported
func (p PositionFix) SpeedOrZero() float64 {
	if p.Speed == nil {
		return 0
	}
	return *p.Speed
}

// RideData is emitted by the ride-data calculator on every callback tick.
// RideID is set by the guardian while a ride is being recorded and empty
// otherwise.
type RideData struct {
	RideID      string    `json:"ride_id,omitempty"`
	LeanAngle   float64   `json:"lean_angle"` // degrees, negative = left
	Speed       float64   `json:"speed"`      // m/s
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	GPSAccuracy float64   `json:"gps_accuracy"` // meters
	Timestamp   time.Time `json:"timestamp"`
}

// RidePoint is a recorded sample used for route summarization
type RidePoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	LeanAngle float64 `json:"lean_angle"`
	Speed     float64 `json:"speed"`
}

// Point converts ride data into a ride point
func (d RideData) Point() RidePoint {
	return RidePoint{
		Latitude:  d.Latitude,
		Longitude: d.Longitude,
		LeanAngle: d.LeanAngle,
		Speed:     d.Speed,
	}
}

// Control actions sent by the rider
const (
	ActionStart      = "start"
	ActionStop       = "stop"
	ActionCancel     = "cancel"
	ActionAlertAngle = "alert_angle"
)

// ControlCommand is a rider action forwarded by the bridge
type ControlCommand struct {
	Action string  `json:"action"`
	Value  float64 `json:"value,omitempty"`
}

// SensorEventKind identifies the payload carried by a SensorEvent
type SensorEventKind int

const (
	EventOrientation SensorEventKind = iota + 1
	EventPosition
	EventPositionError
	EventControl
)

// SensorEvent is a parsed bridge line. Exactly one payload is set,
// according to Kind.
type SensorEvent struct {
	Kind        SensorEventKind
	Orientation *OrientationSample
	Position    *PositionFix
	Error       string
	Control     *ControlCommand
	Timestamp   time.Time
}

// Alert event types published while a crash escalation is active
const (
	AlertCrash     = "crash"
	AlertCountdown = "countdown"
	AlertRound     = "round"
	AlertCleared   = "cleared"
)

// AlertEvent describes a change in crash escalation state
type AlertEvent struct {
	Type             string    `json:"type"`
	RiderID          string    `json:"rider_id"`
	SecondsRemaining int       `json:"seconds_remaining"`
	RetriesRemaining int       `json:"retries_remaining"`
	Timestamp        time.Time `json:"timestamp"`
}

// SMSRequest is one outbound text handed to the SMS gateway
type SMSRequest struct {
	Number    string    `json:"number"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// RideStats holds the running extrema of a ride
type RideStats struct {
	MaxSpeed     float64 `json:"max_speed"`
	MinLatitude  float64 `json:"min_latitude"`
	MaxLatitude  float64 `json:"max_latitude"`
	MinLongitude float64 `json:"min_longitude"`
	MaxLongitude float64 `json:"max_longitude"`
	MaxLeftLean  float64 `json:"max_left_lean"`
	MaxRightLean float64 `json:"max_right_lean"`
}

// Overlay is the information shown when a drawn segment is clicked
type Overlay struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Speed     string  `json:"speed"`
	Lean      string  `json:"lean"`
}

// Segment is one drawable, colored line of a summarized route
type Segment struct {
	StartLatitude  float64 `json:"start_latitude"`
	StartLongitude float64 `json:"start_longitude"`
	EndLatitude    float64 `json:"end_latitude"`
	EndLongitude   float64 `json:"end_longitude"`
	Speed          float64 `json:"speed"`
	LeanAngle      float64 `json:"lean_angle"`
	Color          string  `json:"color"`
	Overlay        Overlay `json:"overlay"`
}

// Ride represents a completed ride
type Ride struct {
	ID         string    `json:"id"`
	RiderID    string    `json:"rider_id"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	PointCount int       `json:"point_count"`
	MapType    string    `json:"map_type"`
	Stats      RideStats `json:"stats"`
	Segments   []Segment `json:"segments"`
}

// SystemStats is a snapshot of the pipeline counters
type SystemStats struct {
	TotalMessages  uint64        `json:"total_messages"`
	ParsedMessages uint64        `json:"parsed_messages"`
	FailedMessages uint64        `json:"failed_messages"`
	EventCounts    []int64       `json:"event_counts"` // indexed by SensorEventKind
	RideDataPoints uint64        `json:"ride_data_points"`
	CrashAlerts    uint64        `json:"crash_alerts"`
	SMSSent        uint64        `json:"sms_sent"`
	SMSFailed      uint64        `json:"sms_failed"`
	StartedRides   uint64        `json:"started_rides"`
	CompletedRides uint64        `json:"completed_rides"`
	ActiveRides    uint64        `json:"active_rides"`
	LastMessage    time.Time     `json:"last_message"`
	ProcessingTime time.Duration `json:"processing_time"`
	Uptime         time.Duration `json:"uptime"`
	Timestamp      time.Time     `json:"timestamp"`
}
