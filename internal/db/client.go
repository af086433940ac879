package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/saviobatista/ride-guardian/internal/types"
)

type Client struct {
	db *sql.DB
}

// New creates a new database client
func New(connStr string) (*Client, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	return &Client{db: db}, nil
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// DB returns the underlying connection pool
func (c *Client) DB() *sql.DB {
	return c.db
}

// StoreRide stores a completed ride together with its segments
func (c *Client) StoreRide(ride *types.Ride) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			fmt.Printf("Warning: failed to rollback ride transaction: %v\n", err)
		}
	}()

	query := `
		INSERT INTO rides (
			id, rider_id, started_at, ended_at, point_count, map_type,
			max_speed, min_latitude, max_latitude, min_longitude, max_longitude,
			max_left_lean, max_right_lean
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	if _, err := tx.Exec(query,
		ride.ID, ride.RiderID, ride.StartedAt, ride.EndedAt, ride.PointCount, ride.MapType,
		ride.Stats.MaxSpeed, ride.Stats.MinLatitude, ride.Stats.MaxLatitude,
		ride.Stats.MinLongitude, ride.Stats.MaxLongitude,
		ride.Stats.MaxLeftLean, ride.Stats.MaxRightLean,
	); err != nil {
		return fmt.Errorf("failed to insert ride %s: %w", ride.ID, err)
	}

	if len(ride.Segments) > 0 {
		if err := insertSegments(tx, ride.ID, ride.Segments); err != nil {
			return fmt.Errorf("failed to insert segments of ride %s: %w", ride.ID, err)
		}
	}

	return tx.Commit()
}

// insertSegments bulk inserts segments as parallel arrays
func insertSegments(tx *sql.Tx, rideID string, segments []types.Segment) error {
	n := len(segments)
	seq := make([]int64, n)
	startLat, startLon := make([]float64, n), make([]float64, n)
	endLat, endLon := make([]float64, n), make([]float64, n)
	speed, lean := make([]float64, n), make([]float64, n)
	color := make([]string, n)
	overlaySpeed, overlayLean := make([]string, n), make([]string, n)
	for i, s := range segments {
		seq[i] = int64(i)
		startLat[i], startLon[i] = s.StartLatitude, s.StartLongitude
		endLat[i], endLon[i] = s.EndLatitude, s.EndLongitude
		speed[i], lean[i] = s.Speed, s.LeanAngle
		color[i] = s.Color
		overlaySpeed[i], overlayLean[i] = s.Overlay.Speed, s.Overlay.Lean
	}

	query := `
		INSERT INTO ride_segments (
			ride_id, seq, start_latitude, start_longitude, end_latitude, end_longitude,
			speed, lean_angle, color, overlay_speed, overlay_lean
		)
		SELECT $1, * FROM unnest(
			$2::BIGINT[], $3::DOUBLE PRECISION[], $4::DOUBLE PRECISION[],
			$5::DOUBLE PRECISION[], $6::DOUBLE PRECISION[], $7::DOUBLE PRECISION[],
			$8::DOUBLE PRECISION[], $9::TEXT[], $10::TEXT[], $11::TEXT[]
		)
	`
	_, err := tx.Exec(query, rideID,
		pq.Array(seq), pq.Array(startLat), pq.Array(startLon),
		pq.Array(endLat), pq.Array(endLon), pq.Array(speed),
		pq.Array(lean), pq.Array(color), pq.Array(overlaySpeed), pq.Array(overlayLean),
	)
	return err
}

const rideColumns = `
	id, rider_id, started_at, ended_at, point_count, map_type,
	max_speed, min_latitude, max_latitude, min_longitude, max_longitude,
	max_left_lean, max_right_lean
`

func scanRide(row interface{ Scan(...any) error }) (*types.Ride, error) {
	var r types.Ride
	err := row.Scan(
		&r.ID, &r.RiderID, &r.StartedAt, &r.EndedAt, &r.PointCount, &r.MapType,
		&r.Stats.MaxSpeed, &r.Stats.MinLatitude, &r.Stats.MaxLatitude,
		&r.Stats.MinLongitude, &r.Stats.MaxLongitude,
		&r.Stats.MaxLeftLean, &r.Stats.MaxRightLean,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRide retrieves a ride with its segments, or nil if it does not exist
func (c *Client) GetRide(id string) (*types.Ride, error) {
	ride, err := scanRide(c.db.QueryRow(`SELECT `+rideColumns+` FROM rides WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	query := `
		SELECT start_latitude, start_longitude, end_latitude, end_longitude,
			speed, lean_angle, color, overlay_speed, overlay_lean
		FROM ride_segments
		WHERE ride_id = $1
		ORDER BY seq
	`
	rows, err := c.db.Query(query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var s types.Segment
		if err := rows.Scan(
			&s.StartLatitude, &s.StartLongitude, &s.EndLatitude, &s.EndLongitude,
			&s.Speed, &s.LeanAngle, &s.Color, &s.Overlay.Speed, &s.Overlay.Lean,
		); err != nil {
			return nil, err
		}
		s.Overlay.Latitude = (s.StartLatitude + s.EndLatitude) / 2
		s.Overlay.Longitude = (s.StartLongitude + s.EndLongitude) / 2
		ride.Segments = append(ride.Segments, s)
	}
	return ride, rows.Err()
}

// ListRides returns the most recent rides of a rider without their segments
func (c *Client) ListRides(riderID string, limit int) ([]*types.Ride, error) {
	query := `SELECT ` + rideColumns + `
		FROM rides
		WHERE rider_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`
	rows, err := c.db.Query(query, riderID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rides []*types.Ride
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		rides = append(rides, ride)
	}
	return rides, rows.Err()
}

// StoreAlertEvent records a crash escalation event
func (c *Client) StoreAlertEvent(event *types.AlertEvent) error {
	query := `
		INSERT INTO crash_alerts (
			time, rider_id, type, seconds_remaining, retries_remaining
		) VALUES ($1, $2, $3, $4, $5)
	`
	_, err := c.db.Exec(query,
		event.Timestamp, event.RiderID, event.Type,
		event.SecondsRemaining, event.RetriesRemaining,
	)
	return err
}

// StoreSystemStats stores a statistics snapshot
func (c *Client) StoreSystemStats(stats *types.SystemStats) error {
	query := `
		INSERT INTO system_stats (
			time, total_messages, parsed_messages, failed_messages, event_counts,
			ride_data_points, crash_alerts, sms_sent, sms_failed,
			started_rides, completed_rides, active_rides,
			processing_time_ms, uptime_seconds
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
	`

	_, err := c.db.Exec(query,
		stats.Timestamp,
		stats.TotalMessages,
		stats.ParsedMessages,
		stats.FailedMessages,
		pq.Array(stats.EventCounts),
		stats.RideDataPoints,
		stats.CrashAlerts,
		stats.SMSSent,
		stats.SMSFailed,
		stats.StartedRides,
		stats.CompletedRides,
		stats.ActiveRides,
		stats.ProcessingTime.Milliseconds(),
		int64(stats.Uptime.Seconds()),
	)

	return err
}

// GetSystemStats retrieves statistics snapshots for a time range
func (c *Client) GetSystemStats(start, end time.Time) ([]*types.SystemStats, error) {
	query := `
		SELECT
			time, total_messages, parsed_messages, failed_messages, event_counts,
			ride_data_points, crash_alerts, sms_sent, sms_failed,
			started_rides, completed_rides, active_rides,
			processing_time_ms, uptime_seconds
		FROM system_stats
		WHERE time BETWEEN $1 AND $2
		ORDER BY time DESC
	`

	rows, err := c.db.Query(query, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []*types.SystemStats
	for rows.Next() {
		var (
			s                types.SystemStats
			processingTimeMs int64
			uptimeSeconds    int64
		)

		if err := rows.Scan(
			&s.Timestamp,
			&s.TotalMessages,
			&s.ParsedMessages,
			&s.FailedMessages,
			pq.Array(&s.EventCounts),
			&s.RideDataPoints,
			&s.CrashAlerts,
			&s.SMSSent,
			&s.SMSFailed,
			&s.StartedRides,
			&s.CompletedRides,
			&s.ActiveRides,
			&processingTimeMs,
			&uptimeSeconds,
		); err != nil {
			return nil, err
		}

		s.ProcessingTime = time.Duration(processingTimeMs) * time.Millisecond
		s.Uptime = time.Duration(uptimeSeconds) * time.Second
		stats = append(stats, &s)
	}

	return stats, rows.Err()
}
