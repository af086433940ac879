package migrations

import "time"

// RideSchema creates the ride, segment, alert and statistics tables
var RideSchema = &Migration{
	ID:   "001_ride_schema",
	Name: "001_ride_schema",
	UpSQL: `
		CREATE EXTENSION IF NOT EXISTS timescaledb;

		CREATE TABLE IF NOT EXISTS rides (
			id UUID PRIMARY KEY,
			rider_id TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ NOT NULL,
			point_count INTEGER NOT NULL,
			map_type TEXT NOT NULL,
			max_speed DOUBLE PRECISION NOT NULL,
			min_latitude DOUBLE PRECISION NOT NULL,
			max_latitude DOUBLE PRECISION NOT NULL,
			min_longitude DOUBLE PRECISION NOT NULL,
			max_longitude DOUBLE PRECISION NOT NULL,
			max_left_lean DOUBLE PRECISION NOT NULL,
			max_right_lean DOUBLE PRECISION NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_rides_rider_started ON rides (rider_id, started_at DESC);

		CREATE TABLE IF NOT EXISTS ride_segments (
			ride_id UUID NOT NULL REFERENCES rides (id) ON DELETE CASCADE,
			seq BIGINT NOT NULL,
			start_latitude DOUBLE PRECISION NOT NULL,
			start_longitude DOUBLE PRECISION NOT NULL,
			end_latitude DOUBLE PRECISION NOT NULL,
			end_longitude DOUBLE PRECISION NOT NULL,
			speed DOUBLE PRECISION NOT NULL,
			lean_angle DOUBLE PRECISION NOT NULL,
			color TEXT NOT NULL,
			overlay_speed TEXT NOT NULL,
			overlay_lean TEXT NOT NULL,
			PRIMARY KEY (ride_id, seq)
		);

		-- Crash escalation history
		CREATE TABLE IF NOT EXISTS crash_alerts (
			time TIMESTAMPTZ NOT NULL,
			rider_id TEXT NOT NULL,
			type TEXT NOT NULL,
			seconds_remaining INTEGER NOT NULL,
			retries_remaining INTEGER NOT NULL
		);

		SELECT create_hypertable('crash_alerts', 'time');

		CREATE INDEX IF NOT EXISTS idx_crash_alerts_rider ON crash_alerts (rider_id, time DESC);

		CREATE TABLE IF NOT EXISTS system_stats (
			time TIMESTAMPTZ NOT NULL,
			total_messages BIGINT NOT NULL,
			parsed_messages BIGINT NOT NULL,
			failed_messages BIGINT NOT NULL,
			event_counts BIGINT[] NOT NULL,
			ride_data_points BIGINT NOT NULL,
			crash_alerts BIGINT NOT NULL,
			sms_sent BIGINT NOT NULL,
			sms_failed BIGINT NOT NULL,
			started_rides BIGINT NOT NULL,
			completed_rides BIGINT NOT NULL,
			active_rides BIGINT NOT NULL,
			processing_time_ms BIGINT NOT NULL,
			uptime_seconds BIGINT NOT NULL
		);

		SELECT create_hypertable('system_stats', 'time');

		CREATE INDEX IF NOT EXISTS idx_system_stats_time ON system_stats (time DESC);
	`,
	DownSQL: `
		DROP TABLE IF EXISTS system_stats;
		DROP TABLE IF EXISTS crash_alerts;
		DROP TABLE IF EXISTS ride_segments;
		DROP TABLE IF EXISTS rides;
	`,
	CreatedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
}
