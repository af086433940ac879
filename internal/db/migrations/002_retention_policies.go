package migrations

import "time"

var RetentionPolicies = &Migration{
	ID:   "002_retention_policies",
	Name: "002_retention_policies",
	UpSQL: `
	-- Crash alerts are kept for a year, statistics for 90 days
	SELECT add_retention_policy('crash_alerts', INTERVAL '365 days');
	SELECT add_retention_policy('system_stats', INTERVAL '90 days');

	-- Daily rollup of pipeline statistics
	CREATE MATERIALIZED VIEW IF NOT EXISTS system_stats_daily
	WITH (timescaledb.continuous) AS
	SELECT
		time_bucket('1 day', time) AS day,
		MAX(total_messages) AS total_messages,
		MAX(failed_messages) AS failed_messages,
		MAX(crash_alerts) AS crash_alerts,
		MAX(sms_sent) AS sms_sent,
		MAX(completed_rides) AS completed_rides
	FROM system_stats
	GROUP BY day
	WITH NO DATA;

	-- Daily crash alert counts per rider
	CREATE MATERIALIZED VIEW IF NOT EXISTS crash_alerts_daily
	WITH (timescaledb.continuous) AS
	SELECT
		time_bucket('1 day', time) AS day,
		rider_id,
		COUNT(*) FILTER (WHERE type = 'crash') AS crashes,
		COUNT(*) FILTER (WHERE type = 'round') AS rounds
	FROM crash_alerts
	GROUP BY day, rider_id
	WITH NO DATA;
	`,
	DownSQL: `
	DROP MATERIALIZED VIEW IF EXISTS crash_alerts_daily;
	DROP MATERIALIZED VIEW IF EXISTS system_stats_daily;
	SELECT remove_retention_policy('crash_alerts');
	SELECT remove_retention_policy('system_stats');
	`,
	CreatedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
}
