// Package route reduces a recorded ride to a bounded set of colored map
// segments.
package route

import (
	"fmt"
	"math"

	"github.com/saviobatista/ride-guardian/internal/config"
	"github.com/saviobatista/ride-guardian/internal/types"
)

// Flat-earth scale factors. The longitude scale is fixed and not corrected
// for latitude.
const (
	metersPerDegreeLatitude  = 111304.0
	metersPerDegreeLongitude = 65575.0
)

// Sentinels for the position extrema of MinMaxRideStats
const (
	noMinimum = 999.0
	noMaximum = -999.0
)

// Thresholds decide when a point differs enough from the last drawn point
// to start a new segment
type Thresholds struct {
	DistanceMeters float64
	LeanDelta      float64
	SpeedDelta     float64
}

// ThresholdsFromSettings returns the map thresholds of the rider settings
func ThresholdsFromSettings(s *config.Settings) Thresholds {
	return Thresholds{
		DistanceMeters: s.MapSignificantDistanceMeters,
		LeanDelta:      s.MapSignificantLeanDelta,
		SpeedDelta:     s.MapSignificantSpeedDelta,
	}
}

// IsSignificant reports whether next should end a segment started at anchor
func IsSignificant(anchor, next types.RidePoint, t Thresholds) bool {
	dLat := (next.Latitude - anchor.Latitude) * metersPerDegreeLatitude
	dLon := (next.Longitude - anchor.Longitude) * metersPerDegreeLongitude
	if dLat*dLat+dLon*dLon >= t.DistanceMeters*t.DistanceMeters {
		return true
	}
	if math.Abs(next.LeanAngle-anchor.LeanAngle) >= t.LeanDelta {
		return true
	}
	return math.Abs(next.Speed-anchor.Speed) >= t.SpeedDelta
}

// NewRideStats returns the extrema of a ride with no points: 999 for
// minimums, -999 for position maximums and 0 for speed and lean.
func NewRideStats() types.RideStats {
	return types.RideStats{
		MinLatitude:  noMinimum,
		MaxLatitude:  noMaximum,
		MinLongitude: noMinimum,
		MaxLongitude: noMaximum,
	}
}

// WidenRideStats widens stats to include p. Values are never narrowed.
func WidenRideStats(stats *types.RideStats, p types.RidePoint) {
	stats.MinLatitude = math.Min(stats.MinLatitude, p.Latitude)
	stats.MaxLatitude = math.Max(stats.MaxLatitude, p.Latitude)
	stats.MinLongitude = math.Min(stats.MinLongitude, p.Longitude)
	stats.MaxLongitude = math.Max(stats.MaxLongitude, p.Longitude)
	stats.MaxSpeed = math.Max(stats.MaxSpeed, p.Speed)
	if p.LeanAngle < 0 {
		stats.MaxLeftLean = math.Max(stats.MaxLeftLean, -p.LeanAngle)
	} else {
		stats.MaxRightLean = math.Max(stats.MaxRightLean, p.LeanAngle)
	}
}

// MinMaxRideStats returns the extrema of a ride
func MinMaxRideStats(points []types.RidePoint) types.RideStats {
	stats := NewRideStats()
	for _, p := range points {
		WidenRideStats(&stats, p)
	}
	return stats
}

// pending tracks the last drawn point along with the extremes of the points
// folded into it since
type pending struct {
	anchor       types.RidePoint
	maxLeftLean  float64
	maxRightLean float64
	maxSpeed     float64
}

func newPending(p types.RidePoint) *pending {
	a := &pending{anchor: p}
	a.add(p)
	return a
}

func (a *pending) add(p types.RidePoint) {
	a.maxSpeed = math.Max(a.maxSpeed, p.Speed)
	if p.LeanAngle < 0 {
		a.maxLeftLean = math.Max(a.maxLeftLean, -p.LeanAngle)
	} else {
		a.maxRightLean = math.Max(a.maxRightLean, p.LeanAngle)
	}
}

// leanAngle returns the larger of the two lean extremes, signed
func (a *pending) leanAngle() float64 {
	if a.maxRightLean > a.maxLeftLean {
		return a.maxRightLean
	}
	return -a.maxLeftLean
}

// Summarizer turns ride points into colored segments
type Summarizer struct {
	thresholds Thresholds
	mapType    string
	speedUnits string
}

// NewSummarizer creates a summarizer using the rider's map settings
func NewSummarizer(settings *config.Settings) *Summarizer {
	return &Summarizer{
		thresholds: ThresholdsFromSettings(settings),
		mapType:    settings.MapType,
		speedUnits: settings.SpeedUnits,
	}
}

// Summarize reduces points to segments, coloring them against the extrema
// of the points themselves
func (s *Summarizer) Summarize(points []types.RidePoint) ([]types.Segment, types.RideStats) {
	stats := MinMaxRideStats(points)
	return s.Segments(points, stats), stats
}

// Segments reduces points to segments colored against stats. The last
// segment always ends at the last point; a single point gives a single
// zero-length segment.
func (s *Summarizer) Segments(points []types.RidePoint, stats types.RideStats) []types.Segment {
	if len(points) == 0 {
		return nil
	}

	agg := newPending(points[0])
	if len(points) == 1 {
		return []types.Segment{s.segment(agg, points[0], stats)}
	}

	var segments []types.Segment
	last := len(points) - 1
	for i := 1; i <= last; i++ {
		p := points[i]
		agg.add(p)
		if i != last && !IsSignificant(agg.anchor, p, s.thresholds) {
			continue
		}
		segments = append(segments, s.segment(agg, p, stats))
		agg = newPending(p)
	}
	return segments
}

func (s *Summarizer) segment(agg *pending, end types.RidePoint, stats types.RideStats) types.Segment {
	speed := agg.maxSpeed
	leanAngle := agg.leanAngle()

	var color string
	switch s.mapType {
	case config.MapTypeSpeed:
		color = SpeedColor(speed, stats.MaxSpeed)
	default:
		color = LeanColor(leanAngle, stats.MaxLeftLean, stats.MaxRightLean)
	}

	return types.Segment{
		StartLatitude:  agg.anchor.Latitude,
		StartLongitude: agg.anchor.Longitude,
		EndLatitude:    end.Latitude,
		EndLongitude:   end.Longitude,
		Speed:          speed,
		LeanAngle:      leanAngle,
		Color:          color,
		Overlay: types.Overlay{
			Latitude:  (agg.anchor.Latitude + end.Latitude) / 2,
			Longitude: (agg.anchor.Longitude + end.Longitude) / 2,
			Speed:     fmt.Sprintf("%.0f %s", ConvertSpeed(speed, s.speedUnits), s.speedUnits),
			Lean:      fmt.Sprintf("%.1f°", leanAngle),
		},
	}
}

// ConvertSpeed converts a speed in m/s to the given units
func ConvertSpeed(metersPerSecond float64, units string) float64 {
	switch units {
	case config.UnitsKPH:
		return metersPerSecond * 3.6
	default:
		return metersPerSecond * 2.2369362920544
	}
}
