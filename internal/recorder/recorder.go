// Package recorder collects the ride points of the ride in progress.
package recorder

import (
	"time"

	"github.com/saviobatista/ride-guardian/internal/route"
	"github.com/saviobatista/ride-guardian/internal/types"
)

// Recording is the result of a finished ride
type Recording struct {
	RideID    string
	StartedAt time.Time
	EndedAt   time.Time
	Points    []types.RidePoint
	Stats     types.RideStats
}

// Recorder accumulates ride points and their running extrema between
// Begin and Finish
type Recorder struct {
	active    bool
	rideID    string
	startedAt time.Time
	points    []types.RidePoint
	stats     types.RideStats
}

// New creates an idle recorder
func New() *Recorder {
	return &Recorder{stats: route.NewRideStats()}
}

// Begin starts recording ride rideID, discarding any unfinished one
func (r *Recorder) Begin(rideID string, at time.Time) {
	r.active = true
	r.rideID = rideID
	r.startedAt = at
	r.points = nil
	r.stats = route.NewRideStats()
}

// Record appends a ride point and widens the ride stats. It returns false
// when no ride is being recorded or the data has no position fix yet.
func (r *Recorder) Record(data types.RideData) bool {
	if !r.active {
		return false
	}
	if data.Latitude == 0 && data.Longitude == 0 {
		return false
	}
	p := data.Point()
	r.points = append(r.points, p)
	route.WidenRideStats(&r.stats, p)
	return true
}

// Finish ends the recording and returns it. ok is false if no ride was
// being recorded.
func (r *Recorder) Finish(at time.Time) (rec Recording, ok bool) {
	if !r.active {
		return Recording{}, false
	}
	rec = Recording{
		RideID:    r.rideID,
		StartedAt: r.startedAt,
		EndedAt:   at,
		Points:    r.points,
		Stats:     r.stats,
	}
	r.active = false
	r.rideID = ""
	r.points = nil
	r.stats = route.NewRideStats()
	return rec, true
}

// Active reports whether a ride is being recorded
func (r *Recorder) Active() bool {
	return r.active
}

// RideID returns the ID of the ride being recorded, or "" when idle
func (r *Recorder) RideID() string {
	return r.rideID
}

// Stats returns the extrema of the points recorded so far
func (r *Recorder) Stats() types.RideStats {
	return r.stats
}

// Len returns the number of points recorded so far
func (r *Recorder) Len() int {
	return len(r.points)
}
