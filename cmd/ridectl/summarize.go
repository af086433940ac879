package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/saviobatista/ride-guardian/internal/config"
	"github.com/saviobatista/ride-guardian/internal/route"
	"github.com/saviobatista/ride-guardian/internal/storage"
	"github.com/saviobatista/ride-guardian/internal/types"
)

// Summary is the offline summary of one ride in a ride log
type Summary struct {
	RideID    string          `json:"ride_id"`
	RiderID   string          `json:"rider_id"`
	Points    int             `json:"points"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   time.Time       `json:"ended_at"`
	MapType   string          `json:"map_type"`
	Stats     types.RideStats `json:"stats"`
	Segments  []types.Segment `json:"segments"`
}

// settingFlags maps summarize flags to the rider settings they override
var settingFlags = map[string]string{
	"map-type":    config.KeyMapType,
	"speed-units": config.KeySpeedUnits,
	"distance":    config.KeyMapSignificantDistanceMeters,
	"lean-delta":  config.KeyMapSignificantLeanDelta,
	"speed-delta": config.KeyMapSignificantSpeedDelta,
}

func summarizeCmd(g *globals) *cobra.Command {
	var (
		allRiders bool
		rideID    string
	)
	defaults := config.DefaultSettings()

	cmd := &cobra.Command{
		Use:   "summarize <ride-log>",
		Short: "Summarize the rides of a ride log (.jsonl or .jsonl.gz)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := settingsFromFlags(cmd.Flags())
			if err != nil {
				return err
			}

			filter := rideFilter{riderID: g.riderID, rideID: rideID}
			if allRiders {
				filter.riderID = ""
			}
			summaries, err := summarizeFile(args[0], filter, settings)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), summaries)
		},
	}

	cmd.Flags().BoolVar(&allRiders, "all", false, "include every rider in the log")
	cmd.Flags().StringVar(&rideID, "ride", "", "only summarize this ride")
	cmd.Flags().String("map-type", defaults.MapType, "segment coloring: lean or speed")
	cmd.Flags().String("speed-units", defaults.SpeedUnits, "overlay speed units: mph or kph")
	cmd.Flags().Float64("distance", defaults.MapSignificantDistanceMeters, "significant distance in meters")
	cmd.Flags().Float64("lean-delta", defaults.MapSignificantLeanDelta, "significant lean change in degrees")
	cmd.Flags().Float64("speed-delta", defaults.MapSignificantSpeedDelta, "significant speed change in m/s")
	return cmd
}

// settingsFromFlags applies the changed flags on top of the default settings
func settingsFromFlags(flags *pflag.FlagSet) (*config.Settings, error) {
	settings := config.DefaultSettings()
	var err error
	flags.Visit(func(f *pflag.Flag) {
		key, ok := settingFlags[f.Name]
		if !ok || err != nil {
			return
		}
		if setErr := settings.Set(key, f.Value.String()); setErr != nil {
			err = fmt.Errorf("--%s: %w", f.Name, setErr)
		}
	})
	return settings, err
}

// rideFilter selects the records to summarize. Empty fields match
// everything.
type rideFilter struct {
	riderID string
	rideID  string
}

func (f rideFilter) match(r storage.Record) bool {
	if f.riderID != "" && r.RiderID != f.riderID {
		return false
	}
	return f.rideID == "" || r.RideID == f.rideID
}

// summarizeFile rebuilds the ride points of every ride in a ride log and
// summarizes each ride on its own, in the order the rides first appear.
// Records logged outside a ride are skipped.
func summarizeFile(path string, filter rideFilter, settings *config.Settings) ([]*Summary, error) {
	var summaries []*Summary
	byRide := make(map[string]*Summary)
	points := make(map[string][]types.RidePoint)

	err := storage.ReadRecords(path, func(r storage.Record) error {
		if r.RideID == "" || !filter.match(r) {
			return nil
		}
		if r.Latitude == 0 && r.Longitude == 0 {
			return nil
		}

		summary, ok := byRide[r.RideID]
		if !ok {
			summary = &Summary{RideID: r.RideID, RiderID: r.RiderID, MapType: settings.MapType}
			byRide[r.RideID] = summary
			summaries = append(summaries, summary)
		}
		if summary.StartedAt.IsZero() || r.Timestamp.Before(summary.StartedAt) {
			summary.StartedAt = r.Timestamp
		}
		if r.Timestamp.After(summary.EndedAt) {
			summary.EndedAt = r.Timestamp
		}
		points[r.RideID] = append(points[r.RideID], r.Point())
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, errors.New("no rides found")
	}

	summarizer := route.NewSummarizer(settings)
	for _, summary := range summaries {
		rp := points[summary.RideID]
		summary.Points = len(rp)
		summary.Segments, summary.Stats = summarizer.Summarize(rp)
	}
	return summaries, nil
}
