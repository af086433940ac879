package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/saviobatista/ride-guardian/internal/db"
	"github.com/saviobatista/ride-guardian/internal/types"
)

// RideReader reads stored rides and statistics
type RideReader interface {
	ListRides(riderID string, limit int) ([]*types.Ride, error)
	GetRide(id string) (*types.Ride, error)
	GetSystemStats(start, end time.Time) ([]*types.SystemStats, error)
}

// withDB opens the database for the duration of fn
func withDB(g *globals, fn func(RideReader) error) error {
	client, err := db.New(g.dbURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "error closing dbClient: %v\n", err)
		}
	}()
	return fn(client)
}

func ridesCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rides",
		Short: "List and show stored rides",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List the most recent rides of the rider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(g, func(r RideReader) error {
				return listRides(cmd.OutOrStdout(), r, g.riderID, limit)
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum number of rides")

	show := &cobra.Command{
		Use:   "show <ride-id>",
		Short: "Show a ride with its segments as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(g, func(r RideReader) error {
				return showRide(cmd.OutOrStdout(), r, args[0])
			})
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

func listRides(w io.Writer, r RideReader, riderID string, limit int) error {
	rides, err := r.ListRides(riderID, limit)
	if err != nil {
		return err
	}
	if len(rides) == 0 {
		fmt.Fprintf(w, "No rides for %s\n", riderID)
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tDURATION\tPOINTS\tMAX SPEED\tMAX LEFT\tMAX RIGHT")
	for _, ride := range rides {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.1f\t%.1f\t%.1f\n",
			ride.ID,
			ride.StartedAt.UTC().Format(time.RFC3339),
			ride.EndedAt.Sub(ride.StartedAt).Round(time.Second),
			ride.PointCount,
			ride.Stats.MaxSpeed,
			ride.Stats.MaxLeftLean,
			ride.Stats.MaxRightLean,
		)
	}
	return tw.Flush()
}

func showRide(w io.Writer, r RideReader, id string) error {
	ride, err := r.GetRide(id)
	if err != nil {
		return err
	}
	if ride == nil {
		return fmt.Errorf("ride %s not found", id)
	}
	return writeJSON(w, ride)
}

func statsCmd(g *globals) *cobra.Command {
	var since time.Duration
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show persisted engine statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(g, func(r RideReader) error {
				end := time.Now()
				return showStats(cmd.OutOrStdout(), r, end.Add(-since), end)
			})
		},
	}
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "how far back to look")
	return cmd
}

func showStats(w io.Writer, r RideReader, start, end time.Time) error {
	snapshots, err := r.GetSystemStats(start, end)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tMESSAGES\tFAILED\tRIDES\tCRASHES\tSMS SENT\tSMS FAILED")
	for _, s := range snapshots {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
			s.Timestamp.UTC().Format(time.RFC3339),
			s.TotalMessages,
			s.FailedMessages,
			s.CompletedRides,
			s.CrashAlerts,
			s.SMSSent,
			s.SMSFailed,
		)
	}
	return tw.Flush()
}
