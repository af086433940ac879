package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/saviobatista/ride-guardian/internal/redis"
	"github.com/saviobatista/ride-guardian/internal/types"
)

// LiveReader reads the live state of a rider
type LiveReader interface {
	GetRideData(ctx context.Context, riderID string) (*types.RideData, error)
	GetAlert(ctx context.Context, riderID string) (*types.AlertEvent, error)
	GetLastRide(ctx context.Context, riderID string) (*types.Ride, error)
}

// LiveState is everything known about a rider right now
type LiveState struct {
	RiderID  string            `json:"rider_id"`
	RideData *types.RideData   `json:"ride_data,omitempty"`
	Alert    *types.AlertEvent `json:"alert,omitempty"`
	LastRide *types.Ride       `json:"last_ride,omitempty"`
}

func liveCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "live",
		Short: "Show the rider's live ride data, alert and last ride",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := redis.New(g.redisAddr)
			if err != nil {
				return err
			}
			defer func() {
				if err := client.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "error closing redisClient: %v\n", err)
				}
			}()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			state, err := loadLiveState(ctx, client, g.riderID)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), state)
		},
	}
}

func loadLiveState(ctx context.Context, r LiveReader, riderID string) (*LiveState, error) {
	state := &LiveState{RiderID: riderID}
	var err error
	if state.RideData, err = r.GetRideData(ctx, riderID); err != nil {
		return nil, err
	}
	if state.Alert, err = r.GetAlert(ctx, riderID); err != nil {
		return nil, err
	}
	if state.LastRide, err = r.GetLastRide(ctx, riderID); err != nil {
		return nil, err
	}
	return state, nil
}
