// ridectl inspects and drives the ride guardian services: it summarizes
// ride logs offline, lists stored rides, shows a rider's live state and
// sends rider actions.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/saviobatista/ride-guardian/internal/config"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := fang.Execute(context.Background(), newRootCmd(cfg)); err != nil {
		os.Exit(1)
	}
}

// globals are the connection flags shared by every subcommand
type globals struct {
	riderID   string
	dbURL     string
	redisAddr string
	natsURL   string
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "ridectl",
		Short: "Inspect and control ride guardian",
		Long: `ridectl works with the data produced by the ride guardian services.

Commands:
  summarize <log>   Summarize a ride log into colored route segments
  rides             List and show rides stored in the database
  stats             Show persisted engine statistics
  live              Show a rider's live ride data, alert and last ride
  control           Send a rider action (start, stop, cancel, alert_angle)
  watch             Follow crash alerts and outbound texts`,
		Version:      version,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&g.riderID, "rider", cfg.RiderID, "rider ID")
	root.PersistentFlags().StringVar(&g.dbURL, "db", cfg.DBConnStr, "database connection string")
	root.PersistentFlags().StringVar(&g.redisAddr, "redis", cfg.RedisAddr, "Redis address")
	root.PersistentFlags().StringVar(&g.natsURL, "nats", cfg.NATSURL, "NATS URL")

	root.AddCommand(
		summarizeCmd(g),
		ridesCmd(g),
		statsCmd(g),
		liveCmd(g),
		controlCmd(g),
		watchCmd(g),
	)
	return root
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
