package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/saviobatista/ride-guardian/internal/nats"
	"github.com/saviobatista/ride-guardian/internal/parser"
	"github.com/saviobatista/ride-guardian/internal/types"
)

// ControlPublisher sends rider actions
type ControlPublisher interface {
	PublishControl(riderID string, cmd *types.ControlCommand) error
}

func controlCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "control <start|stop|cancel|alert_angle> [value]",
		Short: "Send a rider action to the guardian",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := nats.New(g.natsURL)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := sendControl(client, g.riderID, args); err != nil {
				return err
			}
			if err := client.Flush(); err != nil {
				return fmt.Errorf("failed to flush: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent %s to %s\n", strings.Join(args, " "), g.riderID)
			return nil
		},
	}
}

// sendControl validates args with the bridge's control syntax and publishes them
func sendControl(p ControlPublisher, riderID string, args []string) error {
	event, err := parser.ParseMessage(string(parser.KindControl)+","+strings.Join(args, ","), time.Now())
	if err != nil {
		return err
	}
	return p.PublishControl(riderID, event.Control)
}

// WatchSubscriber follows escalation traffic
type WatchSubscriber interface {
	SubscribeAlerts(handler func(*types.AlertEvent)) error
	SubscribeSMS(handler func(*types.SMSRequest)) error
}

func watchCmd(g *globals) *cobra.Command {
	var allRiders bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow crash alerts and outbound texts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			client, err := nats.New(g.natsURL)
			if err != nil {
				return err
			}
			defer client.Close()

			riderID := g.riderID
			if allRiders {
				riderID = ""
			}
			return watch(ctx, client, riderID, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&allRiders, "all", false, "follow every rider")
	return cmd
}

// watch prints escalation traffic until ctx is done. An empty riderID
// follows every rider.
func watch(ctx context.Context, sub WatchSubscriber, riderID string, w io.Writer) error {
	out := &syncWriter{w: w}

	if err := sub.SubscribeAlerts(func(e *types.AlertEvent) {
		if riderID != "" && e.RiderID != riderID {
			return
		}
		out.printf("%s alert %-9s rider=%s seconds=%d retries=%d\n",
			e.Timestamp.UTC().Format(time.RFC3339), e.Type, e.RiderID, e.SecondsRemaining, e.RetriesRemaining)
	}); err != nil {
		return err
	}

	if err := sub.SubscribeSMS(func(r *types.SMSRequest) {
		out.printf("%s sms   to=%s %q\n", r.Timestamp.UTC().Format(time.RFC3339), r.Number, r.Message)
	}); err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}

// syncWriter serializes writes from subscription goroutines
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format, args...)
}
