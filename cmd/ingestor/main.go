package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saviobatista/ride-guardian/internal/capture"
	"github.com/saviobatista/ride-guardian/internal/config"
	"github.com/saviobatista/ride-guardian/internal/nats"
	"github.com/saviobatista/ride-guardian/internal/types"
)

// NATSClient interface for testability
type NATSClient interface {
	PublishSensorMessage(msg *types.SensorMessage) error
	Close()
}

// Source is a running line capture
type Source interface {
	Start() error
	Stop()
	Messages() <-chan capture.Message
}

func main() {
	if err := run(); err != nil {
		log.Printf("Ingestor failed: %v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if len(cfg.Sources) == 0 {
		return errors.New("SOURCES environment variable is required")
	}

	client, err := nats.New(cfg.NATSURL)
	if err != nil {
		return fmt.Errorf("failed to create NATS client: %w", err)
	}
	defer client.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Printf("Ingesting %d source(s) for rider %s", len(cfg.Sources), cfg.RiderID)
	return ingest(ctx, capture.New(cfg.Sources), cfg.RiderID, client)
}

// ingest publishes every captured line as riderID's until ctx is cancelled
func ingest(ctx context.Context, source Source, riderID string, client NATSClient) error {
	if err := source.Start(); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}

	done := make(chan result, 1)
	go func() {
		done <- forward(source.Messages(), riderID, client)
	}()

	<-ctx.Done()
	log.Println("Shutting down...")
	source.Stop()

	select {
	case r := <-done:
		log.Printf("Published %d messages, %d failed", r.published, r.failed)
	case <-time.After(5 * time.Second):
		log.Println("Timed out waiting for pending messages")
	}
	return nil
}

type result struct {
	published int
	failed    int
}

// forward publishes messages until the channel is closed
func forward(messages <-chan capture.Message, riderID string, client NATSClient) result {
	var r result
	for m := range messages {
		if err := client.PublishSensorMessage(toSensorMessage(m, riderID)); err != nil {
			log.Printf("Failed to publish message from %s: %v", m.Source, err)
			r.failed++
			continue
		}
		r.published++
	}
	return r
}

func toSensorMessage(m capture.Message, riderID string) *types.SensorMessage {
	return &types.SensorMessage{
		RiderID:   riderID,
		Raw:       m.Line,
		Timestamp: m.Timestamp.UTC(),
		Source:    m.Source,
	}
}
