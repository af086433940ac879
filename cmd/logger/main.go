package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/saviobatista/ride-guardian/internal/config"
	"github.com/saviobatista/ride-guardian/internal/nats"
	"github.com/saviobatista/ride-guardian/internal/storage"
	"github.com/saviobatista/ride-guardian/internal/types"
)

// RecordWriter appends ride data to the ride log
type RecordWriter interface {
	WriteRecord(riderID string, data *types.RideData) error
}

// Subscriber interface for testability
type Subscriber interface {
	SubscribeRideData(handler func(riderID string, data *types.RideData)) error
}

func main() {
	if err := runLogger(); err != nil {
		log.Printf("Logger failed: %v", err)
		os.Exit(1)
	}
}

// runLogger contains the main application logic and can be tested
func runLogger() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	store := storage.New(cfg.OutputDir)
	if err := store.Start(); err != nil {
		return fmt.Errorf("failed to start storage: %w", err)
	}
	defer func() {
		if err := store.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "error closing ride log: %v\n", err)
		}
	}()

	client, err := nats.New(cfg.NATSURL)
	if err != nil {
		return fmt.Errorf("failed to create NATS client: %w", err)
	}

	if err := subscribe(client, store); err != nil {
		client.Close()
		return err
	}
	log.Printf("Logging ride data to %s", cfg.OutputDir)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()

	log.Println("Shutting down...")
	// Close client before the log so no handler writes to a closed file
	client.Close()
	return nil
}

// subscribe writes every ride data update to the ride log
func subscribe(sub Subscriber, writer RecordWriter) error {
	if err := sub.SubscribeRideData(func(riderID string, data *types.RideData) {
		if err := writer.WriteRecord(riderID, data); err != nil {
			log.Printf("Failed to write ride data of %s: %v", riderID, err)
		}
	}); err != nil {
		return fmt.Errorf("failed to subscribe to ride data: %w", err)
	}
	return nil
}
