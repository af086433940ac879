package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/saviobatista/ride-guardian/internal/audio"
	"github.com/saviobatista/ride-guardian/internal/clock"
	"github.com/saviobatista/ride-guardian/internal/config"
	"github.com/saviobatista/ride-guardian/internal/db"
	"github.com/saviobatista/ride-guardian/internal/nats"
	"github.com/saviobatista/ride-guardian/internal/redis"
	"github.com/saviobatista/ride-guardian/internal/stats"
	"github.com/saviobatista/ride-guardian/internal/types"
)

const (
	eventQueueSize     = 1024
	persistInterval    = 5 * time.Minute
	statsLogInterval   = time.Minute
	settingsLoadTimeout = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Printf("Guardian failed: %v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	natsClient, dbClient, redisClient, err := createClients(cfg)
	if err != nil {
		return err
	}
	defer closeClients(natsClient, dbClient, redisClient)

	settingsStore := redisClient.Settings(cfg.RiderID)
	loadCtx, cancelLoad := context.WithTimeout(context.Background(), settingsLoadTimeout)
	settings := config.LoadSettings(loadCtx, settingsStore)
	cancelLoad()
	settings.DesktopMode = cfg.DesktopMode

	st := stats.New()
	st.SetStore(dbClient)

	loop := clock.NewLoop(eventQueueSize)
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	go func() {
		if err := loop.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Event loop stopped: %v", err)
		}
	}()

	guardian := NewGuardian(cfg.RiderID, loop, settings, Dependencies{
		Publisher: natsClient,
		Rides:     dbClient,
		Live:      redisClient,
		Settings:  settingsStore,
		Alarm:     &loopAlarm{alarm: audio.NewSiren(), post: loop.Post},
		Stats:     st,
	})
	if err := loop.Do(loopCtx, guardian.Open); err != nil {
		return fmt.Errorf("failed to open guardian: %w", err)
	}

	if err := subscribe(natsClient, cfg.RiderID, loop, guardian); err != nil {
		return err
	}
	log.Printf("Guarding rider %s", cfg.RiderID)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		st.StartPersistence(ctx, persistInterval)
	}()
	go logStats(ctx, st)

	<-ctx.Done()
	log.Println("Shutting down...")

	// The ride in progress is published before NATS is closed
	closeCtx, cancelClose := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelClose()
	if err := loop.Do(closeCtx, guardian.Close); err != nil {
		log.Printf("Failed to close guardian: %v", err)
	}
	wg.Wait()
	return nil
}

// createClients creates all the required clients for the application
func createClients(cfg *config.Config) (*nats.Client, *db.Client, *redis.Client, error) {
	natsClient, err := nats.New(cfg.NATSURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create NATS client: %w", err)
	}

	dbClient, err := db.New(cfg.DBConnStr)
	if err != nil {
		natsClient.Close()
		return nil, nil, nil, fmt.Errorf("failed to create database client: %w", err)
	}

	redisClient, err := redis.New(cfg.RedisAddr)
	if err != nil {
		natsClient.Close()
		if closeErr := dbClient.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing dbClient: %v\n", closeErr)
		}
		return nil, nil, nil, fmt.Errorf("failed to create Redis client: %w", err)
	}

	return natsClient, dbClient, redisClient, nil
}

func closeClients(natsClient *nats.Client, dbClient *db.Client, redisClient *redis.Client) {
	natsClient.Close()
	if err := dbClient.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "error closing dbClient: %v\n", err)
	}
	if err := redisClient.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "error closing redisClient: %v\n", err)
	}
}

// Subscriber interface for testability
type Subscriber interface {
	SubscribeSensorRaw(riderID string, handler func(*types.SensorMessage)) error
	SubscribeControl(riderID string, handler func(*types.ControlCommand)) error
}

// Poster queues work onto the event loop
type Poster interface {
	Post(f func()) error
}

// subscribe forwards sensor lines and remote control commands onto the loop
func subscribe(sub Subscriber, riderID string, loop Poster, guardian *Guardian) error {
	if err := sub.SubscribeSensorRaw(riderID, func(msg *types.SensorMessage) {
		post(loop, func() {
			if err := guardian.HandleMessage(msg); err != nil {
				log.Printf("Failed to process message: %v", err)
			}
		})
	}); err != nil {
		return fmt.Errorf("failed to subscribe to sensor messages: %w", err)
	}

	if err := sub.SubscribeControl(riderID, func(cmd *types.ControlCommand) {
		post(loop, func() {
			if err := guardian.HandleControl(cmd); err != nil {
				log.Printf("Failed to apply control command: %v", err)
			}
		})
	}); err != nil {
		return fmt.Errorf("failed to subscribe to control commands: %w", err)
	}

	return nil
}

func post(loop Poster, f func()) {
	if err := loop.Post(f); err != nil {
		log.Printf("Dropping event: %v", err)
	}
}

// logStats periodically logs statistics
func logStats(ctx context.Context, st *stats.Stats) {
	ticker := time.NewTicker(statsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Printf("Statistics:\n%s", st)
		}
	}
}
