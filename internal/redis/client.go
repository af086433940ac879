package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/saviobatista/ride-guardian/internal/types"
)

const (
	rideDataTTL = 1 * time.Hour
	alertTTL    = 24 * time.Hour
	lastRideTTL = 30 * 24 * time.Hour
)

// RedisClientInterface defines the Redis operations used by our client
type RedisClientInterface interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// Client manages Redis connections and operations
type Client struct {
	client RedisClientInterface
}

// New creates a new Redis client
func New(addr string) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "", // no password set
		DB:       0,  // use default DB
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{client: client}, nil
}

// NewWithClient creates a new Redis client with a custom RedisClientInterface (useful for testing)
func NewWithClient(client RedisClientInterface) *Client {
	return &Client{client: client}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func settingKey(riderID, key string) string {
	return fmt.Sprintf("settings:%s:%s", riderID, key)
}

func rideDataKey(riderID string) string {
	return fmt.Sprintf("ride:%s:live", riderID)
}

func alertKey(riderID string) string {
	return fmt.Sprintf("ride:%s:alert", riderID)
}

func lastRideKey(riderID string) string {
	return fmt.Sprintf("ride:%s:last", riderID)
}

// GetSetting returns a rider setting. ok is false when the setting is not set.
func (c *Client) GetSetting(ctx context.Context, riderID, key string) (value string, ok bool, err error) {
	val, err := c.client.Get(ctx, settingKey(riderID, key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return val, true, nil
}

// SetSetting stores a rider setting without expiry
func (c *Client) SetSetting(ctx context.Context, riderID, key, value string) error {
	if err := c.client.Set(ctx, settingKey(riderID, key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// SettingsStore is the settings store of a single rider
type SettingsStore struct {
	client  *Client
	riderID string
}

// Settings returns the settings store of a rider
func (c *Client) Settings(riderID string) *SettingsStore {
	return &SettingsStore{client: c, riderID: riderID}
}

// GetSetting returns a setting of the rider
func (s *SettingsStore) GetSetting(ctx context.Context, key string) (string, bool, error) {
	return s.client.GetSetting(ctx, s.riderID, key)
}

// SetSetting stores a setting of the rider
func (s *SettingsStore) SetSetting(ctx context.Context, key, value string) error {
	return s.client.SetSetting(ctx, s.riderID, key, value)
}

// setData marshals value and stores it under key
func (c *Client) setData(ctx context.Context, key string, value interface{}, ttl time.Duration, dataType string) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", dataType, err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store %s: %w", dataType, err)
	}
	return nil
}

// getData retrieves data from Redis and unmarshals it into the target. It
// returns false when the key does not exist.
func (c *Client) getData(ctx context.Context, key string, target interface{}, dataType string) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil // Data not found
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s data: %w", dataType, err)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s data: %w", dataType, err)
	}

	return true, nil
}

// StoreRideData stores the latest ride data of a rider
func (c *Client) StoreRideData(ctx context.Context, riderID string, data *types.RideData) error {
	return c.setData(ctx, rideDataKey(riderID), data, rideDataTTL, "ride data")
}

// GetRideData retrieves the latest ride data of a rider, or nil if none
func (c *Client) GetRideData(ctx context.Context, riderID string) (*types.RideData, error) {
	var data types.RideData
	found, err := c.getData(ctx, rideDataKey(riderID), &data, "ride data")
	if err != nil || !found {
		return nil, err
	}
	return &data, nil
}

// DeleteRideData removes the live ride data of a rider
func (c *Client) DeleteRideData(ctx context.Context, riderID string) error {
	return c.client.Del(ctx, rideDataKey(riderID)).Err()
}

// StoreAlert stores the current crash escalation state of a rider
func (c *Client) StoreAlert(ctx context.Context, event *types.AlertEvent) error {
	return c.setData(ctx, alertKey(event.RiderID), event, alertTTL, "alert")
}

// GetAlert retrieves the current crash escalation state of a rider, or nil if none
func (c *Client) GetAlert(ctx context.Context, riderID string) (*types.AlertEvent, error) {
	var event types.AlertEvent
	found, err := c.getData(ctx, alertKey(riderID), &event, "alert")
	if err != nil || !found {
		return nil, err
	}
	return &event, nil
}

// DeleteAlert removes the crash escalation state of a rider
func (c *Client) DeleteAlert(ctx context.Context, riderID string) error {
	return c.client.Del(ctx, alertKey(riderID)).Err()
}

// StoreLastRide stores the summary of a rider's most recent ride
func (c *Client) StoreLastRide(ctx context.Context, ride *types.Ride) error {
	return c.setData(ctx, lastRideKey(ride.RiderID), ride, lastRideTTL, "ride")
}

// GetLastRide retrieves the summary of a rider's most recent ride, or nil if none
func (c *Client) GetLastRide(ctx context.Context, riderID string) (*types.Ride, error) {
	var ride types.Ride
	found, err := c.getData(ctx, lastRideKey(riderID), &ride, "ride")
	if err != nil || !found {
		return nil, err
	}
	return &ride, nil
}
