package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/hold_seats.lua
var holdSeatsScript string

//go:embed scripts/release_seats.lua
var releaseSeatsScript string

type Client struct {
	rdb           *redis.Client
	holdScript    *redis.Script
	releaseScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		holdScript:    redis.NewScript(holdSeatsScript),
		releaseScript: redis.NewScript(releaseSeatsScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func seatKeys(seatIDs []uuid.UUID) []string {
	keys := make([]string, len(seatIDs))
	for i, id := range seatIDs {
		keys[i] = fmt.Sprintf("seat_hold:%s", id)
	}
	return keys
}

// HoldSeats atomically places a TTL hold on every seat in the set using
// a Lua script. Returns false when any seat is already held: the script
// holds all seats or none.
func (c *Client) HoldSeats(ctx context.Context, seatIDs []uuid.UUID, holderID uuid.UUID, ttl time.Duration) (bool, error) {
	if len(seatIDs) == 0 {
		return false, nil
	}

	result, err := c.holdScript.Run(ctx, c.rdb, seatKeys(seatIDs), holderID.String(), int(ttl.Seconds())).Result()
	if err != nil {
		return false, fmt.Errorf("hold seats script failed: %w", err)
	}

	held, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result type")
	}

	return held == 1, nil
}

// ReleaseSeats drops the caller's holds on the seat set
func (c *Client) ReleaseSeats(ctx context.Context, seatIDs []uuid.UUID, holderID uuid.UUID) error {
	if len(seatIDs) == 0 {
		return nil
	}

	_, err := c.releaseScript.Run(ctx, c.rdb, seatKeys(seatIDs), holderID.String()).Result()
	if err != nil {
		return fmt.Errorf("release seats script failed: %w", err)
	}

	return nil
}

// SetIdempotencyKey stores an idempotency key with TTL
func (c *Client) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("idempotency:%s", key), value, ttl).Err()
}

// GetIdempotencyKey returns the value cached under an idempotency key,
// or "" when the key is unknown or expired
func (c *Client) GetIdempotencyKey(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, fmt.Sprintf("idempotency:%s", key)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

// AcquireRouteLock serializes reservations for a route
func (c *Client) AcquireRouteLock(ctx context.Context, routeID uuid.UUID, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:route:%s", routeID), "1", ttl).Result()
}

// ReleaseRouteLock releases the route reservation lock
func (c *Client) ReleaseRouteLock(ctx context.Context, routeID uuid.UUID) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:route:%s", routeID)).Err()
}
