package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client and checks the connection
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

	return &Client{rdb: rdb}, nil
}

// Ping reports whether Redis is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetIdempotentResponse returns the response stored for an idempotency key
func (c *Client) GetIdempotentResponse(ctx context.Context, key string) ([]byte, bool, error) {
	payload, err := c.rdb.Get(ctx, idempotencyKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

// SetIdempotentResponse stores the response for an idempotency key with TTL
func (c *Client) SetIdempotentResponse(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, idempotencyKey(key), payload, ttl).Err()
}

// releaseLockScript deletes the lock only while it still holds the caller's token.
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AcquireLock acquires a distributed lock owned by token
func (c *Client) AcquireLock(ctx context.Context, lockKey, token string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), token, ttl).Result()
}

// ReleaseLock releases the lock if token still owns it
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	return releaseLockScript.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, token).Err()
}

// GetJSON decodes the value stored at key into dst. It reports false when the key is absent.
func (c *Client) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	payload, err := c.rdb.Get(ctx, cacheKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return false, fmt.Errorf("failed to decode cached %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores value at key as JSON with TTL
func (c *Client) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return c.rdb.Set(ctx, cacheKey(key), payload, ttl).Err()
}

// MarkEventProcessed records eventID. It returns false when the event was already recorded.
func (c *Client) MarkEventProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("processed:%s", eventID), time.Now().Unix(), ttl).Result()
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}

func cacheKey(key string) string {
	return fmt.Sprintf("cache:%s", key)
}
