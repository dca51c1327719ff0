// Package redis wraps the go-redis connection helpers needed by the service.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	redislib "github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("redis: key not found")

// Client wraps a go-redis connection.
type Client struct {
	raw *redislib.Client
}

// New bootstraps a Redis client from a URL and verifies connectivity.
func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redislib.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	raw := redislib.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Client{raw: raw}, nil
}

// Set stores a value with a TTL.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return c.raw.Set(ctx, key, value, ttl).Err()
}

// Get returns the string value stored at key, or ErrNotFound.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.raw.Get(ctx, key).Result()
	if errors.Is(err, redislib.Nil) {
		return "", ErrNotFound
	}
	return val, err
}

// Del removes the given keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.raw.Del(ctx, keys...).Err()
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.raw.Close()
}
