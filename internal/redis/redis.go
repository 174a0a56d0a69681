package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"smartchat/internal/config"
	"smartchat/pkg/logger"

	redis "github.com/redis/go-redis/v9"
)

// Client wraps go-redis to centralize configuration. A nil Client is valid and
// behaves as an always-missing cache, so the server runs without redis.
type Client struct {
	inner *redis.Client
}

// ErrCacheMiss mirrors redis.Nil for callers.
var ErrCacheMiss = redis.Nil

// NewClient creates the redis client from app config. An unreachable redis is
// not fatal: the returned client degrades to an always-missing cache so the
// server keeps working without caching.
func NewClient(cfg *config.Config) *Client {
	if cfg == nil {
		return &Client{}
	}
	host := cfg.Redis.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Redis.Port
	if port == 0 {
		port = 6379
	}

	opts := &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		logger.Warnf("redis unavailable at %s, continuing without cache: %v", opts.Addr, err)
		return &Client{}
	}
	return &Client{inner: client}
}

// GetJSON loads the key and unmarshals it into dest. Returns ErrCacheMiss when
// the key is absent or the client is nil.
func (c *Client) GetJSON(ctx context.Context, key string, dest interface{}) error {
	if c == nil || c.inner == nil {
		return ErrCacheMiss
	}
	raw, err := c.inner.Get(ctx, key).Result()
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), dest)
}

// SetJSON marshals value and stores it under key with the given TTL. A nil
// client is a no-op.
func (c *Client) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c == nil || c.inner == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	return c.inner.Set(ctx, key, payload, ttl).Err()
}

// Del removes provided keys. A nil client is a no-op.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c == nil || c.inner == nil || len(keys) == 0 {
		return nil
	}
	return c.inner.Del(ctx, keys...).Err()
}

// Close closes the underlying client.
func (c *Client) Close() error {
	if c == nil || c.inner == nil {
		return nil
	}
	return c.inner.Close()
}
