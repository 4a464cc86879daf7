// Package redis connects the optional redis instance that backs the shared
// rate-limit window store. When no URL is configured the server falls back
// to per-process in-memory windows.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"agentledger/internal/platform/config"
)

// Client wraps go-redis so callers get a startup-verified connection and a
// health probe alongside the raw commands.
type Client struct {
	*redis.Client
}

// New dials redis from the configured URL and verifies the connection with
// a ping. An empty URL means redis is not configured and New returns nil
// without error; callers treat that as "keep rate-limit state local".
func New(cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Client{Client: client}, nil
}

// Health reports whether redis is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.Client.Close()
}
