// Package redis wraps go-redis behind the storage.Client interface.
// The server uses it for the query-result cache and the embedding cache.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/kart-io/bookqa/pkg/component/storage"
	options "github.com/kart-io/bookqa/pkg/options/redis"
	goredis "github.com/redis/go-redis/v9"
)

// Client implements storage.Client on top of go-redis while exposing the
// raw *goredis.Client for callers that need the full command surface.
type Client struct {
	client *goredis.Client
	opts   *options.Options
}

var _ storage.Client = (*Client)(nil)

// New creates a Redis client from the provided options and verifies
// connectivity with an initial ping.
func New(opts *options.Options) (*Client, error) {
	return NewWithContext(context.Background(), opts)
}

// NewWithContext is New with caller-controlled timeout for the initial ping.
func NewWithContext(ctx context.Context, opts *options.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("redis options cannot be nil")
	}

	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid redis options: %w", err)
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Password:     opts.Password,
		DB:           opts.Database,
		MaxRetries:   opts.MaxRetries,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		PoolTimeout:  opts.PoolTimeout,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Client{
		client: rdb,
		opts:   opts,
	}, nil
}

// Name returns the storage type identifier.
func (c *Client) Name() string {
	return "redis"
}

// Ping checks if the connection to Redis is alive.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection. Safe to call multiple times.
func (c *Client) Close() error {
	return c.client.Close()
}

// Health returns a HealthChecker with a bounded 3s ping.
func (c *Client) Health() storage.HealthChecker {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return c.Ping(ctx)
	}
}

// Client returns the underlying go-redis client. The query cache and the
// embedding cache operate on this directly.
func (c *Client) Client() *goredis.Client {
	return c.client
}

// Options returns the options this client was built from.
func (c *Client) Options() *options.Options {
	return c.opts
}

// Do executes an arbitrary Redis command.
func (c *Client) Do(ctx context.Context, args ...interface{}) *goredis.Cmd {
	return c.client.Do(ctx, args...)
}

// Pipeline returns a pipeline for batching commands in one round trip.
func (c *Client) Pipeline() goredis.Pipeliner {
	return c.client.Pipeline()
}

// TxPipeline returns a transactional pipeline.
func (c *Client) TxPipeline() goredis.Pipeliner {
	return c.client.TxPipeline()
}
