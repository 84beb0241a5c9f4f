package redis

import (
	"context"

	"github.com/redis/go-redis/v9"

	"tradecouncil/internal/adapters/config"
	"tradecouncil/pkg/errors"
)

// Client owns the connection used for agent weight snapshots
type Client struct {
	rdb *redis.Client
}

// Options maps the config section onto go-redis options
func Options(cfg config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.IOTimeout,
		WriteTimeout: cfg.IOTimeout,
	}
}

// NewClient connects and pings
func NewClient(cfg config.RedisConfig) (*Client, error) {
	c := &Client{rdb: redis.NewClient(Options(cfg))}
	if err := c.Health(context.Background()); err != nil {
		_ = c.rdb.Close()
		return nil, errors.Wrapf(err, "redis at %s", cfg.Addr())
	}
	return c, nil
}

// Client returns the go-redis client for repositories
func (c *Client) Client() *redis.Client {
	return c.rdb
}

// Close closes the pool
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health pings the server
func (c *Client) Health(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return errors.Unavailable(err, "redis")
	}
	return nil
}
