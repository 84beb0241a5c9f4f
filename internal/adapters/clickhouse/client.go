package clickhouse

import (
	"context"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"tradecouncil/internal/adapters/config"
	"tradecouncil/pkg/errors"
)

// Client owns the market-data connection
type Client struct {
	conn driver.Conn
}

// Options maps the config section onto driver options
func Options(cfg config.ClickHouseConfig) *clickhouse.Options {
	opts := &clickhouse.Options{
		Addr: []string{cfg.Addr()},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout:  cfg.DialTimeout,
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxOpenConns,
	}
	if secs := int(cfg.QueryTimeout.Seconds()); secs > 0 {
		opts.Settings = clickhouse.Settings{"max_execution_time": secs}
	}
	return opts
}

// NewClient opens and pings the connection
func NewClient(cfg config.ClickHouseConfig) (*Client, error) {
	conn, err := clickhouse.Open(Options(cfg))
	if err != nil {
		return nil, errors.Unavailable(err, "clickhouse %s", cfg.Addr())
	}

	c := &Client{conn: conn}
	if err := c.Health(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

// Conn returns the driver connection for repositories
func (c *Client) Conn() driver.Conn {
	return c.conn
}

// Close closes the connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Health pings the server
func (c *Client) Health(ctx context.Context) error {
	if err := c.conn.Ping(ctx); err != nil {
		return errors.Unavailable(err, "clickhouse")
	}
	return nil
}
