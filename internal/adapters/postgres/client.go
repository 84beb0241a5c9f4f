package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"tradecouncil/internal/adapters/config"
	"tradecouncil/pkg/errors"
)

// Client owns the allocation-history connection pool
type Client struct {
	db *sqlx.DB
}

// NewClient connects and verifies the pool within cfg.ConnectTimeout
func NewClient(cfg config.PostgresConfig) (*Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout(cfg.ConnectTimeout))
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	if err != nil {
		return nil, errors.Unavailable(err, "postgres %s:%d", cfg.Host, cfg.Port)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns((maxConns + 1) / 2)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return NewClientFromDB(db), nil
}

// NewClientFromDB wraps an existing pool (sqlmock in tests)
func NewClientFromDB(db *sqlx.DB) *Client {
	return &Client{db: db}
}

// DB returns the pool for repositories
func (c *Client) DB() *sqlx.DB {
	return c.db
}

// Close closes the pool
func (c *Client) Close() error {
	return c.db.Close()
}

// Health pings the database
func (c *Client) Health(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return errors.Unavailable(err, "postgres")
	}
	return nil
}

func connectTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}
