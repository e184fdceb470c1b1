package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Client manages a Postgres connection pool.
type Client struct {
	db *sqlx.DB
}

// ClientOption configures Client.
type ClientOption func(*ClientConfig)

// ClientConfig holds Postgres pool settings.
type ClientConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

// WithDSN sets the connection string.
func WithDSN(dsn string) ClientOption {
	return func(c *ClientConfig) { c.DSN = dsn }
}

// WithMaxConnections sets max open and idle connections.
func WithMaxConnections(maxOpen, maxIdle int) ClientOption {
	return func(c *ClientConfig) {
		c.MaxOpenConns = maxOpen
		c.MaxIdleConns = maxIdle
	}
}

// WithConnMaxLifetime sets how long a pooled connection may live.
func WithConnMaxLifetime(d time.Duration) ClientOption {
	return func(c *ClientConfig) { c.ConnMaxLifetime = d }
}

// NewClient opens the pool and pings the server.
func NewClient(opts ...ClientOption) (*Client, error) {
	cfg := &ClientConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		PingTimeout:     5 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("dsn is required")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	return &Client{db: db}, nil
}

// NewFromDB wraps an existing handle; used with sqlmock in tests.
func NewFromDB(db *sqlx.DB) *Client { return &Client{db: db} }

// DB returns the sqlx handle.
func (c *Client) DB() *sqlx.DB { return c.db }

// Health performs health check.
func (c *Client) Health(ctx context.Context) error { return c.db.PingContext(ctx) }

// Close closes connection pool.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
