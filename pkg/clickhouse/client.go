package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"

	ch "github.com/ClickHouse/clickhouse-go/v2"
)

// Client is a database/sql pool over the clickhouse-go driver.
type Client struct {
	db *sql.DB
}

// NewClient opens the pool and pings the server.
func NewClient(opts ...ClientOption) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Host == "" {
		return nil, errors.New("clickhouse: host is required")
	}

	db := ch.OpenDB(options(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &Client{db: db}, nil
}

// NewFromDB wraps an existing handle; used with sqlmock in tests.
func NewFromDB(db *sql.DB) *Client { return &Client{db: db} }

func options(cfg ClientConfig) *ch.Options {
	o := &ch.Options{
		Addr: []string{net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))},
		Auth: ch.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Protocol:        ch.Native,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		Settings:        ch.Settings{},
	}
	if cfg.UseHTTP {
		o.Protocol = ch.HTTP
	}
	if cfg.Compress {
		o.Compression = &ch.Compression{Method: ch.CompressionLZ4}
	}
	if cfg.MaxExecTime > 0 {
		o.Settings["max_execution_time"] = int(cfg.MaxExecTime.Seconds())
	}
	if cfg.AsyncInsert {
		o.Settings["async_insert"] = 1
		if cfg.WaitForAsync {
			o.Settings["wait_for_async_insert"] = 1
		}
	}
	return o
}

func (c *Client) DB() *sql.DB { return c.db }

func (c *Client) Health(ctx context.Context) error { return c.db.PingContext(ctx) }

func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// InitSchema runs idempotent DDL statements in order.
func (c *Client) InitSchema(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}
