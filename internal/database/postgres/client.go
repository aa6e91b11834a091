// Package postgres resolves miner logins against the pool's user table.
package postgres

import (
	"context"
	"database/sql"
	"time"

	// PostgreSQL driver for database/sql
	_ "github.com/lib/pq"

	"github.com/bardlex/beampool/pkg/errors"
	"github.com/bardlex/beampool/pkg/retry"
)

// Client wraps the PostgreSQL connection pool
type Client struct {
	db *sql.DB
}

// Config holds PostgreSQL connection configuration
type Config struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

// NewClient opens a pool for cfg.URL. The connection is verified by Ping.
func NewClient(cfg *Config) (*Client, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "postgres_config", "failed to open database")
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	return &Client{db: db}, nil
}

// Ping waits for the database to accept connections
func (c *Client) Ping(ctx context.Context, config *retry.Config) error {
	return retry.Do(ctx, config, func() error {
		if err := c.db.PingContext(ctx); err != nil {
			return errors.Wrap(err, errors.ErrorTypeStorage, "postgres_ping", "database not reachable")
		}
		return nil
	})
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// Health checks database connectivity
func (c *Client) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// DB returns the underlying sql.DB
func (c *Client) DB() *sql.DB {
	return c.db
}
