// Package postgres opens a lib/pq connection pool and offers a transaction
// helper.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/chameleon-ai/chameleon/pkg/config"
	"github.com/chameleon-ai/chameleon/pkg/resilience"
)

type Client struct {
	DB *sql.DB
}

func New(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Client{DB: db}, nil
}

// Connect calls New until it succeeds or attempts run out. Rejections that
// another attempt cannot fix stop the loop at once (see IsPermanent).
func Connect(ctx context.Context, cfg config.PostgresConfig, attempts int) (*Client, error) {
	var c *Client
	err := resilience.Retry(ctx, "postgres-connect", resilience.RetryConfig{
		MaxAttempts: attempts,
		Retryable:   Transient,
	}, func() error {
		var err error
		c, err = New(ctx, cfg)
		return err
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// IsPermanent reports whether the server rejected the connection for a
// reason that will not change between attempts: invalid credentials or
// authorization (class 28) or an unknown database (3D000).
func IsPermanent(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code.Class() == "28" || pqErr.Code == "3D000"
}

// Transient is the inverse of IsPermanent, for use as a retry predicate.
func Transient(err error) bool { return !IsPermanent(err) }

// FromDB wraps an already opened handle.
func FromDB(db *sql.DB) *Client {
	return &Client{DB: db}
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}
