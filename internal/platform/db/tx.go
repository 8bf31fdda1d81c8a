package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/partsledger/partsledger/internal/shared"
)

// ErrContention is returned once a transaction keeps losing to concurrent
// writers after every retry.
var ErrContention = shared.Classify(shared.ErrConflict, "transaction contention, retry later")

// TxConfig tunes transaction retries.
type TxConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	LockTimeout time.Duration
}

// DefaultTxConfig is used when a zero TxConfig is supplied.
func DefaultTxConfig() TxConfig {
	return TxConfig{MaxAttempts: 3, BaseDelay: 25 * time.Millisecond, LockTimeout: 5 * time.Second}
}

func (c TxConfig) normalize() TxConfig {
	def := DefaultTxConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = def.BaseDelay
	}
	return c
}

// WithTx executes a function within a transaction using the RepeatableRead isolation level.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	return runTx(ctx, pool, 0, fn)
}

// WithRetryTx runs fn in a RepeatableRead transaction and repeats the whole
// transaction on serialization failures, deadlocks and lock timeouts.
func WithRetryTx(ctx context.Context, pool *pgxpool.Pool, cfg TxConfig, fn func(pgx.Tx) error) error {
	cfg = cfg.normalize()
	return Retry(ctx, cfg, func() error {
		return runTx(ctx, pool, cfg.LockTimeout, fn)
	})
}

func runTx(ctx context.Context, pool *pgxpool.Pool, lockTimeout time.Duration, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if lockTimeout > 0 {
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, fmt.Sprintf("%dms", lockTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("platform/db: set lock_timeout: %w", err)
		}
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// Retry calls op until it succeeds, fails with a non-retryable error or
// runs out of attempts. Delays double from cfg.BaseDelay.
func Retry(ctx context.Context, cfg TxConfig, op func() error) error {
	cfg = cfg.normalize()
	delay := cfg.BaseDelay
	var err error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err = op()
		if err == nil || !IsRetryable(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return fmt.Errorf("%w: %v", ErrContention, err)
}

// IsRetryable reports whether err is a transient PostgreSQL concurrency failure.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01", "55P03":
		return true
	}
	return false
}
