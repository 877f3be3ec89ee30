package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"rollcall/internal/apperr"
)

// Options configures the Postgres pool.
type Options struct {
	URL            string
	MinConns       int
	MaxConns       int
	Attempts       int
	Backoff        time.Duration
	AcquireTimeout time.Duration
}

// DB wraps a pgx pool. Pool is nil when the database could not be reached at
// startup; every call then fails fast with the startup error instead of hanging.
type DB struct {
	Pool           *pgxpool.Pool
	acquireTimeout time.Duration
	down           error
}

// Connect builds the pool, retrying with a fixed backoff. It never fails: an
// unreachable or unconfigured database yields a degraded DB.
func Connect(ctx context.Context, opts Options, logger *zap.Logger) *DB {
	d := &DB{acquireTimeout: opts.AcquireTimeout}
	if d.acquireTimeout <= 0 {
		d.acquireTimeout = 5 * time.Second
	}
	if opts.URL == "" {
		d.down = fmt.Errorf("%w: %w: DATABASE_URL environment variable is missing", apperr.ErrDatabase, apperr.ErrConfig)
		logger.Warn("database disabled", zap.Error(d.down))
		return d
	}

	cfg, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		d.down = fmt.Errorf("%w: %w: parse DATABASE_URL: %v", apperr.ErrDatabase, apperr.ErrConfig, err)
		logger.Warn("database disabled", zap.Error(d.down))
		return d
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = int32(opts.MaxConns)
	}
	if opts.MinConns > 0 && int32(opts.MinConns) <= cfg.MaxConns {
		cfg.MinConns = int32(opts.MinConns)
	}
	cfg.MaxConnLifetime = time.Hour

	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	for i := 1; i <= attempts; i++ {
		pool, err := open(ctx, cfg)
		if err == nil {
			logger.Info("database connection pool created",
				zap.Int32("min_conns", cfg.MinConns), zap.Int32("max_conns", cfg.MaxConns))
			d.Pool = pool
			return d
		}
		logger.Warn("database connection attempt failed", zap.Int("attempt", i), zap.Error(err))
		if i == attempts {
			break
		}
		select {
		case <-time.After(opts.Backoff):
		case <-ctx.Done():
			i = attempts
		}
	}

	d.down = fmt.Errorf("%w: database connection pool failed to initialize", apperr.ErrConnection)
	logger.Error("database unavailable, serving in degraded mode", zap.Error(d.down))
	return d
}

func open(ctx context.Context, cfg *pgxpool.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Err returns why the database is unavailable, or nil.
func (d *DB) Err() error {
	if d == nil {
		return fmt.Errorf("%w: %w: database not initialized", apperr.ErrDatabase, apperr.ErrConfig)
	}
	if d.Pool == nil {
		if d.down != nil {
			return d.down
		}
		return fmt.Errorf("%w: database not initialized", apperr.ErrConnection)
	}
	return nil
}

// Healthy verifies database connectivity.
func (d *DB) Healthy(ctx context.Context) bool {
	if d.Err() != nil {
		return false
	}
	return d.Pool.Ping(ctx) == nil
}

// WithTx acquires a pooled connection, runs fn inside a transaction and
// commits. Any error from fn rolls the transaction back before it is
// returned. The connection is released on every path.
func (d *DB) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	if err := d.Err(); err != nil {
		return err
	}

	acquireCtx, cancel := context.WithTimeout(ctx, d.acquireTimeout)
	conn, err := d.Pool.Acquire(acquireCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: acquire connection: %v", apperr.ErrConnection, err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", apperr.ErrDatabase, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(context.Background())
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		committed = true
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", apperr.ErrDatabase, err)
	}
	committed = true
	return nil
}

// Close closes the underlying pool.
func (d *DB) Close() {
	if d == nil || d.Pool == nil {
		return
	}
	d.Pool.Close()
}
