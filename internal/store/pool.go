// Package store is the durable embedded-SQLite layer backing both
// pipelines: connection pool, schema, and batch-transaction writers.
package store

import (
	"context"
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// PoolConfig holds the parameters for opening the SQLite connection pool.
type PoolConfig struct {
	Path     string
	PoolSize int
	Logger   *zap.Logger
}

// Pool is a fixed-size pool of SQLite connections with WAL pragmas applied
// uniformly, matching the concurrency model in §5: reads do not block the
// writer. Safe for concurrent use; individual connections are not.
type Pool struct {
	inner  *sqlitex.Pool
	logger *zap.Logger
	path   string
}

// OpenPool opens the pool and applies the standard pragma set to every
// connection on first use.
func OpenPool(cfg PoolConfig) (*Pool, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store: database.path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = runtime.NumCPU()
		if poolSize < 4 {
			poolSize = 4
		}
	}

	inner, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			return preparePragmas(conn)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", cfg.Path, err)
	}

	logger.Info("sqlite pool opened", zap.String("path", cfg.Path), zap.Int("pool_size", poolSize))

	return &Pool{inner: inner, logger: logger, path: cfg.Path}, nil
}

// Take borrows a connection, blocking until one is available or ctx is done.
func (p *Pool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: take: %w", err)
	}
	return conn, nil
}

// Put returns a connection to the pool. Safe to call with nil.
func (p *Pool) Put(conn *sqlite.Conn) {
	p.inner.Put(conn)
}

// Close closes every connection in the pool.
func (p *Pool) Close() error {
	if err := p.inner.Close(); err != nil {
		return fmt.Errorf("store: closing %s: %w", p.path, err)
	}
	p.logger.Info("sqlite pool closed", zap.String("path", p.path))
	return nil
}

func preparePragmas(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=OFF",
		"PRAGMA cache_size=-8192",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("store: %s: %w", pragma, err)
		}
	}
	return nil
}
