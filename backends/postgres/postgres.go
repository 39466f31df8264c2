package postgres

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ajiwo/admission/backends"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	createTableSQL = `
		CREATE TABLE IF NOT EXISTS admission_counters (
			key TEXT PRIMARY KEY,
			value BIGINT NOT NULL,
			expires_at TIMESTAMP WITH TIME ZONE
		)`

	// An expired row is restarted in place so the whole increment stays a
	// single atomic statement.
	incrementSQL = `
		INSERT INTO admission_counters AS c (key, value, expires_at)
		VALUES ($1, 1, NULL)
		ON CONFLICT (key) DO UPDATE SET
			value = CASE WHEN c.expires_at IS NOT NULL AND c.expires_at <= now()
				THEN 1 ELSE c.value + 1 END,
			expires_at = CASE WHEN c.expires_at IS NOT NULL AND c.expires_at <= now()
				THEN NULL ELSE c.expires_at END
		RETURNING value`

	ensureExpirySQL = `
		UPDATE admission_counters
		SET expires_at = now() + make_interval(secs => $2::float8 / 1000.0)
		WHERE key = $1 AND expires_at IS NULL`

	deleteSQL = `DELETE FROM admission_counters WHERE key = $1`

	sweepSQL = `DELETE FROM admission_counters WHERE expires_at IS NOT NULL AND expires_at <= now()`
)

type Config struct {
	ConnString string
	MaxConns   int32
	MinConns   int32

	// Timeout bounds every statement. Zero selects backends.DefaultTimeout.
	Timeout time.Duration

	// SweepInterval enables a background delete of expired counters.
	// Zero disables it.
	SweepInterval time.Duration

	// ConnErrorStrings overrides the patterns used to classify errors as
	// store unavailability.
	ConnErrorStrings []string

	// LazyConnect skips the startup ping. The counters table is then created
	// by the first statement that reaches the server.
	LazyConnect bool
}

type Backend struct {
	pool     *pgxpool.Pool
	timeout  time.Duration
	patterns []string

	schemaReady atomic.Bool

	stop      chan struct{}
	closeOnce sync.Once
}

// New creates a connection pool, verifies connectivity and creates the
// counters table when missing.
func New(config Config) (*Backend, error) {
	if config.ConnString == "" {
		return nil, NewInvalidConfigError("conn string")
	}
	if config.MaxConns == 0 {
		config.MaxConns = 10
	}
	if config.MinConns == 0 {
		config.MinConns = 2
	}
	if config.Timeout <= 0 {
		config.Timeout = backends.DefaultTimeout
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnString)
	if err != nil {
		return nil, NewInvalidConnStringError(err)
	}
	poolConfig.MaxConns = config.MaxConns
	poolConfig.MinConns = config.MinConns

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, NewPoolCreationFailedError(err)
	}

	patterns := connErrorStrings
	if config.ConnErrorStrings != nil {
		patterns = config.ConnErrorStrings
	}

	p := &Backend{
		pool:     pool,
		timeout:  config.Timeout,
		patterns: patterns,
		stop:     make(chan struct{}),
	}

	if !config.LazyConnect {
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, NewPingFailedError(classify("postgres:Ping", err, patterns))
		}
		if err := p.ensureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	if config.SweepInterval > 0 {
		go p.sweepLoop(config.SweepInterval)
	}
	return p, nil
}

func (p *Backend) GetPool() *pgxpool.Pool {
	return p.pool
}

// ensureSchema creates the counters table once per backend
func (p *Backend) ensureSchema(ctx context.Context) error {
	if p.schemaReady.Load() {
		return nil
	}
	if _, err := p.pool.Exec(ctx, createTableSQL); err != nil {
		return NewTableCreationFailedError(classify("postgres:CreateTable", err, p.patterns))
	}
	p.schemaReady.Store(true)
	return nil
}

func (p *Backend) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	ctx, cancel := backends.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.ensureSchema(ctx); err != nil {
		return 0, err
	}

	var value int64
	if err := p.pool.QueryRow(ctx, incrementSQL, key).Scan(&value); err != nil {
		return 0, NewIncrementFailedError(key, classify("postgres:Increment", err, p.patterns))
	}
	return value, nil
}

func (p *Backend) EnsureExpiry(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := backends.WithTimeout(ctx, p.timeout)
	defer cancel()

	if _, err := p.pool.Exec(ctx, ensureExpirySQL, key, float64(ttl.Milliseconds())); err != nil {
		return NewExpireFailedError(key, classify("postgres:EnsureExpiry", err, p.patterns))
	}
	return nil
}

func (p *Backend) Delete(ctx context.Context, key string) error {
	ctx, cancel := backends.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.ensureSchema(ctx); err != nil {
		return err
	}
	if _, err := p.pool.Exec(ctx, deleteSQL, key); err != nil {
		return NewDeleteFailedError(key, classify("postgres:Delete", err, p.patterns))
	}
	return nil
}

func (p *Backend) Ping(ctx context.Context) error {
	ctx, cancel := backends.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.pool.Ping(ctx); err != nil {
		return NewPingFailedError(classify("postgres:Ping", err, p.patterns))
	}
	return p.ensureSchema(ctx)
}

// sweep deletes expired counters and returns how many rows were removed
func (p *Backend) sweep(ctx context.Context) (int64, error) {
	ctx, cancel := backends.WithTimeout(ctx, p.timeout)
	defer cancel()

	tag, err := p.pool.Exec(ctx, sweepSQL)
	if err != nil {
		return 0, NewSweepFailedError(classify("postgres:Sweep", err, p.patterns))
	}
	return tag.RowsAffected(), nil
}

func (p *Backend) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			// Failures are retried on the next tick
			_, _ = p.sweep(context.Background())
		case <-p.stop:
			return
		}
	}
}

func (p *Backend) Close() error {
	p.closeOnce.Do(func() {
		close(p.stop)
		p.pool.Close()
	})
	return nil
}

func classify(op string, err error, patterns []string) error {
	if pgconn.Timeout(err) {
		return backends.NewUnavailableError(op, err)
	}
	return backends.MaybeConnError(op, err, patterns)
}
