package redis

import (
	"context"
	"time"

	"github.com/ajiwo/admission/backends"
	"github.com/redis/go-redis/v9"
)

// ensureExpiryScript applies a TTL only when the key exists without one.
// PTTL answers -1 for "no expiry" and -2 for "no key".
var ensureExpiryScript = redis.NewScript(`
if redis.call('PTTL', KEYS[1]) == -1 then
	return redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return 0
`)

type Config struct {
	Addr     string   // single node address, host:port
	Addrs    []string // cluster seed nodes; takes precedence over Addr
	Password string
	DB       int
	PoolSize int

	// Timeout bounds every command. Zero selects backends.DefaultTimeout.
	Timeout time.Duration
	// DialTimeout bounds connection establishment. Zero selects Timeout.
	DialTimeout time.Duration

	// ConnErrorStrings overrides the patterns used to classify errors as
	// store unavailability.
	ConnErrorStrings []string

	// LazyConnect skips the PING in New, so an unreachable server surfaces
	// on the first command instead.
	LazyConnect bool
}

type Backend struct {
	client   redis.UniversalClient
	timeout  time.Duration
	patterns []string
}

func (r *Backend) GetClient() redis.UniversalClient {
	return r.client
}

// New initializes a new Redis backend with the given configuration and,
// unless LazyConnect is set, verifies the server answers PING.
func New(config Config) (*Backend, error) {
	if config.Addr == "" && len(config.Addrs) == 0 {
		return nil, NewInvalidConfigError("addr")
	}
	if config.Timeout <= 0 {
		config.Timeout = backends.DefaultTimeout
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = config.Timeout
	}

	addrs := config.Addrs
	if len(addrs) == 0 {
		addrs = []string{config.Addr}
	}

	// MaxRetries -1 disables go-redis retries: replaying an INCR whose reply
	// was lost would count the request twice.
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        addrs,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MaxRetries:   -1,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.Timeout,
		WriteTimeout: config.Timeout,
	})

	backend := NewFromClient(client, config.Timeout)
	if config.ConnErrorStrings != nil {
		backend.patterns = config.ConnErrorStrings
	}

	if config.LazyConnect {
		return backend, nil
	}
	if err := backend.Ping(context.Background()); err != nil {
		_ = client.Close()
		return nil, NewConnectionFailedError(addrs[0], err)
	}

	return backend, nil
}

// NewFromClient wraps an existing client. The caller keeps ownership of the
// client options, including its retry policy.
func NewFromClient(client redis.UniversalClient, timeout time.Duration) *Backend {
	if timeout <= 0 {
		timeout = backends.DefaultTimeout
	}
	return &Backend{
		client:   client,
		timeout:  timeout,
		patterns: connErrorStrings,
	}
}

func (r *Backend) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	ctx, cancel := backends.WithTimeout(ctx, r.timeout)
	defer cancel()

	val, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, NewIncrementFailedError(key, backends.MaybeConnError("redis:Incr", err, r.patterns))
	}
	return val, nil
}

func (r *Backend) EnsureExpiry(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := backends.WithTimeout(ctx, r.timeout)
	defer cancel()

	ms := ttl.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	if err := ensureExpiryScript.Run(ctx, r.client, []string{key}, ms).Err(); err != nil {
		return NewExpireFailedError(key, backends.MaybeConnError("redis:EnsureExpiry", err, r.patterns))
	}
	return nil
}

// TTL returns the remaining lifetime of key as reported by PTTL
func (r *Backend) TTL(ctx context.Context, key string) (time.Duration, error) {
	ctx, cancel := backends.WithTimeout(ctx, r.timeout)
	defer cancel()

	ttl, err := r.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, NewTTLFailedError(key, backends.MaybeConnError("redis:PTTL", err, r.patterns))
	}
	return ttl, nil
}

func (r *Backend) Delete(ctx context.Context, key string) error {
	ctx, cancel := backends.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return NewDeleteFailedError(key, backends.MaybeConnError("redis:Del", err, r.patterns))
	}
	return nil
}

func (r *Backend) Ping(ctx context.Context) error {
	ctx, cancel := backends.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return NewPingFailedError(backends.MaybeConnError("redis:Ping", err, r.patterns))
	}
	return nil
}

func (r *Backend) Close() error {
	if err := r.client.Close(); err != nil {
		return NewCloseFailedError(err)
	}
	return nil
}
