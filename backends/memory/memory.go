package memory

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// DefaultCleanupInterval is how often expired counters are swept when no
// interval is configured.
const DefaultCleanupInterval = 10 * time.Minute

const stripes = 64

type Config struct {
	// CleanupInterval controls the background sweep of expired counters.
	// Zero selects DefaultCleanupInterval, a negative value disables it.
	CleanupInterval time.Duration
}

// Backend is an in-process counter store. Counters are only shared between
// gates in the same process, so it is meant for tests and single-instance
// deployments.
type Backend struct {
	locks  [stripes]sync.Mutex
	values sync.Map // map[string]*counter

	now func() time.Time

	stop      chan struct{}
	closeOnce sync.Once
}

type counter struct {
	value      int64
	expiration time.Time // zero means no expiry
}

func (c *counter) expired(now time.Time) bool {
	return !c.expiration.IsZero() && !now.Before(c.expiration)
}

// New initializes a new in-memory storage instance with the default cleanup interval.
func New() *Backend {
	return NewWithConfig(Config{})
}

// NewWithConfig initializes a new in-memory storage instance.
func NewWithConfig(config Config) *Backend {
	m := &Backend{
		now:  time.Now,
		stop: make(chan struct{}),
	}

	interval := config.CleanupInterval
	if interval == 0 {
		interval = DefaultCleanupInterval
	}
	if interval > 0 {
		go m.cleanupLoop(interval)
	}
	return m
}

// getLock returns the mutex guarding key
func (m *Backend) getLock(key string) *sync.Mutex {
	return &m.locks[xxhash.Sum64String(key)%stripes]
}

func (m *Backend) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, NewIncrementFailedError(key, err)
	}

	lock := m.getLock(key)
	lock.Lock()
	defer lock.Unlock()

	valAny, exists := m.values.Load(key)
	if exists {
		c := valAny.(*counter)
		if !c.expired(m.now()) {
			c.value++
			return c.value, nil
		}
	}

	m.values.Store(key, &counter{value: 1})
	return 1, nil
}

func (m *Backend) EnsureExpiry(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return NewExpireFailedError(key, err)
	}

	lock := m.getLock(key)
	lock.Lock()
	defer lock.Unlock()

	valAny, exists := m.values.Load(key)
	if !exists {
		return nil
	}
	c := valAny.(*counter)
	if c.expiration.IsZero() {
		c.expiration = m.now().Add(ttl)
	}
	return nil
}

// TTL returns the remaining lifetime of key. It returns -1 when the key has
// no expiry and -2 when it does not exist, mirroring Redis.
func (m *Backend) TTL(key string) time.Duration {
	lock := m.getLock(key)
	lock.Lock()
	defer lock.Unlock()

	valAny, exists := m.values.Load(key)
	if !exists {
		return -2
	}
	c := valAny.(*counter)
	now := m.now()
	if c.expired(now) {
		return -2
	}
	if c.expiration.IsZero() {
		return -1
	}
	return c.expiration.Sub(now)
}

func (m *Backend) Delete(ctx context.Context, key string) error {
	lock := m.getLock(key)
	lock.Lock()
	defer lock.Unlock()

	m.values.Delete(key)
	return nil
}

func (m *Backend) Ping(ctx context.Context) error {
	select {
	case <-m.stop:
		return ErrClosed
	default:
		return nil
	}
}

func (m *Backend) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.stop:
			return
		}
	}
}

func (m *Backend) cleanup() {
	now := m.now()
	var keysToDelete []string

	// First pass: find expired keys
	m.values.Range(func(key, valAny any) bool {
		k := key.(string)
		lock := m.getLock(k)
		lock.Lock()
		if valAny.(*counter).expired(now) {
			keysToDelete = append(keysToDelete, k)
		}
		lock.Unlock()
		return true
	})

	// Second pass: delete expired keys under their stripe lock, re-checking
	// in case they were restarted in between
	for _, key := range keysToDelete {
		lock := m.getLock(key)
		lock.Lock()
		if valAny, ok := m.values.Load(key); ok && valAny.(*counter).expired(now) {
			m.values.Delete(key)
		}
		lock.Unlock()
	}
}

// Close stops the cleanup loop and drops all counters
func (m *Backend) Close() error {
	m.closeOnce.Do(func() {
		close(m.stop)
		m.values.Clear()
	})
	return nil
}
