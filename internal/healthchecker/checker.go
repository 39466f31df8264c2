// Package healthchecker probes a counter store in the background.
package healthchecker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Pinger is anything that can report its own reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker monitors a target and calls onHealthy after every successful probe
type Checker struct {
	target    Pinger
	config    Config
	logger    *slog.Logger
	onHealthy func()

	healthy  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a health checker. The target is assumed healthy until a probe
// says otherwise.
func New(target Pinger, onHealthy func(), opts ...Option) *Checker {
	h := &Checker{
		target:    target,
		config:    DefaultConfig(),
		logger:    slog.Default(),
		onHealthy: onHealthy,
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.config.Timeout <= 0 {
		h.config.Timeout = DefaultConfig().Timeout
	}
	h.healthy.Store(true)
	return h
}

// Start begins background health monitoring
func (h *Checker) Start() {
	if h.config.Interval <= 0 {
		// Health checking disabled
		return
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ticker := time.NewTicker(h.config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = h.Check(context.Background())
			case <-h.stop:
				return
			}
		}
	}()
}

// Stop stops health monitoring and waits for the loop to exit. It is safe to
// call more than once.
func (h *Checker) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
	h.wg.Wait()
}

// Check probes the target once
func (h *Checker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	err := h.target.Ping(ctx)
	if err != nil {
		if h.healthy.Swap(false) {
			h.logger.Warn("health check failed", "error", err)
		}
		return err
	}

	if !h.healthy.Swap(true) {
		h.logger.Info("health check recovered")
	}
	if h.onHealthy != nil {
		h.onHealthy()
	}
	return nil
}

// Healthy reports the outcome of the latest probe
func (h *Checker) Healthy() bool {
	return h.healthy.Load()
}
