package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ajiwo/admission"
	"github.com/ajiwo/admission/backends"
	"github.com/ajiwo/admission/backends/memory"
	pgbackend "github.com/ajiwo/admission/backends/postgres"
	redisbackend "github.com/ajiwo/admission/backends/redis"
	"github.com/ajiwo/admission/internal/backends/composite"
	"github.com/ajiwo/admission/internal/config"
	"github.com/ajiwo/admission/middleware"
	"github.com/ajiwo/admission/quotas"
	pgquotas "github.com/ajiwo/admission/quotas/postgres"
)

// newBackend creates the configured counter store, wrapped for failover when
// requested. A store that is down at startup is only fatal when nothing could
// answer for it: with a failover store or the open policy the connection is
// made lazily and the breaker or fail policy takes over.
func newBackend(cfg config.Config, logger *slog.Logger) (backends.Backend, error) {
	lazy := cfg.Store.Failover != ""
	if policy, err := cfg.FailPolicy(); err == nil && policy == admission.FailOpen {
		lazy = true
	}

	var storeConfig any
	switch cfg.Store.Type {
	case config.StoreMemory:
		storeConfig = memory.Config{}
	case config.StoreRedis:
		storeConfig = redisbackend.Config{
			Addrs:       cfg.RedisAddrs(),
			Password:    cfg.Store.Password,
			DB:          cfg.Store.DB,
			Timeout:     cfg.Store.Timeout,
			LazyConnect: lazy,
		}
	case config.StorePostgres:
		storeConfig = pgbackend.Config{
			ConnString:  cfg.Store.Endpoint,
			Timeout:     cfg.Store.Timeout,
			LazyConnect: lazy,
		}
	}

	primary, err := backends.Create(cfg.Store.Type, storeConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s store: %w", cfg.Store.Type, err)
	}
	if cfg.Store.Failover == "" {
		return primary, nil
	}

	failover, err := composite.New(composite.Config{
		Primary:   primary,
		Secondary: memory.New(),
		Logger:    logger,
	})
	if err != nil {
		_ = primary.Close()
		return nil, fmt.Errorf("failed to create failover store: %w", err)
	}
	logger.Info("store failover enabled", "secondary", cfg.Store.Failover)
	return failover, nil
}

// loadOverrides merges ADMISSION_QUOTA_OVERRIDES with the Postgres
// configuration table. Postgres wins on conflicts.
func loadOverrides(ctx context.Context, cfg config.Config) (*quotas.Table, error) {
	fromEnv, err := quotas.Parse(cfg.Quotas.Overrides)
	if err != nil {
		return nil, fmt.Errorf("%w: ADMISSION_QUOTA_OVERRIDES: %w", admission.ErrConfiguration, err)
	}
	if cfg.Quotas.DSN == "" {
		return fromEnv, nil
	}

	pool, err := pgxpool.New(ctx, cfg.Quotas.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to quota database: %w", err)
	}
	defer pool.Close()

	fromDB, err := pgquotas.Load(ctx, pool, cfg.Quotas.Service)
	if err != nil {
		return nil, err
	}
	return quotas.Merge(fromEnv, fromDB), nil
}

// newGate builds the gate and its store from cfg
func newGate(ctx context.Context, cfg config.Config, logger *slog.Logger) (*admission.Gate, error) {
	policy, err := cfg.FailPolicy()
	if err != nil {
		return nil, err
	}

	overrides, err := loadOverrides(ctx, cfg)
	if err != nil {
		return nil, err
	}

	backend, err := newBackend(cfg, logger)
	if err != nil {
		return nil, err
	}

	gate, err := admission.New(
		admission.WithBackend(backend),
		admission.WithQuota(cfg.Limiter.Quota, cfg.Limiter.Window),
		admission.WithOverrides(overrides),
		admission.WithFailPolicy(policy),
		admission.WithKeyPrefix(cfg.Limiter.KeyPrefix),
		admission.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	logger.Info("admission gate ready",
		"store", cfg.Store.Type,
		"quota", cfg.Limiter.Quota,
		"window", cfg.Limiter.Window,
		"policy", policy.String(),
		"overrides", overrides.Len())
	return gate, nil
}

// identityFunc maps an ADMISSION_IDENTITY value to an extractor
func identityFunc(extractor string) (middleware.IdentityFunc, error) {
	switch {
	case extractor == config.IdentityRemote:
		return middleware.RemoteAddr(), nil
	case extractor == config.IdentityForwarded:
		return middleware.ForwardedFor(), nil
	case strings.HasPrefix(extractor, config.IdentityHeader):
		name := strings.TrimPrefix(extractor, config.IdentityHeader)
		if name == "" {
			break
		}
		return middleware.Header(name), nil
	}
	return nil, fmt.Errorf("%w: unknown identity extractor %q", admission.ErrConfiguration, extractor)
}

// pinger is the part of a gate the health endpoint needs
type pinger interface {
	Ping(ctx context.Context) error
}

// newRouter serves /healthz without limits and everything else behind the
// gate.
func newRouter(gate admission.Checker, health pinger, cfg config.Config, logger *slog.Logger) (http.Handler, error) {
	identity, err := identityFunc(cfg.Limiter.Identity)
	if err != nil {
		return nil, err
	}

	opts := []middleware.Option{
		middleware.WithIdentity(identity),
		middleware.WithLogger(logger),
	}
	if cfg.Limiter.FallbackIdentity != "" {
		opts = append(opts, middleware.WithFallbackIdentity(cfg.Limiter.FallbackIdentity))
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", healthHandler(health))

	r.Group(func(r chi.Router) {
		r.Use(middleware.New(gate, opts...))
		r.HandleFunc("/*", protectedHandler)
	})

	return r, nil
}

func healthHandler(health pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]string{"status": "ok"}

		if err := health.Ping(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]string{"status": "unavailable", "error": err.Error()}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

// protectedHandler stands in for the service behind the gate
func protectedHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, "admitted %s %s\n", r.Method, r.URL.Path)
}
