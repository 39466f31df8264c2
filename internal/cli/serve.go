package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ajiwo/admission/internal/config"
)

// serveFlags are the flags that override environment settings
type serveFlags struct {
	addr          string
	store         string
	storeEndpoint string
	quota         int
	window        time.Duration
	failPolicy    string
	identity      string
}

func (f *serveFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.addr, "addr", "", "address to listen on (ADMISSION_ADDR)")
	fs.StringVar(&f.store, "store", "", "counter store: memory, redis or postgres (ADMISSION_STORE)")
	fs.StringVar(&f.storeEndpoint, "store-endpoint", "", "redis address(es) or postgres DSN (ADMISSION_STORE_ENDPOINT)")
	fs.IntVar(&f.quota, "quota", 0, "requests admitted per window (ADMISSION_QUOTA)")
	fs.DurationVar(&f.window, "window", 0, "window length (ADMISSION_WINDOW)")
	fs.StringVar(&f.failPolicy, "fail-policy", "", "open or closed when the store is down (ADMISSION_FAIL_POLICY)")
	fs.StringVar(&f.identity, "identity", "", "remote, forwarded or header:<name> (ADMISSION_IDENTITY)")
}

// apply copies the flags the user set onto cfg
func (f *serveFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	fs := cmd.Flags()
	if fs.Changed("addr") {
		cfg.Server.Addr = f.addr
	}
	if fs.Changed("store") {
		cfg.Store.Type = f.store
	}
	if fs.Changed("store-endpoint") {
		cfg.Store.Endpoint = f.storeEndpoint
	}
	if fs.Changed("quota") {
		cfg.Limiter.Quota = f.quota
	}
	if fs.Changed("window") {
		cfg.Limiter.Window = f.window
	}
	if fs.Changed("fail-policy") {
		cfg.Limiter.FailPolicy = f.failPolicy
	}
	if fs.Changed("identity") {
		cfg.Limiter.Identity = f.identity
	}
}

func newServeCmd(load func() (config.Config, error)) *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an HTTP server with the admission gate in front of it",
		Long: `Starts an HTTP server that counts every request against the client's quota.

Endpoints:
  GET /healthz   Store health, never rate limited
  *   /*         Protected demo handler`,
		Example: `  admissiond serve --fail-policy closed
  admissiond serve --store memory --quota 10 --window 1m --fail-policy open
  admissiond serve --store redis --store-endpoint redis:6379 --identity header:X-API-Key --fail-policy closed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			flags.apply(cmd, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg)
		},
	}
	flags.register(cmd)

	return cmd
}

// serve runs the server until ctx is canceled, then shuts it down gracefully
func serve(ctx context.Context, cfg config.Config) error {
	logger := cfg.Logger()

	gate, err := newGate(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := gate.Close(); err != nil {
			logger.Error("failed to close counter store", "error", err)
		}
	}()

	handler, err := newRouter(gate, gate, cfg, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
