// Package config loads admissiond settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ajiwo/admission"
	"github.com/ajiwo/admission/backends"
)

// Store names accepted in ADMISSION_STORE
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Identity extractors accepted in ADMISSION_IDENTITY
const (
	IdentityRemote    = "remote"
	IdentityForwarded = "forwarded"
	IdentityHeader    = "header:" // followed by the header name
)

type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	Limiter LimiterConfig
	Quotas  QuotaConfig
	Log     LogConfig
}

type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type StoreConfig struct {
	Type     string        // memory, redis or postgres
	Endpoint string        // redis address list or postgres DSN
	Password string        // redis only
	DB       int           // redis only
	Timeout  time.Duration // bound of every store call
	Failover string        // "" or "memory"
}

type LimiterConfig struct {
	Quota            int
	Window           time.Duration
	FailPolicy       string
	Identity         string
	FallbackIdentity string
	KeyPrefix        string
}

type QuotaConfig struct {
	Overrides string // identity=limit/window,...
	DSN       string // postgres with a configuration table
	Service   string // service_name filter for DSN
}

type LogConfig struct {
	Format string // text or json
	Level  string
}

// Load reads the given .env files, or ./.env when none are given, then the
// environment. Missing files are ignored and variables already set in the
// environment win.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load env file: %w", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from a variable lookup function
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	e := env{lookup: lookup}

	c := Config{
		Server: ServerConfig{
			Addr:            e.str("ADMISSION_ADDR", ":8080"),
			ShutdownTimeout: e.duration("ADMISSION_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Store: StoreConfig{
			Type:     strings.ToLower(e.str("ADMISSION_STORE", StoreRedis)),
			Endpoint: e.str("ADMISSION_STORE_ENDPOINT", "localhost:6379"),
			Password: e.str("ADMISSION_REDIS_PASSWORD", ""),
			DB:       e.integer("ADMISSION_REDIS_DB", 0),
			Timeout:  e.duration("ADMISSION_STORE_TIMEOUT", backends.DefaultTimeout),
			Failover: strings.ToLower(e.str("ADMISSION_STORE_FAILOVER", "")),
		},
		Limiter: LimiterConfig{
			Quota:            e.integer("ADMISSION_QUOTA", 100),
			Window:           e.duration("ADMISSION_WINDOW", time.Minute),
			FailPolicy:       e.str("ADMISSION_FAIL_POLICY", ""),
			Identity:         e.str("ADMISSION_IDENTITY", IdentityRemote),
			FallbackIdentity: e.str("ADMISSION_FALLBACK_IDENTITY", ""),
			KeyPrefix:        e.str("ADMISSION_KEY_PREFIX", admission.DefaultKeyPrefix),
		},
		Quotas: QuotaConfig{
			Overrides: e.str("ADMISSION_QUOTA_OVERRIDES", ""),
			DSN:       e.str("ADMISSION_QUOTA_DSN", ""),
			Service:   e.str("ADMISSION_SERVICE", ""),
		},
		Log: LogConfig{
			Format: strings.ToLower(e.str("ADMISSION_LOG_FORMAT", "text")),
			Level:  e.str("ADMISSION_LOG_LEVEL", "info"),
		},
	}

	if err := errors.Join(e.errs...); err != nil {
		return Config{}, fmt.Errorf("%w: %w", admission.ErrConfiguration, err)
	}
	return c, nil
}

// Validate checks everything that can be checked without connecting to a
// store.
func (c Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("ADMISSION_ADDR cannot be empty"))
	}

	switch c.Store.Type {
	case StoreMemory:
	case StoreRedis, StorePostgres:
		if c.Store.Endpoint == "" {
			errs = append(errs, fmt.Errorf("ADMISSION_STORE_ENDPOINT is required for the %s store", c.Store.Type))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ADMISSION_STORE %q", c.Store.Type))
	}
	if c.Store.Timeout <= 0 {
		errs = append(errs, errors.New("ADMISSION_STORE_TIMEOUT must be positive"))
	}
	if c.Store.Failover != "" && c.Store.Failover != StoreMemory {
		errs = append(errs, fmt.Errorf("ADMISSION_STORE_FAILOVER must be empty or %q, got %q", StoreMemory, c.Store.Failover))
	}

	if c.Limiter.Quota <= 0 {
		errs = append(errs, fmt.Errorf("ADMISSION_QUOTA must be positive, got %d", c.Limiter.Quota))
	}
	if c.Limiter.Window <= 0 {
		errs = append(errs, fmt.Errorf("ADMISSION_WINDOW must be positive, got %v", c.Limiter.Window))
	}
	if _, err := c.FailPolicy(); err != nil {
		errs = append(errs, fmt.Errorf("ADMISSION_FAIL_POLICY: %w", err))
	}
	if err := validIdentity(c.Limiter.Identity); err != nil {
		errs = append(errs, err)
	}
	if c.Limiter.FallbackIdentity != "" {
		if err := admission.ValidateIdentity(c.Limiter.FallbackIdentity); err != nil {
			errs = append(errs, fmt.Errorf("ADMISSION_FALLBACK_IDENTITY: %w", err))
		}
	}

	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("ADMISSION_LOG_FORMAT must be text or json, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", admission.ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

// FailPolicy parses the configured fail policy. It has no default.
func (c Config) FailPolicy() (admission.FailPolicy, error) {
	return admission.ParseFailPolicy(c.Limiter.FailPolicy)
}

// LogLevel parses the configured log level
func (c Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("ADMISSION_LOG_LEVEL: %w", err)
	}
	return level, nil
}

// Logger builds the process logger
func (c Config) Logger() *slog.Logger {
	level, err := c.LogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// RedisAddrs splits the endpoint into redis addresses
func (c Config) RedisAddrs() []string {
	var addrs []string
	for a := range strings.SplitSeq(c.Store.Endpoint, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return addrs
}

func validIdentity(extractor string) error {
	switch {
	case extractor == IdentityRemote, extractor == IdentityForwarded:
		return nil
	case strings.HasPrefix(extractor, IdentityHeader) && len(extractor) > len(IdentityHeader):
		return nil
	default:
		return fmt.Errorf("ADMISSION_IDENTITY must be %q, %q or %q<name>, got %q",
			IdentityRemote, IdentityForwarded, IdentityHeader, extractor)
	}
}

// env collects parse errors so every bad variable is reported at once
type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *env) str(key, fallback string) string {
	if v, ok := e.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func (e *env) integer(key string, fallback int) int {
	raw := e.str(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return v
}

func (e *env) duration(key string, fallback time.Duration) time.Duration {
	raw := e.str(key, "")
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return v
}
