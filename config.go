package admission

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ajiwo/admission/backends"
	"github.com/ajiwo/admission/window"
)

const (
	// DefaultKeyPrefix namespaces window keys in a shared store
	DefaultKeyPrefix = "admission"

	// DefaultWarnInterval is the minimum spacing of store failure warnings
	DefaultWarnInterval = 10 * time.Second
)

// Config defines the configuration of a Gate
type Config struct {
	KeyPrefix  string           `json:"key_prefix"`
	Quota      window.Quota     `json:"quota"`
	FailPolicy FailPolicy       `json:"fail_policy"`
	Backend    backends.Backend `json:"-"`
	Overrides  window.Overrides `json:"-"`
	Logger     *slog.Logger     `json:"-"`

	// WarnInterval throttles store failure warnings. Zero logs every failure.
	WarnInterval time.Duration `json:"warn_interval"`
}

// Validate validates the entire configuration
func (c Config) Validate() error {
	var errs []error

	if c.KeyPrefix == "" {
		errs = append(errs, errors.New("key prefix cannot be empty"))
	} else if err := validateIdentity(c.KeyPrefix); err != nil {
		errs = append(errs, fmt.Errorf("key prefix: %w", err))
	}
	if c.Backend == nil {
		errs = append(errs, errors.New("counter store backend cannot be nil"))
	}
	if err := c.Quota.Validate(); err != nil {
		errs = append(errs, err)
	}
	if !c.FailPolicy.Valid() {
		errs = append(errs, errors.New("fail policy must be set to FailOpen or FailClosed"))
	}
	if c.WarnInterval < 0 {
		errs = append(errs, fmt.Errorf("warn interval cannot be negative, got %v", c.WarnInterval))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfiguration, errors.Join(errs...))
	}
	return nil
}
