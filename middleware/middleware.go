// Package middleware puts an admission gate in front of net/http handlers.
package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ajiwo/admission"
)

// Response headers written on counted requests
const (
	HeaderLimit      = "X-Rate-Limit-Limit"
	HeaderRemaining  = "X-Rate-Limit-Remaining"
	HeaderReset      = "X-Rate-Limit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// Options configures a Limiter
type Options struct {
	Identity         IdentityFunc
	FallbackIdentity string // used when Identity fails, empty means 400
	Now              func() time.Time
	Logger           *slog.Logger
	DisableHeaders   bool
}

// Option is a functional option for configuring the middleware
type Option func(*Options)

// WithIdentity sets how the identity is derived, RemoteAddr by default
func WithIdentity(fn IdentityFunc) Option {
	return func(o *Options) {
		o.Identity = fn
	}
}

// WithFallbackIdentity counts requests without a usable identity against one
// shared identity instead of refusing them.
func WithFallbackIdentity(identity string) Option {
	return func(o *Options) {
		o.FallbackIdentity = identity
	}
}

// WithNow sets the clock, for tests
func WithNow(now func() time.Time) Option {
	return func(o *Options) {
		o.Now = now
	}
}

// WithLogger sets the logger for limiter failures
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithoutHeaders stops the middleware from writing X-Rate-Limit-* headers
func WithoutHeaders() Option {
	return func(o *Options) {
		o.DisableHeaders = true
	}
}

// Result is the outcome of evaluating one request
type Result struct {
	Identity string
	Decision admission.Decision
	Err      error
	Now      time.Time

	// Status is the response status to short-circuit with, or 0 when the
	// request may proceed.
	Status int

	headers bool
}

// Proceed reports whether the protected handler should run
func (res Result) Proceed() bool {
	return res.Status == 0
}

// WriteHeaders sets the rate limit headers of a counted decision. Nothing is
// written for degraded or failed checks.
func (res Result) WriteHeaders(h http.Header) {
	d := res.Decision
	if !res.headers || res.Err != nil || d.Degraded || d.Limit == 0 {
		return
	}

	h.Set(HeaderLimit, strconv.Itoa(d.Limit))
	h.Set(HeaderRemaining, strconv.Itoa(d.Remaining))
	reset := strconv.FormatInt(int64(d.RetryAfter(res.Now)/time.Second), 10)
	h.Set(HeaderReset, reset)
	if res.Status == http.StatusTooManyRequests {
		h.Set(HeaderRetryAfter, reset)
	}
}

// Limiter evaluates requests against a gate. It is shared by the net/http
// middleware and the framework adapters.
type Limiter struct {
	gate admission.Checker
	opts Options
}

// NewLimiter creates a Limiter with defaults applied
func NewLimiter(gate admission.Checker, opts ...Option) *Limiter {
	o := Options{
		Identity: RemoteAddr(),
		Now:      time.Now,
		Logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Limiter{gate: gate, opts: o}
}

// WithIdentity returns a copy of l that derives identities with fn
func (l *Limiter) WithIdentity(fn IdentityFunc) *Limiter {
	c := *l
	c.opts.Identity = fn
	return &c
}

// Evaluate checks r against the gate and maps the outcome to a status
func (l *Limiter) Evaluate(r *http.Request) Result {
	res := Result{Now: l.opts.Now(), headers: !l.opts.DisableHeaders}

	identity, err := l.identity(r)
	if err != nil {
		res.Err = err
		res.Status = http.StatusBadRequest
		return res
	}
	res.Identity = identity

	decision, err := l.gate.Check(r.Context(), identity, res.Now)
	res.Decision = decision
	if err != nil {
		res.Err = err
		res.Status = statusOf(err)
		if res.Status >= http.StatusInternalServerError {
			l.opts.Logger.Error("admission check failed",
				"identity", identity,
				"path", r.URL.Path,
				"status", res.Status,
				"error", err)
		}
		return res
	}

	if !decision.Allowed {
		res.Status = http.StatusTooManyRequests
	}
	return res
}

func (l *Limiter) identity(r *http.Request) (string, error) {
	id, err := l.opts.Identity(r)
	if err == nil {
		err = admission.ValidateIdentity(id)
	}
	if err == nil {
		return id, nil
	}
	if l.opts.FallbackIdentity != "" {
		return l.opts.FallbackIdentity, nil
	}
	return "", err
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, admission.ErrInvalidIdentity):
		return http.StatusBadRequest
	case errors.Is(err, admission.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// New returns net/http middleware that admits requests through gate.
// Rejected requests get 429 and never reach next. A fail-closed store outage
// gets 503, any other limiter error 500.
func New(gate admission.Checker, opts ...Option) func(http.Handler) http.Handler {
	limiter := NewLimiter(gate, opts...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := limiter.Evaluate(r)
			res.WriteHeaders(w.Header())

			if !res.Proceed() {
				http.Error(w, http.StatusText(res.Status), res.Status)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
