// Package echolimit adapts an admission gate to echo middleware.
package echolimit

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ajiwo/admission"
	"github.com/ajiwo/admission/middleware"
)

// RealIP keys on echo's idea of the client address, which honours the
// echo.Echo IPExtractor.
func RealIP(c echo.Context) middleware.IdentityFunc {
	return func(*http.Request) (string, error) {
		if ip := c.RealIP(); ip != "" {
			return ip, nil
		}
		return "", middleware.ErrNoIdentity
	}
}

// New returns echo middleware with the same contract as middleware.New.
// Identity defaults to c.RealIP() unless middleware.WithIdentity is given.
func New(gate admission.Checker, opts ...middleware.Option) echo.MiddlewareFunc {
	var o middleware.Options
	for _, opt := range opts {
		opt(&o)
	}
	custom := o.Identity != nil

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		limiter := middleware.NewLimiter(gate, opts...)

		return func(c echo.Context) error {
			l := limiter
			if !custom {
				l = limiter.WithIdentity(RealIP(c))
			}

			res := l.Evaluate(c.Request())
			res.WriteHeaders(c.Response().Header())

			if !res.Proceed() {
				return echo.NewHTTPError(res.Status, http.StatusText(res.Status))
			}
			return next(c)
		}
	}
}
