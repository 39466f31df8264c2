package middleware

import (
	"errors"
	"net"
	"net/http"
	"strings"
)

// ErrNoIdentity is returned by an IdentityFunc that finds nothing to key on
var ErrNoIdentity = errors.New("no identity in request")

// IdentityFunc derives the rate limit identity of a request
type IdentityFunc func(r *http.Request) (string, error)

// RemoteAddr keys on the host part of the connection's remote address
func RemoteAddr() IdentityFunc {
	return func(r *http.Request) (string, error) {
		return hostOf(r.RemoteAddr)
	}
}

// Header keys on the value of a request header, e.g. an API key
func Header(name string) IdentityFunc {
	return func(r *http.Request) (string, error) {
		v := strings.TrimSpace(r.Header.Get(name))
		if v == "" {
			return "", ErrNoIdentity
		}
		return v, nil
	}
}

// ForwardedFor keys on the first X-Forwarded-For hop, then X-Real-IP, then
// the remote address. Only use it behind a proxy that sets these headers,
// otherwise clients choose their own identity.
func ForwardedFor() IdentityFunc {
	return func(r *http.Request) (string, error) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip, nil
			}
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip, nil
		}
		return hostOf(r.RemoteAddr)
	}
}

// Chain tries each function in order and returns the first identity found
func Chain(fns ...IdentityFunc) IdentityFunc {
	return func(r *http.Request) (string, error) {
		var errs []error
		for _, fn := range fns {
			id, err := fn(r)
			if err == nil && id != "" {
				return id, nil
			}
			if err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) == 0 {
			return "", ErrNoIdentity
		}
		return "", errors.Join(errs...)
	}
}

func hostOf(addr string) (string, error) {
	if addr == "" {
		return "", ErrNoIdentity
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		// no port, e.g. a unix socket peer or a test request
		host = addr
	}
	if host == "" {
		return "", ErrNoIdentity
	}
	return host, nil
}
