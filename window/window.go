// Package window resolves which fixed counting window a request falls into.
//
// Resolution is pure: the same identity and timestamp always map to the same
// window key, so the logic can be tested without a counter store.
package window

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// MinLength is the shortest supported window
const MinLength = time.Millisecond

var (
	ErrInvalidQuota  = errors.New("invalid quota")
	ErrInvalidPrefix = errors.New("window key prefix cannot be empty")
)

// Quota is the number of requests admitted per window of the given length
type Quota struct {
	Limit  int
	Window time.Duration
}

// Validate reports whether the quota can be enforced
func (q Quota) Validate() error {
	if q.Limit <= 0 {
		return fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidQuota, q.Limit)
	}
	if q.Window < MinLength {
		return fmt.Errorf("%w: window must be at least %v, got %v", ErrInvalidQuota, MinLength, q.Window)
	}
	return nil
}

// Overrides looks up a per-identity quota. Implementations must be safe for
// concurrent use and must not change while a strategy uses them.
type Overrides interface {
	Lookup(identity string) (Quota, bool)
}

// Window is one identity's counting period
type Window struct {
	Key    string        // store key of the counter
	Limit  int           // admitted requests in this window
	Length time.Duration // window length, also the counter ttl
	Start  time.Time     // inclusive start of the window
}

// End returns the exclusive end of the window, which is also when the
// quota resets.
func (w Window) End() time.Time {
	return w.Start.Add(w.Length)
}

// FixedWindow splits time into consecutive windows of a fixed length
// aligned to the Unix epoch.
type FixedWindow struct {
	prefix    string
	quota     Quota
	overrides Overrides
}

// NewFixedWindow creates a fixed window strategy. overrides may be nil.
func NewFixedWindow(prefix string, quota Quota, overrides Overrides) (*FixedWindow, error) {
	if prefix == "" {
		return nil, ErrInvalidPrefix
	}
	if err := quota.Validate(); err != nil {
		return nil, err
	}
	return &FixedWindow{
		prefix:    prefix,
		quota:     quota,
		overrides: overrides,
	}, nil
}

// Quota returns the quota applied to identity
func (f *FixedWindow) Quota(identity string) Quota {
	if f.overrides != nil {
		if q, ok := f.overrides.Lookup(identity); ok {
			return q
		}
	}
	return f.quota
}

// Resolve returns the window that contains at for identity. A timestamp
// exactly on a boundary belongs to the window that starts there.
func (f *FixedWindow) Resolve(identity string, at time.Time) Window {
	q := f.Quota(identity)
	bucket := floorDiv(at.UnixNano(), int64(q.Window))

	return Window{
		Key:    f.key(identity, bucket),
		Limit:  q.Limit,
		Length: q.Window,
		Start:  time.Unix(0, bucket*int64(q.Window)).In(at.Location()),
	}
}

// key builds "<prefix>:<identity>:<bucket>". The bucket is always the last
// segment, so identities containing ':' cannot collide.
func (f *FixedWindow) key(identity string, bucket int64) string {
	b := make([]byte, 0, len(f.prefix)+len(identity)+22)
	b = append(b, f.prefix...)
	b = append(b, ':')
	b = append(b, identity...)
	b = append(b, ':')
	b = strconv.AppendInt(b, bucket, 10)
	return string(b)
}

// floorDiv divides rounding toward negative infinity
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
