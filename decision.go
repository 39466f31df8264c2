package admission

import "time"

// Decision is the outcome of one admission check
type Decision struct {
	Allowed   bool
	Limit     int       // quota of the window
	Remaining int       // admissions left in the window, 0 once rejected
	Reset     time.Time // end of the window
	Key       string    // window key that was counted

	// Degraded is set when the request was admitted without consulting the
	// counter store. Limit and Remaining are not meaningful then.
	Degraded bool
}

// RetryAfter returns how long a rejected client should wait, rounded up to
// whole seconds and never less than one second.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.Reset.Sub(now)
	if wait <= 0 {
		return time.Second
	}
	secs := (wait + time.Second - 1) / time.Second
	return secs * time.Second
}
