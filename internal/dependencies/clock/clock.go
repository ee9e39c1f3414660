// Package clock is the time source for game timestamps and token checks.
package clock

import "time"

// Clock reports the current time
type Clock interface {
	Now() time.Time
}

// System reads the wall clock. Times are always UTC so that stored
// timestamps compare equal across backends.
type System struct{}

// New returns the system clock
func New() System {
	return System{}
}

func (System) Now() time.Time {
	return time.Now().UTC()
}

// Expired reports whether deadline has passed according to c
func Expired(c Clock, deadline time.Time) bool {
	return !c.Now().Before(deadline)
}
