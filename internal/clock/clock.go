package clock

import "time"

// Clock supplies monotonic time and fire-once timers.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc calls f once after d has elapsed, unless stopped first.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending fire-once callback.
type Timer interface {
	// Stop cancels the timer. Returns false if it already fired or was stopped.
	Stop() bool
}

// Real is a Clock backed by the runtime's monotonic clock.
type Real struct{}

// NewReal returns the runtime clock.
func NewReal() Real {
	return Real{}
}

// Now returns time.Now(), which carries a monotonic reading.
func (Real) Now() time.Time {
	return time.Now()
}

// AfterFunc wraps time.AfterFunc. The callback runs on its own goroutine.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
