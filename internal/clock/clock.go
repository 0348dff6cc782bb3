// Package clock abstracts wall-clock time and one-shot timers so the session
// manager's renewal schedule can be driven deterministically in tests.
package clock

import "time"

// Timer is a one-shot timer armed by AfterFunc.
type Timer interface {
	// Stop prevents the timer from firing. It returns false if the timer has
	// already fired or been stopped.
	Stop() bool
}

// Clock supplies the current time and arms one-shot timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Unix returns the clock's current time in whole unix seconds.
func Unix(c Clock) int64 {
	return c.Now().Unix()
}

type realClock struct{}

// New returns a Clock backed by the time package.
func New() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
