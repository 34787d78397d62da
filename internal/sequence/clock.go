package sequence

import "time"

// Clock is the time source for enrollment and scheduling, replaceable in
// tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

// RealClock returns the wall clock, in UTC.
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time                         { return time.Now().UTC() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
