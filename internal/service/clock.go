package service

import "time"

// Clock is the injectable time source. Every pickup-time comparison in the
// system goes through it so tests can pin the current time and production
// runs in one fixed fleet timezone instead of server-local time.
type Clock interface {
	Now() time.Time
}

type zoneClock struct {
	loc *time.Location
}

// NewClock returns a real clock anchored to the given fixed zone.
func NewClock(loc *time.Location) Clock {
	return zoneClock{loc: loc}
}

func (c zoneClock) Now() time.Time {
	return time.Now().In(c.loc)
}
