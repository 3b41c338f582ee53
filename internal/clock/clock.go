package clock

import "time"

// Clock provides the current time, so period math can be tested deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant. Test use only.
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time { return c.At }
