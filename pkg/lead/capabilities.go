package lead

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts wall-clock access so the dedup window and billing windows
// are testable without sleeping.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock {
	return ClockFunc(time.Now)
}

// IDGenerator produces opaque identifiers for new entities.
type IDGenerator interface {
	NewID() string
}

// IDFunc adapts a function to the IDGenerator interface.
type IDFunc func() string

func (f IDFunc) NewID() string { return f() }

// UUIDGenerator returns an IDGenerator backed by random UUIDs.
func UUIDGenerator() IDGenerator {
	return IDFunc(func() string { return uuid.New().String() })
}
