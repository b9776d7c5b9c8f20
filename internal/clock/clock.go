// Package clock provides an injectable time source so scheduling logic
// stays testable with controlled time.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
