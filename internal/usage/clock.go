package usage

import "time"

// Clock provides the "now" used to stamp observations.
// This interface allows time to be mocked in tests.
type Clock interface {
	Now() time.Time
}

// RealClock provides actual system time.
type RealClock struct{}

// Now returns the current wall-clock time with the monotonic reading
// stripped, so durations follow the wall clock across suspend and clock steps.
func (RealClock) Now() time.Time {
	return time.Now().Round(0)
}
