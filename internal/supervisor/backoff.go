package supervisor

import "time"

// Reconnection policy defaults, matching the upstream protocol's
// tolerances: five attempts, exponential backoff from 3s capped at 30s.
const (
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectBaseDelay   = 3 * time.Second
	DefaultReconnectMaxDelay    = 30 * time.Second
)

// Delay computes the exponential backoff delay for the given attempt
// count: min(base * 2^attempts, max). Monotonically non-decreasing and
// saturating at max.
func Delay(base, max time.Duration, attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	delay := base
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// ShouldRetry decides whether a closed connection is worth retrying. A
// logout is terminal: the persisted credentials are invalid and only a
// fresh pairing can recover the session.
func ShouldRetry(loggedOut bool) bool {
	return !loggedOut
}
