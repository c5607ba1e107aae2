package shared

import (
	"time"
)

// IsExpired reports whether expiresAt has passed at now. A zero deadline never expires.
func IsExpired(expiresAt, now time.Time) bool {
	if expiresAt.IsZero() {
		return false
	}
	return !now.Before(expiresAt)
}

// Remaining returns the time left until expiresAt, floored at zero.
func Remaining(expiresAt, now time.Time) time.Duration {
	if expiresAt.IsZero() {
		return 0
	}
	d := expiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
