package infra

import (
	"time"
)

const (
	baseDelay = 1 * time.Second
	maxDelay  = 60 * time.Second
)

// CalculateBackoff returns baseDelay * 2^retryCount capped at maxDelay.
// A negative retryCount yields baseDelay.
func CalculateBackoff(retryCount int) time.Duration {
	return BackoffWithin(retryCount, baseDelay, maxDelay)
}

// BackoffWithin is CalculateBackoff with caller-supplied bounds.
// Non-positive bounds fall back to the defaults.
func BackoffWithin(retryCount int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = baseDelay
	}
	if max <= 0 {
		max = maxDelay
	}
	if retryCount < 0 {
		return base
	}

	// 1<<31 seconds would overflow the cap anyway, bail early.
	if retryCount > 30 {
		return max
	}

	d := base * time.Duration(1<<retryCount)
	if d > max {
		return max
	}
	return d
}
