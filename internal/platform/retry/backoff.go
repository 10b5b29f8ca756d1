// Package retry implements the exponential-backoff-with-jitter policy
// shared by outbound provider clients.
package retry

import (
	"math"
	"math/rand"
	"time"
)

// Backoff returns the sleep duration for a given attempt (1-indexed):
// base * 2^(attempt-1) + uniform(0, jitterMax), capped at maxCap.
func Backoff(attempt int, base, jitterMax, maxCap time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	exp := float64(base) * math.Pow(2, float64(attempt-1))
	d := time.Duration(exp) + time.Duration(rand.Float64()*float64(jitterMax))
	if d > maxCap {
		return maxCap
	}
	return d
}

// RetryableStatus reports whether an HTTP status code warrants a retry
// under the provider retry policy.
func RetryableStatus(status int) bool {
	switch status {
	case 408, 409, 425, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
