package job

import (
	"math/rand"
	"time"
)

// calculateBackoff returns an exponential backoff duration with jitter
// for the given attempt number (1-based).
func calculateBackoff(attempt int, baseDelay time.Duration) time.Duration {
	// 2^(attempt-1) * baseDelay
	delay := baseDelay * (1 << uint(attempt-1))

	// Jitter between 75% and 125% to avoid retry bursts lining up.
	jitterFactor := 0.75 + 0.5*rand.Float64()
	jitter := time.Duration(float64(delay) * jitterFactor)

	maxDelay := 2 * time.Minute
	if jitter > maxDelay {
		jitter = maxDelay
	}

	return jitter
}
