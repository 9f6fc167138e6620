package coordinator

import (
	"math/rand/v2"
	"time"
)

// maxJitter caps the random offset applied to each tick
const maxJitter = 30 * time.Second

// jitteredInterval returns interval shifted by a random offset of at most
// ±10% of the interval, capped at maxJitter. Several replicas started
// together drift apart instead of hitting the upstream API at once.
func jitteredInterval(interval time.Duration) time.Duration {
	if interval <= 0 {
		return interval
	}

	jitter := min(interval/10, maxJitter)
	if jitter <= 0 {
		return interval
	}

	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for polling jitter
	offset := time.Duration(rand.Int64N(int64(2*jitter))) - jitter
	return interval + offset
}
