// Package backoff computes retry delays for the hydrator's retry engine.
package backoff

import (
	"math/rand"
	"time"
)

// Delay returns the wait before retry number retry (1-indexed: the first
// retry after the initial attempt is retry 1).
//
// The unjittered delay is min(cap, base * 2^(retry-1)). With jitter enabled
// the result is delay/2 + random(0, delay/2), so the final value always lies
// in [delay/2, delay]. The floor keeps retries spread without ever collapsing
// the wait below half of the computed exponential value.
func Delay(retry int, base, cap time.Duration, jitter bool) time.Duration {
	if retry < 1 {
		retry = 1
	}

	// Prevent shift overflow for absurd retry counts.
	if retry > 32 {
		retry = 32
	}

	d := base << uint(retry-1)
	if d <= 0 || d > cap {
		d = cap
	}

	if jitter && d > 0 {
		half := d / 2
		d = half + time.Duration(rand.Int63n(int64(half)+1))
	}

	return d
}
