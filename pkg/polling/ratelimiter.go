package polling

import (
	"math"
	"time"

	"github.com/cuemby/noteforge/pkg/metrics"
)

const sampleWindow = 60 * time.Second

type sample struct {
	at     time.Time
	wasHit bool
}

// rateLimiter tracks a rolling 60s window of poll outcomes and
// derives available per-call capacity from it (spec.md §4.9).
type rateLimiter struct {
	pollRatePerMinute float64
	hitRateMultiplier float64
	maxBurstPerSecond int
	samples           []sample
}

func newRateLimiter(pollRatePerMinute, hitRateMultiplier float64, maxBurstPerSecond int) *rateLimiter {
	return &rateLimiter{
		pollRatePerMinute: pollRatePerMinute,
		hitRateMultiplier: hitRateMultiplier,
		maxBurstPerSecond: maxBurstPerSecond,
	}
}

func (r *rateLimiter) record(now time.Time, wasHit bool) {
	r.samples = append(r.samples, sample{at: now, wasHit: wasHit})
	r.prune(now)
}

func (r *rateLimiter) prune(now time.Time) {
	cutoff := now.Add(-sampleWindow)
	i := 0
	for i < len(r.samples) && r.samples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		r.samples = r.samples[i:]
	}
}

// availableCapacity returns how many polls this call may issue.
func (r *rateLimiter) availableCapacity(now time.Time) int {
	r.prune(now)
	var effective float64
	for _, s := range r.samples {
		if s.wasHit {
			effective += r.hitRateMultiplier
		} else {
			effective += 1
		}
	}
	metrics.PollingEffectiveRate.Set(effective)

	remaining := r.pollRatePerMinute - effective
	if remaining < 0 {
		remaining = 0
	}
	capacity := math.Min(float64(r.maxBurstPerSecond), remaining)
	return int(math.Floor(capacity))
}
