package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Func returns the delay before retry number attempt (1-based).
type Func func(attempt int) time.Duration

// Quadratic waits unit * attempt², so 1s, 4s, 9s, ... for unit = 1s.
func Quadratic(unit time.Duration) Func {
	return func(attempt int) time.Duration {
		if attempt <= 0 {
			return 0
		}
		return unit * time.Duration(attempt*attempt)
	}
}

// Exponential returns an ExponentialJitter curve bound to base and max.
func Exponential(base, max time.Duration) Func {
	return func(attempt int) time.Duration {
		return ExponentialJitter(base, max, attempt)
	}
}

// ExponentialJitter returns base*2^(attempt-1) capped at max, with +/- 20% jitter.
// The result never exceeds max.
func ExponentialJitter(base, max time.Duration, attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	// compare in float space, the product overflows int64 for large attempts
	raw := float64(base) * math.Pow(2, float64(attempt-1))
	d := max
	if raw < float64(max) {
		d = time.Duration(raw)
	}

	j := time.Duration(float64(d) * 0.2)
	if j <= 0 {
		return d
	}
	return min(d-j+rand.N(2*j), max)
}

// Total sums f(1..attempts), the time spent sleeping when every retry is used.
func Total(f Func, attempts int) time.Duration {
	var sum time.Duration
	for i := 1; i <= attempts; i++ {
		sum += f(i)
	}
	return sum
}
