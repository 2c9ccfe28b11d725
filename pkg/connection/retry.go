package connection

import (
	"math/rand"
	"time"
)

// RetryPolicy controls reconnection after an unexpected closure.
//
// The default policy (3 s fixed delay, unbounded attempts, no jitter)
// deliberately keeps retrying while a run is active: losing the stream
// mid-run is worse than extra reconnect attempts.
type RetryPolicy struct {
	// Delay between the closure and the next attempt. Default: 3s.
	Delay time.Duration

	// MaxAttempts caps consecutive attempts; 0 means unbounded.
	MaxAttempts int

	// Jitter is the fractional randomization applied to Delay, in [0, 1].
	// A value of 0.2 spreads delays across [0.8*Delay, 1.2*Delay].
	Jitter float64
}

// withDefaults fills zero fields with default values.
func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Delay <= 0 {
		p.Delay = 3 * time.Second
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Jitter > 1 {
		p.Jitter = 1
	}
	return p
}

// NextDelay returns the delay before the given attempt (1-based),
// with jitter applied.
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	_ = attempt // fixed delay policy; attempt kept for future backoff curves

	if p.Jitter == 0 {
		return p.Delay
	}

	// Uniform in [Delay*(1-Jitter), Delay*(1+Jitter)].
	spread := float64(p.Delay) * p.Jitter
	offset := (rand.Float64()*2 - 1) * spread // #nosec G404 -- jitter, not crypto
	return time.Duration(float64(p.Delay) + offset)
}

// Exhausted reports whether the given attempt count (1-based) exceeds the cap.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt > p.MaxAttempts
}
