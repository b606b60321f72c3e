package poller

import (
	"math"
	"time"
)

// Defaults for the status polling schedule.
const (
	DefaultMaxAttempts    = 30
	DefaultBaseDelay      = time.Second
	DefaultMaxDelay       = 30 * time.Second
	DefaultJitterFraction = 0.3

	backoffFactor = 1.5
)

// Backoff computes the wait before a polling attempt.
//
// The undithered delay for attempt n (1-based) is min(Base*1.5^(n-1), Max).
// Jitter adds a uniform amount in [0, JitterFraction*delay] on top.
type Backoff struct {
	Base           time.Duration
	Max            time.Duration
	JitterFraction float64
}

// Exponential returns the delay for attempt before jitter is applied.
// Attempts below 1 are treated as 1.
func (b Backoff) Exponential(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(b.Base) * math.Pow(backoffFactor, float64(attempt-1))
	if d >= float64(b.Max) || math.IsInf(d, 1) {
		return b.Max
	}
	return time.Duration(d)
}

// Delay returns the jittered delay for attempt. r must be in [0, 1); it is
// clamped otherwise so the result always stays within
// [Exponential(attempt), Exponential(attempt)*(1+JitterFraction)].
func (b Backoff) Delay(attempt int, r float64) time.Duration {
	base := b.Exponential(attempt)
	if r < 0 {
		r = 0
	}
	if r > 1 {
		r = 1
	}
	jitter := time.Duration(r * b.JitterFraction * float64(base))
	return base + jitter
}
