package network

import (
	"math"
	"time"
)

// Reconnector decides how long to wait before the n-th reconnect attempt
// (n starts at 1 and resets once an address is obtained).
type Reconnector interface {
	Delay(attempt int) time.Duration
}

var (
	_ Reconnector = Immediate{}
	_ Reconnector = Backoff{}
)

// Immediate reconnects without delay and without limit.
type Immediate struct{}

func (Immediate) Delay(int) time.Duration { return 0 }

// Backoff grows the delay geometrically from Initial up to Max.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64 // defaults to 2 when < 1
}

func (b Backoff) Delay(attempt int) time.Duration {
	if attempt <= 1 || b.Initial <= 0 {
		return b.clamp(b.Initial)
	}
	factor := b.Factor
	if factor < 1 {
		factor = 2
	}
	d := float64(b.Initial) * math.Pow(factor, float64(attempt-1))
	if math.IsInf(d, 0) || d > float64(math.MaxInt64) {
		return b.clamp(time.Duration(math.MaxInt64))
	}
	return b.clamp(time.Duration(d))
}

func (b Backoff) clamp(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}
