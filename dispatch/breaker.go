package dispatch

import "time"

// breaker counts consecutive provider failures inside one batch.
type breaker struct {
	threshold   int
	cooldown    time.Duration
	consecutive int
}

func (b *breaker) success() { b.consecutive = 0 }

// failure records one failure and reports whether the batch must pause now.
// The count starts over after a trip.
func (b *breaker) failure() bool {
	if b.threshold <= 0 {
		return false
	}
	b.consecutive++
	if b.consecutive < b.threshold {
		return false
	}
	b.consecutive = 0
	return true
}
