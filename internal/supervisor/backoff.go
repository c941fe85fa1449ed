package supervisor

import "time"

// Backoff computes restart delays: base, base*2, base*4, ... capped at Cap.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

// Delay returns the wait before restart attempt n (1-based). Attempt values
// below one get the base delay.
func (b Backoff) Delay(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = 2 * time.Second
	}
	cap := b.Cap
	if cap < base {
		cap = base
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= cap {
			return cap
		}
	}
	if delay > cap {
		return cap
	}
	return delay
}
