package utils

import "time"

// Backoff yields the wait before a retry. Attempts count from 1.
type Backoff interface {
	Delay(attempt int) time.Duration
}

// ExponentialBackoff doubles Base on every attempt. A positive Max caps
// the delay.
type ExponentialBackoff struct {
	Base time.Duration
	Max  time.Duration
}

func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := b.Base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if b.Max > 0 && delay >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && delay > b.Max {
		return b.Max
	}
	return delay
}

// ConstantBackoff waits the same Delay before every retry.
type ConstantBackoff time.Duration

func (b ConstantBackoff) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return time.Duration(b)
}
