package scheduler

import (
	"math/rand"
	"time"
)

// RatePolicy governs how fast queued messages are pushed through a single
// WhatsApp connection. The defaults are deliberately slow; accounts that
// blast messages get banned.
type RatePolicy struct {
	// MinDelay and MaxDelay bound the base gap between consecutive sends.
	MinDelay time.Duration
	MaxDelay time.Duration
	// Jitter is additional random slack on top of the base gap.
	Jitter time.Duration
	// BatchSize is how many messages go out before a long cooldown.
	BatchSize int
	// BatchCooldown is the pause after every BatchSize sends.
	BatchCooldown time.Duration
	// RetryBackoff is how long a failed message waits before re-delivery.
	RetryBackoff time.Duration
	// MaxRetries is how many delivery attempts a message gets before it is
	// marked failed for good.
	MaxRetries int
}

// DefaultRatePolicy returns the production pacing profile.
func DefaultRatePolicy() RatePolicy {
	return RatePolicy{
		MinDelay:      8 * time.Second,
		MaxDelay:      15 * time.Second,
		Jitter:        5 * time.Second,
		BatchSize:     20,
		BatchCooldown: 5 * time.Minute,
		RetryBackoff:  10 * time.Minute,
		MaxRetries:    3,
	}
}

// NextDelay picks the gap before the next send: uniform in
// [MinDelay, MaxDelay] plus up to Jitter of extra slack.
func (p RatePolicy) NextDelay(rng *rand.Rand) time.Duration {
	delay := p.MinDelay
	if span := p.MaxDelay - p.MinDelay; span > 0 {
		delay += time.Duration(rng.Int63n(int64(span)))
	}
	if p.Jitter > 0 {
		delay += time.Duration(rng.Int63n(int64(p.Jitter)))
	}
	return delay
}

// StaggerOffsets returns n cumulative schedule offsets spaced by NextDelay,
// with a BatchCooldown inserted after every BatchSize offsets. Used when
// fanning out a batch of reminders so they drip instead of burst.
func (p RatePolicy) StaggerOffsets(rng *rand.Rand, n int) []time.Duration {
	offsets := make([]time.Duration, n)
	var acc time.Duration
	for i := range offsets {
		acc += p.NextDelay(rng)
		if i > 0 && p.BatchSize > 0 && i%p.BatchSize == 0 {
			acc += p.BatchCooldown
		}
		offsets[i] = acc
	}
	return offsets
}
