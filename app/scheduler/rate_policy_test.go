package scheduler

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRatePolicy(t *testing.T) {
	p := DefaultRatePolicy()

	assert.Equal(t, 8*time.Second, p.MinDelay)
	assert.Equal(t, 15*time.Second, p.MaxDelay)
	assert.Equal(t, 5*time.Second, p.Jitter)
	assert.Equal(t, 20, p.BatchSize)
	assert.Equal(t, 5*time.Minute, p.BatchCooldown)
	assert.Equal(t, 10*time.Minute, p.RetryBackoff)
	assert.Equal(t, 3, p.MaxRetries)
}

func TestNextDelayBounds(t *testing.T) {
	p := DefaultRatePolicy()
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 1000; i++ {
		d := p.NextDelay(rng)
		assert.GreaterOrEqual(t, d, p.MinDelay)
		assert.Less(t, d, p.MaxDelay+p.Jitter)
	}
}

func TestNextDelayDegenerateSpan(t *testing.T) {
	p := RatePolicy{MinDelay: 3 * time.Second, MaxDelay: 3 * time.Second}
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 10; i++ {
		assert.Equal(t, 3*time.Second, p.NextDelay(rng))
	}
}

func TestStaggerOffsets(t *testing.T) {
	p := DefaultRatePolicy()
	rng := rand.New(rand.NewSource(99))

	offsets := p.StaggerOffsets(rng, 50)
	require.Len(t, offsets, 50)

	prev := time.Duration(0)
	for i, off := range offsets {
		assert.Greater(t, off, prev, "offset %d must be strictly increasing", i)
		gap := off - prev
		if i > 0 && i%p.BatchSize == 0 {
			// Batch boundary: the cooldown sits on top of the normal gap.
			assert.GreaterOrEqual(t, gap, p.BatchCooldown+p.MinDelay, "offset %d must include the batch cooldown", i)
			assert.Less(t, gap, p.BatchCooldown+p.MaxDelay+p.Jitter)
		} else {
			assert.GreaterOrEqual(t, gap, p.MinDelay)
			assert.Less(t, gap, p.MaxDelay+p.Jitter)
		}
		prev = off
	}
}

func TestStaggerOffsetsWithoutBatchSize(t *testing.T) {
	p := RatePolicy{MinDelay: time.Second, MaxDelay: 2 * time.Second, BatchCooldown: time.Hour}
	rng := rand.New(rand.NewSource(3))

	offsets := p.StaggerOffsets(rng, 10)
	require.Len(t, offsets, 10)
	assert.Less(t, offsets[9], 20*time.Second)
}

func TestStaggerOffsetsEmpty(t *testing.T) {
	p := DefaultRatePolicy()
	rng := rand.New(rand.NewSource(1))

	assert.Empty(t, p.StaggerOffsets(rng, 0))
}
