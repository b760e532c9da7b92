package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedRetryExhaustsAfterMaxAttempts(t *testing.T) {
	r := FixedRetry{Delay: 10 * time.Millisecond, MaxAttempts: 2}

	d, ok := r.NextDelay(0)
	assert.True(t, ok)
	assert.Equal(t, 10*time.Millisecond, d)

	d, ok = r.NextDelay(1)
	assert.True(t, ok)
	assert.Equal(t, 10*time.Millisecond, d)

	_, ok = r.NextDelay(2)
	assert.False(t, ok)
}

func TestExponentialRetryGrowsAndCaps(t *testing.T) {
	r := ExponentialRetry{Initial: time.Second, Multiplier: 2, Max: 5 * time.Second, MaxAttempts: 10}

	d0, ok := r.NextDelay(0)
	assert.True(t, ok)
	assert.Equal(t, time.Second, d0)

	d1, _ := r.NextDelay(1)
	assert.Equal(t, 2*time.Second, d1)

	d2, _ := r.NextDelay(2)
	assert.Equal(t, 4*time.Second, d2)

	d3, _ := r.NextDelay(3)
	assert.Equal(t, 5*time.Second, d3, "delay must cap at Max")
}

func TestExponentialRetryJitterStaysWithinBounds(t *testing.T) {
	r := ExponentialRetry{Initial: time.Second, Multiplier: 1, Max: time.Minute, MaxAttempts: 100, Jitter: true}

	for i := 0; i < 50; i++ {
		d, ok := r.NextDelay(0)
		assert.True(t, ok)
		assert.GreaterOrEqual(t, d, 750*time.Millisecond)
		assert.LessOrEqual(t, d, 1250*time.Millisecond)
	}
}

func TestLinearRetryIncrementsAndCaps(t *testing.T) {
	r := LinearRetry{Initial: time.Second, Increment: time.Second, Max: 3 * time.Second, MaxAttempts: 10}

	d0, _ := r.NextDelay(0)
	assert.Equal(t, time.Second, d0)
	d1, _ := r.NextDelay(1)
	assert.Equal(t, 2*time.Second, d1)
	d2, _ := r.NextDelay(2)
	assert.Equal(t, 3*time.Second, d2)
	d3, _ := r.NextDelay(3)
	assert.Equal(t, 3*time.Second, d3, "delay must cap at Max")
}

func TestCustomRetryExhaustsAtListEnd(t *testing.T) {
	r := CustomRetry{Delays: []time.Duration{time.Second, 2 * time.Second}}

	d0, ok := r.NextDelay(0)
	assert.True(t, ok)
	assert.Equal(t, time.Second, d0)

	d1, ok := r.NextDelay(1)
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, d1)

	_, ok = r.NextDelay(2)
	assert.False(t, ok)
}
