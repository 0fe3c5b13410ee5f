package polytrack

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterBurstThenDeny(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		RequestsPerSecond: 1,
		BurstSize:         2,
		MinInterval:       0,
		WaitTimeout:       time.Second,
	})

	assert.True(t, rl.TryAllow())
	assert.True(t, rl.TryAllow())
	assert.False(t, rl.TryAllow())
}

func TestRateLimiterReset(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		RequestsPerSecond: 1,
		BurstSize:         1,
		WaitTimeout:       time.Second,
	})

	assert.True(t, rl.TryAllow())
	assert.False(t, rl.TryAllow())

	rl.Reset()
	assert.True(t, rl.TryAllow())
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold:   2,
		SuccessThreshold:   1,
		Timeout:            time.Minute,
		HalfOpenMaxRetries: 1,
	})

	assert.NoError(t, cb.Allow())
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State())
	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold:   1,
		SuccessThreshold:   1,
		Timeout:            time.Millisecond,
		HalfOpenMaxRetries: 1,
	})

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())

	time.Sleep(5 * time.Millisecond)
	assert.NoError(t, cb.Allow())
	assert.Equal(t, CircuitHalfOpen, cb.State())

	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
}
