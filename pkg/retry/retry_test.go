package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastRetrier(maxAttempts int) *Retrier {
	return New(
		WithMaxAttempts(maxAttempts),
		WithInitialDelay(time.Millisecond),
		WithMaxDelay(5*time.Millisecond),
		WithJitter(0),
	)
}

func TestDoCountExhaustsBudget(t *testing.T) {
	boom := errors.New("boom")
	calls := 0

	attempts, err := fastRetrier(4).DoCount(context.Background(), func(ctx context.Context) error {
		calls++
		return Retryable(boom)
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 4, attempts)
	assert.Equal(t, 4, calls)
}

func TestDoCountSucceedsMidway(t *testing.T) {
	calls := 0
	attempts, err := fastRetrier(4).DoCount(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errors.New("transient"))
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestPermanentErrorStopsImmediately(t *testing.T) {
	perm := errors.New("bad request")
	calls := 0

	attempts, err := fastRetrier(4).DoCount(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(perm)
	})

	assert.ErrorIs(t, err, perm)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestNonRetryableErrorStops(t *testing.T) {
	plain := errors.New("plain failure")
	calls := 0

	_, err := fastRetrier(4).DoCount(context.Background(), func(ctx context.Context) error {
		calls++
		return plain
	})

	assert.ErrorIs(t, err, plain)
	assert.Equal(t, 1, calls)
}

func TestRetryIfOverridesDefault(t *testing.T) {
	plain := errors.New("always retry me")
	calls := 0

	r := New(
		WithMaxAttempts(3),
		WithInitialDelay(time.Millisecond),
		WithJitter(0),
		WithRetryIf(func(error) bool { return true }),
	)
	_, err := r.DoCount(context.Background(), func(ctx context.Context) error {
		calls++
		return plain
	})

	assert.ErrorIs(t, err, plain)
	assert.Equal(t, 3, calls)
}

func TestContextCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	_, err := fastRetrier(10).DoCount(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return Retryable(errors.New("transient"))
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestCalculateDelayDoubles(t *testing.T) {
	r := New(
		WithInitialDelay(500*time.Millisecond),
		WithMultiplier(2.0),
		WithMaxDelay(time.Minute),
		WithJitter(0),
	)

	assert.Equal(t, 500*time.Millisecond, r.calculateDelay(1))
	assert.Equal(t, time.Second, r.calculateDelay(2))
	assert.Equal(t, 2*time.Second, r.calculateDelay(3))
}

func TestCalculateDelayCapped(t *testing.T) {
	r := New(
		WithInitialDelay(time.Second),
		WithMultiplier(2.0),
		WithMaxDelay(3*time.Second),
		WithJitter(0),
	)
	assert.Equal(t, 3*time.Second, r.calculateDelay(5))
}

func TestOnRetryCallback(t *testing.T) {
	var retries []int
	r := New(
		WithMaxAttempts(3),
		WithInitialDelay(time.Millisecond),
		WithJitter(0),
		WithOnRetry(func(attempt int, err error, delay time.Duration) {
			retries = append(retries, attempt)
		}),
	)

	_ = r.Do(context.Background(), func(ctx context.Context) error {
		return Retryable(errors.New("transient"))
	})

	// No callback for the final attempt, which does not sleep.
	assert.Equal(t, []int{1, 2}, retries)
}

func TestDoWithData(t *testing.T) {
	got, err := DoWithData(context.Background(), func(ctx context.Context) (string, error) {
		return "value", nil
	}, WithMaxAttempts(2), WithInitialDelay(time.Millisecond))

	assert.NoError(t, err)
	assert.Equal(t, "value", got)
}

func TestPolytrackRetrierBudget(t *testing.T) {
	assert.Equal(t, 4, PolytrackRetrier().MaxAttempts())
}
