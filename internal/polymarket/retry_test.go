package polymarket

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func noSleepPolicy(attempts int, slept *[]time.Duration) *RetryPolicy {
	p := DefaultRetryPolicy()
	p.MaxAttempts = attempts
	p.sleep = func(ctx context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return p
}

func TestRetryPolicyBackoff(t *testing.T) {
	p := &RetryPolicy{InitialDelay: 100 * time.Millisecond, MaxDelay: 350 * time.Millisecond, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 350*time.Millisecond, p.Backoff(3))
}

func TestRetryPolicyRetriesTransientErrors(t *testing.T) {
	var slept []time.Duration
	p := noSleepPolicy(3, &slept)

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("temporary")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, slept)
}

func TestRetryPolicyGivesUpAfterMaxAttempts(t *testing.T) {
	var slept []time.Duration
	p := noSleepPolicy(3, &slept)

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("down")
	})

	assert.EqualError(t, err, "down")
	assert.Equal(t, 3, calls)
	assert.Len(t, slept, 2)
}

func TestRetryPolicyStopsOnPermanentError(t *testing.T) {
	var slept []time.Duration
	p := noSleepPolicy(3, &slept)

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return Permanent(ErrEventNotFound)
	})

	assert.ErrorIs(t, err, ErrEventNotFound)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, 1, calls)
	assert.Empty(t, slept)
}

func TestRetryPolicyHonorsContext(t *testing.T) {
	p := &RetryPolicy{MaxAttempts: 5, InitialDelay: time.Hour, Multiplier: 2}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Do(ctx, func(ctx context.Context) error { return errors.New("x") })
	assert.ErrorIs(t, err, context.Canceled)
}
