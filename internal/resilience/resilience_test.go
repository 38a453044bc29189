package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	cb := NewScheduleFloodBreaker(time.Second, 4, 0, 4, 0.5, 50*time.Millisecond, 1)
	for i := 0; i < 4; i++ {
		require.True(t, cb.AllowSchedule())
		cb.RecordScheduleResult(errors.New("unknown trigger"))
	}
	require.False(t, cb.AllowSchedule())
}

func TestCircuitBreakerHalfOpensAfterCooldown(t *testing.T) {
	cb := NewScheduleFloodBreaker(time.Second, 4, 0, 2, 0.5, 5*time.Millisecond, 1)
	cb.AllowSchedule()
	cb.RecordScheduleResult(errors.New("unknown trigger"))
	cb.AllowSchedule()
	cb.RecordScheduleResult(errors.New("unknown trigger"))
	require.False(t, cb.AllowSchedule())

	time.Sleep(10 * time.Millisecond)
	require.True(t, cb.AllowSchedule(), "breaker should probe after cool-down")
}

func TestCircuitBreakerOpensOnScheduleFlood(t *testing.T) {
	// Every call here "succeeds" (nil error), the way a flood of
	// well-formed physical events against a known trigger would. A
	// failure-rate-only breaker would never trip; the volume trip must.
	cb := NewScheduleFloodBreaker(time.Second, 4, 3, 100, 0.5, 50*time.Millisecond, 1)
	for i := 0; i < 3; i++ {
		require.True(t, cb.AllowSchedule())
		cb.RecordScheduleResult(nil)
	}
	require.False(t, cb.AllowSchedule(), "breaker should trip on volume even with no failures")
}

func TestRetrySucceedsEventually(t *testing.T) {
	attempts := 0
	v, err := Retry(context.Background(), 3, time.Millisecond, func() (int, error) {
		attempts++
		if attempts < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, v)
	require.Equal(t, 3, attempts)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	boom := errors.New("boom")
	_, err := Retry(context.Background(), 2, time.Millisecond, func() (int, error) {
		return 0, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Retry(ctx, 3, time.Hour, func() (int, error) {
		return 0, errors.New("always fails")
	})
	require.Error(t, err)
}
