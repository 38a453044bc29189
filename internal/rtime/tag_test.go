package rtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTagOrdering(t *testing.T) {
	a := Tag{Time: 100, Microstep: 0}
	b := Tag{Time: 100, Microstep: 1}
	c := Tag{Time: 200, Microstep: 0}

	require.True(t, a.Before(b))
	require.True(t, b.Before(c))
	require.False(t, c.Before(a))
	require.True(t, a.Equal(Tag{Time: 100, Microstep: 0}))
	require.Equal(t, -1, a.Compare(b))
	require.Equal(t, 1, c.Compare(b))
}

func TestTagPlusResetsMicrostep(t *testing.T) {
	a := Tag{Time: 100, Microstep: 7}
	b := a.Plus(50 * time.Millisecond)
	require.Equal(t, int64(100+int64(50*time.Millisecond)), b.Time)
	require.Equal(t, uint32(0), b.Microstep)
}

func TestTagNextMicrostep(t *testing.T) {
	a := Tag{Time: 100, Microstep: 3}
	require.Equal(t, Tag{Time: 100, Microstep: 4}, a.NextMicrostep())
}

func TestSystemClockSleepUntilPast(t *testing.T) {
	clk := NewSystemClock()
	require.NoError(t, clk.SleepUntil(context.Background(), -time.Hour))
}

func TestSystemClockSleepUntilCancelled(t *testing.T) {
	clk := NewSystemClock()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := clk.SleepUntil(ctx, clk.Now()+time.Hour)
	require.ErrorIs(t, err, context.Canceled)
}
