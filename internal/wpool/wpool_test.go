package wpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunLaunchesEveryWorker(t *testing.T) {
	p := New(4)
	var count atomic.Int32
	err := p.Run(context.Background(), func(ctx context.Context, workerID int) error {
		count.Add(1)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, int32(4), count.Load())
}

func TestRunPropagatesFirstError(t *testing.T) {
	p := New(3)
	boom := errors.New("boom")
	err := p.Run(context.Background(), func(ctx context.Context, workerID int) error {
		if workerID == 1 {
			return boom
		}
		<-ctx.Done()
		return ctx.Err()
	})
	require.ErrorIs(t, err, boom)
}

func TestSize(t *testing.T) {
	require.Equal(t, 1, New(0).Size())
	require.Equal(t, 5, New(5).Size())
}
