package admission

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGateNeverExceedsCapacity(t *testing.T) {
	g := New(4)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	maxSeen := 0

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, g.Acquire(ctx))
			defer g.Release()

			mu.Lock()
			if g.InFlight() > maxSeen {
				maxSeen = g.InFlight()
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, maxSeen, 4)
}

func TestGateAcquireRespectsContextCancellation(t *testing.T) {
	g := New(1)
	require.NoError(t, g.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := g.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGateReleaseFreesASlot(t *testing.T) {
	g := New(1)
	require.NoError(t, g.Acquire(context.Background()))
	g.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.NoError(t, g.Acquire(ctx))
}
