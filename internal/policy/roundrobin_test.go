package policy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"tcplb/internal/metrics"
)

func TestRoundRobinEmptyPool(t *testing.T) {
	rr := NewRoundRobin(metrics.NewRegistry())
	_, ok := rr.Next(nil)
	require.False(t, ok)
	require.Empty(t, rr.Metrics())
}

func TestRoundRobinMembership(t *testing.T) {
	pool := []string{"a:1", "b:2", "c:3"}
	rr := NewRoundRobin(metrics.NewRegistry())

	for i := 0; i < 10; i++ {
		backend, ok := rr.Next(pool)
		require.True(t, ok)
		require.Contains(t, pool, backend)
	}
}

func TestRoundRobinFairness(t *testing.T) {
	pool := []string{"a:1", "b:2", "c:3", "d:4"}
	rr := NewRoundRobin(metrics.NewRegistry())

	const k = 25
	counts := make(map[string]int)
	for i := 0; i < k*len(pool); i++ {
		backend, ok := rr.Next(pool)
		require.True(t, ok)
		counts[backend]++
	}

	for _, backend := range pool {
		require.Equal(t, k, counts[backend], "backend %s", backend)
	}
}
