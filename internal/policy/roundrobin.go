package policy

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"tcplb/internal/metrics"
)

// RoundRobin advances a cursor by one on every Next call and returns
// pool[cursor % len(pool)]. The cursor is pre-incremented: with a freshly
// constructed policy the first selection is index 1 when len(pool) > 1.
// This mirrors the teacher's rotation behavior rather than a strict
// 0-first variant (see design notes on round-robin first index).
type RoundRobin struct {
	mu      sync.Mutex
	cursor  uint64
	served  map[string]uint64
	total   uint64
	metric  *prometheus.CounterVec
}

func NewRoundRobin(reg *metrics.Registry) *RoundRobin {
	return &RoundRobin{
		served: make(map[string]uint64),
		metric: reg.NewCounterVec("tcplb", "roundrobin_requests_total", "Requests served per backend by the round-robin policy.", "backend"),
	}
}

func (rr *RoundRobin) Next(pool []string) (string, bool) {
	if len(pool) == 0 {
		return "", false
	}

	rr.mu.Lock()
	rr.cursor++
	idx := rr.cursor % uint64(len(pool))
	backend := pool[idx]
	rr.served[backend]++
	rr.total++
	rr.metric.WithLabelValues(backend).Inc()
	rr.mu.Unlock()

	return backend, true
}

func (rr *RoundRobin) Started(string) {}
func (rr *RoundRobin) Ended(string)   {}

func (rr *RoundRobin) Metrics() map[string]string {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	out := make(map[string]string, len(rr.served))
	for backend, count := range rr.served {
		pct := 0.0
		if rr.total > 0 {
			pct = 100 * float64(count) / float64(rr.total)
		}
		out[backend] = fmt.Sprintf("Requests: %d, Distribution: %.1f%%", count, pct)
	}
	return out
}
