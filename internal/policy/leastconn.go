package policy

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"tcplb/internal/metrics"
)

type leastConnCounters struct {
	active     int64
	total      int64
	successful int64
}

// LeastConnections returns the backend with the fewest active connections,
// ties broken by first-encountered pool order.
type LeastConnections struct {
	mu       sync.Mutex
	counters map[string]*leastConnCounters

	active     *prometheus.GaugeVec
	totalM     *prometheus.CounterVec
	successM   *prometheus.CounterVec
}

func NewLeastConnections(reg *metrics.Registry) *LeastConnections {
	return &LeastConnections{
		counters: make(map[string]*leastConnCounters),
		active:   reg.NewGaugeVec("tcplb", "leastconn_active", "Active connections per backend.", "backend"),
		totalM:   reg.NewCounterVec("tcplb", "leastconn_attempts_total", "Total connection attempts per backend.", "backend"),
		successM: reg.NewCounterVec("tcplb", "leastconn_successful_total", "Successfully terminated connections per backend.", "backend"),
	}
}

func (lc *LeastConnections) entry(id string) *leastConnCounters {
	c, ok := lc.counters[id]
	if !ok {
		c = &leastConnCounters{}
		lc.counters[id] = c
	}
	return c
}

func (lc *LeastConnections) Next(pool []string) (string, bool) {
	if len(pool) == 0 {
		return "", false
	}

	lc.mu.Lock()
	defer lc.mu.Unlock()

	best := pool[0]
	bestActive := lc.entry(best).active
	for _, backend := range pool[1:] {
		active := lc.entry(backend).active
		if active < bestActive {
			best = backend
			bestActive = active
		}
	}
	return best, true
}

func (lc *LeastConnections) Started(id string) {
	lc.mu.Lock()
	c := lc.entry(id)
	c.active++
	c.total++
	lc.mu.Unlock()

	lc.active.WithLabelValues(id).Inc()
	lc.totalM.WithLabelValues(id).Inc()
}

func (lc *LeastConnections) Ended(id string) {
	lc.mu.Lock()
	c := lc.entry(id)
	if c.active > 0 {
		c.active--
		lc.active.WithLabelValues(id).Dec()
	}
	c.successful++
	lc.mu.Unlock()

	lc.successM.WithLabelValues(id).Inc()
}

func (lc *LeastConnections) Metrics() map[string]string {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	out := make(map[string]string, len(lc.counters))
	for id, c := range lc.counters {
		rate := 0.0
		if c.total > 0 {
			rate = float64(c.successful) / float64(c.total)
		}
		out[id] = fmt.Sprintf("Active: %d, Total: %d, Successful: %d, SuccessRate: %.2f", c.active, c.total, c.successful, rate)
	}
	return out
}
