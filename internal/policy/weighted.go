package policy

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"tcplb/internal/metrics"
)

// WeightedRoundRobin walks the pool in order, accumulating weight, and
// returns the first backend whose cumulative weight strictly exceeds a
// cursor that advances modulo the total pool weight. Any backend seen for
// the first time with no configured weight is assigned a uniform random
// weight in [1, 10] — this reproduces the source behavior flagged in the
// design notes as non-deterministic; NewWeightedRoundRobin accepts a
// pre-populated weight map for callers that want determinism instead.
type WeightedRoundRobin struct {
	mu      sync.Mutex
	weights map[string]int
	cursor  uint64
	served  map[string]uint64
	total   uint64

	weightGauge *prometheus.GaugeVec
	servedM     *prometheus.CounterVec
}

func NewWeightedRoundRobin(reg *metrics.Registry, weights map[string]int) *WeightedRoundRobin {
	w := make(map[string]int, len(weights))
	for k, v := range weights {
		if v < 1 {
			v = 1
		}
		w[k] = v
	}
	wrr := &WeightedRoundRobin{
		weights:     w,
		served:      make(map[string]uint64),
		weightGauge: reg.NewGaugeVec("tcplb", "weighted_weight", "Configured weight per backend.", "backend"),
		servedM:     reg.NewCounterVec("tcplb", "weighted_requests_total", "Requests served per backend by the weighted round-robin policy.", "backend"),
	}
	for backend, weight := range w {
		wrr.weightGauge.WithLabelValues(backend).Set(float64(weight))
	}
	return wrr
}

func (w *WeightedRoundRobin) weightOf(backend string) int {
	if weight, ok := w.weights[backend]; ok {
		return weight
	}
	weight := rand.Intn(10) + 1
	w.weights[backend] = weight
	w.weightGauge.WithLabelValues(backend).Set(float64(weight))
	return weight
}

func (w *WeightedRoundRobin) Next(pool []string) (string, bool) {
	if len(pool) == 0 {
		return "", false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	total := 0
	for _, backend := range pool {
		total += w.weightOf(backend)
	}
	if total == 0 {
		return pool[0], true
	}

	w.cursor = (w.cursor + 1) % uint64(total)

	chosen := ""
	cumulative := 0
	target := int(w.cursor)
	for _, backend := range pool {
		cumulative += w.weightOf(backend)
		if target < cumulative {
			chosen = backend
			break
		}
	}
	if chosen == "" {
		chosen = pool[0]
	}

	w.served[chosen]++
	w.total++
	w.servedM.WithLabelValues(chosen).Inc()

	return chosen, true
}

func (w *WeightedRoundRobin) Started(string) {}
func (w *WeightedRoundRobin) Ended(string)   {}

func (w *WeightedRoundRobin) Metrics() map[string]string {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make(map[string]string, len(w.served))
	for backend, count := range w.served {
		pct := 0.0
		if w.total > 0 {
			pct = 100 * float64(count) / float64(w.total)
		}
		out[backend] = fmt.Sprintf("Weight: %d, Requests: %d, Distribution: %.1f%%", w.weights[backend], count, pct)
	}
	return out
}
