package policy

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"tcplb/internal/metrics"
)

// KeyedPolicy is an optional extension a Policy may implement when
// selection depends on a caller-supplied key rather than only the pool.
// IpHash is the only policy in this package that implements it; the
// forwarder falls back to Next when a policy does not.
type KeyedPolicy interface {
	NextForKey(pool []string, key string) (string, bool)
}

// IpHash hashes a stable client key (the real source IP; see design notes —
// the source this was distilled from used a fixed 3-element test array
// instead of the real peer address, which is treated as a bug, not a
// feature) and returns pool[hash%len(pool)]. The same key against a fixed
// pool always returns the same backend.
type IpHash struct {
	mu      sync.Mutex
	served  map[string]uint64
	clients map[string]map[string]struct{}

	requestsM *prometheus.CounterVec
}

func NewIpHash(reg *metrics.Registry) *IpHash {
	return &IpHash{
		served:    make(map[string]uint64),
		clients:   make(map[string]map[string]struct{}),
		requestsM: reg.NewCounterVec("tcplb", "iphash_requests_total", "Requests served per backend by the IP-hash policy.", "backend"),
	}
}

func hashKey(key string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return h.Sum64()
}

// NextForKey is the real entry point: the forwarder passes the host part of
// the client connection's remote address as key.
func (h *IpHash) NextForKey(pool []string, key string) (string, bool) {
	if len(pool) == 0 {
		return "", false
	}

	idx := hashKey(key) % uint64(len(pool))
	backend := pool[idx]

	h.mu.Lock()
	h.served[backend]++
	if h.clients[backend] == nil {
		h.clients[backend] = make(map[string]struct{})
	}
	h.clients[backend][key] = struct{}{}
	h.mu.Unlock()

	h.requestsM.WithLabelValues(backend).Inc()
	return backend, true
}

// Next satisfies the base Policy contract using an empty key, so IpHash
// remains usable anywhere a plain Policy is expected. Callers that know
// the client key should prefer NextForKey (via the KeyedPolicy assertion).
func (h *IpHash) Next(pool []string) (string, bool) {
	return h.NextForKey(pool, "")
}

func (h *IpHash) Started(string) {}
func (h *IpHash) Ended(string)   {}

func (h *IpHash) Metrics() map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]string, len(h.served))
	for backend, count := range h.served {
		keys := make([]string, 0, len(h.clients[backend]))
		for k := range h.clients[backend] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out[backend] = fmt.Sprintf("Requests: %d, Clients: [%s]", count, strings.Join(keys, ","))
	}
	return out
}
