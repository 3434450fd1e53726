// Package metrics hosts the Prometheus registry backing every selection
// policy's counters, plus the periodic plain-text metrics reporter.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry wraps a dedicated Prometheus registry (never the global
// DefaultRegisterer, so tests can construct as many independent proxies as
// they like without "duplicate metrics collector registration" panics).
type Registry struct {
	reg *prometheus.Registry
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{reg: prometheus.NewRegistry()}
}

// Prometheus exposes the underlying registry, e.g. for promhttp.HandlerFor.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.reg
}

// NewCounterVec registers and returns a CounterVec under the given
// namespace/name.
func (r *Registry) NewCounterVec(namespace, name, help string, labels ...string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, labels)
	r.reg.MustRegister(cv)
	return cv
}

// NewGaugeVec registers and returns a GaugeVec under the given
// namespace/name.
func (r *Registry) NewGaugeVec(namespace, name, help string, labels ...string) *prometheus.GaugeVec {
	gv := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, labels)
	r.reg.MustRegister(gv)
	return gv
}
