package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegistersDistinctInstrumentsPerInstance(t *testing.T) {
	a := NewRegistry()
	b := NewRegistry()

	ca := a.NewCounterVec("tcplb", "requests_total", "help text", "backend")
	cb := b.NewCounterVec("tcplb", "requests_total", "help text", "backend")

	ca.WithLabelValues("x").Inc()
	require.NotPanics(t, func() { cb.WithLabelValues("x").Inc() })
}

func TestRegistryGaugeVec(t *testing.T) {
	reg := NewRegistry()
	g := reg.NewGaugeVec("tcplb", "active_connections", "help text", "backend")
	g.WithLabelValues("b1").Set(3)

	require.Equal(t, float64(3), testutil.ToFloat64(g.WithLabelValues("b1")))
}
