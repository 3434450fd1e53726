package policy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"tcplb/internal/metrics"
)

func TestRegistryUnknownTagFallsBackToRoundRobin(t *testing.T) {
	p := New("made-up-strategy", metrics.NewRegistry(), nil)
	_, ok := p.(*RoundRobin)
	require.True(t, ok)
}

func TestRegistryConstructsEachKnownTag(t *testing.T) {
	cases := []struct {
		tag  string
		want any
	}{
		{string(TagRoundRobin), &RoundRobin{}},
		{string(TagLeastConnections), &LeastConnections{}},
		{string(TagWeightedRoundRobin), &WeightedRoundRobin{}},
		{string(TagIPHash), &IpHash{}},
	}

	for _, tc := range cases {
		p := New(tc.tag, metrics.NewRegistry(), nil)
		require.IsType(t, tc.want, p)
	}
}
