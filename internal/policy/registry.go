package policy

import "tcplb/internal/metrics"

// Tag identifies a selection strategy on the CLI / config surface.
type Tag string

const (
	TagRoundRobin         Tag = "round-robin"
	TagLeastConnections   Tag = "least-connections"
	TagWeightedRoundRobin Tag = "weighted-round-robin"
	TagIPHash             Tag = "ip-hash"
)

// New constructs a Policy from a tag. Unknown tags fall back to
// round-robin, the documented default. weights is only consulted by the
// weighted-round-robin strategy; it may be nil.
func New(tag string, reg *metrics.Registry, weights map[string]int) Policy {
	switch Tag(tag) {
	case TagLeastConnections:
		return NewLeastConnections(reg)
	case TagWeightedRoundRobin:
		return NewWeightedRoundRobin(reg, weights)
	case TagIPHash:
		return NewIpHash(reg)
	case TagRoundRobin:
		return NewRoundRobin(reg)
	default:
		return NewRoundRobin(reg)
	}
}
