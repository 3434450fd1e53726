package metrics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tcplb/internal/logging"
)

// Source is anything that can render a point-in-time snapshot of
// per-backend metrics, i.e. a selection policy.
type Source interface {
	Metrics() map[string]string
}

// Reporter periodically renders a Source's metrics to the structured
// logger, and once more immediately before returning (the "Final Server
// Metrics" line printed on shutdown).
type Reporter struct {
	source   Source
	interval time.Duration
	log      logging.Logger
}

func NewReporter(source Source, interval time.Duration, log logging.Logger) *Reporter {
	return &Reporter{source: source, interval: interval, log: log}
}

// Run blocks, emitting a report every interval, until ctx is cancelled. It
// emits one final report labeled "Final Server Metrics" before returning,
// so the caller need not duplicate that call on shutdown. Like every
// report, it is skipped when the snapshot is empty.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.report("Final Server Metrics")
			return
		case <-ticker.C:
			r.report("Server Metrics")
		}
	}
}

func (r *Reporter) report(header string) {
	snapshot := r.source.Metrics()
	if len(snapshot) == 0 {
		return
	}

	backends := make([]string, 0, len(snapshot))
	for backend := range snapshot {
		backends = append(backends, backend)
	}
	sort.Strings(backends)

	lines := make([]string, 0, len(backends))
	for _, backend := range backends {
		lines = append(lines, fmt.Sprintf("%s: %s", backend, snapshot[backend]))
	}

	r.log.Info(logging.Metrics, header, logging.F("report", lines))
}
