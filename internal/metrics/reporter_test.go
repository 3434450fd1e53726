package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tcplb/internal/logging"
)

type fakeSource struct {
	snapshot map[string]string
}

func (f fakeSource) Metrics() map[string]string { return f.snapshot }

// recordingLogger keeps the message of every Info line, so a test can see
// which reports were emitted.
type recordingLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (l *recordingLogger) Debug(logging.Category, string, ...logging.Field) {}
func (l *recordingLogger) Warn(logging.Category, string, ...logging.Field)  {}
func (l *recordingLogger) Error(logging.Category, string, ...logging.Field) {}
func (l *recordingLogger) Sync() error                                      { return nil }

func (l *recordingLogger) Info(_ logging.Category, msg string, _ ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msg)
}

func (l *recordingLogger) messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.msgs...)
}

func TestReporterEmitsFinalReportOnCancel(t *testing.T) {
	src := fakeSource{snapshot: map[string]string{"b1:9000": "Requests: 1"}}
	log := &recordingLogger{}
	r := NewReporter(src, time.Hour, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reporter did not return after cancellation")
	}
	require.Equal(t, []string{"Final Server Metrics"}, log.messages())
}

func TestReporterSkipsEmptySnapshot(t *testing.T) {
	src := fakeSource{snapshot: map[string]string{}}
	log := &recordingLogger{}
	r := NewReporter(src, time.Hour, log)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx)
	require.Empty(t, log.messages())
}
