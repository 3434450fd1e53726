// Package forwarder relays one accepted client connection to a backend
// chosen by a selection policy, intercepting the in-band /metrics sideband
// along the way.
package forwarder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tcplb/internal/logging"
	"tcplb/internal/pool"
	"tcplb/internal/policy"
)

// peekLimit is the maximum number of bytes read from the client before a
// routing decision is made. A GET /metrics token straddling this boundary
// is not detected — a documented shortcut, not a bug (see design notes).
const peekLimit = 1024

const metricsProbe = "GET /metrics"

// Forwarder relays one connection per Handle call; it is stateless and safe
// to share across goroutines, each handling a different connection.
type Forwarder struct {
	pool        *pool.Pool
	policy      policy.Policy
	log         logging.Logger
	tracer      trace.Tracer
	dialTimeout time.Duration
	dial        func(ctx context.Context, network, addr string) (net.Conn, error)
}

type Option func(*Forwarder)

func WithDialTimeout(d time.Duration) Option {
	return func(f *Forwarder) { f.dialTimeout = d }
}

// WithDialer overrides the dial function used to reach backends.
func WithDialer(dial func(ctx context.Context, network, addr string) (net.Conn, error)) Option {
	return func(f *Forwarder) { f.dial = dial }
}

func New(p *pool.Pool, pol policy.Policy, log logging.Logger, tracer trace.Tracer, opts ...Option) *Forwarder {
	if log == nil {
		log = logging.Nop()
	}
	if tracer == nil {
		tracer = trace.NewNoopTracerProvider().Tracer("tcplb/forwarder")
	}
	f := &Forwarder{
		pool:        p,
		policy:      pol,
		log:         log,
		tracer:      tracer,
		dialTimeout: 10 * time.Second,
	}
	f.dial = (&net.Dialer{}).DialContext
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Handle takes ownership of conn and runs it to completion: either
// successful teardown or a first unrecoverable error. It never returns an
// error to the caller — all connection-scoped failures are absorbed here,
// per the error-propagation policy in §7.
func (f *Forwarder) Handle(ctx context.Context, conn net.Conn) {
	connID := uuid.NewString()
	defer conn.Close()

	ctx, span := f.tracer.Start(ctx, "proxy.forward", trace.WithAttributes(
		attribute.String("conn_id", connID),
		attribute.String("remote_addr", conn.RemoteAddr().String()),
	))
	defer span.End()

	log := connLogger{log: f.log, connID: connID, remote: conn.RemoteAddr().String()}

	buf := make([]byte, peekLimit)
	n, err := readAtMost(conn, buf)
	if err != nil {
		if errors.Is(err, io.EOF) && n == 0 {
			log.info("client closed before sending any bytes")
			return
		}
		log.warn("error peeking request prefix", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "peek failed")
		return
	}
	prefix := buf[:n]

	if bytes.Contains(prefix, []byte(metricsProbe)) {
		f.serveMetrics(conn, log)
		return
	}

	snapshot := f.pool.Snapshot()
	backend, ok := f.selectBackend(snapshot, clientKey(conn))
	if !ok {
		log.info("no backend available, dropping connection")
		return
	}
	span.SetAttributes(attribute.String("backend", backend))

	f.policy.Started(backend)
	log = log.withBackend(backend)

	backendConn, err := f.dialBackend(ctx, backend, log, span)
	if err != nil {
		f.policy.Ended(backend)
		return
	}
	defer backendConn.Close()

	if _, err := backendConn.Write(prefix); err != nil {
		log.warn("error replaying request prefix to backend", err)
		span.RecordError(err)
		f.policy.Ended(backend)
		return
	}

	f.relay(ctx, conn, backendConn, log, span)
	f.policy.Ended(backend)
}

func (f *Forwarder) selectBackend(snapshot []string, key string) (string, bool) {
	if keyed, ok := f.policy.(policy.KeyedPolicy); ok {
		return keyed.NextForKey(snapshot, key)
	}
	return f.policy.Next(snapshot)
}

func (f *Forwarder) dialBackend(ctx context.Context, backend string, log connLogger, span trace.Span) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, f.dialTimeout)
	defer cancel()

	_, dialSpan := f.tracer.Start(dialCtx, "proxy.dial")
	defer dialSpan.End()

	conn, err := f.dial(dialCtx, "tcp", backend)
	if err != nil {
		err = fmt.Errorf("dial backend %s: %w", backend, err)
		log.warn("backend dial failed", err)
		dialSpan.RecordError(err)
		dialSpan.SetStatus(codes.Error, "dial failed")
		span.RecordError(err)
		return nil, err
	}
	return conn, nil
}

// relay streams client<->backend concurrently until both directions reach
// EOF or either side errors; each direction is a streaming io.Copy, so
// nothing is held beyond that copy's own buffer.
func (f *Forwarder) relay(ctx context.Context, client, backend net.Conn, log connLogger, span trace.Span) {
	_, relaySpan := f.tracer.Start(ctx, "proxy.relay")
	defer relaySpan.End()

	done := make(chan int64, 2)

	go func() {
		n, err := io.Copy(backend, client)
		if tc, ok := backend.(interface{ CloseWrite() error }); ok {
			_ = tc.CloseWrite()
		}
		if err != nil && !isClosedErr(err) {
			log.warn("client->backend relay error", err)
		}
		done <- n
	}()

	sent, err := io.Copy(client, backend)
	if err != nil && !isClosedErr(err) {
		log.warn("backend->client relay error", err)
	}
	if sent > 0 {
		if tc, ok := client.(interface{ CloseWrite() error }); ok {
			_ = tc.CloseWrite()
		}
	}

	received := <-done

	relaySpan.SetAttributes(
		attribute.Int64("bytes_client_to_backend", received),
		attribute.Int64("bytes_backend_to_client", sent),
	)
}

func (f *Forwarder) serveMetrics(conn net.Conn, log connLogger) {
	snapshot := f.policy.Metrics()

	backends := make([]string, 0, len(snapshot))
	for backend := range snapshot {
		backends = append(backends, backend)
	}
	sort.Strings(backends)

	var body strings.Builder
	for _, backend := range backends {
		fmt.Fprintf(&body, "%s: %s\n", backend, snapshot[backend])
	}

	response := fmt.Sprintf(
		"HTTP/1.1 200 OK\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		body.Len(), body.String(),
	)

	if _, err := io.WriteString(conn, response); err != nil {
		log.warn("error writing metrics response", err)
		return
	}
	if tc, ok := conn.(interface{ CloseWrite() error }); ok {
		_ = tc.CloseWrite()
	}
}

func readAtMost(r io.Reader, buf []byte) (int, error) {
	n, err := r.Read(buf)
	if err != nil && n == 0 {
		return 0, err
	}
	return n, nil
}

func clientKey(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}

func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF)
}

type connLogger struct {
	log     logging.Logger
	connID  string
	remote  string
	backend string
}

func (c connLogger) withBackend(backend string) connLogger {
	c.backend = backend
	return c
}

func (c connLogger) fields(extra ...logging.Field) []logging.Field {
	fields := []logging.Field{logging.F("conn_id", c.connID), logging.F("remote_addr", c.remote)}
	if c.backend != "" {
		fields = append(fields, logging.F("backend", c.backend))
	}
	return append(fields, extra...)
}

func (c connLogger) info(msg string) {
	c.log.Info(logging.Relay, msg, c.fields()...)
}

func (c connLogger) warn(msg string, err error) {
	c.log.Warn(logging.Relay, msg, c.fields(logging.F("error", err.Error()))...)
}
