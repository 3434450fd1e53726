// Package dispatcher runs the accept loop: it owns the listening socket,
// applies the per-source throttle and admission gate ahead of every
// forwarder, and drives the periodic metrics reporter.
package dispatcher

import (
	"context"
	"errors"
	"net"

	"tcplb/internal/admission"
	"tcplb/internal/forwarder"
	"tcplb/internal/logging"
	"tcplb/internal/metrics"
	"tcplb/internal/throttle"
)

// Dispatcher accepts client connections on one address and hands each to a
// Forwarder once it has cleared the throttle and the admission gate.
type Dispatcher struct {
	addr      string
	gate      *admission.Gate
	throttler *throttle.Throttler
	forwarder *forwarder.Forwarder
	reporter  *metrics.Reporter
	log       logging.Logger
}

func New(addr string, gate *admission.Gate, th *throttle.Throttler, fw *forwarder.Forwarder, reporter *metrics.Reporter, log logging.Logger) *Dispatcher {
	if log == nil {
		log = logging.Nop()
	}
	return &Dispatcher{
		addr:      addr,
		gate:      gate,
		throttler: th,
		forwarder: fw,
		reporter:  reporter,
		log:       log,
	}
}

// Run binds addr and accepts connections until ctx is cancelled. It never
// returns a non-nil error for a graceful shutdown; only a bind failure is
// reported to the caller.
func (d *Dispatcher) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", d.addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	d.log.Info(logging.Dispatch, "dispatcher listening", logging.F("addr", ln.Addr().String()))

	reporterCtx, cancelReporter := context.WithCancel(context.Background())
	reporterDone := make(chan struct{})
	go func() {
		defer close(reporterDone)
		d.reporter.Run(reporterCtx)
	}()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				// In-flight forwarders are not awaited here: they ignore
				// ctx during relay by design (a stuck backend must not
				// wedge shutdown) and either complete on their own or die
				// with the process. Only the accept loop and the reporter
				// need to wind down promptly.
				cancelReporter()
				<-reporterDone
				d.log.Info(logging.Dispatch, "dispatcher shut down cleanly")
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				continue
			}
			// Accept errors are transient (e.g. a momentary FD exhaustion);
			// the dispatcher logs and keeps serving rather than exiting.
			d.log.Warn(logging.Dispatch, "accept error, continuing", logging.F("error", err.Error()))
			continue
		}

		go d.serve(ctx, conn)
	}
}

func (d *Dispatcher) serve(ctx context.Context, conn net.Conn) {
	sourceIP := hostOf(conn.RemoteAddr())

	if !d.throttler.Allow(ctx, sourceIP) {
		d.log.Warn(logging.Throttle, "source throttled, dropping connection before admission",
			logging.F("source", sourceIP))
		conn.Close()
		return
	}

	if err := d.gate.Acquire(ctx); err != nil {
		conn.Close()
		return
	}
	defer d.gate.Release()

	d.forwarder.Handle(ctx, conn)
}

func hostOf(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
