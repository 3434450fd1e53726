package dispatcher

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tcplb/internal/admission"
	"tcplb/internal/forwarder"
	"tcplb/internal/logging"
	"tcplb/internal/metrics"
	"tcplb/internal/policy"
	"tcplb/internal/pool"
	"tcplb/internal/throttle"
)

func TestDispatcherRelaysAndShutsDownCleanly(t *testing.T) {
	backendLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer backendLn.Close()

	go func() {
		conn, err := backendLn.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 64)
		n, _ := conn.Read(buf)
		_, _ = conn.Write(buf[:n])
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.CloseWrite()
		}
	}()

	p := pool.New([]string{backendLn.Addr().String()})
	reg := metrics.NewRegistry()
	pol := policy.NewRoundRobin(reg)
	gate := admission.New(4)
	th := throttle.New(throttle.Config{PerMinute: 1000, Window: time.Minute}, nil, logging.Nop())
	fw := forwarder.New(p, pol, logging.Nop(), nil)
	reporter := metrics.NewReporter(pol, time.Hour, logging.Nop())

	d := New("127.0.0.1:0", gate, th, fw, reporter, logging.Nop())

	// Bind on an ephemeral port chosen by the OS rather than port 0 passed
	// straight through, so the test can dial it; listen once here and hand
	// off is awkward, so instead resolve what Run will bind by probing.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	d.addr = addr

	ctx, cancel := context.WithCancel(context.Background())
	runErrCh := make(chan error, 1)
	go func() { runErrCh <- d.Run(ctx) }()

	// Give the listener a moment to bind.
	var conn net.Conn
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, err)

	_, err = conn.Write([]byte("ping"))
	require.NoError(t, err)
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}
	buf := make([]byte, 64)
	n, _ := conn.Read(buf)
	require.Equal(t, "ping", string(buf[:n]))
	conn.Close()

	cancel()

	select {
	case err := <-runErrCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not shut down in time")
	}
}

func TestDispatcherThrottlesBeforeAdmission(t *testing.T) {
	p := pool.New([]string{"127.0.0.1:1"})
	reg := metrics.NewRegistry()
	pol := policy.NewRoundRobin(reg)
	gate := admission.New(4)
	th := throttle.New(throttle.Config{PerMinute: 0, Window: time.Minute}, nil, logging.Nop())
	fw := forwarder.New(p, pol, logging.Nop(), nil)
	reporter := metrics.NewReporter(pol, time.Hour, logging.Nop())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	d := New(addr, gate, th, fw, reporter, logging.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	var conn net.Conn
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, err)
	defer conn.Close()

	require.Equal(t, 0, gate.InFlight())
}
