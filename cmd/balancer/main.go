// Command balancer runs the TCP reverse proxy: it accepts client
// connections, picks a backend per the configured selection strategy, and
// relays bytes until either side closes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"tcplb/internal/admission"
	"tcplb/internal/debugsrv"
	"tcplb/internal/dispatcher"
	"tcplb/internal/forwarder"
	"tcplb/internal/logging"
	"tcplb/internal/metrics"
	"tcplb/internal/policy"
	"tcplb/internal/pool"
	"tcplb/internal/throttle"
	"tcplb/internal/tracing"
)

func main() {
	var (
		port             = flag.Int("port", 8000, "TCP port to accept client connections on, bound to 127.0.0.1")
		servers          = flag.String("servers", "", "comma-separated backend addresses (host:port); with none, client connections are closed without dialing")
		weights          = flag.String("weights", "", "optional comma-separated host:port=weight pairs, only consulted by -strategy=weighted-round-robin")
		strategy         = flag.String("strategy", string(policy.TagRoundRobin), "selection strategy: round-robin | least-connections | weighted-round-robin | ip-hash")
		maxConnections   = flag.Int("max-connections", 500, "maximum number of forwarders in flight at once")
		metricsInterval  = flag.Duration("metrics-interval", 5*time.Second, "interval between periodic metrics reports")
		debugAddr        = flag.String("debug-addr", "127.0.0.1:9090", "address for the health/metrics/pprof debug surface; empty disables it")
		otlpEndpoint     = flag.String("otlp-endpoint", "", "OTLP/HTTP collector endpoint; empty disables tracing")
		redisAddr        = flag.String("redis-addr", "", "Redis address for the distributed throttle; empty uses a local-only fallback")
		throttlePerMin   = flag.Int("throttle-per-minute", 120, "connection attempts allowed per source IP per minute")
		logFile          = flag.String("log-file", "./logs/tcplb.log", "rotating JSON log file; empty disables the file sink")
		logLevel         = flag.String("log-level", "info", "debug | info | warn | error")
		dialTimeout      = flag.Duration("dial-timeout", 10*time.Second, "timeout for dialing a backend")
	)
	flag.Parse()

	addr := fmt.Sprintf("127.0.0.1:%d", *port)

	backends := splitCSV(*servers)

	log := logging.New(logging.Config{
		FilePath:   *logFile,
		Level:      *logLevel,
		MaxSizeMB:  50,
		MaxBackups: 5,
	})
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		ServiceName: "tcplb-balancer",
		Endpoint:    *otlpEndpoint,
	})
	if err != nil {
		log.Error(logging.Tracing, "failed to initialize tracing", logging.F("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn(logging.Tracing, "tracer shutdown error", logging.F("error", err.Error()))
		}
	}()

	backendPool := pool.New(backends)
	registry := metrics.NewRegistry()
	selectionPolicy := policy.New(*strategy, registry, parseWeights(*weights))

	var redisClient *redis.Client
	if *redisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: *redisAddr})
	}
	throttler := throttle.New(throttle.Config{PerMinute: *throttlePerMin, Window: time.Minute}, redisClient, log)

	gate := admission.New(*maxConnections)
	tracer := tracing.Tracer("tcplb/forwarder")
	fw := forwarder.New(backendPool, selectionPolicy, log, tracer, forwarder.WithDialTimeout(*dialTimeout))
	reporter := metrics.NewReporter(selectionPolicy, *metricsInterval, log)

	disp := dispatcher.New(addr, gate, throttler, fw, reporter, log)
	debug := debugsrv.New(*debugAddr, registry)

	errCh := make(chan error, 2)
	go func() { errCh <- disp.Run(ctx) }()
	if *debugAddr != "" {
		go func() { errCh <- debug.Run(ctx) }()
	} else {
		errCh <- nil
	}

	log.Info(logging.Dispatch, "balancer starting",
		logging.F("addr", addr),
		logging.F("debug_addr", *debugAddr),
		logging.F("strategy", *strategy),
		logging.F("backends", backends),
		logging.F("max_connections", *maxConnections),
	)

	for i := 0; i < cap(errCh); i++ {
		if err := <-errCh; err != nil {
			log.Error(logging.Dispatch, "component exited with error", logging.F("error", err.Error()))
		}
	}
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseWeights parses "host:port=weight,host:port=weight" pairs. Entries
// without a weight default to 1; malformed weights are ignored (the
// weighted-round-robin policy will lazily assign a random one instead).
func parseWeights(s string) map[string]int {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	out := make(map[string]int)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			out[part] = 1
			continue
		}
		w, err := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err != nil || w <= 0 {
			continue
		}
		out[strings.TrimSpace(kv[0])] = w
	}
	return out
}
