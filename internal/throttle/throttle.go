// Package throttle implements a per-source-IP admission safeguard that sits
// in front of the admission gate: a source exceeding its connection budget
// is rejected before a permit is ever requested. It is adapted from a
// hierarchical HTTP route throttler down to a single level keyed by
// source IP, Redis-backed when available with a local token-bucket
// fallback otherwise.
package throttle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"tcplb/internal/logging"
)

const redisKeyPrefix = "tcplb-throttle"

// Config controls the per-source budget.
type Config struct {
	PerMinute int           // connection attempts allowed per source per Window
	Window    time.Duration // defaults to one minute
}

func NewDefaultConfig() Config {
	return Config{PerMinute: 120, Window: time.Minute}
}

// maxTrackedSources bounds the local limiter map. Past this size the map is
// cleared rather than tracked per-key (LRU is overkill for a fallback path
// that only matters when Redis, the precise path, is already down).
const maxTrackedSources = 50_000

// Throttler decides whether a source IP may attempt a new connection.
// Constructed with a nil *redis.Client it runs local-only.
type Throttler struct {
	cfg    Config
	client *redis.Client
	log    logging.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func New(cfg Config, client *redis.Client, log logging.Logger) *Throttler {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Throttler{
		cfg:      cfg,
		client:   client,
		log:      log,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether sourceIP may open a new connection right now. When a
// Redis client is configured it is tried first (a windowed INCR+EXPIRE
// pipeline, shared across instances); any Redis error falls back to a
// local rate.Limiter for that source so a dead cache never blocks traffic.
func (t *Throttler) Allow(ctx context.Context, sourceIP string) bool {
	if t.client != nil {
		allowed, err := t.allowRedis(ctx, sourceIP)
		if err == nil {
			return allowed
		}
		t.log.Warn(logging.Throttle, "redis throttle unavailable, falling back to local limiter",
			logging.F("error", err.Error()), logging.F("source", sourceIP))
	}
	return t.allowLocal(sourceIP)
}

func (t *Throttler) allowRedis(ctx context.Context, sourceIP string) (bool, error) {
	window := int64(time.Now().Unix() / int64(t.cfg.Window.Seconds()))
	key := fmt.Sprintf("%s:%s:%d", redisKeyPrefix, sourceIP, window)

	pipe := t.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, t.cfg.Window*2)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("throttle: redis pipeline: %w", err)
	}

	count, err := incr.Result()
	if err != nil {
		return false, fmt.Errorf("throttle: read incr result: %w", err)
	}
	return count <= int64(t.cfg.PerMinute), nil
}

func (t *Throttler) allowLocal(sourceIP string) bool {
	t.mu.Lock()
	if len(t.limiters) >= maxTrackedSources {
		t.limiters = make(map[string]*rate.Limiter)
	}
	limiter, ok := t.limiters[sourceIP]
	if !ok {
		// Token bucket sized so a full Window's budget can burst, then
		// refills continuously at the configured per-Window rate.
		ratePerSec := rate.Limit(float64(t.cfg.PerMinute) / t.cfg.Window.Seconds())
		limiter = rate.NewLimiter(ratePerSec, t.cfg.PerMinute)
		t.limiters[sourceIP] = limiter
	}
	t.mu.Unlock()

	return limiter.Allow()
}
