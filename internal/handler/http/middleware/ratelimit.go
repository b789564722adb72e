package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"medsum/internal/handler/http/respond"
)

var rateLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
	Name: "http_rate_limit_rejections_total",
	Help: "Requests rejected by the per-IP rate limiter",
})

// RateLimitConfig configures per-IP limiting of the summarization route.
type RateLimitConfig struct {
	Enabled           bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RequestsPerMinute float64       `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" envDefault:"30"`
	Burst             int           `env:"RATE_LIMIT_BURST" envDefault:"5"`
	IdleTTL           time.Duration `env:"RATE_LIMIT_IDLE_TTL" envDefault:"10m"`
	TrustProxy        bool          `env:"RATE_LIMIT_TRUST_PROXY" envDefault:"false"`
	TrustedProxies    []string      `env:"RATE_LIMIT_TRUSTED_PROXIES" envSeparator:","`
}

// LoadRateLimitConfig parses and validates RateLimitConfig from the environment.
func LoadRateLimitConfig() (*RateLimitConfig, error) {
	var cfg RateLimitConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse rate limit configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rate limit configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks configuration correctness.
func (c *RateLimitConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.RequestsPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS_PER_MINUTE must be positive")
	}
	if c.Burst <= 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be positive")
	}
	if c.IdleTTL <= 0 {
		return fmt.Errorf("RATE_LIMIT_IDLE_TTL must be positive")
	}
	if c.TrustProxy && len(c.TrustedProxies) == 0 {
		return fmt.Errorf("RATE_LIMIT_TRUST_PROXY is enabled but RATE_LIMIT_TRUSTED_PROXIES is empty")
	}
	return nil
}

// Extractor returns the IP extractor selected by the proxy settings.
func (c *RateLimitConfig) Extractor() (IPExtractor, error) {
	if !c.TrustProxy {
		return RemoteAddrExtractor{}, nil
	}
	return NewTrustedProxyExtractor(c.TrustedProxies)
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter keeps one token bucket per client IP.
type IPRateLimiter struct {
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	extractor IPExtractor
	now       func() time.Time
	logger    *slog.Logger

	mu       sync.Mutex
	visitors map[string]*visitor
}

// NewIPRateLimiter builds a limiter from cfg.
func NewIPRateLimiter(cfg RateLimitConfig, extractor IPExtractor, logger *slog.Logger) *IPRateLimiter {
	if extractor == nil {
		extractor = RemoteAddrExtractor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IPRateLimiter{
		limit:     rate.Limit(cfg.RequestsPerMinute / 60),
		burst:     cfg.Burst,
		idleTTL:   cfg.IdleTTL,
		extractor: extractor,
		now:       time.Now,
		logger:    logger,
		visitors:  make(map[string]*visitor),
	}
}

// Middleware rejects requests over the limit with 429 and Retry-After.
// Requests whose IP cannot be determined are let through.
func (l *IPRateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, err := l.extractor.ExtractIP(r)
			if err != nil {
				l.logger.Warn("rate limit: cannot determine client IP",
					slog.String("remote_addr", r.RemoteAddr),
					slog.Any("error", err))
				next.ServeHTTP(w, r)
				return
			}

			if wait := l.reserve(ip); wait > 0 {
				rateLimitRejections.Inc()
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				respond.JSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// reserve takes a token for ip and returns zero, or how long the caller
// must wait when none is available.
func (l *IPRateLimiter) reserve(ip string) time.Duration {
	now := l.now()

	l.mu.Lock()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	l.mu.Unlock()

	res := v.limiter.ReserveN(now, 1)
	if !res.OK() {
		return l.idleTTL
	}
	delay := res.DelayFrom(now)
	if delay > 0 {
		res.CancelAt(now)
	}
	return delay
}

// Sweep drops visitors idle for longer than the TTL and returns how many
// remain.
func (l *IPRateLimiter) Sweep() int {
	cutoff := l.now().Add(-l.idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, ip)
		}
	}
	return len(l.visitors)
}

// RunCleanup sweeps every interval until ctx is done.
func (l *IPRateLimiter) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			remaining := l.Sweep()
			l.logger.Debug("rate limit visitors swept", slog.Int("remaining", remaining))
		}
	}
}
