// Package middleware holds the cross-cutting HTTP policies that sit in
// front of the summarization API: CORS for browser front-ends and per-IP
// rate limiting of expensive routes.
package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
)

// CORSConfig is the cross-origin policy.
type CORSConfig struct {
	// AllowedOrigins is an exact-match whitelist. Empty disables CORS.
	// Example: http://localhost:8501,https://notes.example.org
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	// AllowedMethods answered on preflight.
	AllowedMethods []string `env:"CORS_ALLOWED_METHODS" envSeparator:"," envDefault:"GET,POST,OPTIONS"`

	// AllowedHeaders answered on preflight.
	AllowedHeaders []string `env:"CORS_ALLOWED_HEADERS" envSeparator:"," envDefault:"Content-Type,Authorization,X-Request-ID"`

	// MaxAge is how long preflight results may be cached, in seconds.
	MaxAge int `env:"CORS_MAX_AGE" envDefault:"600"`
}

// LoadCORSConfig parses and validates CORSConfig from the environment.
func LoadCORSConfig() (*CORSConfig, error) {
	var cfg CORSConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse CORS configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid CORS configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks that every origin is a bare http(s) scheme and host.
func (c *CORSConfig) Validate() error {
	for _, origin := range c.AllowedOrigins {
		origin = strings.TrimSpace(origin)
		u, err := url.Parse(origin)
		if err != nil {
			return fmt.Errorf("invalid origin URL %q: %w", origin, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("origin must use http or https scheme: %s", origin)
		}
		if u.Host == "" {
			return fmt.Errorf("origin must include a host: %s", origin)
		}
		if u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
			return fmt.Errorf("origin must not include path, query or fragment: %s", origin)
		}
	}
	if c.MaxAge < 0 {
		return fmt.Errorf("CORS_MAX_AGE must not be negative")
	}
	return nil
}

// Enabled reports whether any origin is allowed.
func (c *CORSConfig) Enabled() bool {
	return len(c.AllowedOrigins) > 0
}

// IsAllowed reports whether origin is whitelisted. Comparison ignores case
// and a trailing slash.
func (c *CORSConfig) IsAllowed(origin string) bool {
	origin = normalizeOrigin(origin)
	if origin == "" {
		return false
	}
	for _, allowed := range c.AllowedOrigins {
		if normalizeOrigin(allowed) == origin {
			return true
		}
	}
	return false
}

func normalizeOrigin(origin string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(origin)), "/")
}

// CORS applies cfg. Requests without an Origin header pass through
// untouched. Disallowed origins get no CORS headers, so the browser blocks
// the response. Allowed preflight requests are answered with 204 and never
// reach next.
func CORS(cfg CORSConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")
	maxAge := strconv.Itoa(cfg.MaxAge)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Add("Vary", "Origin")
			if !cfg.IsAllowed(origin) {
				logger.Warn("CORS: origin not allowed",
					slog.String("origin", origin),
					slog.String("path", r.URL.Path),
					slog.String("method", r.Method))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition, X-Request-ID, X-Trace-Id")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.Header().Set("Access-Control-Allow-Methods", methods)
				w.Header().Set("Access-Control-Allow-Headers", headers)
				w.Header().Set("Access-Control-Max-Age", maxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
