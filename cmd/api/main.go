// Package main runs the summarization HTTP API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"medsum/internal/app"
	"medsum/internal/config"
	hhttp "medsum/internal/handler/http"
	"medsum/internal/handler/http/middleware"
	"medsum/internal/handler/http/requestid"
	"medsum/internal/handler/http/summary"
	"medsum/internal/observability/logging"
	"medsum/internal/observability/tracing"
	pkgconfig "medsum/pkg/config"
)

func main() {
	logger := initLogger()

	serverCfg, err := config.LoadServerConfig()
	if err != nil {
		logger.Error("failed to load server configuration", slog.Any("error", err))
		os.Exit(1)
	}

	shutdownTracing := tracing.Init(pkgconfig.GetEnvFloat("TRACING_SAMPLE_RATIO", 1.0))

	pipeline, err := app.Load(logger)
	if err != nil {
		logger.Error("failed to build summarization pipeline", slog.Any("error", err))
		os.Exit(1)
	}

	components := setupServer(logger, serverCfg, pipeline)
	runServer(logger, serverCfg, components, shutdownTracing)
}

// initLogger initializes the JSON logger and makes it the default.
func initLogger() *slog.Logger {
	logger := logging.NewLogger()
	slog.SetDefault(logger)
	return logger
}

// ServerComponents holds what the server needs to run and clean up.
type ServerComponents struct {
	Handler     http.Handler
	RateLimiter *middleware.IPRateLimiter
	SweepEvery  time.Duration
}

// setupServer registers routes and wraps them in the middleware chain.
func setupServer(logger *slog.Logger, cfg *config.ServerConfig, p *app.Pipeline) *ServerComponents {
	rateCfg, err := middleware.LoadRateLimitConfig()
	if err != nil {
		logger.Error("failed to load rate limit configuration", slog.Any("error", err))
		os.Exit(1)
	}

	var (
		limiter  *middleware.IPRateLimiter
		routeMWs []func(http.Handler) http.Handler
	)
	if rateCfg.Enabled {
		extractor, err := rateCfg.Extractor()
		if err != nil {
			logger.Error("failed to configure trusted proxies", slog.Any("error", err))
			os.Exit(1)
		}
		limiter = middleware.NewIPRateLimiter(*rateCfg, extractor, logger)
		routeMWs = append(routeMWs, limiter.Middleware())
		logger.Info("rate limiting initialized",
			slog.Float64("requests_per_minute", rateCfg.RequestsPerMinute),
			slog.Int("burst", rateCfg.Burst),
			slog.Bool("trust_proxy", rateCfg.TrustProxy))
	} else {
		logger.Warn("rate limiting is DISABLED - not recommended for production")
	}

	mux := http.NewServeMux()
	summary.Register(mux, summary.Handler{
		Svc:          p.Service,
		Defaults:     *p.Defaults,
		Presets:      p.Presets,
		MaxFileBytes: cfg.MaxBodyBytes,
	}, routeMWs...)
	mux.Handle("GET /health", &hhttp.HealthHandler{Version: cfg.Version, Models: p.Cache, Backend: p.Backend})
	mux.Handle("GET /ready", &hhttp.ReadyHandler{Backend: p.Backend})
	mux.Handle("GET /live", &hhttp.LiveHandler{})
	mux.Handle("GET /metrics", hhttp.MetricsHandler())

	corsCfg, err := middleware.LoadCORSConfig()
	if err != nil {
		logger.Error("failed to load CORS configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if corsCfg.Enabled() {
		logger.Info("CORS enabled", slog.Any("allowed_origins", corsCfg.AllowedOrigins))
	}

	// CORS → Request ID → Recovery → Logging → Input validation → Body limit
	// → Request timeout → Metrics → Tracing → routes
	handler := hhttp.Chain(tracing.Middleware(mux),
		optional(corsCfg.Enabled(), middleware.CORS(*corsCfg, logger)),
		requestid.Middleware,
		hhttp.Recover(logger),
		hhttp.Logging(logger),
		hhttp.InputValidation(),
		hhttp.LimitRequestBody(cfg.MaxBodyBytes+multipartOverhead),
		hhttp.RequestTimeout(cfg.RequestTimeout),
		hhttp.MetricsMiddleware(mux),
	)

	return &ServerComponents{
		Handler:     handler,
		RateLimiter: limiter,
		SweepEvery:  time.Minute,
	}
}

// multipartOverhead leaves room for form fields and part headers next to
// a file of the maximum size.
const multipartOverhead = 64 << 10

func optional(enabled bool, mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	if enabled {
		return mw
	}
	return func(next http.Handler) http.Handler { return next }
}

// runServer starts the HTTP server and handles graceful shutdown.
func runServer(logger *slog.Logger, cfg *config.ServerConfig, components *ServerComponents, shutdownTracing func(context.Context) error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if components.RateLimiter != nil {
		go components.RateLimiter.RunCleanup(ctx, components.SweepEvery)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           components.Handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		logger.Info("server starting",
			slog.String("addr", cfg.Addr),
			slog.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", slog.Any("error", err))
	}
	cancel()

	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracer shutdown failed", slog.Any("error", err))
	}
	logger.Info("server stopped")
}
