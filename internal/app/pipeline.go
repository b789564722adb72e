// Package app assembles the summarization pipeline from configuration.
// The API server and the CLIs share it so they load models, pick devices
// and record metrics the same way.
package app

import (
	"fmt"
	"log/slog"

	"medsum/internal/config"
	"medsum/internal/infra/deid"
	"medsum/internal/infra/device"
	"medsum/internal/infra/inference"
	"medsum/internal/usecase/summarize"
)

// Pipeline is a ready-to-use summarization service plus the pieces the
// HTTP layer reports on.
type Pipeline struct {
	Backend  *inference.Backend
	Cache    *summarize.ModelCache
	Service  *summarize.Service
	Defaults *config.SummarizerConfig
	Presets  *config.Presets
}

// Load reads inference and summarizer configuration from the environment
// and builds the pipeline.
func Load(logger *slog.Logger) (*Pipeline, error) {
	infCfg, err := config.LoadInferenceConfig()
	if err != nil {
		return nil, err
	}
	sumCfg, err := config.LoadSummarizerConfig()
	if err != nil {
		return nil, err
	}
	return New(infCfg, sumCfg, logger)
}

// New builds the pipeline for the given configuration. Prometheus metrics
// are always recorded; they are only exposed where a /metrics route exists.
func New(infCfg *config.InferenceConfig, sumCfg *config.SummarizerConfig, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var presets *config.Presets
	if sumCfg.PresetsFile != "" {
		p, err := config.LoadPresets(sumCfg.PresetsFile)
		if err != nil {
			return nil, err
		}
		presets = p
		logger.Info("model presets loaded",
			slog.String("file", sumCfg.PresetsFile),
			slog.Any("presets", p.Names()))
	}

	backend, err := inference.New(infCfg,
		inference.WithCallMetrics(inference.NewPrometheusCallMetrics()),
		inference.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("create inference backend: %w", err)
	}

	resolver := device.NewResolver(probeFor(infCfg.Backend, backend), device.WithLogger(logger))

	metrics := summarize.NewPrometheusMetrics()
	cache := summarize.NewModelCache(backend, resolver,
		summarize.WithCacheMetrics(metrics),
		summarize.WithCacheLogger(logger))

	svc := summarize.NewService(cache,
		summarize.WithChunkConcurrency(sumCfg.ChunkConcurrency),
		summarize.WithDeidentifier(deid.Redact),
		summarize.WithMetrics(metrics),
		summarize.WithLogger(logger))

	return &Pipeline{
		Backend:  backend,
		Cache:    cache,
		Service:  svc,
		Defaults: sumCfg,
		Presets:  presets,
	}, nil
}

// probeFor returns the GPU probe for a backend. The model server reports
// its own devices, the stub runs in-process, and hosted APIs have none.
func probeFor(name config.Backend, backend *inference.Backend) device.Probe {
	switch name {
	case config.BackendRemote:
		return backend.CUDAAvailable
	case config.BackendStub:
		return device.Local
	default:
		return device.Never
	}
}
