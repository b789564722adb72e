// Package config loads process configuration for the summarization
// service from the environment and an optional YAML presets file.
package config

import (
	"fmt"
	"strings"
	"time"

	pkgconfig "medsum/pkg/config"
)

// Backend names an inference backend implementation.
type Backend string

const (
	// BackendRemote is a self-hosted seq2seq model server speaking the
	// /v1/models, /v1/tokenize, /v1/detokenize and /v1/summarize API.
	BackendRemote Backend = "remote"
	// BackendOpenAI uses the OpenAI chat completions API.
	BackendOpenAI Backend = "openai"
	// BackendClaude uses the Anthropic messages API.
	BackendClaude Backend = "claude"
	// BackendStub is the deterministic in-memory backend used for smoke
	// tests and local development.
	BackendStub Backend = "stub"
)

// Valid reports whether b is a known backend.
func (b Backend) Valid() bool {
	switch b {
	case BackendRemote, BackendOpenAI, BackendClaude, BackendStub:
		return true
	default:
		return false
	}
}

// InferenceConfig holds configuration for the inference backend.
type InferenceConfig struct {
	// Backend selects the implementation. Default: remote
	Backend Backend

	// BaseURL of the model server (remote) or an OpenAI-compatible
	// endpoint override (openai). Default: http://localhost:8000 for remote.
	BaseURL string

	// OpenAIAPIKey is required when Backend is openai.
	OpenAIAPIKey string

	// AnthropicAPIKey is required when Backend is claude.
	AnthropicAPIKey string

	// Encoding is the tiktoken encoding used to chunk text for hosted
	// LLM backends. Default: cl100k_base
	Encoding string

	// Timeouts configures per-call deadlines.
	Timeouts InferenceTimeouts

	// RateLimit bounds outbound calls to the backend.
	RateLimit RateLimitConfig

	// RetryMaxAttempts per backend call for transient failures. Default: 3
	RetryMaxAttempts int

	// CircuitBreaker for backend calls.
	CircuitBreaker CircuitBreakerConfig
}

// InferenceTimeouts holds per-call timeout settings.
type InferenceTimeouts struct {
	// Load bounds a model load, which may download weights. Default: 5m
	Load time.Duration
	// Call bounds a single tokenize or summarize call. Default: 120s
	Call time.Duration
}

// RateLimitConfig is a token bucket for outbound calls.
type RateLimitConfig struct {
	// RequestsPerSecond refill rate. Default: 5
	RequestsPerSecond float64
	// Burst size. Default: 10
	Burst int
}

// CircuitBreakerConfig for backend resilience.
type CircuitBreakerConfig struct {
	// MaxRequests in half-open state.
	MaxRequests uint32

	// Interval for clearing failure counts.
	Interval time.Duration

	// Timeout before transitioning from open to half-open.
	Timeout time.Duration

	// FailureThreshold ratio to trip circuit (0.0 to 1.0).
	FailureThreshold float64

	// MinRequests before calculating failure ratio.
	MinRequests uint32
}

// LoadInferenceConfig loads inference configuration from environment variables.
func LoadInferenceConfig() (*InferenceConfig, error) {
	config := &InferenceConfig{
		Backend:         Backend(strings.ToLower(pkgconfig.GetEnvString("INFERENCE_BACKEND", string(BackendRemote)))),
		BaseURL:         pkgconfig.GetEnvString("INFERENCE_BASE_URL", ""),
		OpenAIAPIKey:    pkgconfig.GetEnvString("OPENAI_API_KEY", ""),
		AnthropicAPIKey: pkgconfig.GetEnvString("ANTHROPIC_API_KEY", ""),
		Encoding:        pkgconfig.GetEnvString("INFERENCE_TOKENIZER_ENCODING", "cl100k_base"),
		Timeouts: InferenceTimeouts{
			Load: pkgconfig.GetEnvDuration("INFERENCE_LOAD_TIMEOUT", 5*time.Minute),
			Call: pkgconfig.GetEnvDuration("INFERENCE_TIMEOUT", 120*time.Second),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: pkgconfig.GetEnvFloat("INFERENCE_RATE_LIMIT_RPS", 5),
			Burst:             pkgconfig.GetEnvInt("INFERENCE_RATE_LIMIT_BURST", 10),
		},
		RetryMaxAttempts: pkgconfig.GetEnvInt("INFERENCE_RETRY_MAX_ATTEMPTS", 3),
		CircuitBreaker: CircuitBreakerConfig{
			MaxRequests:      uint32(pkgconfig.GetEnvInt("INFERENCE_CB_MAX_REQUESTS", 3)),
			Interval:         pkgconfig.GetEnvDuration("INFERENCE_CB_INTERVAL", 30*time.Second),
			Timeout:          pkgconfig.GetEnvDuration("INFERENCE_CB_TIMEOUT", 60*time.Second),
			FailureThreshold: pkgconfig.GetEnvFloat("INFERENCE_CB_FAILURE_THRESHOLD", 0.6),
			MinRequests:      uint32(pkgconfig.GetEnvInt("INFERENCE_CB_MIN_REQUESTS", 10)),
		},
	}

	if config.Backend == BackendRemote && config.BaseURL == "" {
		config.BaseURL = "http://localhost:8000"
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid inference configuration: %w", err)
	}

	return config, nil
}

// Validate checks configuration correctness.
func (c *InferenceConfig) Validate() error {
	if !c.Backend.Valid() {
		return fmt.Errorf("INFERENCE_BACKEND must be one of remote, openai, claude, stub (got %q)", c.Backend)
	}

	switch c.Backend {
	case BackendRemote:
		if c.BaseURL == "" {
			return fmt.Errorf("INFERENCE_BASE_URL is required for the remote backend")
		}
		if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
			return fmt.Errorf("INFERENCE_BASE_URL must be an http(s) URL")
		}
	case BackendOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai backend")
		}
	case BackendClaude:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for the claude backend")
		}
	}

	if err := pkgconfig.ValidatePositiveDuration(c.Timeouts.Load); err != nil {
		return fmt.Errorf("INFERENCE_LOAD_TIMEOUT: %w", err)
	}

	if err := pkgconfig.ValidatePositiveDuration(c.Timeouts.Call); err != nil {
		return fmt.Errorf("INFERENCE_TIMEOUT: %w", err)
	}

	if c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("INFERENCE_RATE_LIMIT_RPS must be positive")
	}

	if c.RateLimit.Burst <= 0 {
		return fmt.Errorf("INFERENCE_RATE_LIMIT_BURST must be positive")
	}

	if c.RetryMaxAttempts < 1 || c.RetryMaxAttempts > 10 {
		return fmt.Errorf("INFERENCE_RETRY_MAX_ATTEMPTS must be between 1 and 10")
	}

	if c.CircuitBreaker.MaxRequests == 0 {
		return fmt.Errorf("INFERENCE_CB_MAX_REQUESTS must be positive")
	}

	if c.CircuitBreaker.Interval <= 0 {
		return fmt.Errorf("INFERENCE_CB_INTERVAL must be positive")
	}

	if c.CircuitBreaker.Timeout <= 0 {
		return fmt.Errorf("INFERENCE_CB_TIMEOUT must be positive")
	}

	if c.CircuitBreaker.FailureThreshold <= 0 || c.CircuitBreaker.FailureThreshold > 1 {
		return fmt.Errorf("INFERENCE_CB_FAILURE_THRESHOLD must be in (0.0, 1.0]")
	}

	return nil
}
