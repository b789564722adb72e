package config

import (
	"fmt"
	"strings"

	pkgconfig "medsum/pkg/config"
)

// DefaultModelSource is the checkpoint used when MODEL_SOURCE is unset.
const DefaultModelSource = "facebook/bart-large-cnn"

// SummarizerConfig holds request defaults for the summarization pipeline.
type SummarizerConfig struct {
	// ModelSource is the default model identifier. Default: facebook/bart-large-cnn
	ModelSource string

	// MinLength default for requests that omit it. Default: 40
	MinLength int

	// MaxLength default for requests that omit it. Default: 150
	MaxLength int

	// SecondPass default. Default: true
	SecondPass bool

	// UseGPU default device preference. Default: false
	UseGPU bool

	// ChunkConcurrency bounds parallel chunk calls. 1 keeps calls sequential.
	ChunkConcurrency int

	// PresetsFile is an optional YAML file of named model presets.
	PresetsFile string

	// AllowedModels restricts the model identifiers callers may request.
	// Empty allows any identifier.
	AllowedModels []string
}

// ModelAllowed reports whether id may be loaded. The default model is
// always allowed.
func (c *SummarizerConfig) ModelAllowed(id string) bool {
	if len(c.AllowedModels) == 0 || id == c.ModelSource {
		return true
	}
	for _, allowed := range c.AllowedModels {
		if allowed == id {
			return true
		}
	}
	return false
}

// LoadSummarizerConfig loads summarizer defaults from environment variables.
func LoadSummarizerConfig() (*SummarizerConfig, error) {
	config := &SummarizerConfig{
		ModelSource:      strings.TrimSpace(pkgconfig.GetEnvString("MODEL_SOURCE", DefaultModelSource)),
		MinLength:        pkgconfig.GetEnvInt("SUMMARIZER_MIN_LENGTH", 40),
		MaxLength:        pkgconfig.GetEnvInt("SUMMARIZER_MAX_LENGTH", 150),
		SecondPass:       pkgconfig.GetEnvBool("SUMMARIZER_SECOND_PASS", true),
		UseGPU:           pkgconfig.GetEnvBool("SUMMARIZER_USE_GPU", false),
		ChunkConcurrency: pkgconfig.GetEnvInt("SUMMARIZER_CHUNK_CONCURRENCY", 1),
		PresetsFile:      pkgconfig.GetEnvString("MEDSUM_CONFIG_FILE", ""),
		AllowedModels:    pkgconfig.GetEnvStringList("SUMMARIZER_ALLOWED_MODELS", nil),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid summarizer configuration: %w", err)
	}

	return config, nil
}

// Validate checks configuration correctness.
func (c *SummarizerConfig) Validate() error {
	if c.ModelSource == "" {
		return fmt.Errorf("MODEL_SOURCE cannot be empty")
	}

	if c.MinLength <= 0 {
		return fmt.Errorf("SUMMARIZER_MIN_LENGTH must be positive")
	}

	if c.MaxLength < c.MinLength {
		return fmt.Errorf("SUMMARIZER_MAX_LENGTH must be >= SUMMARIZER_MIN_LENGTH")
	}

	if c.ChunkConcurrency < 1 || c.ChunkConcurrency > 32 {
		return fmt.Errorf("SUMMARIZER_CHUNK_CONCURRENCY must be between 1 and 32")
	}

	return nil
}
