package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"medsum/internal/resilience/retry"
	"medsum/internal/usecase/summarize"
)

// ClaudeConfig configures a ClaudeLoader.
type ClaudeConfig struct {
	APIKey string
	// Encoding approximates Claude's tokenizer for chunking.
	Encoding string
	// MaxInputTokens bounds a truncating call. Default: 100000
	MaxInputTokens int
	Guard          GuardConfig
	// ClientOptions are appended to the API key option, mainly for tests.
	ClientOptions []option.RequestOption
}

// ClaudeLoader loads Anthropic models. Loading is local: the model
// identifier is validated by the first messages call.
type ClaudeLoader struct {
	cfg    ClaudeConfig
	guard  *guard
	logger *slog.Logger
}

// NewClaudeLoader creates a loader.
func NewClaudeLoader(cfg ClaudeConfig, metrics CallMetricsRecorder, logger *slog.Logger) *ClaudeLoader {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Guard.Backend == "" {
		cfg.Guard.Backend = "claude"
	}
	if cfg.MaxInputTokens <= 0 {
		cfg.MaxInputTokens = 100000
	}
	return &ClaudeLoader{
		cfg:    cfg,
		guard:  newGuard(cfg.Guard, metrics, logger),
		logger: logger,
	}
}

// Load builds a client for the request credential (or the configured key).
func (l *ClaudeLoader) Load(ctx context.Context, req summarize.LoadRequest) (summarize.Model, error) {
	apiKey := l.cfg.APIKey
	if req.Credential != "" {
		apiKey = req.Credential
	}
	if apiKey == "" {
		return nil, fmt.Errorf("claude load: no API key")
	}

	tok, err := NewBPETokenizer(req.ModelID, l.cfg.Encoding)
	if err != nil {
		return nil, err
	}

	// The guard owns retries; the SDK would otherwise retry inside every attempt.
	opts := append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, l.cfg.ClientOptions...)

	l.logger.InfoContext(ctx, "claude model ready",
		slog.String("model_id", req.ModelID),
		slog.String("tokenizer", tok.Name()))

	return &claudeModel{
		BPETokenizer:   tok,
		id:             req.ModelID,
		client:         anthropic.NewClient(opts...),
		guard:          l.guard,
		maxInputTokens: l.cfg.MaxInputTokens,
		logger:         l.logger,
	}, nil
}

type claudeModel struct {
	*BPETokenizer
	id             string
	client         anthropic.Client
	guard          *guard
	maxInputTokens int
	logger         *slog.Logger
}

func (m *claudeModel) Summarize(ctx context.Context, text string, opts summarize.Options) (string, error) {
	if opts.Truncate {
		var cut bool
		if text, cut = truncateTokens(m.BPETokenizer, text, m.maxInputTokens); cut {
			m.logger.WarnContext(ctx, "input truncated for claude model",
				slog.String("model_id", m.id),
				slog.Int("max_input_tokens", m.maxInputTokens))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.id),
		MaxTokens: int64(completionBudget(opts)),
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt(text, opts))),
		},
	}
	if opts.Deterministic {
		params.Temperature = anthropic.Float(0)
	}

	message, err := call(ctx, m.guard, "summarize", 0, func(ctx context.Context) (*anthropic.Message, error) {
		msg, err := m.client.Messages.New(ctx, params)
		return msg, claudeError(err)
	})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("claude summarize: empty response")
	}

	return strings.TrimSpace(sb.String()), nil
}

// claudeError exposes the HTTP status of API failures to the retry policy.
func claudeError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %w", &retry.HTTPError{StatusCode: apiErr.StatusCode, Message: "anthropic api error"}, err)
	}
	return err
}
