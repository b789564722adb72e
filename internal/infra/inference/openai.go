package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"medsum/internal/resilience/retry"
	"medsum/internal/usecase/summarize"
)

// deterministicSeed pins sampling on endpoints that honour seeds.
const deterministicSeed = 42

// OpenAILoader loads chat models from the OpenAI API or an
// OpenAI-compatible server.
type OpenAILoader struct {
	apiKey         string
	baseURL        string
	encoding       string
	maxInputTokens int
	guard          *guard
	logger         *slog.Logger
	newClient      func(apiKey string) *openai.Client
}

// OpenAIConfig configures an OpenAILoader.
type OpenAIConfig struct {
	APIKey   string
	BaseURL  string
	Encoding string
	// MaxInputTokens bounds a truncating call. Default: 16000
	MaxInputTokens int
	Guard          GuardConfig
}

// NewOpenAILoader creates a loader. The configured key is used unless a
// load request carries its own credential.
func NewOpenAILoader(cfg OpenAIConfig, metrics CallMetricsRecorder, logger *slog.Logger) *OpenAILoader {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Guard.Backend == "" {
		cfg.Guard.Backend = "openai"
	}
	if cfg.MaxInputTokens <= 0 {
		cfg.MaxInputTokens = 16000
	}
	l := &OpenAILoader{
		apiKey:         cfg.APIKey,
		baseURL:        cfg.BaseURL,
		encoding:       cfg.Encoding,
		maxInputTokens: cfg.MaxInputTokens,
		guard:          newGuard(cfg.Guard, metrics, logger),
		logger:         logger,
	}
	l.newClient = func(apiKey string) *openai.Client {
		clientCfg := openai.DefaultConfig(apiKey)
		if l.baseURL != "" {
			clientCfg.BaseURL = l.baseURL
		}
		return openai.NewClientWithConfig(clientCfg)
	}
	return l
}

// Load resolves the model on the API and prepares its tokenizer. The
// device is informational for hosted models.
func (l *OpenAILoader) Load(ctx context.Context, req summarize.LoadRequest) (summarize.Model, error) {
	apiKey := l.apiKey
	if req.Credential != "" {
		apiKey = req.Credential
	}
	client := l.newClient(apiKey)

	model, err := callOnce(ctx, l.guard, "load", 0, func(ctx context.Context) (openai.Model, error) {
		model, err := client.GetModel(ctx, req.ModelID)
		return model, openAIError(err)
	})
	if err != nil {
		return nil, err
	}

	tok, err := NewBPETokenizer(req.ModelID, l.encoding)
	if err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "openai model ready",
		slog.String("model_id", model.ID),
		slog.String("owned_by", model.OwnedBy),
		slog.String("tokenizer", tok.Name()))

	return &openAIModel{
		BPETokenizer:   tok,
		id:             req.ModelID,
		client:         client,
		guard:          l.guard,
		maxInputTokens: l.maxInputTokens,
		logger:         l.logger,
	}, nil
}

type openAIModel struct {
	*BPETokenizer
	id             string
	client         *openai.Client
	guard          *guard
	maxInputTokens int
	logger         *slog.Logger
}

func (m *openAIModel) Summarize(ctx context.Context, text string, opts summarize.Options) (string, error) {
	if opts.Truncate {
		var cut bool
		if text, cut = truncateTokens(m.BPETokenizer, text, m.maxInputTokens); cut {
			m.logger.WarnContext(ctx, "input truncated for openai model",
				slog.String("model_id", m.id),
				slog.Int("max_input_tokens", m.maxInputTokens))
		}
	}

	req := openai.ChatCompletionRequest{
		Model: m.id,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(text, opts)},
		},
		MaxTokens: completionBudget(opts),
	}
	if opts.Deterministic {
		// Temperature is omitted from the payload when zero.
		req.Temperature = math.SmallestNonzeroFloat32
		seed := deterministicSeed
		req.Seed = &seed
	}

	resp, err := call(ctx, m.guard, "summarize", 0, func(ctx context.Context) (openai.ChatCompletionResponse, error) {
		resp, err := m.client.CreateChatCompletion(ctx, req)
		return resp, openAIError(err)
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai summarize: empty response")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// openAIError exposes the HTTP status of API failures to the retry policy.
func openAIError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return fmt.Errorf("%w: %w", &retry.HTTPError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return fmt.Errorf("%w: %w", &retry.HTTPError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.HTTPStatus}, err)
	}
	return err
}
