package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"medsum/internal/domain/entity"
	"medsum/internal/resilience/retry"
	"medsum/internal/usecase/summarize"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 4 << 10

// RemoteConfig configures a RemoteLoader.
type RemoteConfig struct {
	BaseURL string
	// LoadTimeout bounds a model load, which may download weights.
	LoadTimeout time.Duration
	Guard       GuardConfig
	HTTPClient  *http.Client
}

// RemoteLoader talks to a self-hosted seq2seq model server that owns the
// checkpoints and the accelerator. The server exposes:
//
//	GET  /v1/devices         {"cuda": true}
//	POST /v1/models/load     {"model_id", "device"}             -> {"model_id", "device"}
//	POST /v1/tokenize        {"model_id", "device", "text", "add_special_tokens"}   -> {"ids"}
//	POST /v1/detokenize      {"model_id", "device", "ids", "skip_special_tokens"}   -> {"text"}
//	POST /v1/summarize       {"model_id", "device", "text", "min_length", "max_length",
//	                          "do_sample", "truncation"}        -> {"summary_text"}
//
// Errors are returned as {"error": "..."} with a non-2xx status. A load
// credential is sent as a bearer token on the load call only.
type RemoteLoader struct {
	baseURL     string
	client      *http.Client
	loadTimeout time.Duration
	guard       *guard
	logger      *slog.Logger
}

// NewRemoteLoader creates a loader for the server at cfg.BaseURL.
func NewRemoteLoader(cfg RemoteConfig, metrics CallMetricsRecorder, logger *slog.Logger) *RemoteLoader {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Guard.Backend == "" {
		cfg.Guard.Backend = "remote"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &RemoteLoader{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		client:      client,
		loadTimeout: cfg.LoadTimeout,
		guard:       newGuard(cfg.Guard, metrics, logger),
		logger:      logger,
	}
}

type devicesResponse struct {
	CUDA bool `json:"cuda"`
}

// CUDAAvailable asks the server whether it has a usable GPU.
func (l *RemoteLoader) CUDAAvailable(ctx context.Context) (bool, error) {
	resp, err := call(ctx, l.guard, "devices", 0, func(ctx context.Context) (devicesResponse, error) {
		var out devicesResponse
		err := l.do(ctx, http.MethodGet, "/v1/devices", nil, "", &out)
		return out, err
	})
	if err != nil {
		return false, err
	}
	return resp.CUDA, nil
}

type loadRequest struct {
	ModelID string `json:"model_id"`
	Device  string `json:"device"`
}

type loadResponse struct {
	ModelID string `json:"model_id"`
	Device  string `json:"device"`
}

// Load asks the server to load the model on the requested device.
func (l *RemoteLoader) Load(ctx context.Context, req summarize.LoadRequest) (summarize.Model, error) {
	body := loadRequest{ModelID: req.ModelID, Device: string(req.Device)}
	resp, err := callOnce(ctx, l.guard, "load", l.loadTimeout, func(ctx context.Context) (loadResponse, error) {
		var out loadResponse
		err := l.do(ctx, http.MethodPost, "/v1/models/load", body, req.Credential, &out)
		return out, err
	})
	if err != nil {
		return nil, err
	}

	device := req.Device
	if resp.Device != "" && resp.Device != string(req.Device) {
		l.logger.WarnContext(ctx, "model server placed model on a different device",
			slog.String("model_id", req.ModelID),
			slog.String("requested", string(req.Device)),
			slog.String("actual", resp.Device))
	}

	return &remoteModel{loader: l, modelID: req.ModelID, device: device}, nil
}

type remoteModel struct {
	loader  *RemoteLoader
	modelID string
	device  entity.Device
}

type tokenizeRequest struct {
	ModelID          string `json:"model_id"`
	Device           string `json:"device"`
	Text             string `json:"text"`
	AddSpecialTokens bool   `json:"add_special_tokens"`
}

type tokenizeResponse struct {
	IDs []int `json:"ids"`
}

func (m *remoteModel) Tokenize(text string) ([]int, error) {
	body := tokenizeRequest{ModelID: m.modelID, Device: string(m.device), Text: text}
	resp, err := call(context.Background(), m.loader.guard, "tokenize", 0, func(ctx context.Context) (tokenizeResponse, error) {
		var out tokenizeResponse
		err := m.loader.do(ctx, http.MethodPost, "/v1/tokenize", body, "", &out)
		return out, err
	})
	if err != nil {
		return nil, err
	}
	return resp.IDs, nil
}

type detokenizeRequest struct {
	ModelID           string `json:"model_id"`
	Device            string `json:"device"`
	IDs               []int  `json:"ids"`
	SkipSpecialTokens bool   `json:"skip_special_tokens"`
}

type detokenizeResponse struct {
	Text string `json:"text"`
}

func (m *remoteModel) Detokenize(ids []int) (string, error) {
	body := detokenizeRequest{ModelID: m.modelID, Device: string(m.device), IDs: ids, SkipSpecialTokens: true}
	resp, err := call(context.Background(), m.loader.guard, "detokenize", 0, func(ctx context.Context) (detokenizeResponse, error) {
		var out detokenizeResponse
		err := m.loader.do(ctx, http.MethodPost, "/v1/detokenize", body, "", &out)
		return out, err
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

type summarizeRequest struct {
	ModelID    string `json:"model_id"`
	Device     string `json:"device"`
	Text       string `json:"text"`
	MinLength  int    `json:"min_length"`
	MaxLength  int    `json:"max_length"`
	DoSample   bool   `json:"do_sample"`
	Truncation bool   `json:"truncation"`
}

type summarizeResponse struct {
	SummaryText string `json:"summary_text"`
}

func (m *remoteModel) Summarize(ctx context.Context, text string, opts summarize.Options) (string, error) {
	body := summarizeRequest{
		ModelID:    m.modelID,
		Device:     string(m.device),
		Text:       text,
		MinLength:  opts.MinLength,
		MaxLength:  opts.MaxLength,
		DoSample:   !opts.Deterministic,
		Truncation: opts.Truncate,
	}
	resp, err := call(ctx, m.loader.guard, "summarize", 0, func(ctx context.Context) (summarizeResponse, error) {
		var out summarizeResponse
		err := m.loader.do(ctx, http.MethodPost, "/v1/summarize", body, "", &out)
		return out, err
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.SummaryText), nil
}

type errorResponse struct {
	Error string `json:"error"`
}

// do sends one JSON request. Non-2xx responses become *retry.HTTPError.
func (l *RemoteLoader) do(ctx context.Context, method, path string, in any, bearer string, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, l.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(raw))
		var er errorResponse
		if json.Unmarshal(raw, &er) == nil && er.Error != "" {
			msg = er.Error
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &retry.HTTPError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
