// Package summary serves POST /summaries, the HTTP front-end of the
// summarization pipeline.
package summary

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"medsum/internal/config"
	"medsum/internal/domain/entity"
	"medsum/internal/handler/http/respond"
	"medsum/internal/observability/logging"
)

// DownloadName is the attachment filename of ?format=text responses.
const DownloadName = "summary.txt"

// DefaultMaxFileBytes bounds uploaded .txt files when no limit is configured.
const DefaultMaxFileBytes = 10 << 20

// ErrTextRequired is returned for blank input. The pipeline itself answers
// blank text with an empty summary; the API treats it as a client mistake.
var ErrTextRequired = errors.New("text is required")

// Summarizer runs the pipeline. *summarize.Service implements it.
type Summarizer interface {
	Run(ctx context.Context, req entity.SummaryRequest) (*entity.SummaryResult, error)
}

// Handler serves POST /summaries.
type Handler struct {
	Svc      Summarizer
	Defaults config.SummarizerConfig
	Presets  *config.Presets

	// MaxFileBytes bounds uploaded files. Zero uses DefaultMaxFileBytes.
	MaxFileBytes int64
}

// Register mounts the handler on mux. mws wrap only this route; the
// first one is outermost.
func Register(mux *http.ServeMux, h Handler, mws ...func(http.Handler) http.Handler) {
	var handler http.Handler = h
	for i := len(mws) - 1; i >= 0; i-- {
		handler = mws[i](handler)
	}
	mux.Handle("POST /summaries", handler)
}

// ServeHTTP decodes the request, fills in defaults and presets, runs the
// pipeline and writes JSON, or a summary.txt download for ?format=text.
func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())

	body, enc, err := decode(r, h.maxFileBytes())
	if err != nil {
		respond.PipelineError(w, logger, err)
		return
	}

	req, err := h.resolve(body, bearerToken(r))
	if err != nil {
		respond.PipelineError(w, logger, err)
		return
	}

	logger.InfoContext(r.Context(), "summary requested",
		slog.String("model_id", req.ModelID),
		slog.String("device_preference", string(req.Device)),
		slog.Int("min_length", req.MinLength),
		slog.Int("max_length", req.MaxLength),
		slog.Bool("second_pass", req.SecondPass),
		slog.Bool("deidentify", req.Deidentify),
		slog.Bool("credential", req.Credential != ""),
		slog.String("encoding", string(enc)))

	res, err := h.Svc.Run(r.Context(), req)
	if err != nil {
		respond.PipelineError(w, logger, err)
		return
	}

	if strings.EqualFold(r.URL.Query().Get("format"), "text") {
		respond.Text(w, http.StatusOK, res.Summary, DownloadName)
		return
	}

	respond.JSON(w, http.StatusOK, Response{
		Summary:    res.Summary,
		ModelID:    res.ModelID,
		Device:     string(res.Device),
		Chunks:     res.Chunks,
		SecondPass: res.SecondPass,
		DurationMS: durationMS(res.Duration),
		Encoding:   string(enc),
	})
}

// resolve merges body with presets and configured defaults.
// Precedence: explicit request field, then preset, then default.
func (h Handler) resolve(body Request, bearer string) (entity.SummaryRequest, error) {
	if strings.TrimSpace(body.Text) == "" {
		return entity.SummaryRequest{}, respond.NewAppError(http.StatusBadRequest, ErrTextRequired.Error(), nil)
	}

	req := entity.SummaryRequest{
		Text:       body.Text,
		ModelID:    strings.TrimSpace(body.ModelID),
		MinLength:  h.Defaults.MinLength,
		MaxLength:  h.Defaults.MaxLength,
		SecondPass: h.Defaults.SecondPass,
		Deidentify: body.Deidentify,
		Credential: strings.TrimSpace(body.Credential),
	}
	if req.ModelID == "" {
		req.ModelID = h.Defaults.ModelSource
	}

	preset, ok, err := h.Presets.Lookup(req.ModelID)
	if err != nil {
		return entity.SummaryRequest{}, respond.NewAppError(http.StatusBadRequest, err.Error(), err)
	}
	if ok {
		req.ModelID = preset.ModelID
		if preset.MinLength > 0 {
			req.MinLength = preset.MinLength
		}
		if preset.MaxLength > 0 {
			req.MaxLength = preset.MaxLength
		}
		if preset.SecondPass != nil {
			req.SecondPass = *preset.SecondPass
		}
	}

	if !h.Defaults.ModelAllowed(req.ModelID) {
		return entity.SummaryRequest{}, respond.NewAppError(http.StatusForbidden, "model not allowed: "+req.ModelID, nil)
	}

	if body.MinLength != nil {
		req.MinLength = *body.MinLength
	}
	if body.MaxLength != nil {
		req.MaxLength = *body.MaxLength
	}
	if body.SecondPass != nil {
		req.SecondPass = *body.SecondPass
	}

	useGPU := h.Defaults.UseGPU
	if body.UseGPU != nil {
		useGPU = *body.UseGPU
	}
	req.Device = entity.PreferenceFromGPUFlag(useGPU)
	if body.Device != "" {
		pref, err := entity.ParseDevicePreference(body.Device)
		if err != nil {
			return entity.SummaryRequest{}, &entity.ValidationError{Field: "device", Message: "must be prefer-gpu or cpu-only"}
		}
		req.Device = pref
	}

	if req.Credential == "" {
		req.Credential = bearer
	}
	return req, nil
}

func (h Handler) maxFileBytes() int64 {
	if h.MaxFileBytes > 0 {
		return h.MaxFileBytes
	}
	return DefaultMaxFileBytes
}

// bearerToken returns the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
