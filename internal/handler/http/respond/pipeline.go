package respond

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"medsum/internal/domain/entity"
	"medsum/internal/usecase/summarize"
)

// ModelLoadBody is the response body for a failed model load.
type ModelLoadBody struct {
	Error   string `json:"error"`
	ModelID string `json:"model_id"`
}

// InferenceBody is the response body for a failed collaborator call.
// Chunk is -1 when the failure is not tied to one chunk.
type InferenceBody struct {
	Error string `json:"error"`
	Chunk int    `json:"chunk"`
	Pass  string `json:"pass"`
}

// PipelineError maps an error returned by the summarization pipeline to a
// status code and body:
//
//	*AppError                 its own code and message
//	*entity.ValidationError   400
//	empty model, bad device   400
//	deadline exceeded         504
//	canceled                  503
//	*summarize.ModelLoadError 502 {"error","model_id"}
//	*summarize.InferenceError 502 {"error","chunk","pass"}
//	anything else             500
func PipelineError(w http.ResponseWriter, logger *slog.Logger, err error) {
	if err == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}

	var (
		appErr   *AppError
		valErr   *entity.ValidationError
		loadErr  *summarize.ModelLoadError
		inferErr *summarize.InferenceError
	)

	switch {
	case errors.As(err, &appErr):
		AppErrorOr(w, appErr.Code, appErr)

	case errors.As(err, &valErr):
		JSON(w, http.StatusBadRequest, map[string]string{"error": valErr.Error()})

	case errors.Is(err, summarize.ErrEmptyModelID), errors.Is(err, entity.ErrInvalidDevice):
		JSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})

	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("summarization timed out", slog.String("error", SanitizeError(err)))
		JSON(w, http.StatusGatewayTimeout, map[string]string{"error": "summarization timed out"})

	case errors.Is(err, context.Canceled):
		logger.Info("summarization canceled", slog.String("error", SanitizeError(err)))
		JSON(w, http.StatusServiceUnavailable, map[string]string{"error": "request canceled"})

	case errors.As(err, &loadErr):
		msg := SanitizeError(loadErr)
		logger.Error("model load failed",
			slog.String("model_id", loadErr.ModelID),
			slog.String("error", msg))
		JSON(w, http.StatusBadGateway, ModelLoadBody{Error: msg, ModelID: loadErr.ModelID})

	case errors.As(err, &inferErr):
		msg := SanitizeError(inferErr)
		logger.Error("inference failed",
			slog.Int("chunk", inferErr.Chunk),
			slog.String("pass", string(inferErr.Pass)),
			slog.String("error", msg))
		JSON(w, http.StatusBadGateway, InferenceBody{Error: msg, Chunk: inferErr.Chunk, Pass: string(inferErr.Pass)})

	default:
		SafeError(w, http.StatusInternalServerError, err)
	}
}
