// Package respond writes JSON and plain-text HTTP responses and maps
// pipeline errors to status codes without leaking credentials.
package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// JSON writes v as JSON with the given status code.
func JSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			// Headers are already sent.
			slog.Default().Error("failed to encode JSON response",
				slog.Int("status_code", code),
				slog.Any("error", err))
		}
	}
}

// Text writes body as UTF-8 plain text. A non-empty filename marks the
// response as a download.
func Text(w http.ResponseWriter, code int, body, filename string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	}
	w.WriteHeader(code)
	if _, err := w.Write([]byte(body)); err != nil {
		slog.Default().Error("failed to write text response",
			slog.Int("status_code", code),
			slog.Any("error", err))
	}
}

// Error writes {"error": err.Error()} with the given status code.
func Error(w http.ResponseWriter, code int, err error) {
	JSON(w, code, map[string]string{"error": err.Error()})
}

// safeFragments mark messages that are meant for the client.
var safeFragments = []string{
	"required",
	"invalid",
	"not found",
	"not allowed",
	"must be",
	"cannot be",
	"too large",
	"unsupported",
}

// SafeError returns err's message when it looks like a client-facing
// validation message and code is below 500. Anything else is logged with
// secrets masked and answered with "internal server error".
func SafeError(w http.ResponseWriter, code int, err error) {
	if err == nil {
		return
	}

	msg := err.Error()
	if code < 500 && isSafe(msg) {
		JSON(w, code, map[string]string{"error": msg})
		return
	}

	slog.Default().Error("internal server error",
		slog.String("status", http.StatusText(code)),
		slog.Int("code", code),
		slog.String("error", SanitizeError(err)))
	JSON(w, code, map[string]string{"error": "internal server error"})
}

func isSafe(msg string) bool {
	lower := strings.ToLower(msg)
	for _, f := range safeFragments {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}

// AppError carries a client-facing message next to the internal cause.
type AppError struct {
	UserMsg string
	Err     error
	Code    int
}

// Error returns the internal message when present.
func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.UserMsg
}

// Unwrap returns the internal cause.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates an AppError.
func NewAppError(code int, userMsg string, err error) *AppError {
	return &AppError{Code: code, UserMsg: userMsg, Err: err}
}

// AppErrorOr writes an *AppError in err's chain with its own code and
// message, and falls back to SafeError with code otherwise.
func AppErrorOr(w http.ResponseWriter, code int, err error) {
	if err == nil {
		return
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Err != nil {
			slog.Default().Warn("request rejected",
				slog.Int("code", appErr.Code),
				slog.String("user_message", appErr.UserMsg),
				slog.String("error", SanitizeError(appErr.Err)))
		}
		JSON(w, appErr.Code, map[string]string{"error": appErr.UserMsg})
		return
	}

	SafeError(w, code, err)
}
