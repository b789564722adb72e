package summarize

import (
	"errors"
	"fmt"

	"medsum/internal/domain/entity"
)

var (
	// ErrEmptyModelID is returned when no model identifier was given.
	ErrEmptyModelID = errors.New("model identifier cannot be empty")

	// ErrInvalidChunkSize is returned when the chunk window is not positive.
	ErrInvalidChunkSize = errors.New("max tokens must be positive")

	// ErrInvalidOverlap is returned when the chunk overlap is negative.
	ErrInvalidOverlap = errors.New("overlap cannot be negative")
)

// Pass names the pipeline stage an InferenceError happened in.
type Pass string

const (
	// PassChunking is the tokenize/detokenize step before any summary call.
	PassChunking Pass = "chunking"
	// PassFirst is the per-chunk summarization.
	PassFirst Pass = "first"
	// PassSecond is the condensation of the stitched partial summaries.
	PassSecond Pass = "second"
)

// ModelLoadError reports that a model could not be loaded.
// It is never retried by the pipeline.
type ModelLoadError struct {
	ModelID string
	Device  entity.Device
	Err     error
}

func (e *ModelLoadError) Error() string {
	if e.Device == "" {
		return fmt.Sprintf("load model %q: %v", e.ModelID, e.Err)
	}
	return fmt.Sprintf("load model %q on %s: %v", e.ModelID, e.Device, e.Err)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

// InferenceError reports a failing collaborator call.
// Chunk is the zero-based chunk index, or -1 when the failure is not tied to one chunk.
type InferenceError struct {
	Chunk int
	Pass  Pass
	Err   error
}

func (e *InferenceError) Error() string {
	if e.Chunk < 0 {
		return fmt.Sprintf("inference failed (%s pass): %v", e.Pass, e.Err)
	}
	return fmt.Sprintf("inference failed on chunk %d (%s pass): %v", e.Chunk, e.Pass, e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}
