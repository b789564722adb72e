package summarize

import (
	"context"

	"medsum/internal/domain/entity"
)

// Tokenizer converts text to the token ids of one specific model vocabulary and back.
// Chunk boundaries are computed on these ids, so a Tokenizer must belong to the
// same model that later summarizes the chunks.
type Tokenizer interface {
	// Tokenize encodes text without special tokens.
	Tokenize(text string) ([]int, error)

	// Detokenize decodes ids back to text, skipping special tokens.
	Detokenize(ids []int) (string, error)
}

// Options controls a single summarization call.
type Options struct {
	// MinLength and MaxLength bound the generated summary, in model tokens.
	MinLength int
	MaxLength int

	// Deterministic disables sampling so identical inputs give identical output.
	Deterministic bool

	// Truncate lets the backend cut input that exceeds its context window
	// instead of failing.
	Truncate bool
}

// Model is a loaded tokenizer plus inference callable bound to one device.
type Model interface {
	Tokenizer

	// Summarize returns one summary for text.
	Summarize(ctx context.Context, text string, opts Options) (string, error)
}

// LoadRequest identifies the model to load.
type LoadRequest struct {
	ModelID    string
	Device     entity.Device
	Credential string
}

// Loader loads models from a model source such as a hub identifier or a local path.
// Loading is expected to be expensive; callers go through ModelCache.
type Loader interface {
	Load(ctx context.Context, req LoadRequest) (Model, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, req LoadRequest) (Model, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, req LoadRequest) (Model, error) {
	return f(ctx, req)
}

// DeviceResolver turns a device preference into a concrete device available at runtime.
type DeviceResolver interface {
	Resolve(pref entity.DevicePreference) entity.Device
}

// DeviceResolverFunc adapts a function to the DeviceResolver interface.
type DeviceResolverFunc func(pref entity.DevicePreference) entity.Device

// Resolve calls f.
func (f DeviceResolverFunc) Resolve(pref entity.DevicePreference) entity.Device {
	return f(pref)
}
