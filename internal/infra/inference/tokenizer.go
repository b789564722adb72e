package inference

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// DefaultEncoding is used when a model has no registered tiktoken encoding.
const DefaultEncoding = "cl100k_base"

var bpeLoaderOnce sync.Once

// BPETokenizer tokenizes with a tiktoken byte-pair encoding. Rank files
// are embedded so no network access is needed at runtime.
type BPETokenizer struct {
	enc  *tiktoken.Tiktoken
	name string
}

// NewBPETokenizer returns the tokenizer registered for modelID, falling
// back to the named encoding.
func NewBPETokenizer(modelID, fallback string) (*BPETokenizer, error) {
	bpeLoaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})

	if enc, err := tiktoken.EncodingForModel(modelID); err == nil {
		return &BPETokenizer{enc: enc, name: modelID}, nil
	}

	if fallback == "" {
		fallback = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(fallback)
	if err != nil {
		return nil, fmt.Errorf("load encoding %q: %w", fallback, err)
	}
	return &BPETokenizer{enc: enc, name: fallback}, nil
}

// Name is the model or encoding the tokenizer was resolved from.
func (t *BPETokenizer) Name() string { return t.name }

// Tokenize encodes text treating special-token markers as plain text.
func (t *BPETokenizer) Tokenize(text string) ([]int, error) {
	return t.enc.Encode(text, nil, nil), nil
}

// Detokenize decodes ids. A window boundary can split a multi-byte
// character; the partial bytes are dropped.
func (t *BPETokenizer) Detokenize(ids []int) (string, error) {
	return strings.ToValidUTF8(t.enc.Decode(ids), ""), nil
}

// truncateTokens cuts text to at most limit tokens.
func truncateTokens(tok *BPETokenizer, text string, limit int) (string, bool) {
	if limit <= 0 {
		return text, false
	}
	ids, _ := tok.Tokenize(text)
	if len(ids) <= limit {
		return text, false
	}
	out, _ := tok.Detokenize(ids[:limit])
	return out, true
}
