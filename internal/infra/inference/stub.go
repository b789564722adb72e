package inference

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"medsum/internal/usecase/summarize"
)

// StubCall is one recorded Summarize call.
type StubCall struct {
	Text string
	Opts summarize.Options
}

// Stub is a deterministic in-memory model. Tokens are whitespace-separated
// words and every summary is "SUM:<input rune count>".
type Stub struct {
	// SummarizeFunc replaces the default summary when set.
	SummarizeFunc func(ctx context.Context, text string, opts summarize.Options) (string, error)
	// TokenizeErr is returned by Tokenize when set.
	TokenizeErr error

	mu    sync.Mutex
	vocab map[string]int
	words []string
	calls []StubCall
}

// NewStub returns an empty stub model.
func NewStub() *Stub {
	return &Stub{vocab: make(map[string]int)}
}

// Tokenize assigns a stable id to each distinct word.
func (s *Stub) Tokenize(text string) ([]int, error) {
	if s.TokenizeErr != nil {
		return nil, s.TokenizeErr
	}
	fields := strings.Fields(text)
	ids := make([]int, len(fields))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vocab == nil {
		s.vocab = make(map[string]int)
	}
	for i, w := range fields {
		id, ok := s.vocab[w]
		if !ok {
			id = len(s.words)
			s.vocab[w] = id
			s.words = append(s.words, w)
		}
		ids[i] = id
	}
	return ids, nil
}

// Detokenize joins the words for ids with single spaces.
func (s *Stub) Detokenize(ids []int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	words := make([]string, len(ids))
	for i, id := range ids {
		if id < 0 || id >= len(s.words) {
			return "", fmt.Errorf("stub: unknown token id %d", id)
		}
		words[i] = s.words[id]
	}
	return strings.Join(words, " "), nil
}

// Summarize records the call and returns the deterministic summary.
func (s *Stub) Summarize(ctx context.Context, text string, opts summarize.Options) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, StubCall{Text: text, Opts: opts})
	s.mu.Unlock()

	if s.SummarizeFunc != nil {
		return s.SummarizeFunc(ctx, text, opts)
	}
	return fmt.Sprintf("SUM:%d", utf8.RuneCountInString(text)), nil
}

// Calls returns a copy of the recorded Summarize calls.
func (s *Stub) Calls() []StubCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StubCall(nil), s.calls...)
}

// StubLoader hands out one shared Stub and counts loads.
type StubLoader struct {
	// Err fails every load when set.
	Err error

	mu       sync.Mutex
	model    *Stub
	requests []summarize.LoadRequest
}

// NewStubLoader returns a loader serving model, or a fresh Stub when nil.
func NewStubLoader(model *Stub) *StubLoader {
	if model == nil {
		model = NewStub()
	}
	return &StubLoader{model: model}
}

// Load implements summarize.Loader.
func (l *StubLoader) Load(_ context.Context, req summarize.LoadRequest) (summarize.Model, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests = append(l.requests, req)
	if l.Err != nil {
		return nil, l.Err
	}
	return l.model, nil
}

// Loads returns how many times Load was called.
func (l *StubLoader) Loads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.requests)
}

// Requests returns a copy of the recorded load requests.
func (l *StubLoader) Requests() []summarize.LoadRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]summarize.LoadRequest(nil), l.requests...)
}

// Model returns the shared stub.
func (l *StubLoader) Model() *Stub {
	return l.model
}
