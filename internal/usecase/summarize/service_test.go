package summarize_test

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"medsum/internal/domain/entity"
	"medsum/internal/infra/deid"
	"medsum/internal/infra/inference"
	"medsum/internal/usecase/summarize"
)

var resolver = summarize.DeviceResolverFunc(func(pref entity.DevicePreference) entity.Device {
	if pref == entity.DevicePreferGPU {
		return entity.DeviceCUDA
	}
	return entity.DeviceCPU
})

type recorder struct {
	mu         sync.Mutex
	requests   map[string]int
	chunks     []int
	secondPass int
	hits       int
	misses     int
}

func (r *recorder) RecordRequest(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.requests == nil {
		r.requests = make(map[string]int)
	}
	r.requests[status]++
}

func (r *recorder) RecordDuration(time.Duration) {}

func (r *recorder) RecordChunks(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, n)
}

func (r *recorder) RecordSecondPass() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.secondPass++
}

func (r *recorder) RecordCacheHit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits++
}

func (r *recorder) RecordCacheMiss() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.misses++
}

func (r *recorder) RecordModelLoad(time.Duration, bool) {}

func newService(t *testing.T, opts ...summarize.Option) (*summarize.Service, *inference.StubLoader) {
	t.Helper()
	loader := inference.NewStubLoader(nil)
	cache := summarize.NewModelCache(loader, resolver)
	return summarize.NewService(cache, opts...), loader
}

func request(text string) entity.SummaryRequest {
	return entity.SummaryRequest{
		Text:       text,
		ModelID:    "test-model",
		Device:     entity.DeviceCPUOnly,
		MinLength:  10,
		MaxLength:  50,
		SecondPass: true,
	}
}

func repeatWord(word string, n int) string {
	return strings.TrimSpace(strings.Repeat(word+" ", n))
}

func numberedWords(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(words, " ")
}

func callTexts(calls []inference.StubCall) []string {
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Text
	}
	return out
}

func TestService_BlankInput(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t  \n"} {
		t.Run(strconv.Quote(text), func(t *testing.T) {
			metrics := &recorder{}
			svc, loader := newService(t, summarize.WithMetrics(metrics))

			got, err := svc.Summarize(context.Background(), request(text))
			require.NoError(t, err)
			assert.Empty(t, got)
			assert.Zero(t, loader.Loads())
			assert.Empty(t, loader.Model().Calls())
			assert.Equal(t, 1, metrics.requests["empty"])
		})
	}
}

func TestService_BlankInputSkipsValidation(t *testing.T) {
	svc, loader := newService(t)

	req := request("  ")
	req.MinLength = 0
	req.ModelID = ""

	got, err := svc.Summarize(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, loader.Loads())
}

func TestService_SingleChunk(t *testing.T) {
	svc, loader := newService(t)
	text := "Patient admitted with chest pain. Troponin negative. Discharged home."

	res, err := svc.Run(context.Background(), request(text))
	require.NoError(t, err)

	assert.Equal(t, fmt.Sprintf("SUM:%d", len(text)), res.Summary)
	assert.Equal(t, 1, res.Chunks)
	assert.False(t, res.SecondPass)
	assert.Equal(t, "test-model", res.ModelID)
	assert.Equal(t, entity.DeviceCPU, res.Device)

	want := []inference.StubCall{{
		Text: text,
		Opts: summarize.Options{MinLength: 10, MaxLength: 50, Deterministic: true, Truncate: true},
	}}
	if diff := cmp.Diff(want, loader.Model().Calls()); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestService_Deterministic(t *testing.T) {
	svc, loader := newService(t)
	req := request(numberedWords(2500))

	first, err := svc.Summarize(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Summarize(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, loader.Loads())
}

func TestService_LongInputStitchesChunkSummaries(t *testing.T) {
	metrics := &recorder{}
	svc, loader := newService(t, summarize.WithMetrics(metrics))

	res, err := svc.Run(context.Background(), request(repeatWord("A", 4000)))
	require.NoError(t, err)

	full := fmt.Sprintf("SUM:%d", 2*summarize.DefaultMaxTokens-1)
	last := fmt.Sprintf("SUM:%d", 2*600-1)
	assert.Equal(t, strings.Join([]string{full, full, full, full, last}, " "), res.Summary)
	assert.Equal(t, 5, res.Chunks)
	assert.False(t, res.SecondPass)
	assert.Len(t, loader.Model().Calls(), 5)
	assert.Equal(t, []int{5}, metrics.chunks)
	assert.Equal(t, 1, metrics.requests["success"])
}

func TestService_ChunkOrder(t *testing.T) {
	firstWord := func(_ context.Context, text string, _ summarize.Options) (string, error) {
		return "  " + strings.Fields(text)[0] + "\n", nil
	}

	for _, concurrency := range []int{1, 4} {
		t.Run(fmt.Sprintf("concurrency=%d", concurrency), func(t *testing.T) {
			svc, loader := newService(t, summarize.WithChunkConcurrency(concurrency))
			stub := loader.Model()
			stub.SummarizeFunc = func(ctx context.Context, text string, opts summarize.Options) (string, error) {
				// Earlier chunks finish last.
				n, _ := strconv.Atoi(strings.TrimPrefix(strings.Fields(text)[0], "w"))
				time.Sleep(time.Duration(3000-n) * time.Microsecond)
				return firstWord(ctx, text, opts)
			}

			got, err := svc.Summarize(context.Background(), request(numberedWords(3000)))
			require.NoError(t, err)
			assert.Equal(t, "w0 w850 w1700 w2550", got)
		})
	}
}

func TestService_SecondPassThreshold(t *testing.T) {
	tests := []struct {
		name       string
		words      int
		secondPass bool
		wantSecond bool
	}{
		{name: "equal to twice max length", words: 10, secondPass: true, wantSecond: false},
		{name: "one word over", words: 11, secondPass: true, wantSecond: true},
		{name: "disabled", words: 40, secondPass: false, wantSecond: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := &recorder{}
			svc, loader := newService(t, summarize.WithMetrics(metrics))
			stub := loader.Model()
			partial := repeatWord("finding", tt.words)
			stub.SummarizeFunc = func(_ context.Context, _ string, opts summarize.Options) (string, error) {
				if opts.Truncate {
					return partial, nil
				}
				return "condensed", nil
			}

			req := request("Short note about a stable patient.")
			req.MinLength = 1
			req.MaxLength = 5
			req.SecondPass = tt.secondPass

			res, err := svc.Run(context.Background(), req)
			require.NoError(t, err)

			calls := stub.Calls()
			assert.Equal(t, tt.wantSecond, res.SecondPass)
			if !tt.wantSecond {
				assert.Equal(t, partial, res.Summary)
				assert.Len(t, calls, 1)
				assert.Zero(t, metrics.secondPass)
				return
			}

			assert.Equal(t, "condensed", res.Summary)
			require.Len(t, calls, 2)
			assert.Equal(t, partial, calls[1].Text)
			assert.Equal(t, summarize.Options{MinLength: 1, MaxLength: 5, Deterministic: true}, calls[1].Opts)
			assert.Equal(t, 1, metrics.secondPass)
		})
	}
}

func TestService_SecondPassOverStitchedChunks(t *testing.T) {
	svc, loader := newService(t)
	stub := loader.Model()
	stub.SummarizeFunc = func(_ context.Context, text string, opts summarize.Options) (string, error) {
		if !opts.Truncate {
			return "final", nil
		}
		return repeatWord(strings.Fields(text)[0], 30), nil
	}

	req := request(numberedWords(2000))
	req.MaxLength = 40

	res, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "final", res.Summary)
	assert.True(t, res.SecondPass)
	assert.Equal(t, 3, res.Chunks)

	calls := callTexts(stub.Calls())
	require.Len(t, calls, 4)
	want := strings.Join([]string{repeatWord("w0", 30), repeatWord("w850", 30), repeatWord("w1700", 30)}, " ")
	assert.Equal(t, want, calls[3])
}

func TestService_ModelLoadError(t *testing.T) {
	metrics := &recorder{}
	svc, loader := newService(t, summarize.WithMetrics(metrics))
	cause := errors.New("model not found")
	loader.Err = cause

	_, err := svc.Summarize(context.Background(), request("Some clinical text."))

	var loadErr *summarize.ModelLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "test-model", loadErr.ModelID)
	assert.Equal(t, entity.DeviceCPU, loadErr.Device)
	assert.ErrorIs(t, err, cause)
	assert.Empty(t, loader.Model().Calls())
	assert.Equal(t, 1, metrics.requests["error"])
}

func TestService_InferenceErrors(t *testing.T) {
	cause := errors.New("CUDA out of memory")

	tests := []struct {
		name      string
		fail      func(text string, opts summarize.Options) bool
		wantChunk int
		wantPass  summarize.Pass
	}{
		{
			name:      "third chunk",
			fail:      func(text string, _ summarize.Options) bool { return strings.HasPrefix(text, "w1700 ") },
			wantChunk: 2,
			wantPass:  summarize.PassFirst,
		},
		{
			name:      "second pass",
			fail:      func(_ string, opts summarize.Options) bool { return !opts.Truncate },
			wantChunk: -1,
			wantPass:  summarize.PassSecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, loader := newService(t)
			loader.Model().SummarizeFunc = func(_ context.Context, text string, opts summarize.Options) (string, error) {
				if tt.fail(text, opts) {
					return "", cause
				}
				return repeatWord("word", 20), nil
			}

			req := request(numberedWords(3000))
			req.MaxLength = 20

			got, err := svc.Summarize(context.Background(), req)
			assert.Empty(t, got)

			var infErr *summarize.InferenceError
			require.ErrorAs(t, err, &infErr)
			assert.Equal(t, tt.wantChunk, infErr.Chunk)
			assert.Equal(t, tt.wantPass, infErr.Pass)
			assert.ErrorIs(t, err, cause)
		})
	}
}

func TestService_TokenizeError(t *testing.T) {
	svc, loader := newService(t)
	cause := errors.New("tokenizer corrupt")
	loader.Model().TokenizeErr = cause

	_, err := svc.Summarize(context.Background(), request("Some clinical text."))

	var infErr *summarize.InferenceError
	require.ErrorAs(t, err, &infErr)
	assert.Equal(t, -1, infErr.Chunk)
	assert.Equal(t, summarize.PassChunking, infErr.Pass)
	assert.ErrorIs(t, err, cause)
	assert.Empty(t, loader.Model().Calls())
}

func TestService_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		mod   func(*entity.SummaryRequest)
		field string
	}{
		{name: "min above max", mod: func(r *entity.SummaryRequest) { r.MinLength = 60 }, field: "min_length"},
		{name: "zero max", mod: func(r *entity.SummaryRequest) { r.MaxLength = 0 }, field: "max_length"},
		{name: "unknown device", mod: func(r *entity.SummaryRequest) { r.Device = "tpu" }, field: "device"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, loader := newService(t)
			req := request("Some clinical text.")
			tt.mod(&req)

			_, err := svc.Summarize(context.Background(), req)

			var vErr *entity.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
			assert.ErrorIs(t, err, entity.ErrValidationFailed)
			assert.Zero(t, loader.Loads())
		})
	}
}

func TestService_CanceledContext(t *testing.T) {
	svc, loader := newService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Summarize(ctx, request("Some clinical text."))

	var infErr *summarize.InferenceError
	require.ErrorAs(t, err, &infErr)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, loader.Model().Calls())
}

func TestService_Deidentify(t *testing.T) {
	text := "Call 555-123-4567 or jane.doe@example.com about the visit."

	tests := []struct {
		name       string
		deidentify bool
		want       string
	}{
		{name: "enabled", deidentify: true, want: "Call [PHONE] or [EMAIL] about the visit."},
		{name: "disabled", deidentify: false, want: text},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, loader := newService(t, summarize.WithDeidentifier(deid.Redact))
			req := request(text)
			req.Deidentify = tt.deidentify

			_, err := svc.Summarize(context.Background(), req)
			require.NoError(t, err)

			assert.Equal(t, []string{tt.want}, callTexts(loader.Model().Calls()))
		})
	}
}

func TestService_DevicePreference(t *testing.T) {
	svc, loader := newService(t)
	req := request("Some clinical text.")
	req.Device = entity.DevicePreferGPU
	req.Credential = "hf_secret"

	res, err := svc.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, entity.DeviceCUDA, res.Device)
	want := []summarize.LoadRequest{{ModelID: "test-model", Device: entity.DeviceCUDA, Credential: "hf_secret"}}
	if diff := cmp.Diff(want, loader.Requests()); diff != "" {
		t.Errorf("load requests mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"test-model|cuda:0"}, svc.Cache().Keys())
}

func TestService_CacheMetrics(t *testing.T) {
	metrics := &recorder{}
	loader := inference.NewStubLoader(nil)
	cache := summarize.NewModelCache(loader, resolver, summarize.WithCacheMetrics(metrics))
	svc := summarize.NewService(cache, summarize.WithMetrics(metrics))

	for range 3 {
		_, err := svc.Summarize(context.Background(), request("Some clinical text."))
		require.NoError(t, err)
	}

	assert.Equal(t, 1, metrics.misses)
	assert.Equal(t, 2, metrics.hits)
	assert.Equal(t, 3, metrics.requests["success"])
}

func TestService_Spans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	svc, _ := newService(t)
	_, err := svc.Summarize(context.Background(), request(numberedWords(3000)))
	require.NoError(t, err)

	counts := make(map[string]int)
	var root sdktrace.ReadOnlySpan
	for _, s := range rec.Ended() {
		counts[s.Name()]++
		if s.Name() == "summarize.Run" {
			root = s
		}
	}
	assert.Equal(t, map[string]int{"summarize.Run": 1, "summarize.chunk": 1, "summarize.infer": 4}, counts)

	require.NotNil(t, root)
	for _, s := range rec.Ended() {
		if s.Name() != "summarize.Run" {
			assert.Equal(t, root.SpanContext().SpanID(), s.Parent().SpanID(), s.Name())
		}
	}
}
