// Package summarize implements the long-document summarization pipeline:
// token-aware chunking, per-chunk inference, stitching of the partial
// summaries and an optional condensation pass over the stitched text.
//
// The model itself is an external collaborator reached through the Loader and
// Model interfaces; loaded models are kept in a ModelCache owned by the Service.
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"medsum/internal/domain/entity"
	"medsum/internal/observability/logging"
	"medsum/internal/observability/tracing"
	"medsum/internal/utils/text"
)

// Service runs the summarization pipeline.
type Service struct {
	cache *ModelCache

	maxTokens   int
	overlap     int
	concurrency int

	deidentify func(string) string

	metrics MetricsRecorder
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithChunkConcurrency sets how many chunks are summarized at once.
// Values below 2 keep the sequential behaviour. Output order never changes.
func WithChunkConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithDeidentifier sets the filter applied to the input when a request asks for de-identification.
func WithDeidentifier(f func(string) string) Option {
	return func(s *Service) {
		s.deidentify = f
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a pipeline that loads models through cache.
func NewService(cache *ModelCache, opts ...Option) *Service {
	s := &Service{
		cache:       cache,
		maxTokens:   DefaultMaxTokens,
		overlap:     DefaultOverlap,
		concurrency: 1,
		metrics:     noopMetrics{},
		logger:      slog.Default(),
		tracer:      tracing.GetTracer(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cache returns the model cache owned by the service.
func (s *Service) Cache() *ModelCache {
	return s.cache
}

// Summarize returns the final summary for req.
// Blank text yields "" without touching the model.
func (s *Service) Summarize(ctx context.Context, req entity.SummaryRequest) (string, error) {
	res, err := s.Run(ctx, req)
	if err != nil {
		return "", err
	}
	return res.Summary, nil
}

// Run executes the pipeline and reports how the summary was produced.
//
// Errors are *entity.ValidationError for bad length bounds or device,
// *ModelLoadError when the model cannot be loaded and *InferenceError when
// tokenization or a summary call fails. No partial result is returned.
func (s *Service) Run(ctx context.Context, req entity.SummaryRequest) (*entity.SummaryResult, error) {
	start := s.now()
	logger := logging.WithRequestID(ctx, s.logger)

	if req.IsBlank() {
		s.metrics.RecordRequest("empty")
		return &entity.SummaryResult{ModelID: req.ModelID}, nil
	}
	if err := req.Validate(); err != nil {
		s.metrics.RecordRequest("error")
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "summarize.Run", trace.WithAttributes(
		attribute.String("model_id", req.ModelID),
		attribute.String("device_preference", string(req.Device)),
		attribute.Int("min_length", req.MinLength),
		attribute.Int("max_length", req.MaxLength),
		attribute.Bool("second_pass_enabled", req.SecondPass),
	))
	defer span.End()

	res, err := s.run(ctx, logger, req)
	duration := s.now().Sub(start)
	s.metrics.RecordDuration(duration)

	if err != nil {
		s.metrics.RecordRequest("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.ErrorContext(ctx, "summarization failed",
			slog.String("model_id", req.ModelID),
			slog.Duration("duration", duration),
			slog.Any("error", err))
		return nil, err
	}

	res.Duration = duration
	s.metrics.RecordRequest("success")
	span.SetAttributes(
		attribute.Int("chunks", res.Chunks),
		attribute.Bool("second_pass", res.SecondPass),
	)
	logger.InfoContext(ctx, "summarization completed",
		slog.String("model_id", res.ModelID),
		slog.String("device", string(res.Device)),
		slog.Int("chunks", res.Chunks),
		slog.Bool("second_pass", res.SecondPass),
		slog.Int("summary_length", text.CountRunes(res.Summary)),
		slog.Duration("duration", duration))

	return res, nil
}

func (s *Service) run(ctx context.Context, logger *slog.Logger, req entity.SummaryRequest) (*entity.SummaryResult, error) {
	input := req.Text
	if req.Deidentify && s.deidentify != nil {
		input = s.deidentify(input)
	}

	handle, err := s.cache.GetOrLoad(ctx, req.ModelID, req.Device, req.Credential)
	if err != nil {
		return nil, err
	}

	chunks, err := s.chunk(ctx, input, handle.Model)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordChunks(len(chunks))

	logger.InfoContext(ctx, "summarization started",
		slog.String("model_id", handle.ModelID),
		slog.String("device", string(handle.Device)),
		slog.Int("input_length", text.CountRunes(input)),
		slog.Int("chunks", len(chunks)))

	opts := Options{
		MinLength:     req.MinLength,
		MaxLength:     req.MaxLength,
		Deterministic: true,
		Truncate:      true,
	}

	partials, err := s.summarizeChunks(ctx, logger, handle.Model, chunks, opts)
	if err != nil {
		return nil, err
	}
	combined := strings.Join(partials, " ")

	res := &entity.SummaryResult{
		Summary: combined,
		ModelID: handle.ModelID,
		Device:  handle.Device,
		Chunks:  len(chunks),
	}

	// The threshold compares a word count against a token bound; kept as is.
	words := text.CountWords(combined)
	if !req.SecondPass || words <= 2*req.MaxLength {
		return res, nil
	}

	logger.InfoContext(ctx, "condensing stitched summary",
		slog.Int("words", words),
		slog.Int("threshold", 2*req.MaxLength))

	final, err := s.infer(ctx, handle.Model, combined, -1, PassSecond, Options{
		MinLength:     req.MinLength,
		MaxLength:     req.MaxLength,
		Deterministic: true,
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordSecondPass()

	res.Summary = final
	res.SecondPass = true
	return res, nil
}

func (s *Service) chunk(ctx context.Context, input string, tok Tokenizer) ([]string, error) {
	_, span := s.tracer.Start(ctx, "summarize.chunk", trace.WithAttributes(
		attribute.Int("max_tokens", s.maxTokens),
		attribute.Int("overlap", s.overlap),
	))
	defer span.End()

	chunks, err := Chunk(input, tok, s.maxTokens, s.overlap)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &InferenceError{Chunk: -1, Pass: PassChunking, Err: err}
	}
	span.SetAttributes(attribute.Int("chunks", len(chunks)))
	return chunks, nil
}

// summarizeChunks returns one trimmed summary per chunk, in chunk order.
func (s *Service) summarizeChunks(
	ctx context.Context,
	logger *slog.Logger,
	model Model,
	chunks []string,
	opts Options,
) ([]string, error) {
	partials := make([]string, len(chunks))

	if s.concurrency <= 1 || len(chunks) == 1 {
		for i, chunk := range chunks {
			out, err := s.infer(ctx, model, chunk, i, PassFirst, opts)
			if err != nil {
				return nil, err
			}
			partials[i] = out
			logger.DebugContext(ctx, "chunk summarized",
				slog.Int("chunk", i),
				slog.Int("summary_length", text.CountRunes(out)))
		}
		return partials, nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.concurrency)
	for i, chunk := range chunks {
		eg.Go(func() error {
			out, err := s.infer(egCtx, model, chunk, i, PassFirst, opts)
			if err != nil {
				return err
			}
			partials[i] = out
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return partials, nil
}

// infer makes one collaborator call and wraps failures as *InferenceError.
func (s *Service) infer(ctx context.Context, model Model, input string, chunk int, pass Pass, opts Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &InferenceError{Chunk: chunk, Pass: pass, Err: err}
	}

	ctx, span := s.tracer.Start(ctx, "summarize.infer", trace.WithAttributes(
		attribute.Int("chunk", chunk),
		attribute.String("pass", string(pass)),
	))
	defer span.End()

	out, err := model.Summarize(ctx, input, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", &InferenceError{Chunk: chunk, Pass: pass, Err: fmt.Errorf("summarize: %w", err)}
	}
	return strings.TrimSpace(out), nil
}
