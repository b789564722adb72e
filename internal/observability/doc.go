// Package observability groups the structured logging and OpenTelemetry
// tracing used by the API server, the CLIs and the summarization pipeline.
//
// Subpackages:
//   - logging: slog loggers carried through request contexts
//   - tracing: tracer provider setup and the HTTP span middleware
//
// Prometheus metrics live next to the code they measure: the pipeline in
// usecase/summarize, backend calls in infra/inference and requests in
// handler/http.
//
//	logger := logging.NewLogger()
//	shutdown := tracing.Init(1.0)
//	defer func() { _ = shutdown(context.Background()) }()
package observability
