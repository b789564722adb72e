// Package main loads a model and summarizes a fixed clinical note to check
// that the model, its tokenizer and the chosen device work together.
// Usage: medsum-smoke [-model ID] [-gpu] [-token T]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"medsum/internal/app"
	"medsum/internal/domain/entity"
	"medsum/internal/observability/logging"
)

// dummyNote is the smoke-test input.
const dummyNote = "The patient was admitted with chest pain. ECG showed abnormalities and treatment with aspirin was initiated."

const (
	smokeMinLength = 15
	smokeMaxLength = 50
)

// Summarizer runs one summarization.
type Summarizer interface {
	Run(ctx context.Context, req entity.SummaryRequest) (*entity.SummaryResult, error)
}

func main() {
	var (
		model   string
		gpu     bool
		token   string
		timeout time.Duration
	)
	flag.StringVar(&model, "model", "", "Model identifier (default MODEL_SOURCE)")
	flag.BoolVar(&gpu, "gpu", false, "Prefer a GPU when one is available")
	flag.StringVar(&token, "token", os.Getenv("HF_TOKEN"), "Credential for access-restricted models")
	flag.DurationVar(&timeout, "timeout", 10*time.Minute, "Deadline including the model load")
	flag.Parse()

	logger := logging.New(os.Stderr, "text", logging.Level())
	slog.SetDefault(logger)

	pipeline, err := app.Load(logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if strings.TrimSpace(model) == "" {
		model = pipeline.Defaults.ModelSource
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := run(ctx, pipeline.Service, os.Stdout, smokeRequest(model, gpu, token)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: smoke test failed: %v\n", err)
		os.Exit(1)
	}
}

func smokeRequest(model string, gpu bool, token string) entity.SummaryRequest {
	return entity.SummaryRequest{
		Text:       dummyNote,
		ModelID:    model,
		Device:     entity.PreferenceFromGPUFlag(gpu),
		MinLength:  smokeMinLength,
		MaxLength:  smokeMaxLength,
		Credential: token,
	}
}

// run summarizes req.Text and prints the original and the summary.
// An empty summary counts as a failure.
func run(ctx context.Context, svc Summarizer, w io.Writer, req entity.SummaryRequest) error {
	res, err := svc.Run(ctx, req)
	if err != nil {
		return err
	}
	if strings.TrimSpace(res.Summary) == "" {
		return errors.New("model returned an empty summary")
	}

	_, err = fmt.Fprintf(w, "\n--- Original Text ---\n%s\n\n--- Generated Summary ---\n%s\n\nmodel=%s device=%s duration=%s\n",
		req.Text, res.Summary, res.ModelID, res.Device, res.Duration.Round(time.Millisecond))
	return err
}
