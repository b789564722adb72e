// Package main provides a CLI that summarizes a clinical note.
// Usage: medsum-summarize [flags] [file|-]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"medsum/internal/app"
	"medsum/internal/config"
	"medsum/internal/domain/entity"
	"medsum/internal/infra/ingest"
	"medsum/internal/observability/logging"
)

// maxInputBytes bounds the note read from a file or stdin.
const maxInputBytes = 10 << 20

// options are the parsed flags. set records which flags were given so
// that unset ones fall back to presets and configured defaults.
type options struct {
	model      string
	gpu        bool
	min        int
	max        int
	secondPass bool
	deidentify bool
	token      string
	output     string
	timeout    time.Duration
	set        map[string]bool
}

// SummaryOutput is the -output json document.
type SummaryOutput struct {
	Summary    string `json:"summary"`
	ModelID    string `json:"model_id"`
	Device     string `json:"device"`
	Chunks     int    `json:"chunks"`
	SecondPass bool   `json:"second_pass"`
	DurationMS int64  `json:"duration_ms"`
	Encoding   string `json:"encoding"`
}

func main() {
	opts, args, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		usage()
		os.Exit(2)
	}

	logger := logging.New(os.Stderr, "json", logging.Level())
	slog.SetDefault(logger)

	pipeline, err := app.Load(logger)
	if err != nil {
		logger.Error("failed to build summarization pipeline", slog.Any("error", err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	text, enc, err := readInput(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	req, err := buildRequest(opts, *pipeline.Defaults, pipeline.Presets, text)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	res, err := pipeline.Service.Run(ctx, req)
	if err != nil {
		logger.Error("summarize failed", slog.Any("error", err))
		fmt.Fprintf(os.Stderr, "Error: Summarize failed: %v\n", err)
		os.Exit(1)
	}

	if err := writeResult(os.Stdout, opts.output, res, enc); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to write output: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, []string, error) {
	var opts options
	fs := flag.NewFlagSet("medsum-summarize", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.model, "model", "", "Model identifier or preset:<name> (default MODEL_SOURCE)")
	fs.BoolVar(&opts.gpu, "gpu", false, "Prefer a GPU when one is available")
	fs.IntVar(&opts.min, "min", 0, "Minimum summary length per chunk")
	fs.IntVar(&opts.max, "max", 0, "Maximum summary length per chunk")
	fs.BoolVar(&opts.secondPass, "second-pass", true, "Condense long stitched summaries in a second pass")
	fs.BoolVar(&opts.deidentify, "deidentify", false, "Mask dates, ids, phone numbers and e-mails before summarizing")
	fs.StringVar(&opts.token, "token", "", "Credential for access-restricted models (default HF_TOKEN)")
	fs.StringVar(&opts.output, "output", "text", "Output format: text or json")
	fs.DurationVar(&opts.timeout, "timeout", 10*time.Minute, "Overall deadline")
	if err := fs.Parse(args); err != nil {
		return options{}, nil, err
	}

	opts.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })

	if opts.output != "text" && opts.output != "json" {
		return options{}, nil, fmt.Errorf("invalid output %q (must be text or json)", opts.output)
	}
	if fs.NArg() > 1 {
		return options{}, nil, fmt.Errorf("at most one input file may be given")
	}
	if opts.timeout <= 0 {
		return options{}, nil, fmt.Errorf("timeout must be positive")
	}
	return opts, fs.Args(), nil
}

func usage() {
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage: medsum-summarize [-model ID|preset:NAME] [-gpu] [-min N] [-max N] [-second-pass=false] [-deidentify] [-token T] [-output text|json] [file|-]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Examples:")
	fmt.Fprintln(os.Stderr, "  medsum-summarize note.txt")
	fmt.Fprintln(os.Stderr, "  medsum-summarize -model preset:clinical -gpu -output json note.txt")
	fmt.Fprintln(os.Stderr, "  cat note.txt | medsum-summarize -max 80 -deidentify")
}

// readInput reads the named file, or stdin when no file or "-" is given.
func readInput(args []string) (string, ingest.Encoding, error) {
	if len(args) == 0 || args[0] == "-" {
		return ingest.Read(os.Stdin, maxInputBytes)
	}
	f, err := os.Open(args[0])
	if err != nil {
		return "", "", fmt.Errorf("open input: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ingest.Read(f, maxInputBytes)
}

// buildRequest applies, in increasing precedence, the configured defaults,
// a preset named by -model, and explicitly given flags.
func buildRequest(opts options, defaults config.SummarizerConfig, presets *config.Presets, text string) (entity.SummaryRequest, error) {
	req := entity.SummaryRequest{
		Text:       text,
		ModelID:    strings.TrimSpace(opts.model),
		Device:     entity.PreferenceFromGPUFlag(defaults.UseGPU),
		MinLength:  defaults.MinLength,
		MaxLength:  defaults.MaxLength,
		SecondPass: defaults.SecondPass,
		Deidentify: opts.deidentify,
		Credential: opts.token,
	}
	if req.ModelID == "" {
		req.ModelID = defaults.ModelSource
	}

	preset, ok, err := presets.Lookup(req.ModelID)
	if err != nil {
		return entity.SummaryRequest{}, err
	}
	if ok {
		req.ModelID = preset.ModelID
		if preset.MinLength > 0 {
			req.MinLength = preset.MinLength
		}
		if preset.MaxLength > 0 {
			req.MaxLength = preset.MaxLength
		}
		if preset.SecondPass != nil {
			req.SecondPass = *preset.SecondPass
		}
	}

	if opts.set["gpu"] {
		req.Device = entity.PreferenceFromGPUFlag(opts.gpu)
	}
	if opts.set["min"] {
		req.MinLength = opts.min
	}
	if opts.set["max"] {
		req.MaxLength = opts.max
	}
	if opts.set["second-pass"] {
		req.SecondPass = opts.secondPass
	}
	if req.Credential == "" {
		req.Credential = os.Getenv("HF_TOKEN")
	}
	return req, nil
}

func writeResult(w io.Writer, format string, res *entity.SummaryResult, enc ingest.Encoding) error {
	if format == "json" {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(SummaryOutput{
			Summary:    res.Summary,
			ModelID:    res.ModelID,
			Device:     string(res.Device),
			Chunks:     res.Chunks,
			SecondPass: res.SecondPass,
			DurationMS: res.Duration.Milliseconds(),
			Encoding:   string(enc),
		})
	}
	_, err := fmt.Fprintln(w, res.Summary)
	return err
}
