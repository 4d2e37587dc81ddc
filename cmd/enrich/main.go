// Package main is the farmsat command-line entrypoint.
//
// It reads the readings table, enriches every row with Sentinel-2 bands,
// spectral indices, elevation and season, and writes
// {output-dir}/output_{YYYY-MM-DD}.csv. Configured sinks (PostgreSQL,
// InfluxDB, S3 archive, SQS run events) receive the run afterwards.
//
// Exit codes: 0 success, 1 fatal error, 2 table written but some batches
// failed structurally.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"farmsat/internal/app"
	"farmsat/internal/config"
)

const (
	exitOK      = 0
	exitFatal   = 1
	exitPartial = 2
)

// overrides holds flag values; zero values leave the configuration untouched.
type overrides struct {
	input     string
	outputDir string
	maxCloud  int
}

func parseFlags(args []string, stderr io.Writer) (overrides, error) {
	fs := flag.NewFlagSet("enrich", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var o overrides
	fs.StringVar(&o.input, "input", "", "input CSV path (overrides INPUT_PATH)")
	fs.StringVar(&o.outputDir, "output-dir", "", "output directory (overrides OUTPUT_DIR)")
	fs.IntVar(&o.maxCloud, "max-cloud", -1, "maximum cloud coverage percent (overrides MAX_CLOUD_COVERAGE)")

	if err := fs.Parse(args); err != nil {
		return overrides{}, err
	}
	if o.maxCloud < -1 || o.maxCloud > 100 {
		return overrides{}, errors.New("-max-cloud must be between 0 and 100")
	}
	return o, nil
}

func (o overrides) apply(cfg *config.Config) {
	if o.input != "" {
		cfg.Pipeline.InputPath = o.input
	}
	if o.outputDir != "" {
		cfg.Pipeline.OutputDir = o.outputDir
	}
	if o.maxCloud >= 0 {
		cfg.Sentinel.MaxCloudCoverage = o.maxCloud
	}
}

// exitCode maps the result of a run to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, app.ErrPartialRun):
		return exitPartial
	default:
		return exitFatal
	}
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	bootLogger := app.NewLogger(os.Stderr, "info")

	flags, err := parseFlags(args, os.Stderr)
	if err != nil {
		return exitFatal
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appEnv := os.Getenv("APP_ENV")
	cfg, err := config.LoadConfig(ctx, config.NewSecretProvider(appEnv, os.Getenv("AWS_REGION")))
	if err != nil {
		bootLogger.Error("failed to load configuration", "error", err)
		return exitFatal
	}
	flags.apply(cfg)

	logger := app.NewLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	runner, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		return exitFatal
	}
	defer runner.Close()

	in, err := os.Open(cfg.Pipeline.InputPath)
	if err != nil {
		logger.Error("failed to open input", "path", cfg.Pipeline.InputPath, "error", err)
		return exitFatal
	}
	defer in.Close()

	info, err := runner.Run(ctx, in, cfg.Pipeline.OutputDir)
	switch code := exitCode(err); code {
	case exitOK:
		logger.Info("enrichment complete", "run_id", info.RunID, "output_path", info.OutputPath)
		return code
	case exitPartial:
		logger.Warn("enrichment complete with failed batches",
			"run_id", info.RunID,
			"output_path", info.OutputPath,
			"batches_failed", len(info.Report.BatchesFailed),
		)
		return code
	default:
		logger.Error("enrichment failed", "run_id", info.RunID, "error", err)
		return code
	}
}
