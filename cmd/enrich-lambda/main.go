// Package main is the farmsat AWS Lambda entrypoint.
//
// The function is invoked with {"bucket": ..., "key": ...} naming an input
// CSV in S3 (typically from an upload notification). It runs the same
// enrichment as the CLI, writes the dated table under /tmp and archives it to
// ARCHIVE_BUCKET, then returns a run summary.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"farmsat/internal/app"
	"farmsat/internal/config"
	"farmsat/internal/types"
)

// lambdaOutputDir is the writable scratch area of the Lambda runtime.
const lambdaOutputDir = "/tmp/output_files"

// Request names the input object.
type Request struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// Response summarises the run.
type Response struct {
	RunID             string   `json:"run_id"`
	Input             string   `json:"input"`
	RowsRead          int      `json:"rows_read"`
	RowsDropped       int      `json:"rows_dropped"`
	RowsWritten       int      `json:"rows_written"`
	BatchesSkipped    int      `json:"batches_skipped"`
	BatchesFailed     int      `json:"batches_failed"`
	ElevationFailures int      `json:"elevation_failures"`
	SinkFailures      []string `json:"sink_failures,omitempty"`
	DurationMS        int64    `json:"duration_ms"`
}

func newResponse(req Request, run types.RunInfo) Response {
	r := run.Report
	return Response{
		RunID:             run.RunID,
		Input:             "s3://" + req.Bucket + "/" + req.Key,
		RowsRead:          r.RowsRead,
		RowsDropped:       r.TotalDropped(),
		RowsWritten:       r.RowsWritten,
		BatchesSkipped:    len(r.BatchesSkipped),
		BatchesFailed:     len(r.BatchesFailed),
		ElevationFailures: r.ElevationFailures,
		SinkFailures:      r.SinkFailures,
		DurationMS:        r.Duration.Milliseconds(),
	}
}

// S3GetAPI abstracts the S3 GetObject operation for testability.
type S3GetAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// enrichRunner is the subset of app.Runner used by the handler.
type enrichRunner interface {
	Run(ctx context.Context, input io.Reader, outputDir string) (types.RunInfo, error)
}

func main() {
	bootLogger := app.NewLogger(os.Stdout, "info")
	bootLogger.Info("enrich Lambda initializing (cold start)")

	ctx := context.Background()

	cfg, err := config.LoadConfig(ctx, config.NewSecretProvider(os.Getenv("APP_ENV"), os.Getenv("AWS_REGION")))
	if err != nil {
		bootLogger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := app.NewLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)
	if cfg.AWS.ArchiveBucket == "" {
		logger.Error("ARCHIVE_BUCKET is required for the Lambda entrypoint")
		os.Exit(1)
	}

	awsCfg, err := app.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}

	runner, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize runner", "error", err)
		os.Exit(1)
	}

	lambda.Start(newHandler(app.NewS3Client(awsCfg), runner, logger))
}

// newHandler returns the Lambda handler. A run with structurally failed
// batches still returns its summary without error; the archive holds the
// partial table.
func newHandler(client S3GetAPI, runner enrichRunner, logger *slog.Logger) func(ctx context.Context, req Request) (Response, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req Request) (Response, error) {
		if req.Bucket == "" || req.Key == "" {
			return Response{}, errors.New("request must name bucket and key")
		}
		logger.InfoContext(ctx, "enrich handler invoked", "bucket", req.Bucket, "key", req.Key)

		obj, err := client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(req.Bucket),
			Key:    aws.String(req.Key),
		})
		if err != nil {
			return Response{}, fmt.Errorf("reading s3://%s/%s: %w", req.Bucket, req.Key, err)
		}
		defer obj.Body.Close()

		run, err := runner.Run(ctx, obj.Body, lambdaOutputDir)
		resp := newResponse(req, run)
		if err != nil && !errors.Is(err, app.ErrPartialRun) {
			logger.ErrorContext(ctx, "enrichment failed", "run_id", run.RunID, "error", err)
			return resp, fmt.Errorf("enrichment failed: %w", err)
		}

		if run.OutputPath != "" {
			if rmErr := os.Remove(run.OutputPath); rmErr != nil {
				logger.WarnContext(ctx, "failed to remove scratch output", "path", run.OutputPath, "error", rmErr)
			}
		}

		logger.InfoContext(ctx, "enrich handler complete",
			"run_id", resp.RunID,
			"rows_written", resp.RowsWritten,
			"batches_failed", resp.BatchesFailed,
		)
		return resp, nil
	}
}
