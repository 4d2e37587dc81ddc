package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"farmsat/internal/config"
	"farmsat/internal/db"
	"farmsat/internal/external"
	"farmsat/internal/metrics"
	"farmsat/internal/output"
	"farmsat/internal/queue"
	"farmsat/internal/raster"
)

// LoadAWSConfig loads the SDK configuration for the configured region,
// pointing every client at AWS_ENDPOINT_URL when set (LocalStack).
func LoadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS SDK config: %w", err)
	}
	if cfg.AWS.EndpointURL != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
	}
	return awsCfg, nil
}

// NewS3Client creates an S3 client, using path-style addressing against a
// custom endpoint.
func NewS3Client(awsCfg aws.Config) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = awsCfg.BaseEndpoint != nil
	})
}

func usesAWS(cfg *config.Config) bool {
	return cfg.AWS.ArchiveBucket != "" || cfg.AWS.RunEventsQueue != "" || cfg.Observability.MetricNamespace != ""
}

// Build creates the HTTP collaborators, opens the configured sinks and
// returns a ready Runner. The caller must Close it.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	raster.RegisterDrivers()

	httpClient := &http.Client{Timeout: cfg.HTTP.Timeout}
	breaker := external.BreakerSettings{
		ConsecutiveFailures: cfg.HTTP.BreakerFailures,
		OpenTimeout:         cfg.HTTP.BreakerOpenTimeout,
	}

	fetcher, err := external.NewSentinelHubClientWithBase(
		external.NewBaseClient(httpClient, "sentinelhub", breaker, cfg.HTTP.UserAgent),
		external.SentinelHubConfig{
			ClientID:         cfg.Sentinel.ClientID.Unmask(),
			ClientSecret:     cfg.Sentinel.ClientSecret,
			TokenURL:         cfg.Sentinel.TokenURL,
			ProcessURL:       cfg.Sentinel.ProcessURL,
			WindowDays:       cfg.Sentinel.WindowDays,
			ResolutionMeters: cfg.Sentinel.ResolutionMeters,
			Logger:           logger,
		},
	)
	if err != nil {
		return nil, err
	}

	c := Components{Fetcher: fetcher, Logger: logger}

	if cfg.Elevation.Enabled {
		c.Elevation = external.NewOpenTopoDataClientWithBase(
			external.NewBaseClient(httpClient, "opentopodata", breaker, cfg.HTTP.UserAgent),
			external.OpenTopoDataConfig{
				BaseURL: cfg.Elevation.BaseURL,
				Dataset: cfg.Elevation.Dataset,
				Pacing:  cfg.Elevation.Pacing,
				Logger:  logger,
			},
		)
	} else {
		logger.Warn("elevation lookup disabled; elevation column will be empty")
	}

	var closers []func()
	fail := func(err error) (*Runner, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		return nil, err
	}

	table := output.NewTableWriter(cfg.Pipeline.MetricColumn)

	if !cfg.Database.URL.IsZero() {
		poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL.Unmask())
		if err != nil {
			return fail(fmt.Errorf("parsing DATABASE_URL: %w", err))
		}
		poolCfg.MaxConns = cfg.Database.MaxConns
		poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return fail(fmt.Errorf("creating database pool: %w", err))
		}
		closers = append(closers, pool.Close)

		repo := db.NewRecordRepository(pool)
		if cfg.Database.EnsureSchema {
			if err := repo.EnsureSchema(ctx); err != nil {
				return fail(err)
			}
		}
		c.Sinks = append(c.Sinks, repo)
	}

	if cfg.Influx.URL != "" {
		sink, closeInflux := output.NewInfluxClientSink(cfg.Influx.URL, cfg.Influx.Token, cfg.Influx.Org, cfg.Influx.Bucket)
		closers = append(closers, closeInflux)
		c.Sinks = append(c.Sinks, sink)
	}

	if usesAWS(cfg) {
		awsCfg, err := LoadAWSConfig(ctx, cfg)
		if err != nil {
			return fail(err)
		}

		if cfg.AWS.ArchiveBucket != "" {
			archive, err := output.NewArchiveSink(NewS3Client(awsCfg), cfg.AWS.ArchiveBucket, cfg.AWS.ArchivePrefix, table)
			if err != nil {
				return fail(err)
			}
			c.Sinks = append(c.Sinks, archive)
		}
		if cfg.AWS.RunEventsQueue != "" {
			c.Sinks = append(c.Sinks, queue.NewRunNotifier(sqs.NewFromConfig(awsCfg), cfg.AWS.RunEventsQueue, logger))
		}
		if cfg.Observability.MetricNamespace != "" {
			c.Metrics = metrics.NewCloudWatchRunMetrics(cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, logger)
		}
	}

	r, err := New(cfg, c)
	if err != nil {
		return fail(err)
	}
	r.table = table
	r.closers = closers

	names := make([]string, len(c.Sinks))
	for i, s := range c.Sinks {
		names[i] = s.Name()
	}
	logger.Info("runner initialized",
		"sinks", names,
		"elevation", cfg.Elevation.Enabled,
		"max_cloud_coverage", cfg.Sentinel.MaxCloudCoverage,
		"version", cfg.Build.Version,
	)
	return r, nil
}
