// Package metrics emits per-run counters to CloudWatch.
package metrics

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"farmsat/internal/types"
)

// Metric names.
const (
	MetricRowsWritten       = "RowsWritten"
	MetricRowsDropped       = "RowsDropped"
	MetricBatchesSkipped    = "BatchesSkipped"
	MetricBatchesFailed     = "BatchesFailed"
	MetricElevationFailures = "ElevationFailures"
	MetricSinkFailures      = "SinkFailures"
	MetricRunDuration       = "RunDuration"

	// DimResult is "complete" when no batch failed structurally, else "partial".
	DimResult = "Result"
)

// RunMetrics records the outcome of one run. Implementations never fail the
// run; errors are logged.
type RunMetrics interface {
	RecordRun(ctx context.Context, report types.RunReport)
}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

var (
	_ RunMetrics = (*CloudWatchRunMetrics)(nil)
	_ RunMetrics = NoopRunMetrics{}
)

// CloudWatchRunMetrics publishes all run counters in a single PutMetricData
// call.
type CloudWatchRunMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchRunMetrics creates a CloudWatchRunMetrics publishing to the
// given namespace.
func NewCloudWatchRunMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchRunMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchRunMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordRun implements RunMetrics.
func (m *CloudWatchRunMetrics) RecordRun(ctx context.Context, report types.RunReport) {
	result := "complete"
	if report.HasStructuralFailures() {
		result = "partial"
	}
	dims := []cwtypes.Dimension{{Name: aws.String(DimResult), Value: aws.String(result)}}

	count := func(name string, v int) cwtypes.MetricDatum {
		return cwtypes.MetricDatum{
			MetricName: aws.String(name),
			Value:      aws.Float64(float64(v)),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: dims,
		}
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			count(MetricRowsWritten, report.RowsWritten),
			count(MetricRowsDropped, report.TotalDropped()),
			count(MetricBatchesSkipped, len(report.BatchesSkipped)),
			count(MetricBatchesFailed, len(report.BatchesFailed)),
			count(MetricElevationFailures, report.ElevationFailures),
			count(MetricSinkFailures, len(report.SinkFailures)),
			{
				MetricName: aws.String(MetricRunDuration),
				Value:      aws.Float64(float64(report.Duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: dims,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to record run metrics",
			"error", err.Error(),
			"run_id", report.RunID,
			"namespace", m.namespace,
		)
	}
}

// NoopRunMetrics discards everything. Used when no namespace is configured.
type NoopRunMetrics struct{}

// RecordRun implements RunMetrics.
func (NoopRunMetrics) RecordRun(context.Context, types.RunReport) {}
