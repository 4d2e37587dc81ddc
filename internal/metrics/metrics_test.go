package metrics

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmsat/internal/types"
)

// mockCloudWatchClient records PutMetricData calls for verification.
type mockCloudWatchClient struct {
	calls     []*cloudwatch.PutMetricDataInput
	returnErr error
}

func (m *mockCloudWatchClient) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.calls = append(m.calls, params)
	if m.returnErr != nil {
		return nil, m.returnErr
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func datums(in *cloudwatch.PutMetricDataInput) map[string]cwtypes.MetricDatum {
	out := make(map[string]cwtypes.MetricDatum, len(in.MetricData))
	for _, d := range in.MetricData {
		out[aws.ToString(d.MetricName)] = d
	}
	return out
}

func TestCloudWatchRunMetrics_RecordRun(t *testing.T) {
	cw := &mockCloudWatchClient{}
	m := NewCloudWatchRunMetrics(cw, "Farmsat", nil)

	report := types.RunReport{
		RunID:             "run-1",
		Duration:          1500 * time.Millisecond,
		RowsWritten:       40,
		BatchesSkipped:    []types.BatchOutcome{{Farm: "A"}, {Farm: "B"}},
		ElevationFailures: 3,
		SinkFailures:      []string{"influx"},
	}
	report.Drop(types.DropMalformedRow)

	m.RecordRun(context.Background(), report)

	require.Len(t, cw.calls, 1)
	input := cw.calls[0]
	assert.Equal(t, "Farmsat", aws.ToString(input.Namespace))

	got := datums(input)
	require.Len(t, got, 7)
	assert.Equal(t, 40.0, aws.ToFloat64(got[MetricRowsWritten].Value))
	assert.Equal(t, 1.0, aws.ToFloat64(got[MetricRowsDropped].Value))
	assert.Equal(t, 2.0, aws.ToFloat64(got[MetricBatchesSkipped].Value))
	assert.Equal(t, 0.0, aws.ToFloat64(got[MetricBatchesFailed].Value))
	assert.Equal(t, 3.0, aws.ToFloat64(got[MetricElevationFailures].Value))
	assert.Equal(t, 1.0, aws.ToFloat64(got[MetricSinkFailures].Value))

	duration := got[MetricRunDuration]
	assert.Equal(t, 1500.0, aws.ToFloat64(duration.Value))
	assert.Equal(t, cwtypes.StandardUnitMilliseconds, duration.Unit)

	dims := got[MetricRowsWritten].Dimensions
	require.Len(t, dims, 1)
	assert.Equal(t, DimResult, aws.ToString(dims[0].Name))
	assert.Equal(t, "complete", aws.ToString(dims[0].Value))
}

func TestCloudWatchRunMetrics_PartialRun(t *testing.T) {
	cw := &mockCloudWatchClient{}
	m := NewCloudWatchRunMetrics(cw, "Farmsat", nil)

	m.RecordRun(context.Background(), types.RunReport{
		BatchesFailed: []types.BatchOutcome{{Farm: "A", Error: "pixel out of range"}},
	})

	require.Len(t, cw.calls, 1)
	dims := datums(cw.calls[0])[MetricBatchesFailed].Dimensions
	assert.Equal(t, "partial", aws.ToString(dims[0].Value))
}

func TestCloudWatchRunMetrics_ErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	cw := &mockCloudWatchClient{returnErr: errors.New("throttled")}

	m := NewCloudWatchRunMetrics(cw, "Farmsat", logger)
	assert.NotPanics(t, func() {
		m.RecordRun(context.Background(), types.RunReport{RunID: "run-9"})
	})

	assert.Contains(t, buf.String(), "failed to record run metrics")
	assert.Contains(t, buf.String(), "run-9")
}

func TestNoopRunMetrics(t *testing.T) {
	var m RunMetrics = NoopRunMetrics{}
	assert.NotPanics(t, func() { m.RecordRun(context.Background(), types.RunReport{}) })
}
