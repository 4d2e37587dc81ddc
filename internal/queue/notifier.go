// Package queue announces finished runs on an SQS queue so downstream
// consumers can pick up the dated table without polling.
package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"farmsat/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// RunCompleted is the message body sent once per run.
type RunCompleted struct {
	RunID      string    `json:"run_id"`
	RunDate    string    `json:"run_date"`
	OutputPath string    `json:"output_path"`
	FinishedAt time.Time `json:"finished_at"`

	RowsRead          int `json:"rows_read"`
	RowsDropped       int `json:"rows_dropped"`
	RowsWritten       int `json:"rows_written"`
	BatchesProcessed  int `json:"batches_processed"`
	BatchesSkipped    int `json:"batches_skipped"`
	BatchesFailed     int `json:"batches_failed"`
	ElevationFailures int `json:"elevation_failures"`
}

// NewRunCompleted builds the message for a run.
func NewRunCompleted(run types.RunInfo, finishedAt time.Time) RunCompleted {
	r := run.Report
	return RunCompleted{
		RunID:             run.RunID,
		RunDate:           run.RunDate.Format("2006-01-02"),
		OutputPath:        run.OutputPath,
		FinishedAt:        finishedAt.UTC(),
		RowsRead:          r.RowsRead,
		RowsDropped:       r.TotalDropped(),
		RowsWritten:       r.RowsWritten,
		BatchesProcessed:  r.BatchesProcessed,
		BatchesSkipped:    len(r.BatchesSkipped),
		BatchesFailed:     len(r.BatchesFailed),
		ElevationFailures: r.ElevationFailures,
	}
}

// RunNotifier sends a RunCompleted message to a single queue. It implements
// output.Sink.
type RunNotifier struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
	now      func() time.Time
}

// NewRunNotifier creates a RunNotifier for the given queue URL.
func NewRunNotifier(client SQSSender, queueURL string, logger *slog.Logger) *RunNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunNotifier{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
		now:      time.Now,
	}
}

// Name implements output.Sink.
func (n *RunNotifier) Name() string { return "sqs" }

// Publish implements output.Sink. Only the run summary is sent; records stay
// in the written table.
func (n *RunNotifier) Publish(ctx context.Context, run types.RunInfo, _ []types.EnrichedRecord) error {
	msg := NewRunCompleted(run, n.now())

	body, err := json.Marshal(msg)
	if err != nil {
		return types.NewAppError(types.ErrCodeSinkQueue, "failed to marshal RunCompleted", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(n.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"run_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(run.RunID),
			},
			"batches_failed": {
				DataType:    aws.String("Number"),
				StringValue: aws.String(strconv.Itoa(msg.BatchesFailed)),
			},
		},
	}

	out, err := n.client.SendMessage(ctx, input)
	if err != nil {
		return types.NewAppError(types.ErrCodeSinkQueue, "failed to send RunCompleted to "+n.queueURL, err)
	}

	n.logger.InfoContext(ctx, "run completion message sent",
		"queue_url", n.queueURL,
		"run_id", run.RunID,
		"message_id", aws.ToString(out.MessageId),
		"rows_written", msg.RowsWritten,
	)
	return nil
}
