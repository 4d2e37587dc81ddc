package output

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"

	"farmsat/internal/types"
)

// S3PutAPI abstracts the S3 PutObject operation for testability.
type S3PutAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ArchiveSink uploads the run's table to S3 as a zstd-compressed CSV under
// {prefix}/runs/{YYYY-MM-DD}/{run_id}.csv.zst.
type ArchiveSink struct {
	client  S3PutAPI
	bucket  string
	prefix  string
	table   *TableWriter
	encoder *zstd.Encoder
}

// NewArchiveSink creates an ArchiveSink.
func NewArchiveSink(client S3PutAPI, bucket, prefix string, table *TableWriter) (*ArchiveSink, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	return &ArchiveSink{
		client:  client,
		bucket:  bucket,
		prefix:  prefix,
		table:   table,
		encoder: enc,
	}, nil
}

// Name implements Sink.
func (a *ArchiveSink) Name() string { return "archive" }

// Key returns the object key for a run.
func (a *ArchiveSink) Key(run types.RunInfo) string {
	return path.Join(a.prefix, "runs", run.RunDate.Format(DateLayout), run.RunID+".csv.zst")
}

// Publish implements Sink.
func (a *ArchiveSink) Publish(ctx context.Context, run types.RunInfo, records []types.EnrichedRecord) error {
	var buf bytes.Buffer
	if err := a.table.Write(&buf, records); err != nil {
		return fmt.Errorf("rendering archive table: %w", err)
	}

	compressed := a.encoder.EncodeAll(buf.Bytes(), make([]byte, 0, buf.Len()/4))
	key := a.Key(run)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(a.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(compressed),
		ContentType:     aws.String("text/csv"),
		ContentEncoding: aws.String("zstd"),
		Metadata: map[string]string{
			"run-id":   run.RunID,
			"records":  strconv.Itoa(len(records)),
			"run-date": run.RunDate.Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("uploading s3://%s/%s: %w", a.bucket, key, err)
	}
	return nil
}
