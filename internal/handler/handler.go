// Package handler implements the AWS Lambda entry points.
package handler

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"

	"github.com/telhawk-systems/trailhawk/common/logging"
	"github.com/telhawk-systems/trailhawk/internal/persist"
	"github.com/telhawk-systems/trailhawk/internal/pipeline"
	"github.com/telhawk-systems/trailhawk/internal/source"
)

// Result is returned to the Lambda runtime.
type Result struct {
	Batches   int               `json:"batches"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Outcomes  []persist.Outcome `json:"outcomes"`
}

func (r *Result) add(outcomes []persist.Outcome) {
	succeeded, failed := pipeline.Summarize(outcomes)
	r.Batches++
	r.Succeeded += succeeded
	r.Failed += failed
	r.Outcomes = append(r.Outcomes, outcomes...)
}

// withRequestID tags ctx with the Lambda request ID, or a fresh UUID outside Lambda.
func withRequestID(ctx context.Context) context.Context {
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		return logging.WithRequestID(ctx, lc.AwsRequestID)
	}
	return logging.WithRequestID(ctx, uuid.NewString())
}

// CloudWatch handles CloudWatch Logs subscription deliveries.
type CloudWatch struct {
	pipeline *pipeline.Pipeline
	logger   *logging.Logger
}

// NewCloudWatch creates the handler. p should use a base64-gzip decoder.
func NewCloudWatch(p *pipeline.Pipeline, logger *logging.Logger) *CloudWatch {
	if logger == nil {
		logger = logging.Default()
	}
	return &CloudWatch{pipeline: p, logger: logger}
}

// Handle lands one subscription delivery. Decode, malformed and empty batch
// errors fail the invocation.
func (h *CloudWatch) Handle(ctx context.Context, event events.CloudwatchLogsEvent) (Result, error) {
	ctx = withRequestID(ctx)

	var result Result
	raw, err := source.CloudWatchPayload(event)
	if err != nil {
		h.logger.ErrorContext(ctx, "invalid CloudWatch Logs event", logging.Error(err))
		return result, err
	}

	outcomes, err := h.pipeline.Run(ctx, raw)
	if err != nil {
		h.logger.ErrorContext(ctx, "batch failed", logging.Source("cloudwatch"), logging.Error(err))
		return result, err
	}

	result.add(outcomes)
	return result, nil
}

// Fetcher downloads an S3 object.
type Fetcher interface {
	Fetch(ctx context.Context, ref source.ObjectRef) ([]byte, error)
}

// S3 handles S3 object-created notifications for CloudTrail log files.
type S3 struct {
	pipeline *pipeline.Pipeline
	fetcher  Fetcher
	logger   *logging.Logger
}

// NewS3 creates the handler. p should use a gzip or auto decoder and the
// records format.
func NewS3(p *pipeline.Pipeline, fetcher Fetcher, logger *logging.Logger) *S3 {
	if logger == nil {
		logger = logging.Default()
	}
	return &S3{pipeline: p, fetcher: fetcher, logger: logger}
}

// Handle lands each referenced object in order. The first object that cannot
// be fetched or parsed fails the invocation; outcomes of earlier objects are
// already logged and stored.
func (h *S3) Handle(ctx context.Context, event events.S3Event) (Result, error) {
	ctx = withRequestID(ctx)

	var result Result
	refs, err := source.ObjectsFromEvent(event)
	if err != nil {
		h.logger.ErrorContext(ctx, "invalid S3 event", logging.Error(err))
		return result, err
	}

	for _, ref := range refs {
		raw, err := h.fetcher.Fetch(ctx, ref)
		if err != nil {
			h.logger.ErrorContext(ctx, "failed to fetch object", "object", ref.String(), logging.Error(err))
			return result, err
		}

		outcomes, err := h.pipeline.Run(ctx, raw)
		if err != nil {
			h.logger.ErrorContext(ctx, "batch failed", logging.Source("s3"), "object", ref.String(), logging.Error(err))
			return result, err
		}
		result.add(outcomes)
	}
	return result, nil
}
