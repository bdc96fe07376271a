package source

import (
	"github.com/aws/aws-lambda-go/events"
)

// CloudWatchPayload returns the base64-of-gzip body of a CloudWatch Logs
// subscription delivery. Decoding is left to the pipeline.
func CloudWatchPayload(event events.CloudwatchLogsEvent) ([]byte, error) {
	if event.AWSLogs.Data == "" {
		return nil, ErrEmptyPayload
	}
	return []byte(event.AWSLogs.Data), nil
}
