// Package source adapts delivery mechanisms (Lambda events, S3 objects,
// local files, NATS messages) into raw batches for the pipeline.
package source

import "errors"

// ErrEmptyPayload is returned when a delivery carries no batch bytes.
var ErrEmptyPayload = errors.New("delivery carries no payload")
