// Package parser flattens a decoded batch into individual audit events.
package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/telhawk-systems/trailhawk/internal/models"
)

var (
	// ErrMalformedBatch means the top-level batch structure could not be parsed.
	ErrMalformedBatch = errors.New("malformed batch")

	// ErrEmptyBatch means the batch parsed but no events survived parsing.
	ErrEmptyBatch = errors.New("no events survived parsing")
)

// Format selects the batch layout.
type Format string

const (
	// FormatLogEvents is the CloudWatch Logs subscription layout: a logEvents
	// array whose messages are JSON-encoded events.
	FormatLogEvents Format = "logevents"

	// FormatRecords is the CloudTrail S3 object layout: a Records array of
	// event objects.
	FormatRecords Format = "records"

	// FormatAuto picks one of the above from the top-level keys.
	FormatAuto Format = "auto"
)

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	switch Format(name) {
	case FormatLogEvents, FormatRecords, FormatAuto:
		return Format(name), nil
	case "":
		return FormatAuto, nil
	default:
		return "", fmt.Errorf("unknown batch format %q", name)
	}
}

// BatchParser parses decoded batches. It is stateless and safe for concurrent use.
type BatchParser struct {
	format Format
}

// New creates a parser for the given format.
func New(format Format) *BatchParser {
	if format == "" {
		format = FormatAuto
	}
	return &BatchParser{format: format}
}

// Format returns the configured format.
func (p *BatchParser) Format() Format {
	return p.format
}

// Parse returns the events of the batch in payload order. Payloads that fail to
// parse are dropped. It fails with ErrMalformedBatch when the batch itself cannot
// be parsed and with ErrEmptyBatch when nothing survives.
func (p *BatchParser) Parse(text []byte) ([]*models.AuditEvent, error) {
	payloads, err := p.payloads(text)
	if err != nil {
		return nil, err
	}

	events := make([]*models.AuditEvent, 0, len(payloads))
	for _, payload := range payloads {
		event, err := models.ParseAuditEvent(payload)
		if err != nil {
			continue
		}
		events = append(events, event)
	}

	if len(events) == 0 {
		return nil, fmt.Errorf("%w (%d payloads)", ErrEmptyBatch, len(payloads))
	}
	return events, nil
}

func (p *BatchParser) payloads(text []byte) ([][]byte, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(text, &top); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedBatch, err)
	}
	if top == nil {
		return nil, fmt.Errorf("%w: batch is null", ErrMalformedBatch)
	}

	format := p.format
	if format == FormatAuto {
		format = detect(top)
	}

	switch format {
	case FormatLogEvents:
		return logEventPayloads(top)
	case FormatRecords:
		return recordPayloads(top)
	default:
		return nil, fmt.Errorf("%w: neither logEvents nor Records present", ErrMalformedBatch)
	}
}

func detect(top map[string]json.RawMessage) Format {
	if _, ok := top["logEvents"]; ok {
		return FormatLogEvents
	}
	if _, ok := top["Records"]; ok {
		return FormatRecords
	}
	return ""
}

// logEvent is one element of a logEvents array. Subscription deliveries wrap the
// event in {"id","timestamp","message"}; some producers send the message string bare.
type logEvent struct {
	Message *string `json:"message"`
}

func (e *logEvent) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		e.Message = &s
		return nil
	}
	type plain logEvent
	return json.Unmarshal(data, (*plain)(e))
}

func logEventPayloads(top map[string]json.RawMessage) ([][]byte, error) {
	raw, ok := top["logEvents"]
	if !ok {
		return nil, fmt.Errorf("%w: missing logEvents", ErrMalformedBatch)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return nil, fmt.Errorf("%w: logEvents is not an array", ErrMalformedBatch)
	}

	payloads := make([][]byte, 0, len(items))
	for _, item := range items {
		var le logEvent
		if err := json.Unmarshal(item, &le); err != nil || le.Message == nil {
			// Unusable element: keep its slot so it fails like any bad payload.
			payloads = append(payloads, nil)
			continue
		}
		payloads = append(payloads, []byte(*le.Message))
	}
	return payloads, nil
}

func recordPayloads(top map[string]json.RawMessage) ([][]byte, error) {
	raw, ok := top["Records"]
	if !ok {
		return nil, fmt.Errorf("%w: missing Records", ErrMalformedBatch)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return nil, fmt.Errorf("%w: Records is not an array", ErrMalformedBatch)
	}

	payloads := make([][]byte, len(items))
	for i, item := range items {
		payloads[i] = item
	}
	return payloads, nil
}
