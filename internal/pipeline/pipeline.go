// Package pipeline runs one raw batch through decode, parse and persist.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/telhawk-systems/trailhawk/common/logging"
	"github.com/telhawk-systems/trailhawk/internal/decoder"
	"github.com/telhawk-systems/trailhawk/internal/metrics"
	"github.com/telhawk-systems/trailhawk/internal/parser"
	"github.com/telhawk-systems/trailhawk/internal/persist"
)

// Pipeline is stateless between runs and safe for concurrent use.
type Pipeline struct {
	decoder   decoder.Decoder
	parser    *parser.BatchParser
	persister *persist.Persister
	logger    *logging.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the batch-level logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Pipeline.
func New(d decoder.Decoder, bp *parser.BatchParser, persister *persist.Persister, opts ...Option) *Pipeline {
	p := &Pipeline{
		decoder:   d,
		parser:    bp,
		persister: persister,
		logger:    logging.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// With returns a copy using d and bp in place of the configured decoder and
// parser. Nil arguments keep the current ones.
func (p *Pipeline) With(d decoder.Decoder, bp *parser.BatchParser) *Pipeline {
	cp := *p
	if d != nil {
		cp.decoder = d
	}
	if bp != nil {
		cp.parser = bp
	}
	return &cp
}

// Run decodes raw, parses it into events and persists each event. It fails
// only when the batch cannot be decoded, is malformed, yields no events, or
// ctx is done before persisting starts. Per-record failures are reported in
// the outcomes.
func (p *Pipeline) Run(ctx context.Context, raw []byte) ([]persist.Outcome, error) {
	start := time.Now()
	metrics.BatchBytesTotal.Add(float64(len(raw)))

	text, err := p.decoder.Decode(raw)
	if err != nil {
		metrics.BatchesTotal.WithLabelValues(metrics.StatusDecode).Inc()
		return nil, err
	}

	events, err := p.parser.Parse(text)
	if err != nil {
		metrics.BatchesTotal.WithLabelValues(parseStatus(err)).Inc()
		return nil, err
	}
	metrics.EventsParsed.Add(float64(len(events)))

	outcomes, err := p.persister.PersistAll(ctx, events)
	if err != nil {
		metrics.BatchesTotal.WithLabelValues(metrics.StatusCanceled).Inc()
		return nil, fmt.Errorf("persist batch: %w", err)
	}

	elapsed := time.Since(start)
	metrics.BatchesTotal.WithLabelValues(metrics.StatusOK).Inc()
	metrics.BatchDuration.Observe(elapsed.Seconds())

	succeeded, failed := Summarize(outcomes)
	p.logger.InfoContext(ctx, "batch processed",
		logging.Count(len(outcomes)),
		"succeeded", succeeded,
		"failed", failed,
		logging.Duration(elapsed),
	)
	return outcomes, nil
}

// Summarize counts successful and failed outcomes.
func Summarize(outcomes []persist.Outcome) (succeeded, failed int) {
	for _, o := range outcomes {
		if o.Succeeded() {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// IsBatchError reports whether err rejects the whole batch rather than a
// transient condition. Redelivering such a batch cannot succeed.
func IsBatchError(err error) bool {
	return errors.Is(err, decoder.ErrDecode) ||
		errors.Is(err, decoder.ErrTooLarge) ||
		errors.Is(err, parser.ErrMalformedBatch) ||
		errors.Is(err, parser.ErrEmptyBatch)
}

func parseStatus(err error) string {
	if errors.Is(err, parser.ErrEmptyBatch) {
		return metrics.StatusEmpty
	}
	return metrics.StatusMalformed
}
