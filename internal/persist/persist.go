// Package persist writes a batch of audit events concurrently, one write per
// event, reporting an outcome for each without letting failures escalate.
package persist

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/telhawk-systems/trailhawk/common/logging"
	"github.com/telhawk-systems/trailhawk/internal/dlq"
	"github.com/telhawk-systems/trailhawk/internal/metrics"
	"github.com/telhawk-systems/trailhawk/internal/models"
	"github.com/telhawk-systems/trailhawk/internal/store"
	"github.com/telhawk-systems/trailhawk/internal/transform"
)

// Status is the result of a single write.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

var errNilEvent = errors.New("nil event")

// Outcome reports what happened to one event.
type Outcome struct {
	EventID     string          `json:"event_id" yaml:"event_id"`
	EventTime   string          `json:"event_time" yaml:"event_time"`
	AccessKeyID string          `json:"access_key_id" yaml:"access_key_id"`
	User        string          `json:"user" yaml:"user"`
	Status      Status          `json:"status" yaml:"status"`
	Response    *store.Response `json:"response,omitempty" yaml:"response,omitempty"`
	Cause       string          `json:"cause,omitempty" yaml:"cause,omitempty"`
	Err         error           `json:"-" yaml:"-"`
}

// Succeeded reports whether the write was acknowledged.
func (o Outcome) Succeeded() bool { return o.Status == StatusSuccess }

// Persister fans a batch out to a Store.
type Persister struct {
	store       store.Store
	transformer *transform.Transformer
	logger      *logging.Logger
	deadLetters dlq.Writer
	limit       int
}

// Option configures a Persister.
type Option func(*Persister)

// WithLogger sets the logger used for per-record outcomes.
func WithLogger(l *logging.Logger) Option {
	return func(p *Persister) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithDeadLetters captures failed records in w.
func WithDeadLetters(w dlq.Writer) Option {
	return func(p *Persister) {
		p.deadLetters = w
	}
}

// WithConcurrency bounds in-flight writes. n <= 0 means unbounded.
func WithConcurrency(n int) Option {
	return func(p *Persister) {
		p.limit = n
	}
}

// New creates a Persister. A nil transformer uses transform.New().
func New(s store.Store, t *transform.Transformer, opts ...Option) *Persister {
	if t == nil {
		t = transform.New()
	}
	p := &Persister{
		store:       s,
		transformer: t,
		logger:      logging.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PersistAll writes every event and waits for all writes to finish. The
// returned outcomes are index-aligned with events. A failed write never
// cancels its siblings and never produces an error here; the only error is
// ctx being done before any write was dispatched.
func (p *Persister) PersistAll(ctx context.Context, events []*models.AuditEvent) ([]Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	outcomes := make([]Outcome, len(events))

	// Plain Group, not WithContext: one failure must not cancel the rest.
	var g errgroup.Group
	if p.limit > 0 {
		g.SetLimit(p.limit)
	}

	for i, event := range events {
		g.Go(func() error {
			outcomes[i] = p.persistOne(ctx, event)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes, nil
}

func (p *Persister) persistOne(ctx context.Context, event *models.AuditEvent) Outcome {
	if event == nil {
		return Outcome{Status: StatusFailure, Cause: errNilEvent.Error(), Err: errNilEvent}
	}

	record := p.transformer.Transform(event)
	outcome := Outcome{
		EventID:     record.EventID,
		EventTime:   record.EventTime,
		AccessKeyID: record.AccessKeyID,
		User:        record.User,
	}

	backend := p.store.Name()
	start := time.Now()
	resp, err := p.store.Put(ctx, record)
	metrics.StoreDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())

	if err != nil {
		outcome.Status = StatusFailure
		outcome.Cause = err.Error()
		outcome.Err = err
		metrics.RecordsTotal.WithLabelValues(backend, metrics.RecordFailure).Inc()

		p.logger.WarnContext(ctx, "Failed to add event",
			logging.EventID(record.EventID),
			logging.EventTime(record.EventTime),
			logging.Store(backend),
			logging.Error(err),
		)
		p.deadLetter(ctx, backend, record, err)
		return outcome
	}

	outcome.Status = StatusSuccess
	outcome.Response = &resp
	metrics.RecordsTotal.WithLabelValues(backend, metrics.RecordSuccess).Inc()

	if record.Attributed() {
		p.logger.InfoContext(ctx, "Successfully added event for user",
			logging.User(record.User),
			logging.AccessKeyID(record.AccessKeyID),
			logging.EventID(record.EventID),
			logging.EventTime(record.EventTime),
		)
	} else {
		p.logger.InfoContext(ctx, "Successfully added event",
			logging.EventID(record.EventID),
			logging.EventTime(record.EventTime),
		)
	}
	return outcome
}

// DLQ write errors are logged and otherwise ignored.
func (p *Persister) deadLetter(ctx context.Context, backend string, record *models.PersistenceRecord, cause error) {
	if p.deadLetters == nil {
		return
	}
	if err := p.deadLetters.Write(context.WithoutCancel(ctx), backend, record, cause); err != nil {
		metrics.DeadLettersTotal.WithLabelValues(backend, "error").Inc()
		p.logger.ErrorContext(ctx, "failed to write dead letter",
			logging.EventID(record.EventID),
			logging.Error(err),
		)
		return
	}
	metrics.DeadLettersTotal.WithLabelValues(backend, "written").Inc()
}
