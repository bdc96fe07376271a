// Package transform projects audit events into persistence records.
package transform

import (
	"time"

	"github.com/telhawk-systems/trailhawk/internal/models"
)

// Clock returns the current time.
type Clock func() time.Time

// Transformer maps AuditEvents to PersistenceRecords.
type Transformer struct {
	now       Clock
	retention time.Duration
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithClock overrides the wall clock used to compute expiry.
func WithClock(c Clock) Option {
	return func(t *Transformer) {
		t.now = c
	}
}

// New creates a Transformer using the fixed 90-day retention window.
func New(opts ...Option) *Transformer {
	t := &Transformer{
		now:       time.Now,
		retention: models.RetentionWindow,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Transform builds the record for event. It never fails.
func (t *Transformer) Transform(event *models.AuditEvent) *models.PersistenceRecord {
	return &models.PersistenceRecord{
		EventID:     event.EventID,
		EventTime:   event.EventTime,
		AccessKeyID: resolve(event, accessKeyRules),
		User:        resolve(event, userRules),
		Event:       event.PrettyJSON(),
		Expiry:      t.now().Add(t.retention).Unix(),
	}
}
