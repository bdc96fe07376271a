// Package dlq captures records that no store accepted so they can be
// inspected and replayed.
package dlq

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/trailhawk/internal/models"
)

// ErrDisabled is returned by read operations on a nil queue.
var ErrDisabled = errors.New("dlq not enabled")

// FailedRecord is one dead-lettered write.
type FailedRecord struct {
	ID          string                    `json:"id" yaml:"id"`
	Timestamp   time.Time                 `json:"timestamp" yaml:"timestamp"`
	Backend     string                    `json:"backend" yaml:"backend"`
	Record      *models.PersistenceRecord `json:"record" yaml:"record"`
	Error       string                    `json:"error" yaml:"error"`
	Attempts    int                       `json:"attempts" yaml:"attempts"`
	LastAttempt time.Time                 `json:"last_attempt" yaml:"last_attempt"`
}

// Writer accepts failed writes.
type Writer interface {
	Write(ctx context.Context, backend string, record *models.PersistenceRecord, cause error) error
}

// Queue is a readable dead-letter queue.
type Queue interface {
	Writer
	List(ctx context.Context, limit int) ([]FailedRecord, error)
	Purge(ctx context.Context) (int, error)
	Stats(ctx context.Context) map[string]any
}

// Deleter is implemented by queues that can drop a single entry by ID.
type Deleter interface {
	Delete(ctx context.Context, id string) error
}

func newFailedRecord(backend string, record *models.PersistenceRecord, cause error) FailedRecord {
	now := time.Now().UTC()
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return FailedRecord{
		ID:          uuid.NewString(),
		Timestamp:   now,
		Backend:     backend,
		Record:      record,
		Error:       msg,
		Attempts:    1,
		LastAttempt: now,
	}
}
