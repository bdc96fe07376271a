// Package store persists audit records into a key-value backend.
package store

import (
	"context"
	"errors"

	"github.com/telhawk-systems/trailhawk/internal/models"
)

// ErrInvalidRecord is returned before any I/O when a record is missing its keys.
var ErrInvalidRecord = errors.New("record is missing event ID or event time")

// Response describes a successful write.
type Response struct {
	Backend string `json:"backend" yaml:"backend"`
	// Target is the table, index or key prefix that received the record.
	Target string `json:"target" yaml:"target"`
	Key    string `json:"key" yaml:"key"`
	// Replaced is set when the backend reports that an existing record was overwritten.
	Replaced bool `json:"replaced,omitempty" yaml:"replaced,omitempty"`
}

// Store upserts one record keyed by (event_id, event_time). Implementations must
// be safe for concurrent use and must honour the record's expiry, either natively
// or by storing it for the backend's own expiration process.
type Store interface {
	Put(ctx context.Context, record *models.PersistenceRecord) (Response, error)
	Name() string
}

// Closer is implemented by stores that hold connections.
type Closer interface {
	Close() error
}

func validate(record *models.PersistenceRecord) error {
	if record == nil || record.EventID == "" || record.EventTime == "" {
		return ErrInvalidRecord
	}
	return nil
}
