package logging

import (
	"log/slog"
	"time"
)

// Common field names for consistent logging across commands.
const (
	FieldService     = "service"
	FieldRequestID   = "request_id"
	FieldSource      = "source"
	FieldEventID     = "event_id"
	FieldEventTime   = "event_time"
	FieldAccessKeyID = "access_key_id"
	FieldUser        = "user"
	FieldStore       = "store"
	FieldCount       = "count"
	FieldDuration    = "duration_ms"
	FieldError       = "error"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// Source returns a slog attribute naming where a batch came from.
func Source(name string) slog.Attr {
	return slog.String(FieldSource, name)
}

// EventID returns a slog attribute for an audit event ID.
func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

// EventTime returns a slog attribute for an audit event timestamp.
func EventTime(ts string) slog.Attr {
	return slog.String(FieldEventTime, ts)
}

// AccessKeyID returns a slog attribute for a resolved access key.
func AccessKeyID(key string) slog.Attr {
	return slog.String(FieldAccessKeyID, key)
}

// User returns a slog attribute for a resolved user name.
func User(name string) slog.Attr {
	return slog.String(FieldUser, name)
}

// Store returns a slog attribute for the store backend name.
func Store(name string) slog.Attr {
	return slog.String(FieldStore, name)
}

// Count returns a slog attribute for a record count.
func Count(n int) slog.Attr {
	return slog.Int(FieldCount, n)
}

// Duration returns a slog attribute for a duration in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}
