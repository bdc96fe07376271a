package models

import (
	"strconv"
	"time"
)

// Unattributed is stored when an access key or user cannot be resolved.
const Unattributed = "none"

// RetentionWindow is how long a record stays in the store before expiring.
const RetentionWindow = 90 * 24 * time.Hour

// PersistenceRecord is the store-ready projection of an AuditEvent.
// Attribute names match the audit table schema read by downstream consumers.
type PersistenceRecord struct {
	EventID     string `json:"eventID" yaml:"eventID" dynamodbav:"eventID"`
	EventTime   string `json:"eventTime" yaml:"eventTime" dynamodbav:"eventTime"`
	AccessKeyID string `json:"accessKeyId" yaml:"accessKeyId" dynamodbav:"accessKeyId"`
	User        string `json:"user" yaml:"user" dynamodbav:"user"`
	Event       string `json:"event" yaml:"event" dynamodbav:"event"`
	// Expiry is a unix timestamp in seconds.
	Expiry int64 `json:"ttl" yaml:"ttl" dynamodbav:"ttl"`
}

// Key returns the composite (event_id, event_time) identity of the record.
func (r *PersistenceRecord) Key() string {
	return RecordKey(r.EventID, r.EventTime)
}

// RecordKey flattens (eventID, eventTime) into one string. The event ID is
// length-prefixed so distinct pairs never share a key, whatever they contain.
func RecordKey(eventID, eventTime string) string {
	return strconv.Itoa(len(eventID)) + ":" + eventID + "|" + eventTime
}

// ExpiresAt returns Expiry as a time.
func (r *PersistenceRecord) ExpiresAt() time.Time {
	return time.Unix(r.Expiry, 0).UTC()
}

// Attributed reports whether the record was attributed to a user.
func (r *PersistenceRecord) Attributed() bool {
	return r.User != Unattributed
}
