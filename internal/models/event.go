package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// EventNameAssumeRole is the STS action whose response carries temporary credentials.
const EventNameAssumeRole = "AssumeRole"

// ErrNotAnObject is returned when a payload is valid JSON but not a JSON object.
var ErrNotAnObject = errors.New("payload is not a JSON object")

// AuditEvent is one CloudTrail audit log entry.
// Only the fields needed for attribution are decoded; Raw keeps the rest.
type AuditEvent struct {
	EventID   string    `json:"eventID"`
	EventTime string    `json:"eventTime"`
	EventName string    `json:"eventName"`
	Identity  Identity  `json:"userIdentity"`
	Response  *Response `json:"responseElements,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// Identity describes the actor that performed the action.
// Either field may be absent depending on the identity type.
type Identity struct {
	Type        string  `json:"type,omitempty"`
	AccessKeyID *string `json:"accessKeyId,omitempty"`
	UserName    *string `json:"userName,omitempty"`
}

// Response holds the subset of responseElements used for attribution.
type Response struct {
	Credentials *Credentials `json:"credentials,omitempty"`
}

// Credentials are the temporary credentials returned by a role assumption.
type Credentials struct {
	AccessKeyID *string `json:"accessKeyId,omitempty"`
}

// TemporaryAccessKeyID returns the access key issued in the response, if any.
func (e *AuditEvent) TemporaryAccessKeyID() (string, bool) {
	if e.Response == nil || e.Response.Credentials == nil {
		return "", false
	}
	return deref(e.Response.Credentials.AccessKeyID)
}

// IdentityAccessKeyID returns the access key the actor authenticated with, if any.
func (e *AuditEvent) IdentityAccessKeyID() (string, bool) {
	return deref(e.Identity.AccessKeyID)
}

// IdentityUserName returns the actor's user name, if any.
func (e *AuditEvent) IdentityUserName() (string, bool) {
	return deref(e.Identity.UserName)
}

// ParseAuditEvent decodes a single event payload. The payload must be a JSON object.
func ParseAuditEvent(payload []byte) (*AuditEvent, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		if !json.Valid(trimmed) {
			return nil, fmt.Errorf("decode event: invalid JSON")
		}
		return nil, ErrNotAnObject
	}

	var event AuditEvent
	if err := json.Unmarshal(trimmed, &event); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	event.Raw = append(json.RawMessage(nil), trimmed...)
	return &event, nil
}

// PrettyJSON returns the original event indented with two spaces.
func (e *AuditEvent) PrettyJSON() string {
	if len(e.Raw) == 0 {
		data, err := json.MarshalIndent(e, "", "  ")
		if err != nil {
			return ""
		}
		return string(data)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, e.Raw, "", "  "); err != nil {
		return string(e.Raw)
	}
	return buf.String()
}

func deref(s *string) (string, bool) {
	if s == nil {
		return "", false
	}
	return *s, true
}
