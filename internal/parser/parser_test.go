package parser_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/trailhawk/internal/parser"
)

var example = map[string]any{
	"eventID":          "sampleEventID",
	"eventName":        "eventName",
	"eventTime":        "sampleEventTime",
	"userIdentity":     map[string]any{},
	"responseElements": map[string]any{"credentials": map[string]any{}},
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func logEventsBatch(t *testing.T, messages ...string) []byte {
	t.Helper()
	events := make([]map[string]any, len(messages))
	for i, m := range messages {
		events[i] = map[string]any{"id": fmt.Sprint(i), "timestamp": 1700000000000 + i, "message": m}
	}
	return []byte(mustJSON(t, map[string]any{
		"messageType": "DATA_MESSAGE",
		"logGroup":    "CloudTrail/logs",
		"logEvents":   events,
	}))
}

func TestParse_LogEvents(t *testing.T) {
	p := parser.New(parser.FormatLogEvents)

	events, err := p.Parse(logEventsBatch(t, mustJSON(t, example)))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "sampleEventID", events[0].EventID)
	assert.Equal(t, "sampleEventTime", events[0].EventTime)
	assert.JSONEq(t, mustJSON(t, example), string(events[0].Raw))
}

func TestParse_DropsInvalidPayloads(t *testing.T) {
	p := parser.New(parser.FormatLogEvents)

	events, err := p.Parse(logEventsBatch(t, mustJSON(t, example), "invalid {"))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "sampleEventID", events[0].EventID)
}

func TestParse_PreservesOrder(t *testing.T) {
	p := parser.New(parser.FormatAuto)

	var messages []string
	var want []string
	for i := 0; i < 10; i++ {
		if i%3 == 0 {
			messages = append(messages, "not json")
			continue
		}
		id := fmt.Sprintf("evt-%d", i)
		want = append(want, id)
		messages = append(messages, mustJSON(t, map[string]any{"eventID": id, "eventTime": "same"}))
	}

	events, err := p.Parse(logEventsBatch(t, messages...))
	require.NoError(t, err)

	got := make([]string, len(events))
	for i, e := range events {
		got[i] = e.EventID
	}
	assert.Equal(t, want, got)
}

func TestParse_EmptyBatch(t *testing.T) {
	tests := []struct {
		name string
		text []byte
	}{
		{"all payloads invalid", logEventsBatch(t, "invalid {")},
		{"control message", logEventsBatch(t, "CWL CONTROL MESSAGE: Checking health of destination Firehose.")},
		{"non-object payloads", logEventsBatch(t, "42", "null", `"str"`)},
		{"empty logEvents", []byte(`{"logEvents":[]}`)},
		{"empty Records", []byte(`{"Records":[]}`)},
		{"Records of scalars", []byte(`{"Records":[1, "two", null]}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := parser.New(parser.FormatAuto).Parse(tt.text)
			require.Error(t, err)
			assert.Nil(t, events)
			assert.True(t, errors.Is(err, parser.ErrEmptyBatch), "got %v", err)
			assert.False(t, errors.Is(err, parser.ErrMalformedBatch))
		})
	}
}

func TestParse_MalformedBatch(t *testing.T) {
	tests := []struct {
		name   string
		format parser.Format
		text   string
	}{
		{"not json", parser.FormatAuto, `invalid {`},
		{"top-level array", parser.FormatAuto, `[{"eventID":"x"}]`},
		{"null", parser.FormatAuto, `null`},
		{"no known key", parser.FormatAuto, `{"foo":[]}`},
		{"logEvents not array", parser.FormatLogEvents, `{"logEvents":"nope"}`},
		{"logEvents null", parser.FormatLogEvents, `{"logEvents":null}`},
		{"missing logEvents", parser.FormatLogEvents, `{"Records":[]}`},
		{"missing Records", parser.FormatRecords, `{"logEvents":[]}`},
		{"Records not array", parser.FormatRecords, `{"Records":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := parser.New(tt.format).Parse([]byte(tt.text))
			require.Error(t, err)
			assert.Nil(t, events)
			assert.True(t, errors.Is(err, parser.ErrMalformedBatch), "got %v", err)
			assert.False(t, errors.Is(err, parser.ErrEmptyBatch))
		})
	}
}

func TestParse_Records(t *testing.T) {
	text := `{"Records":[
		{"eventID":"a","eventTime":"2024-01-01T00:00:00Z","eventName":"ListBuckets"},
		"garbage",
		{"eventID":"b","eventTime":"2024-01-01T00:00:01Z","eventName":"GetObject"}
	]}`

	events, err := parser.New(parser.FormatRecords).Parse([]byte(text))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].EventID)
	assert.Equal(t, "b", events[1].EventID)
}

func TestParse_BareMessageStrings(t *testing.T) {
	text := mustJSON(t, map[string]any{
		"logEvents": []any{mustJSON(t, example), map[string]any{"message": 12}, nil},
	})

	events, err := parser.New(parser.FormatLogEvents).Parse([]byte(text))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "sampleEventID", events[0].EventID)
}

func TestParseFormat(t *testing.T) {
	for _, name := range []string{"logevents", "records", "auto"} {
		f, err := parser.ParseFormat(name)
		require.NoError(t, err)
		assert.Equal(t, parser.Format(name), f)
	}

	f, err := parser.ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, parser.FormatAuto, f)

	_, err = parser.ParseFormat("csv")
	assert.Error(t, err)

	assert.Equal(t, parser.FormatAuto, parser.New("").Format())
}
