package pipeline_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/trailhawk/common/logging"
	"github.com/telhawk-systems/trailhawk/internal/decoder"
	"github.com/telhawk-systems/trailhawk/internal/models"
	"github.com/telhawk-systems/trailhawk/internal/parser"
	"github.com/telhawk-systems/trailhawk/internal/persist"
	"github.com/telhawk-systems/trailhawk/internal/pipeline"
	"github.com/telhawk-systems/trailhawk/internal/store"
	"github.com/telhawk-systems/trailhawk/internal/transform"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// pushEnvelope builds a CloudWatch Logs subscription payload for messages.
func pushEnvelope(t *testing.T, messages ...string) []byte {
	t.Helper()
	type logEvent struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	}
	batch := struct {
		MessageType string     `json:"messageType"`
		LogEvents   []logEvent `json:"logEvents"`
	}{MessageType: "DATA_MESSAGE"}
	for i, m := range messages {
		batch.LogEvents = append(batch.LogEvents, logEvent{ID: string(rune('0' + i)), Message: m})
	}
	text, err := json.Marshal(batch)
	require.NoError(t, err)
	return []byte(base64.StdEncoding.EncodeToString(gzipBytes(t, text)))
}

func newPipeline(s store.Store) *pipeline.Pipeline {
	persister := persist.New(s,
		transform.New(transform.WithClock(func() time.Time { return fixedNow })),
		persist.WithLogger(logging.Discard()),
	)
	return pipeline.New(decoder.Base64Gzip{}, parser.New(parser.FormatLogEvents), persister,
		pipeline.WithLogger(logging.Discard()))
}

func TestRun_DropsInvalidPayloadAndDefaultsUser(t *testing.T) {
	s := store.NewMemoryStore()
	raw := pushEnvelope(t,
		`{"eventID":"e1","eventTime":"2024-03-01T11:00:00Z","eventName":"ListBuckets","userIdentity":{"accessKeyId":"used_key"}}`,
		`not json`,
	)

	outcomes, err := newPipeline(s).Run(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, persist.StatusSuccess, outcomes[0].Status)

	record, ok := s.Get("e1", "2024-03-01T11:00:00Z")
	require.True(t, ok)
	assert.Equal(t, "used_key", record.AccessKeyID)
	assert.Equal(t, models.Unattributed, record.User)
	assert.Equal(t, fixedNow.Unix()+7776000, record.Expiry)
	assert.Contains(t, record.Event, "\n  \"eventID\": \"e1\"")
}

func TestRun_AssumeRoleUsesTemporaryKey(t *testing.T) {
	s := store.NewMemoryStore()
	raw := pushEnvelope(t, `{
		"eventID": "e2",
		"eventTime": "2024-03-01T11:05:00Z",
		"eventName": "AssumeRole",
		"userIdentity": {"accessKeyId": "used_key", "userName": "alice"},
		"responseElements": {"credentials": {"accessKeyId": "temporary_key"}}
	}`)

	outcomes, err := newPipeline(s).Run(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)

	record, ok := s.Get("e2", "2024-03-01T11:05:00Z")
	require.True(t, ok)
	assert.Equal(t, "temporary_key", record.AccessKeyID)
	assert.Equal(t, "alice", record.User)
}

type failingStore struct {
	*store.MemoryStore
	failID string
}

func (s failingStore) Put(ctx context.Context, r *models.PersistenceRecord) (store.Response, error) {
	if r.EventID == s.failID {
		return store.Response{}, errors.New("ProvisionedThroughputExceededException")
	}
	return s.MemoryStore.Put(ctx, r)
}

func TestRun_StoreFailureDoesNotFailBatch(t *testing.T) {
	s := failingStore{MemoryStore: store.NewMemoryStore(), failID: "b"}
	raw := pushEnvelope(t,
		`{"eventID":"a","eventTime":"t"}`,
		`{"eventID":"b","eventTime":"t"}`,
		`{"eventID":"c","eventTime":"t"}`,
	)

	outcomes, err := newPipeline(s).Run(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	succeeded, failed := pipeline.Summarize(outcomes)
	assert.Equal(t, 2, succeeded)
	assert.Equal(t, 1, failed)
	assert.Equal(t, persist.StatusFailure, outcomes[1].Status)
	assert.Equal(t, 2, s.Len())
}

func TestRun_BatchErrors(t *testing.T) {
	empty := pushEnvelope(t, `garbage`, `42`)
	notEnvelope := []byte(base64.StdEncoding.EncodeToString(gzipBytes(t, []byte(`{"foo":[]}`))))
	notJSON := []byte(base64.StdEncoding.EncodeToString(gzipBytes(t, []byte(`<<<`))))

	tests := []struct {
		name    string
		raw     []byte
		wantErr error
	}{
		{name: "not base64", raw: []byte("%%%"), wantErr: decoder.ErrDecode},
		{name: "base64 but not gzip", raw: []byte(base64.StdEncoding.EncodeToString([]byte("plain"))), wantErr: decoder.ErrDecode},
		{name: "gzip text is not JSON", raw: notJSON, wantErr: parser.ErrMalformedBatch},
		{name: "no logEvents key", raw: notEnvelope, wantErr: parser.ErrMalformedBatch},
		{name: "every payload invalid", raw: empty, wantErr: parser.ErrEmptyBatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.NewMemoryStore()
			outcomes, err := newPipeline(s).Run(context.Background(), tt.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, pipeline.IsBatchError(err))
			assert.Nil(t, outcomes)
			assert.Zero(t, s.Len())
		})
	}
}

func TestRun_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newPipeline(store.NewMemoryStore()).Run(ctx, pushEnvelope(t, `{"eventID":"a","eventTime":"t"}`))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, pipeline.IsBatchError(err))
}

func TestWith_OverridesDecoderAndParser(t *testing.T) {
	s := store.NewMemoryStore()
	base := newPipeline(s)

	records := []byte(`{"Records":[{"eventID":"r1","eventTime":"t"}]}`)
	_, err := base.Run(context.Background(), records)
	require.Error(t, err, "base pipeline expects base64 gzip")

	outcomes, err := base.With(decoder.Auto{}, parser.New(parser.FormatAuto)).Run(context.Background(), records)
	require.NoError(t, err)
	assert.Len(t, outcomes, 1)

	same := base.With(nil, nil)
	_, err = same.Run(context.Background(), records)
	assert.Error(t, err)
}
