package dlq_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/trailhawk/common/logging"
	natsmsg "github.com/telhawk-systems/trailhawk/common/messaging/nats"
	"github.com/telhawk-systems/trailhawk/internal/dlq"
)

type fakeStream struct {
	jetstream.Stream
	msgs   uint64
	purged bool
}

func (s *fakeStream) Info(context.Context, ...jetstream.StreamInfoOpt) (*jetstream.StreamInfo, error) {
	return &jetstream.StreamInfo{State: jetstream.StreamState{Msgs: s.msgs, Bytes: s.msgs * 100}}, nil
}

func (s *fakeStream) Purge(context.Context, ...jetstream.StreamPurgeOpt) error {
	s.purged = true
	s.msgs = 0
	return nil
}

type published struct {
	subject string
	data    []byte
}

type fakeJetStream struct {
	stream    *fakeStream
	streamCfg natsmsg.StreamConfig
	published []published
	pubErr    error
}

func (f *fakeJetStream) CreateOrUpdateStream(_ context.Context, cfg natsmsg.StreamConfig) (jetstream.Stream, error) {
	f.streamCfg = cfg
	return f.stream, nil
}

func (f *fakeJetStream) PublishSync(_ context.Context, subject string, data []byte) (*jetstream.PubAck, error) {
	if f.pubErr != nil {
		return nil, f.pubErr
	}
	f.published = append(f.published, published{subject: subject, data: data})
	f.stream.msgs++
	return &jetstream.PubAck{Stream: f.streamCfg.Name, Sequence: f.stream.msgs}, nil
}

func TestJetStreamQueue(t *testing.T) {
	js := &fakeJetStream{stream: &fakeStream{}}
	ctx := context.Background()

	queue, err := dlq.NewJetStreamQueue(ctx, js, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, "AUDIT_DLQ", js.streamCfg.Name)

	require.NoError(t, queue.Write(ctx, "dynamodb", failedRecord("e1"), errors.New("throttled")))

	require.Len(t, js.published, 1)
	assert.Equal(t, "audit.dlq.dynamodb", js.published[0].subject)

	var entry dlq.FailedRecord
	require.NoError(t, json.Unmarshal(js.published[0].data, &entry))
	assert.Equal(t, "e1", entry.Record.EventID)
	assert.Equal(t, "throttled", entry.Error)
	assert.Equal(t, "dynamodb", entry.Backend)

	stats := queue.Stats(ctx)
	assert.Equal(t, uint64(1), stats["written_local"])
	assert.Equal(t, uint64(1), stats["total_messages"])

	n, err := queue.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, js.stream.purged)
}

func TestJetStreamQueue_PublishError(t *testing.T) {
	js := &fakeJetStream{stream: &fakeStream{}, pubErr: errors.New("nats: timeout")}
	queue, err := dlq.NewJetStreamQueue(context.Background(), js, logging.Discard())
	require.NoError(t, err)

	err = queue.Write(context.Background(), "redis", failedRecord("e1"), errors.New("boom"))
	assert.ErrorContains(t, err, "nats: timeout")
}

func TestNewJetStreamQueue_NilClient(t *testing.T) {
	_, err := dlq.NewJetStreamQueue(context.Background(), nil, logging.Discard())
	assert.Error(t, err)
}
