package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/telhawk-systems/trailhawk/common/logging"
	"github.com/telhawk-systems/trailhawk/common/messaging"
	natsmsg "github.com/telhawk-systems/trailhawk/common/messaging/nats"
	"github.com/telhawk-systems/trailhawk/internal/models"
)

// StreamPublisher is the part of natsmsg.JetStreamClient the queue uses.
type StreamPublisher interface {
	CreateOrUpdateStream(ctx context.Context, cfg natsmsg.StreamConfig) (jetstream.Stream, error)
	PublishSync(ctx context.Context, subject string, data []byte) (*jetstream.PubAck, error)
}

// JetStreamQueue publishes failed records to the AUDIT_DLQ stream so every
// landing instance shares one queue.
type JetStreamQueue struct {
	js      StreamPublisher
	stream  jetstream.Stream
	logger  *logging.Logger
	written atomic.Uint64
}

// NewJetStreamQueue ensures the DLQ stream exists.
func NewJetStreamQueue(ctx context.Context, js StreamPublisher, logger *logging.Logger) (*JetStreamQueue, error) {
	if js == nil {
		return nil, fmt.Errorf("jetstream client is nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	stream, err := js.CreateOrUpdateStream(ctx, natsmsg.AuditDLQStream)
	if err != nil {
		return nil, fmt.Errorf("create dlq stream: %w", err)
	}

	logger.InfoContext(ctx, "DLQ: JetStream stream ready", "stream", natsmsg.AuditDLQStream.Name)

	return &JetStreamQueue{js: js, stream: stream, logger: logger}, nil
}

// Write implements Writer.
func (q *JetStreamQueue) Write(ctx context.Context, backend string, record *models.PersistenceRecord, cause error) error {
	if q == nil {
		return nil
	}

	data, err := json.Marshal(newFailedRecord(backend, record, cause))
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}

	if _, err := q.js.PublishSync(ctx, messaging.DLQSubject(backend), data); err != nil {
		return fmt.Errorf("publish dlq entry: %w", err)
	}

	q.written.Add(1)
	q.logger.InfoContext(ctx, "DLQ: published failed record",
		logging.Store(backend),
		logging.EventID(eventID(record)),
	)
	return nil
}

// List reads up to limit entries through an ephemeral consumer.
func (q *JetStreamQueue) List(ctx context.Context, limit int) ([]FailedRecord, error) {
	if q == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = 100
	}

	consumer, err := q.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		FilterSubject: messaging.SubjectAuditDLQ + ".>",
		AckPolicy:     jetstream.AckNonePolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		MaxDeliver:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("create list consumer: %w", err)
	}

	msgs, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	var records []FailedRecord
	for msg := range msgs.Messages() {
		var failed FailedRecord
		if err := json.Unmarshal(msg.Data(), &failed); err != nil {
			q.logger.ErrorContext(ctx, "failed to parse DLQ message", logging.Error(err))
			continue
		}
		records = append(records, failed)
	}

	if err := msgs.Error(); err != nil {
		q.logger.WarnContext(ctx, "DLQ fetch completed with error", logging.Error(err))
	}
	return records, nil
}

// Purge empties the stream and returns how many messages it held.
func (q *JetStreamQueue) Purge(ctx context.Context) (int, error) {
	if q == nil {
		return 0, ErrDisabled
	}

	var held int
	if info, err := q.stream.Info(ctx); err == nil {
		held = int(info.State.Msgs)
	}

	if err := q.stream.Purge(ctx); err != nil {
		return 0, fmt.Errorf("purge dlq stream: %w", err)
	}

	q.logger.InfoContext(ctx, "DLQ: purged stream", logging.Count(held))
	return held, nil
}

// Stats returns stream state.
func (q *JetStreamQueue) Stats(ctx context.Context) map[string]any {
	if q == nil {
		return map[string]any{"enabled": false, "backend": "jetstream"}
	}

	stats := map[string]any{
		"enabled":       true,
		"backend":       "jetstream",
		"written_local": q.written.Load(),
	}

	info, err := q.stream.Info(ctx)
	if err != nil {
		stats["error"] = err.Error()
		return stats
	}

	stats["total_messages"] = info.State.Msgs
	stats["total_bytes"] = info.State.Bytes
	stats["first_seq"] = info.State.FirstSeq
	stats["last_seq"] = info.State.LastSeq
	stats["consumer_count"] = info.State.Consumers
	return stats
}
