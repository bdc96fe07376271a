package source

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/telhawk-systems/trailhawk/common/logging"
	"github.com/telhawk-systems/trailhawk/common/messaging"
	natsmsg "github.com/telhawk-systems/trailhawk/common/messaging/nats"
	"github.com/telhawk-systems/trailhawk/internal/decoder"
	"github.com/telhawk-systems/trailhawk/internal/parser"
	"github.com/telhawk-systems/trailhawk/internal/pipeline"
)

// HeaderMsgID is the NATS de-duplication header, reused as the request ID.
const HeaderMsgID = "Nats-Msg-Id"

// DurableBroker is the part of natsmsg.JetStreamClient used for durable consumption.
type DurableBroker interface {
	CreateOrUpdateStream(ctx context.Context, cfg natsmsg.StreamConfig) (jetstream.Stream, error)
	CreateOrUpdateConsumer(ctx context.Context, streamName string, cfg natsmsg.ConsumerConfig) (jetstream.Consumer, error)
	ConsumeMessages(ctx context.Context, streamName, consumerName string, handler messaging.MessageHandler) (func(), error)
}

// Consumer runs each NATS message through the pipeline as one raw batch.
type Consumer struct {
	pipeline *pipeline.Pipeline
	logger   *logging.Logger
	subject  string
	queue    string
	maxBytes int64
}

// NewConsumer creates a Consumer on subject. Empty subject and queue use
// messaging.SubjectAuditBatches and messaging.QueueLanders.
func NewConsumer(p *pipeline.Pipeline, logger *logging.Logger, subject, queue string, maxBytes int64) *Consumer {
	if subject == "" {
		subject = messaging.SubjectAuditBatches
	}
	if queue == "" {
		queue = messaging.QueueLanders
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Consumer{pipeline: p, logger: logger, subject: subject, queue: queue, maxBytes: maxBytes}
}

// Subscribe joins the queue group on a core NATS connection.
func (c *Consumer) Subscribe(sub messaging.Subscriber) (messaging.Subscription, error) {
	s, err := sub.QueueSubscribe(c.subject, c.queue, c.Handle)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", c.subject, err)
	}
	c.logger.Info("consuming audit batches", "subject", c.subject, "queue", c.queue)
	return s, nil
}

// Durable consumes from the AUDIT_BATCHES stream with a durable consumer
// named after the queue group. It returns a stop function.
func (c *Consumer) Durable(ctx context.Context, broker DurableBroker) (func(), error) {
	stream := natsmsg.AuditBatchesStream
	stream.Subjects = []string{c.subject}
	if _, err := broker.CreateOrUpdateStream(ctx, stream); err != nil {
		return nil, err
	}
	if _, err := broker.CreateOrUpdateConsumer(ctx, stream.Name, natsmsg.DefaultConsumerConfig(c.queue, c.subject)); err != nil {
		return nil, err
	}

	stop, err := broker.ConsumeMessages(ctx, stream.Name, c.queue, c.Handle)
	if err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "consuming audit batches", "stream", stream.Name, "consumer", c.queue)
	return stop, nil
}

// Handle processes one message. Batches that can never succeed are logged
// and acknowledged; other failures are returned so durable transports
// redeliver.
func (c *Consumer) Handle(ctx context.Context, msg *messaging.Message) error {
	reqID := msg.Header(HeaderMsgID)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	ctx = logging.WithRequestID(ctx, reqID)

	if len(msg.Data) == 0 {
		c.logger.WarnContext(ctx, "rejected batch", "subject", msg.Subject, logging.Error(ErrEmptyPayload))
		return nil
	}

	p, err := c.pipelineFor(msg)
	if err != nil {
		c.logger.WarnContext(ctx, "rejected batch", "subject", msg.Subject, logging.Error(err))
		return nil
	}

	if _, err := p.Run(ctx, msg.Data); err != nil {
		if pipeline.IsBatchError(err) {
			c.logger.ErrorContext(ctx, "rejected batch", "subject", msg.Subject, logging.Error(err))
			return nil
		}
		return err
	}
	return nil
}

// pipelineFor applies the encoding and format headers, if any.
func (c *Consumer) pipelineFor(msg *messaging.Message) (*pipeline.Pipeline, error) {
	var (
		d  decoder.Decoder
		bp *parser.BatchParser
	)
	if name := msg.Header(messaging.HeaderEncoding); name != "" {
		dec, err := decoder.ForName(name, c.maxBytes)
		if err != nil {
			return nil, err
		}
		d = dec
	}
	if name := msg.Header(messaging.HeaderFormat); name != "" {
		format, err := parser.ParseFormat(name)
		if err != nil {
			return nil, err
		}
		bp = parser.New(format)
	}
	if d == nil && bp == nil {
		return c.pipeline, nil
	}
	return c.pipeline.With(d, bp), nil
}
