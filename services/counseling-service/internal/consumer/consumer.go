package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/pastoralcare/libs/kafkax"
	"github.com/md-rashed-zaman/pastoralcare/libs/metrics"
	"github.com/md-rashed-zaman/pastoralcare/services/counseling-service/internal/lifecycle"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// Reader is the part of a group reader the consumer needs. Offsets are
// committed explicitly, after a message has reached a final outcome.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Inbox interface {
	Record(ctx context.Context, eventID string, eventType string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

type Consumer struct {
	reader  Reader
	logger  *slog.Logger
	inbox   Inbox
	handler Handler
	metrics *metrics.Collector
	retries int
	backoff time.Duration
}

type Config struct {
	Brokers []string
	GroupID string
	Topic   string
}

func New(logger *slog.Logger, inbox Inbox, m *metrics.Collector, cfg Config, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return NewWithReader(reader, logger, inbox, m, handler)
}

func NewWithReader(reader Reader, logger *slog.Logger, inbox Inbox, m *metrics.Collector, handler Handler) *Consumer {
	return &Consumer{
		reader:  reader,
		logger:  logger,
		inbox:   inbox,
		handler: handler,
		metrics: m,
		retries: 3,
		backoff: time.Second,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.backoff):
			}
			continue
		}
		if !c.handle(ctx, msg) {
			return
		}
	}
}

// handle processes msg until it reaches a final outcome and then commits its
// offset. A failed message is retried in place so later offsets are never
// committed past it. It reports false when ctx ends first; the offset stays
// uncommitted and the group redelivers the message.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) bool {
	for {
		outcome := c.process(ctx, msg)
		c.count(outcome)
		if outcome != "failed" {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.backoff):
		}
	}
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		if ctx.Err() != nil {
			return false
		}
		c.logger.Error("kafka commit error", "err", err, "topic", msg.Topic, "offset", msg.Offset)
	}
	return true
}

// process handles one message and returns its outcome label.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) string {
	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	if meta.EventID == "" {
		c.logger.Warn("intake message without event id", "topic", msg.Topic, "offset", msg.Offset)
		return "rejected"
	}

	ok, err := c.inbox.Record(ctxSpan, meta.EventID, meta.EventType)
	if err != nil {
		c.logger.Error("inbox record failed", "err", err, "event_id", meta.EventID)
		span.RecordError(err)
		span.SetStatus(codes.Error, "inbox")
		return "failed"
	}
	if !ok {
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return "duplicate"
	}

	for attempt := 0; ; attempt++ {
		err = c.handler(ctxSpan, msg)
		if err == nil {
			return "created"
		}
		if lifecycle.KindOf(err) != "" {
			// The request itself is unacceptable; retrying cannot help.
			c.logger.Warn("intake request rejected", "err", err, "event_id", meta.EventID)
			span.RecordError(err)
			return "rejected"
		}
		if attempt >= c.retries || ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(c.backoff * time.Duration(attempt+1)):
		}
	}

	c.logger.Error("handler error", "err", err, "event_id", meta.EventID)
	span.RecordError(err)
	span.SetStatus(codes.Error, "handler")
	if ferr := c.inbox.Forget(context.WithoutCancel(ctxSpan), meta.EventID); ferr != nil {
		c.logger.Error("inbox forget failed", "err", ferr, "event_id", meta.EventID)
	}
	return "failed"
}

func (c *Consumer) count(outcome string) {
	if c.metrics != nil {
		c.metrics.IntakeConsumed.WithLabelValues(outcome).Inc()
	}
}
