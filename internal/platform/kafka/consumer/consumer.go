package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"certreg/internal/platform/config"
)

// Message is a consumed record.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// Header returns the value of header key, or "".
func (m *Message) Header(key string) string {
	return m.Headers[key]
}

// Handler processes one message. Returning an error retries the message.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

const (
	defaultMaxAttempts  = 5
	defaultRetryBackoff = 200 * time.Millisecond
)

// Consumer reads a topic as part of a consumer group and commits offsets
// only after the handler accepted the records.
type Consumer struct {
	client       *kgo.Client
	logger       *slog.Logger
	maxAttempts  int
	retryBackoff time.Duration
}

// New joins cfg.ConsumerGroup on cfg.Topic. New groups start at the
// earliest offset.
func New(cfg config.Kafka, logger *slog.Logger, opts ...kgo.Opt) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka consumer requires at least one broker")
	}
	if cfg.ConsumerGroup == "" {
		return nil, errors.New("kafka consumer requires a consumer group")
	}

	base := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.DisableAutoCommit(),
	}
	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	return &Consumer{
		client:       client,
		logger:       logger,
		maxAttempts:  defaultMaxAttempts,
		retryBackoff: defaultRetryBackoff,
	}, nil
}

// Run polls until ctx is cancelled. A message whose handler keeps failing
// is logged and skipped after maxAttempts so one poison record cannot stall
// the partition.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Warn("kafka fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})

		var handled []*kgo.Record
		iter := fetches.RecordIter()
		for !iter.Done() {
			rec := iter.Next()
			if err := c.handle(ctx, h, fromRecord(rec)); err != nil {
				if ctx.Err() != nil {
					c.commit(context.WithoutCancel(ctx), handled)
					return nil
				}
				c.logger.Error("dropping kafka message after retries",
					"topic", rec.Topic,
					"partition", rec.Partition,
					"offset", rec.Offset,
					"error", err,
				)
			}
			handled = append(handled, rec)
		}
		c.commit(ctx, handled)
	}
}

func (c *Consumer) handle(ctx context.Context, h Handler, msg *Message) error {
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err = h.Handle(ctx, msg); err == nil {
			return nil
		}
		if attempt == c.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryBackoff * time.Duration(attempt)):
		}
	}
	return err
}

func (c *Consumer) commit(ctx context.Context, records []*kgo.Record) {
	if len(records) == 0 {
		return
	}
	if err := c.client.CommitRecords(ctx, records...); err != nil {
		c.logger.Warn("kafka commit failed", "records", len(records), "error", err)
	}
}

// Close leaves the group and closes the client.
func (c *Consumer) Close() {
	c.client.Close()
}

func fromRecord(rec *kgo.Record) *Message {
	msg := &Message{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Key:       rec.Key,
		Value:     rec.Value,
		Timestamp: rec.Timestamp,
	}
	if len(rec.Headers) > 0 {
		msg.Headers = make(map[string]string, len(rec.Headers))
		for _, h := range rec.Headers {
			msg.Headers[h.Key] = string(h.Value)
		}
	}
	return msg
}
