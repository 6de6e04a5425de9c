package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"certreg/internal/platform/kafka/producer"
	audit "certreg/pkg/platform/audit"
	auditconsumer "certreg/pkg/platform/audit/consumer"
)

// HeaderEventType carries the audit action of a published entry.
const HeaderEventType = "event_type"

const (
	defaultBatchSize = 100
	defaultInterval  = time.Second
)

// Publisher sends messages to the event stream.
type Publisher interface {
	Publish(ctx context.Context, msgs ...producer.Message) error
}

// Relay moves outbox entries to Kafka. Delivery is at-least-once: a crash
// between publish and commit republishes the batch, and consumers dedupe
// on the event id.
type Relay struct {
	store     Store
	publisher Publisher
	logger    *slog.Logger
	metrics   *Metrics
	batchSize int
	interval  time.Duration
}

type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func NewRelay(store Store, publisher Publisher, opts ...Option) (*Relay, error) {
	if store == nil {
		return nil, errors.New("outbox store is required")
	}
	if publisher == nil {
		return nil, errors.New("publisher is required")
	}
	r := &Relay{
		store:     store,
		publisher: publisher,
		logger:    slog.New(slog.DiscardHandler),
		batchSize: defaultBatchSize,
		interval:  defaultInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run relays on every tick until ctx is cancelled. A full batch is followed
// immediately by another one so a backlog drains without waiting.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("outbox relay started", "interval", r.interval, "batch_size", r.batchSize)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		for {
			n, err := r.RelayOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					break
				}
				r.logger.Warn("outbox relay batch failed", "error", err)
				break
			}
			if n < r.batchSize {
				break
			}
		}
		r.refreshPending(ctx)

		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RelayOnce publishes at most one batch and returns how many entries were
// marked published.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := r.store.Deliver(ctx, r.batchSize, func(ctx context.Context, entries []Entry) error {
		msgs := make([]producer.Message, 0, len(entries))
		for _, e := range entries {
			msgs = append(msgs, toMessage(e))
		}
		return r.publisher.Publish(ctx, msgs...)
	})
	r.metrics.observeBatch(n, time.Since(start).Seconds(), err != nil)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Debug("outbox batch published", "count", n)
	}
	return n, nil
}

func (r *Relay) refreshPending(ctx context.Context) {
	if r.metrics == nil || ctx.Err() != nil {
		return
	}
	n, err := r.store.Pending(ctx)
	if err != nil {
		r.logger.Debug("count pending outbox entries failed", "error", err)
		return
	}
	r.metrics.setPending(n)
}

func toMessage(e Entry) producer.Message {
	return producer.Message{
		Key:   []byte(e.AggregateID),
		Value: e.Payload,
		Headers: map[string]string{
			HeaderEventType:              e.EventType,
			auditconsumer.HeaderCategory: string(audit.AuditEvent(e.EventType).Category()),
			"event_id":                   e.ID.String(),
			"aggregate_type":             e.AggregateType,
		},
	}
}
