// Package outbox relays audit events written to the transactional outbox
// table to Kafka.
package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Entry is one row of the outbox table.
type Entry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// Store hands out unpublished entries.
type Store interface {
	// Deliver locks up to limit unpublished entries, oldest first, and passes
	// them to fn. The entries are marked published only when fn succeeds;
	// otherwise they stay pending for the next call. It returns the number
	// of entries marked.
	Deliver(ctx context.Context, limit int, fn func(ctx context.Context, entries []Entry) error) (int, error)
	// Pending counts unpublished entries.
	Pending(ctx context.Context) (int, error)
}
