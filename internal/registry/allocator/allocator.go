// Package allocator assigns certificate identifiers.
package allocator

import (
	"context"
	"errors"
	"fmt"
	"math"

	id "certreg/pkg/domain"
)

// Counter is the slice of a store transaction the allocator needs.
type Counter interface {
	NextID(ctx context.Context) (id.CertificateID, error)
	SetNextID(ctx context.Context, next id.CertificateID) error
}

// ErrExhausted is returned once every uint64 id has been handed out.
var ErrExhausted = errors.New("certificate id space exhausted")

// Allocate returns the counter's current value and advances it by one.
// It must run inside the mint transaction so the advance is discarded when
// the mint fails.
func Allocate(ctx context.Context, c Counter) (id.CertificateID, error) {
	next, err := c.NextID(ctx)
	if err != nil {
		return 0, fmt.Errorf("read next id: %w", err)
	}
	if uint64(next) == math.MaxUint64 {
		return 0, ErrExhausted
	}
	if err := c.SetNextID(ctx, next+1); err != nil {
		return 0, fmt.Errorf("advance next id: %w", err)
	}
	return next, nil
}
