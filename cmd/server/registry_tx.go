package main

import (
	"context"
	"time"

	"certreg/internal/registry/store"
	dErrors "certreg/pkg/domain-errors"
)

const defaultRegistryTxTimeout = 5 * time.Second

// timeoutStore bounds every registry transaction so a stuck row lock cannot
// hold a request forever. HTTP requests already carry the request timeout;
// the transaction bound only shortens it.
type timeoutStore struct {
	store.Store
	timeout time.Duration
}

func withTxTimeout(st store.Store, timeout time.Duration) *timeoutStore {
	return &timeoutStore{Store: st, timeout: timeout}
}

func (t *timeoutStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultRegistryTxTimeout
	}
	// The earlier of the caller's deadline and the transaction bound wins.
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return t.Store.RunInTx(ctx, fn)
}
