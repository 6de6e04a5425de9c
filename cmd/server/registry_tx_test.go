package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certreg/internal/registry/store"
	id "certreg/pkg/domain"
	dErrors "certreg/pkg/domain-errors"
)

func TestTimeoutStore(t *testing.T) {
	base := store.NewInMemory()
	require.NoError(t, base.Bootstrap(context.Background(), id.MustPrincipal("ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM")))
	st := withTxTimeout(base, time.Minute)

	t.Run("adds a deadline when the caller has none", func(t *testing.T) {
		err := st.RunInTx(context.Background(), func(ctx context.Context, _ store.Tx) error {
			deadline, ok := ctx.Deadline()
			assert.True(t, ok)
			assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("keeps a shorter caller deadline", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		want, _ := ctx.Deadline()

		err := st.RunInTx(ctx, func(ctx context.Context, _ store.Tx) error {
			got, _ := ctx.Deadline()
			assert.Equal(t, want, got)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("shortens a longer caller deadline", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
		defer cancel()

		err := st.RunInTx(ctx, func(ctx context.Context, _ store.Tx) error {
			got, ok := ctx.Deadline()
			assert.True(t, ok)
			assert.WithinDuration(t, time.Now().Add(time.Minute), got, 5*time.Second)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("cancelled context is a timeout", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := st.RunInTx(ctx, func(context.Context, store.Tx) error {
			t.Fatal("transaction body must not run")
			return nil
		})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	})
}
