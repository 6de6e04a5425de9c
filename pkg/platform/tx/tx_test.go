package tx

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithTx(t *testing.T) {
	t.Run("nil transaction leaves context untouched", func(t *testing.T) {
		ctx := context.Background()
		assert.Equal(t, ctx, WithTx(ctx, nil))
		_, ok := From(ctx)
		assert.False(t, ok)
	})

	t.Run("transaction round-trips through context", func(t *testing.T) {
		sqlTx := &sql.Tx{}
		ctx := WithTx(context.Background(), sqlTx)
		got, ok := From(ctx)
		assert.True(t, ok)
		assert.Same(t, sqlTx, got)
	})

	t.Run("executor prefers the context transaction", func(t *testing.T) {
		db := &sql.DB{}
		assert.Same(t, db, ExecutorFor(context.Background(), db))

		sqlTx := &sql.Tx{}
		assert.Same(t, sqlTx, ExecutorFor(WithTx(context.Background(), sqlTx), db))
	})
}
