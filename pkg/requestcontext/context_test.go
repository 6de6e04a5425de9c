package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	id "certreg/pkg/domain"
)

func TestCaller(t *testing.T) {
	t.Run("absent caller", func(t *testing.T) {
		_, ok := Caller(context.Background())
		assert.False(t, ok)
	})

	t.Run("zero caller counts as absent", func(t *testing.T) {
		_, ok := Caller(WithCaller(context.Background(), ""))
		assert.False(t, ok)
	})

	t.Run("round trip", func(t *testing.T) {
		p := id.MustPrincipal("ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM")
		caller, ok := Caller(WithCaller(context.Background(), p))
		assert.True(t, ok)
		assert.Equal(t, p, caller)
	})
}

func TestNow(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, fixed, Now(WithTime(context.Background(), fixed)))
	assert.WithinDuration(t, time.Now(), Now(context.Background()), time.Second)
}

func TestRequestID(t *testing.T) {
	assert.Empty(t, RequestID(context.Background()))
	assert.Equal(t, "req-1", RequestID(WithRequestID(context.Background(), "req-1")))
}
