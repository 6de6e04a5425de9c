package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certreg/internal/platform/logger"
	"certreg/internal/registry/models"
	id "certreg/pkg/domain"
)

// pausingStore holds the first Get after it has read the backing store, so a
// transfer can commit between the read and the cache fill.
type pausingStore struct {
	Store
	once   sync.Once
	paused chan struct{}
	resume chan struct{}
}

func (s *pausingStore) Get(ctx context.Context, certID id.CertificateID) (*models.Certificate, error) {
	cert, err := s.Store.Get(ctx, certID)
	s.once.Do(func() {
		close(s.paused)
		<-s.resume
	})
	return cert, err
}

func TestRedisCacheTransferDuringFill(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	base := NewInMemory()
	require.NoError(t, base.Bootstrap(ctx, testAdmin))
	cert, err := models.NewCertificate(0, "Blockchain Basics", "A", testWallet1, testAdmin, time.Now())
	require.NoError(t, err)
	require.NoError(t, base.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Insert(ctx, cert); err != nil {
			return err
		}
		return tx.SetNextID(ctx, 1)
	}))

	paused := &pausingStore{Store: base, paused: make(chan struct{}), resume: make(chan struct{})}
	cache := NewRedisCache(paused, client, time.Minute, logger.Discard())

	readDone := make(chan *models.Certificate, 1)
	go func() {
		got, err := cache.Get(ctx, 0)
		assert.NoError(t, err)
		readDone <- got
	}()
	<-paused.paused

	require.NoError(t, cache.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.SetOwner(ctx, 0, testWallet2, time.Now())
	}))
	close(paused.resume)

	racing := <-readDone
	require.NotNil(t, racing)
	assert.Equal(t, testWallet1, racing.Owner)
	assert.False(t, mr.Exists(certificateKey(0)), "stale record must not be cached")

	got, err := cache.Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, testWallet2, got.Owner)
}

func TestRedisCacheFillAndInvalidate(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	base := NewInMemory()
	require.NoError(t, base.Bootstrap(ctx, testAdmin))
	cache := NewRedisCache(base, client, time.Minute, logger.Discard())
	cert, err := models.NewCertificate(0, "Blockchain Basics", "A", testWallet1, testAdmin, time.Now())
	require.NoError(t, err)
	require.NoError(t, cache.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Insert(ctx, cert); err != nil {
			return err
		}
		return tx.SetNextID(ctx, 1)
	}))

	_, err = cache.Get(ctx, 0)
	require.NoError(t, err)
	assert.True(t, mr.Exists(certificateKey(0)))

	require.NoError(t, cache.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.SetOwner(ctx, 0, testWallet2, time.Now())
	}))
	assert.False(t, mr.Exists(certificateKey(0)))
	version, err := mr.Get(versionKey(0))
	require.NoError(t, err)
	assert.Equal(t, "1", version)

	got, err := cache.Get(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, testWallet2, got.Owner)
	assert.True(t, mr.Exists(certificateKey(0)))
}
