package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"certreg/internal/registry/models"
	id "certreg/pkg/domain"
)

const (
	certificateKeyPrefix = "certreg:cert:"
	versionKeyPrefix     = "certreg:certver:"
)

var errStaleFill = errors.New("certificate changed during cache fill")

// RedisCache is a read-through cache for certificate lookups in front of
// another Store. Only hits are cached.
//
// Every certificate has a version counter in Redis. A committed transfer
// bumps the version and deletes the entry in one MULTI. A fill watches the
// version it saw before reading the backing store and is dropped if the
// version moved, so a read racing a transfer never caches the old owner.
// Version keys carry no TTL.
//
// Redis is optional: cache failures are logged and fall through to the
// backing store, and Health does not depend on Redis.
type RedisCache struct {
	Store
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisCache(base Store, client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{Store: base, client: client, ttl: ttl, logger: logger}
}

func certificateKey(certID id.CertificateID) string {
	return certificateKeyPrefix + certID.String()
}

func versionKey(certID id.CertificateID) string {
	return versionKeyPrefix + certID.String()
}

func (c *RedisCache) Get(ctx context.Context, certID id.CertificateID) (*models.Certificate, error) {
	key := certificateKey(certID)
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cert models.Certificate
		if jsonErr := json.Unmarshal(raw, &cert); jsonErr == nil {
			return &cert, nil
		}
		c.logger.WarnContext(ctx, "discarding undecodable cache entry", "key", key)
	case errors.Is(err, redis.Nil):
	default:
		c.logger.WarnContext(ctx, "certificate cache read failed", "key", key, "error", err)
		return c.Store.Get(ctx, certID)
	}

	version, verErr := c.version(ctx, c.client, certID)
	cert, err := c.Store.Get(ctx, certID)
	if err != nil {
		return nil, err
	}
	if verErr != nil {
		c.logger.WarnContext(ctx, "certificate cache version read failed", "key", key, "error", verErr)
		return cert, nil
	}
	c.fill(ctx, certID, version, cert)
	return cert, nil
}

// stringGetter is satisfied by both the client and a WATCH transaction.
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (c *RedisCache) version(ctx context.Context, cmd stringGetter, certID id.CertificateID) (int64, error) {
	v, err := cmd.Get(ctx, versionKey(certID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// fill caches cert unless the certificate's version moved past seen.
func (c *RedisCache) fill(ctx context.Context, certID id.CertificateID, seen int64, cert *models.Certificate) {
	key := certificateKey(certID)
	payload, err := json.Marshal(cert)
	if err != nil {
		return
	}
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := c.version(ctx, tx, certID)
		if err != nil {
			return err
		}
		if current != seen {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, c.ttl)
			return nil
		})
		return err
	}, versionKey(certID))
	switch {
	case err == nil:
	case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		c.logger.DebugContext(ctx, "skipping stale certificate cache fill", "key", key)
	default:
		c.logger.WarnContext(ctx, "certificate cache write failed", "key", key, "error", err)
	}
}

func (c *RedisCache) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	var touched []id.CertificateID
	err := c.Store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return fn(ctx, &invalidatingTx{Tx: tx, touched: &touched})
	})
	if err != nil || len(touched) == 0 {
		return err
	}
	c.invalidate(context.WithoutCancel(ctx), touched)
	return nil
}

func (c *RedisCache) invalidate(ctx context.Context, certIDs []id.CertificateID) {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, certID := range certIDs {
			pipe.Incr(ctx, versionKey(certID))
			pipe.Del(ctx, certificateKey(certID))
		}
		return nil
	})
	if err != nil {
		c.logger.WarnContext(ctx, "certificate cache invalidation failed", "certificate_ids", certIDs, "error", err)
	}
}

// Health reports the backing store only. An unreachable Redis is logged as
// degraded since reads still succeed without it.
func (c *RedisCache) Health(ctx context.Context) error {
	if err := c.Store.Health(ctx); err != nil {
		return err
	}
	if err := c.client.Ping(ctx).Err(); err != nil {
		c.logger.WarnContext(ctx, "certificate cache degraded", "error", err)
	}
	return nil
}

type invalidatingTx struct {
	Tx
	touched *[]id.CertificateID
}

func (t *invalidatingTx) SetOwner(ctx context.Context, certID id.CertificateID, owner id.Principal, now time.Time) error {
	if err := t.Tx.SetOwner(ctx, certID, owner, now); err != nil {
		return err
	}
	*t.touched = append(*t.touched, certID)
	return nil
}
