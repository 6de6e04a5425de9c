package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		t.Setenv("CERTREG_ADMIN", "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, ":8080", cfg.Addr)
		assert.Equal(t, ":8090", cfg.MetricsAddr)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, 15*time.Second, cfg.HTTP.RequestTimeout)
		assert.Equal(t, "certreg.events", cfg.Kafka.Topic)
		assert.False(t, cfg.RelayEnabled())
	})

	t.Run("reads nested variables", func(t *testing.T) {
		t.Setenv("CERTREG_ADMIN", "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM")
		t.Setenv("CERTREG_DATABASE_URL", "postgres://localhost/certreg")
		t.Setenv("CERTREG_JWT_SIGNING_KEY", "prod-key")
		t.Setenv("CERTREG_KAFKA_BROKERS", "localhost:9092,localhost:9093")
		t.Setenv("CERTREG_REDIS_CACHE_TTL", "30s")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, []string{"localhost:9092", "localhost:9093"}, cfg.Kafka.Brokers)
		assert.Equal(t, 30*time.Second, cfg.Redis.CacheTTL)
		assert.True(t, cfg.RelayEnabled())
		assert.False(t, cfg.ConsumerEnabled())
	})

	t.Run("consumer group enables the audit log consumer", func(t *testing.T) {
		t.Setenv("CERTREG_ADMIN", "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM")
		t.Setenv("CERTREG_DATABASE_URL", "postgres://localhost/certreg")
		t.Setenv("CERTREG_JWT_SIGNING_KEY", "prod-key")
		t.Setenv("CERTREG_KAFKA_BROKERS", "localhost:9092")
		t.Setenv("CERTREG_KAFKA_CONSUMER_GROUP", "certreg-audit")

		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.ConsumerEnabled())
	})

	t.Run("default signing key is rejected with a database", func(t *testing.T) {
		t.Setenv("CERTREG_ADMIN", "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM")
		t.Setenv("CERTREG_DATABASE_URL", "postgres://localhost/certreg")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "CERTREG_JWT_SIGNING_KEY")
	})

	t.Run("admin is required", func(t *testing.T) {
		t.Setenv("CERTREG_ADMIN", "")

		_, err := Load()
		require.Error(t, err)
	})

	t.Run("admin must be a valid principal", func(t *testing.T) {
		t.Setenv("CERTREG_ADMIN", "not a principal")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "CERTREG_ADMIN")
	})
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Admin: "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM",
			JWT:   JWT{SigningKey: "secret"},
			Kafka: Kafka{Topic: "events", RelayBatchSize: 10, RelayInterval: time.Second},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid memory config", mutate: func(*Config) {}},
		{
			name:    "empty signing key",
			mutate:  func(c *Config) { c.JWT.SigningKey = "" },
			wantErr: "signing key",
		},
		{
			name:   "default signing key in memory dev run",
			mutate: func(c *Config) { c.JWT.SigningKey = DevSigningKey; c.Log.Version = "dev" },
		},
		{
			name: "default signing key with database",
			mutate: func(c *Config) {
				c.JWT.SigningKey = DevSigningKey
				c.Database.URL = "postgres://localhost/certreg"
			},
			wantErr: "SIGNING_KEY must be set",
		},
		{
			name: "default signing key with release version",
			mutate: func(c *Config) {
				c.JWT.SigningKey = DevSigningKey
				c.Log.Version = "v1.4.0"
			},
			wantErr: "SIGNING_KEY must be set",
		},
		{
			name:    "redis without database",
			mutate:  func(c *Config) { c.Redis.URL = "redis://localhost:6379" },
			wantErr: "redis cache requires",
		},
		{
			name:    "kafka without database",
			mutate:  func(c *Config) { c.Kafka.Brokers = []string{"localhost:9092"} },
			wantErr: "kafka relay requires",
		},
		{
			name: "kafka with zero batch size",
			mutate: func(c *Config) {
				c.Database.URL = "postgres://localhost/certreg"
				c.Kafka.Brokers = []string{"localhost:9092"}
				c.Kafka.RelayBatchSize = 0
			},
			wantErr: "batch size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
