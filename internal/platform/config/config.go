package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	id "certreg/pkg/domain"
)

// EnvPrefix namespaces every variable, e.g. CERTREG_ADDR.
const EnvPrefix = "CERTREG"

// DevSigningKey is the default JWT key. It is public, so Validate only
// accepts it for in-memory development runs.
const DevSigningKey = "dev-secret-key-change-in-production"

// Config is the process configuration loaded from CERTREG_* variables.
type Config struct {
	Addr        string `envconfig:"ADDR" default:":8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":8090"`
	// Admin is the deployer identity installed on first bootstrap.
	Admin string `envconfig:"ADMIN" required:"true"`
	// OpsToken enables /drain and /undrain for callers presenting it.
	OpsToken string `envconfig:"OPS_TOKEN"`

	Log      Log      `envconfig:"LOG"`
	HTTP     HTTP     `envconfig:"HTTP"`
	JWT      JWT      `envconfig:"JWT"`
	Database Database `envconfig:"DATABASE"`
	Redis    Redis    `envconfig:"REDIS"`
	Kafka    Kafka    `envconfig:"KAFKA"`
}

type Log struct {
	Level   string `envconfig:"LEVEL" default:"info"`
	JSON    bool   `envconfig:"JSON" default:"true"`
	Service string `envconfig:"SERVICE" default:"certreg"`
	Version string `envconfig:"VERSION" default:"dev"`
}

type HTTP struct {
	ReadHeaderTimeout time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"5s"`
	RequestTimeout    time.Duration `envconfig:"REQUEST_TIMEOUT" default:"15s"`
	ShutdownTimeout   time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// JWT configures bearer token verification. The sub claim is the caller.
type JWT struct {
	SigningKey string        `envconfig:"SIGNING_KEY" default:"dev-secret-key-change-in-production"`
	Issuer     string        `envconfig:"ISSUER" default:"certreg"`
	TTL        time.Duration `envconfig:"TTL" default:"1h"`
}

// Database selects the PostgreSQL store when URL is set; otherwise the
// registry lives in memory.
type Database struct {
	URL             string        `envconfig:"URL"`
	MaxOpenConns    int           `envconfig:"MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CONN_MAX_LIFETIME" default:"5m"`
	Migrate         bool          `envconfig:"MIGRATE" default:"true"`
	// TxTimeout caps each registry transaction. On the HTTP path it only
	// applies when shorter than HTTP.RequestTimeout.
	TxTimeout time.Duration `envconfig:"TX_TIMEOUT" default:"5s"`
}

type Redis struct {
	URL          string        `envconfig:"URL"`
	PoolSize     int           `envconfig:"POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"3s"`
	CacheTTL     time.Duration `envconfig:"CACHE_TTL" default:"5m"`
}

type Kafka struct {
	Brokers           []string      `envconfig:"BROKERS"`
	Topic             string        `envconfig:"TOPIC" default:"certreg.events"`
	Partitions        int32         `envconfig:"PARTITIONS" default:"1"`
	ReplicationFactor int16         `envconfig:"REPLICATION_FACTOR" default:"1"`
	RelayInterval     time.Duration `envconfig:"RELAY_INTERVAL" default:"1s"`
	RelayBatchSize    int           `envconfig:"RELAY_BATCH_SIZE" default:"100"`
	// ConsumerGroup enables the audit log consumer when set.
	ConsumerGroup string `envconfig:"CONSUMER_GROUP"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// AdminPrincipal parses the configured deployer identity.
func (c *Config) AdminPrincipal() (id.Principal, error) {
	return id.ParsePrincipal(c.Admin)
}

// Validate checks cross-field constraints that struct tags cannot express.
func (c *Config) Validate() error {
	if _, err := c.AdminPrincipal(); err != nil {
		return fmt.Errorf("invalid %s_ADMIN: %w", EnvPrefix, err)
	}
	if c.JWT.SigningKey == "" {
		return errors.New("jwt signing key must not be empty")
	}
	if c.JWT.SigningKey == DevSigningKey && !c.isDevelopment() {
		return fmt.Errorf("%s_JWT_SIGNING_KEY must be set when a database or a release version is configured", EnvPrefix)
	}
	if c.Redis.URL != "" && c.Database.URL == "" {
		return errors.New("redis cache requires a database url")
	}
	if len(c.Kafka.Brokers) > 0 {
		if c.Database.URL == "" {
			return errors.New("kafka relay requires a database url")
		}
		if c.Kafka.Topic == "" {
			return errors.New("kafka topic must not be empty")
		}
		if c.Kafka.RelayBatchSize <= 0 {
			return errors.New("kafka relay batch size must be positive")
		}
		if c.Kafka.RelayInterval <= 0 {
			return errors.New("kafka relay interval must be positive")
		}
	}
	return nil
}

// isDevelopment reports whether this is a throwaway run: in-memory state and
// no release version.
func (c *Config) isDevelopment() bool {
	return c.Database.URL == "" && (c.Log.Version == "" || c.Log.Version == "dev")
}

// ConsumerEnabled reports whether the audit log consumer should run.
func (c *Config) ConsumerEnabled() bool {
	return c.RelayEnabled() && c.Kafka.ConsumerGroup != ""
}

// RelayEnabled reports whether the outbox relay should run.
func (c *Config) RelayEnabled() bool {
	return c.Database.URL != "" && len(c.Kafka.Brokers) > 0
}
