package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Job store backends.
const (
	JobStoreMemory = "memory"
	JobStoreRedis  = "redis"
)

// Config holds all configuration for bomdiff-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// ShutdownTimeout bounds graceful shutdown of the HTTP server.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"15s"`

	Identity IdentityConfig `yaml:"identity"`
	Features FeatureConfig  `yaml:"features"`
	JobStore JobStoreConfig `yaml:"job_store"`
	Events   EventsConfig   `yaml:"events"`

	// Database configuration (PostgreSQL), used only for the persisted event log.
	Database DatabaseConfig `yaml:"database"`

	Redis RedisConfig `yaml:"redis"`
}

// IdentityConfig names the headers an upstream gateway uses to pass the caller identity.
type IdentityConfig struct {
	TenantHeader string `yaml:"tenant_header" env:"IDENTITY_TENANT_HEADER" env-default:"X-Tenant-ID"`
	UserHeader   string `yaml:"user_header" env:"IDENTITY_USER_HEADER" env-default:"X-User-ID"`
}

// FeatureFlag is a loosely-typed on/off switch. Anything other than
// false, 0, off or no (case-insensitive) counts as enabled.
type FeatureFlag string

// Enabled reports whether the flag is on.
func (f FeatureFlag) Enabled() bool {
	switch strings.ToLower(strings.TrimSpace(string(f))) {
	case "false", "0", "off", "no":
		return false
	}
	return true
}

// FeatureConfig holds rollout switches for the diff surfaces.
type FeatureConfig struct {
	DiffEngineV1         FeatureFlag `yaml:"diff_engine_v1" env:"DIFF_ENGINE_V1" env-default:"true"`
	DiffProgressiveAPIV1 FeatureFlag `yaml:"diff_progressive_api_v1" env:"DIFF_PROGRESSIVE_API_V1" env-default:"true"`
}

// JobStoreConfig selects where diff jobs are kept.
type JobStoreConfig struct {
	// Backend is "memory" or "redis".
	Backend string `yaml:"backend" env:"JOB_STORE_BACKEND" env-default:"memory"`
	// TTL is how long a job stays retrievable in Redis. Ignored by the memory store.
	TTL time.Duration `yaml:"ttl" env:"JOB_STORE_TTL" env-default:"24h"`
}

// EventsConfig controls diff job event emission.
type EventsConfig struct {
	// Persist enables writing events to PostgreSQL in addition to the log.
	Persist bool `yaml:"persist" env:"DIFF_EVENTS_PERSIST" env-default:"false"`
	// BufferSize is the number of events queued for persistence before new ones are dropped.
	BufferSize int `yaml:"buffer_size" env:"DIFF_EVENTS_BUFFER_SIZE" env-default:"256"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"bomdiff"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"bomdiff_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RedisConfig holds Redis connection configuration. An empty host disables Redis.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// A missing config.yaml is not an error: defaults and environment variables apply.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFile("config.yaml", version)
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{}

	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	case errors.Is(statErr, fs.ErrNotExist):
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to stat %s: %w", path, statErr)
	}
	cfg.Version = version

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg.Database.Host = ResolveHostForDocker(cfg.Database.Host)
	cfg.Redis.Host = ResolveHostForDocker(cfg.Redis.Host)

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.JobStore.Backend {
	case JobStoreMemory:
	case JobStoreRedis:
		if c.Redis.Host == "" {
			return fmt.Errorf("job_store.backend is %q but redis.host is empty", JobStoreRedis)
		}
	default:
		return fmt.Errorf("unknown job_store.backend %q", c.JobStore.Backend)
	}

	if c.Identity.TenantHeader == "" || c.Identity.UserHeader == "" {
		return fmt.Errorf("identity headers must not be empty")
	}
	if c.Events.BufferSize < 1 {
		return fmt.Errorf("events.buffer_size must be positive, got %d", c.Events.BufferSize)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker reports whether /.dockerenv exists. The result is cached.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveHostForDocker maps loopback hosts to host.docker.internal when running in a container,
// so services on the host machine stay reachable.
func ResolveHostForDocker(host string) string {
	if !IsRunningInDocker() {
		return host
	}
	if host == "localhost" || host == "127.0.0.1" {
		return "host.docker.internal"
	}
	return host
}
