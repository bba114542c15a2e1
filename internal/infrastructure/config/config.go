package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

type Config struct {
	Port        string `env:"PORT,         default=8080"`
	Env         string `env:"ENV,          default=development"`
	JWTSecret   string `env:"JWT_SECRET"`
	LogLevel    string `env:"LOG_LEVEL,    default=info"`
	StoreDriver string `env:"STORE_DRIVER, default=mongo"`

	Mongo  MongoConfig
	Redis  RedisConfig
	Assign AssignConfig
	WS     WSConfig
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=pallet_system"`
}

// RedisConfig is optional; an empty Addr disables Redis entirely.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB, default=0"`
}

func (r RedisConfig) Enabled() bool { return r.Addr != "" }

type AssignConfig struct {
	Workers         int           `env:"ASSIGN_WORKERS,          default=8"`
	DistributedLock bool          `env:"ASSIGN_DISTRIBUTED_LOCK, default=false"`
	LockTTL         time.Duration `env:"ASSIGN_LOCK_TTL,         default=5s"`
}

type WSConfig struct {
	ReadLimit    int64         `env:"WS_READ_LIMIT,    default=65536"`
	PingInterval time.Duration `env:"WS_PING_INTERVAL, default=30s"`
	PongWait     time.Duration `env:"WS_PONG_WAIT,     default=60s"`
}

// IsDevelopment reports whether human-friendly console logging should be used.
func (c *Config) IsDevelopment() bool { return c.Env == "development" }

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case DriverMongo, DriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverMongo, DriverMemory, c.StoreDriver)
	}
	if c.Assign.DistributedLock && !c.Redis.Enabled() {
		return fmt.Errorf("ASSIGN_DISTRIBUTED_LOCK requires REDIS_ADDR")
	}
	if c.WS.PongWait <= c.WS.PingInterval {
		return fmt.Errorf("WS_PONG_WAIT (%s) must exceed WS_PING_INTERVAL (%s)", c.WS.PongWait, c.WS.PingInterval)
	}
	return nil
}
