package config

import (
	"fmt"
	"time"

	"github.com/aescanero/shiptrack/pkg/domain"
	"github.com/caarlos0/env/v10"
)

// Process roles
const (
	RoleAll     = "all"
	RoleEngine  = "engine"
	RoleTracker = "tracker"
)

// Config holds all configuration for the shipment tracking service
type Config struct {
	// Server configuration
	HTTPPort int    `env:"SHIPTRACK_HTTP_PORT" envDefault:"8080"`
	GRPCPort int    `env:"SHIPTRACK_GRPC_PORT" envDefault:"9090"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Role selects which components this process runs. "engine" serves the
	// simulation engine over gRPC, "tracker" runs tracking against a remote
	// engine at EngineAddr, "all" runs both in process.
	Role       string `env:"TRACKING_ROLE" envDefault:"all"`
	EngineAddr string `env:"ENGINE_ADDR" envDefault:"localhost:9090"`

	// Backends
	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"memory"`
	OrderStore     string `env:"ORDER_STORE" envDefault:"memory"`

	// Redis configuration
	Redis RedisConfig

	// PostgreSQL configuration
	Postgres PostgresConfig

	// Simulation engine configuration
	Engine EngineConfig

	// Tracking orchestrator configuration
	Tracking TrackingConfig

	// WebSocket configuration
	WebSocket WebSocketConfig

	// Routing configuration
	Routing RoutingConfig

	// Session tokens as subject:token pairs; empty accepts everyone
	SessionTokens []string `env:"SESSION_TOKENS" envSeparator:","`

	// Timeouts
	Timeouts TimeoutConfig
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`

	// Event stream settings
	ConsumerGroup string `env:"REDIS_CONSUMER_GROUP" envDefault:"shiptrack"`
	StreamMaxLen  int64  `env:"REDIS_STREAM_MAX_LEN" envDefault:"10000"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN string `env:"POSTGRES_DSN" envDefault:"host=localhost user=shiptrack password=shiptrack dbname=shiptrack port=5432 sslmode=disable"`
}

// EngineConfig holds simulation engine configuration
type EngineConfig struct {
	TickInterval       time.Duration `env:"ENGINE_TICK_INTERVAL" envDefault:"1s"`
	CompletedRetention time.Duration `env:"ENGINE_COMPLETED_RETENTION" envDefault:"10m"`
	RunTTL             time.Duration `env:"ENGINE_RUN_TTL" envDefault:"48h"`

	// Defaults for simulations started without a config
	DefaultSpeedKmh       float64 `env:"ENGINE_DEFAULT_SPEED_KMH" envDefault:"40"`
	DefaultTickIntervalMs int64   `env:"ENGINE_DEFAULT_TICK_MS" envDefault:"2000"`
	DefaultVariance       float64 `env:"ENGINE_DEFAULT_VARIANCE" envDefault:"0.1"`
}

// TrackingConfig holds tracking orchestrator configuration
type TrackingConfig struct {
	PollInterval time.Duration `env:"TRACKING_POLL_INTERVAL" envDefault:"2s"`
	CallTimeout  time.Duration `env:"TRACKING_CALL_TIMEOUT" envDefault:"5s"`
}

// WebSocketConfig holds watcher connection configuration
type WebSocketConfig struct {
	PingInterval time.Duration `env:"WS_PING_INTERVAL" envDefault:"30s"`
	SendBuffer   int           `env:"WS_SEND_BUFFER" envDefault:"32"`
}

// RoutingConfig holds routing provider configuration
type RoutingConfig struct {
	Provider string        `env:"ROUTING_PROVIDER" envDefault:"direct"`
	OSRMURL  string        `env:"OSRM_URL" envDefault:"https://router.project-osrm.org"`
	Profile  string        `env:"OSRM_PROFILE" envDefault:"driving"`
	Timeout  time.Duration `env:"ROUTING_TIMEOUT" envDefault:"10s"`
}

// TimeoutConfig holds various timeout configurations
type TimeoutConfig struct {
	ShutdownTimeout time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"30s"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server ports
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.GRPCPort < 1 || c.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPCPort)
	}

	switch c.Role {
	case RoleAll, RoleEngine:
	case RoleTracker:
		if c.EngineAddr == "" {
			return fmt.Errorf("engine address is required for role %s", c.Role)
		}
	default:
		return fmt.Errorf("invalid role: %s (must be all, engine, or tracker)", c.Role)
	}

	// Validate backends
	switch c.StorageBackend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis address is required")
		}
	default:
		return fmt.Errorf("unsupported storage backend: %s", c.StorageBackend)
	}
	switch c.OrderStore {
	case "memory":
	case "postgres":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres DSN is required")
		}
	default:
		return fmt.Errorf("unsupported order store: %s", c.OrderStore)
	}

	// Validate engine config
	if c.Engine.TickInterval <= 0 {
		return fmt.Errorf("engine tick interval must be positive")
	}
	if c.Engine.DefaultSpeedKmh <= 0 {
		return fmt.Errorf("default speed must be positive")
	}
	if c.Engine.DefaultTickIntervalMs < domain.MinTickIntervalMs {
		return fmt.Errorf("default tick interval must be at least %dms", domain.MinTickIntervalMs)
	}
	if c.Engine.DefaultVariance < 0 || c.Engine.DefaultVariance > 1 {
		return fmt.Errorf("default variance must be between 0 and 1")
	}

	// Validate tracking config
	if c.Tracking.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("websocket ping interval must be positive")
	}

	// Validate routing config
	switch c.Routing.Provider {
	case "direct":
	case "osrm":
		if c.Routing.OSRMURL == "" {
			return fmt.Errorf("OSRM URL is required")
		}
	default:
		return fmt.Errorf("unsupported routing provider: %s", c.Routing.Provider)
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// RunsEngine reports whether this process hosts the simulation engine
func (c *Config) RunsEngine() bool {
	return c.Role == RoleAll || c.Role == RoleEngine
}

// RunsTracker reports whether this process runs tracking and watchers
func (c *Config) RunsTracker() bool {
	return c.Role == RoleAll || c.Role == RoleTracker
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// GetGRPCAddr returns the gRPC server address
func (c *Config) GetGRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
