package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// AppName names the per-user data directory
const AppName = "lovely_prompts"

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig        `toml:"server"`
	Storage       StorageConfig       `toml:"storage"`
	Events        EventsConfig        `toml:"events"`
	Stream        StreamConfig        `toml:"stream"`
	Sync          SyncConfig          `toml:"sync"`
	Observability ObservabilityConfig `toml:"observability"`
	Environment   string              `toml:"environment"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `toml:"host"`
	Port            int           `toml:"port"`
	ReadTimeout     time.Duration `toml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
	RequestTimeout  time.Duration `toml:"request_timeout"`
}

// StorageConfig holds the location of the per-project SQLite files
type StorageConfig struct {
	DataDir        string        `toml:"data_dir"`
	Subdir         string        `toml:"subdir"`
	DefaultProject string        `toml:"default_project"`
	BusyTimeout    time.Duration `toml:"busy_timeout"`
}

// EventsConfig holds change-event fan-out configuration
type EventsConfig struct {
	SubscriberBuffer  int           `toml:"subscriber_buffer"`
	OverflowPolicy    string        `toml:"overflow_policy"` // drop_oldest or disconnect
	HeartbeatInterval time.Duration `toml:"heartbeat_interval"`
}

// StreamConfig holds websocket patch stream configuration
type StreamConfig struct {
	ReadLimit       int64         `toml:"read_limit"`
	PingPeriod      time.Duration `toml:"ping_period"`
	PongWait        time.Duration `toml:"pong_wait"`
	CheckpointEvery int           `toml:"checkpoint_every"` // 0 persists only when the stream ends
}

// SyncConfig holds remote replica configuration. Sync is disabled when
// DatabaseURL is empty.
type SyncConfig struct {
	DatabaseURL string        `toml:"database_url"`
	Interval    time.Duration `toml:"interval"`
	BatchSize   int           `toml:"batch_size"`
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel     string `toml:"log_level"`
	LogFormat    string `toml:"log_format"` // json or console
	LogBodies    bool   `toml:"log_bodies"`
	LogBodyLimit int    `toml:"log_body_limit"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    0,
			ShutdownTimeout: 10 * time.Second,
			RequestTimeout:  30 * time.Second,
		},
		Storage: StorageConfig{
			DataDir:        userDataDir(AppName),
			Subdir:         "dbs",
			DefaultProject: "default",
			BusyTimeout:    5 * time.Second,
		},
		Events: EventsConfig{
			SubscriberBuffer:  256,
			OverflowPolicy:    "drop_oldest",
			HeartbeatInterval: 15 * time.Second,
		},
		Stream: StreamConfig{
			ReadLimit:  1 << 20,
			PingPeriod: 30 * time.Second,
			PongWait:   60 * time.Second,
		},
		Sync: SyncConfig{
			Interval:  time.Minute,
			BatchSize: 200,
		},
		Observability: ObservabilityConfig{
			LogLevel:     "info",
			LogFormat:    "json",
			LogBodies:    true,
			LogBodyLimit: 4096,
		},
	}
}

// New creates a new Config from defaults, an optional TOML file named by
// LOVELY_CONFIG, and environment variables, in increasing precedence
func New(ctx context.Context) (*Config, error) {
	return Load(ctx, "")
}

// Load is New with an explicit TOML path; an empty path falls back to LOVELY_CONFIG
func Load(ctx context.Context, path string) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := Default()

	if path == "" {
		path = os.Getenv("LOVELY_CONFIG")
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// applyEnv overrides fields whose environment variable is set
func (c *Config) applyEnv() {
	c.Environment = getEnv("ENVIRONMENT", c.Environment)

	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.Port = getPort(c.Server.Port)
	c.Server.ReadTimeout = getEnvAsDuration("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvAsDuration("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.ShutdownTimeout = getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.RequestTimeout = getEnvAsDuration("SERVER_REQUEST_TIMEOUT", c.Server.RequestTimeout)

	c.Storage.DataDir = getEnv("LOVELY_DATA_DIR", c.Storage.DataDir)
	c.Storage.Subdir = getEnv("LOVELY_DB_SUBDIR", c.Storage.Subdir)
	c.Storage.DefaultProject = getEnv("LOVELY_DEFAULT_PROJECT", c.Storage.DefaultProject)
	c.Storage.BusyTimeout = getEnvAsDuration("SQLITE_BUSY_TIMEOUT", c.Storage.BusyTimeout)

	c.Events.SubscriberBuffer = getEnvAsInt("EVENTS_SUBSCRIBER_BUFFER", c.Events.SubscriberBuffer)
	c.Events.OverflowPolicy = getEnv("EVENTS_OVERFLOW_POLICY", c.Events.OverflowPolicy)
	c.Events.HeartbeatInterval = getEnvAsDuration("EVENTS_HEARTBEAT_INTERVAL", c.Events.HeartbeatInterval)

	c.Stream.ReadLimit = int64(getEnvAsInt("STREAM_READ_LIMIT", int(c.Stream.ReadLimit)))
	c.Stream.PingPeriod = getEnvAsDuration("STREAM_PING_PERIOD", c.Stream.PingPeriod)
	c.Stream.PongWait = getEnvAsDuration("STREAM_PONG_WAIT", c.Stream.PongWait)
	c.Stream.CheckpointEvery = getEnvAsInt("STREAM_CHECKPOINT_EVERY", c.Stream.CheckpointEvery)

	c.Sync.DatabaseURL = getEnv("SYNC_DATABASE_URL", c.Sync.DatabaseURL)
	c.Sync.Interval = getEnvAsDuration("SYNC_INTERVAL", c.Sync.Interval)
	c.Sync.BatchSize = getEnvAsInt("SYNC_BATCH_SIZE", c.Sync.BatchSize)

	c.Observability.LogLevel = getEnv("LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.LogFormat = getEnv("LOG_FORMAT", c.Observability.LogFormat)
	c.Observability.LogBodies = getEnvAsBool("LOG_BODIES", c.Observability.LogBodies)
	c.Observability.LogBodyLimit = getEnvAsInt("LOG_BODY_LIMIT", c.Observability.LogBodyLimit)
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}

	if c.Storage.DataDir == "" {
		return fmt.Errorf("data directory is required: set LOVELY_DATA_DIR")
	}
	if c.Storage.DefaultProject == "" {
		return fmt.Errorf("default project is required")
	}

	if c.Events.SubscriberBuffer <= 0 {
		return fmt.Errorf("events subscriber buffer must be positive")
	}
	switch c.Events.OverflowPolicy {
	case "drop_oldest", "disconnect":
	default:
		return fmt.Errorf("unknown events overflow policy %q", c.Events.OverflowPolicy)
	}

	if c.Stream.PingPeriod >= c.Stream.PongWait {
		return fmt.Errorf("stream ping period must be shorter than pong wait")
	}
	if c.Stream.CheckpointEvery < 0 {
		return fmt.Errorf("stream checkpoint interval cannot be negative")
	}

	if c.SyncEnabled() && c.Sync.BatchSize <= 0 {
		return fmt.Errorf("sync batch size must be positive")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// SyncEnabled reports whether a remote replica is configured
func (c *Config) SyncEnabled() bool {
	return c.Sync.DatabaseURL != ""
}

// ProjectsDir returns the directory holding one SQLite file per project
func (c *StorageConfig) ProjectsDir() string {
	return filepath.Join(c.DataDir, c.Subdir)
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// userDataDir returns the platform's per-user data directory for app
func userDataDir(app string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), app)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", app)
	case "windows":
		if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
			return filepath.Join(dir, app)
		}
		return filepath.Join(home, "AppData", "Local", app)
	default:
		if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
			return filepath.Join(dir, app)
		}
		return filepath.Join(home, ".local", "share", app)
	}
}

// getPort returns the server port from PORT or SERVER_PORT env vars
func getPort(defaultValue int) int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return defaultValue
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
