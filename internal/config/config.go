package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable
const EnvPrefix = "KEYFORGE"

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Store     StoreConfig     `yaml:"store" envconfig:"STORE"`
	Keys      KeysConfig      `yaml:"keys" envconfig:"KEYS"`
	Webhook   WebhookConfig   `yaml:"webhook" envconfig:"WEBHOOK"`
	Scheduler SchedulerConfig `yaml:"scheduler" envconfig:"SCHEDULER"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`

	// File is the config file that was loaded, if any
	File string `yaml:"-" ignored:"true"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"HOST"`
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" envconfig:"MAX_BODY_BYTES"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	// AdminAPIKeys guard the administrative routes. Empty disables the check.
	AdminAPIKeys   []string `yaml:"admin_api_keys" envconfig:"ADMIN_API_KEYS"`
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	EnableCORS     bool     `yaml:"enable_cors" envconfig:"ENABLE_CORS"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Output   string `yaml:"output" envconfig:"OUTPUT"` // console, file or both
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// StoreConfig selects the key store backend
type StoreConfig struct {
	Backend    string        `yaml:"backend" envconfig:"BACKEND"` // file, memory or redis
	Path       string        `yaml:"path" envconfig:"KEYS_FILE"`
	RedisURL   string        `yaml:"redis_url" envconfig:"REDIS_URL"`
	RedisKey   string        `yaml:"redis_key" envconfig:"REDIS_KEY"`
	LockTTL    time.Duration `yaml:"lock_ttl" envconfig:"LOCK_TTL"`
	Passphrase string        `yaml:"passphrase" envconfig:"PASSPHRASE"`
}

// MinIDLength is the shortest accepted id: 16 hex characters, 64 random bits.
const MinIDLength = 16

// KeysConfig bounds key minting. The HTTP and CLI surfaces take their
// batch and lifetime limits from here.
type KeysConfig struct {
	IDLength      int `yaml:"id_length" envconfig:"ID_LENGTH"`
	MaxBatch      int `yaml:"max_batch" envconfig:"MAX_BATCH"`
	MaxTTLMinutes int `yaml:"max_ttl_minutes" envconfig:"MAX_TTL_MINUTES"`
}

// WebhookConfig configures the Discord notifier. An empty URL disables it.
type WebhookConfig struct {
	URL       string        `yaml:"url" envconfig:"URL"`
	Username  string        `yaml:"username" envconfig:"BOT_NAME"`
	Timeout   time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	QueueSize int           `yaml:"queue_size" envconfig:"QUEUE_SIZE"`
}

// SchedulerConfig holds the crontab expressions of background sweeps.
// An empty expression disables that sweep.
type SchedulerConfig struct {
	ExpirySchedule  string `yaml:"expiry_schedule" envconfig:"EXPIRY_SCHEDULE"`
	CleanupSchedule string `yaml:"cleanup_schedule" envconfig:"CLEANUP_SCHEDULE"`
	StatsSchedule   string `yaml:"stats_schedule" envconfig:"STATS_SCHEDULE"`
}

// TelemetryConfig contains OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" envconfig:"ENABLED"`
	ServiceName string `yaml:"service_name" envconfig:"SERVICE_NAME"`
	TraceStdout bool   `yaml:"trace_stdout" envconfig:"TRACE_STDOUT"`
}

// WebSocketConfig contains event stream configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// MaxTTL returns the longest lifetime of a temporary key
func (k KeysConfig) MaxTTL() time.Duration {
	return time.Duration(k.MaxTTLMinutes) * time.Minute
}

// Load reads configuration from the discovered config file and the environment
func Load() (*Config, error) {
	return LoadFrom(findConfigFile())
}

// LoadFrom reads configuration from file (optional) and the environment.
// Environment variables take precedence over the file.
func LoadFrom(file string) (*Config, error) {
	cfg := Default()

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", file, err)
		}
		cfg.File = file
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration and normalizes enumerations
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		errs = append(errs, errors.New("server read and write timeouts must be positive"))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server max body bytes must be positive"))
	}

	c.Logging.Level = strings.ToLower(c.Logging.Level)
	switch c.Logging.Output {
	case "console", "file", "both":
	default:
		errs = append(errs, fmt.Errorf("invalid logging output %q", c.Logging.Output))
	}

	switch c.Store.Backend {
	case "file":
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store path is required for the file backend"))
		}
	case "memory":
	case "redis":
		if c.Store.RedisURL == "" {
			errs = append(errs, errors.New("store redis_url is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid store backend %q", c.Store.Backend))
	}

	if c.Keys.IDLength < MinIDLength || c.Keys.IDLength > 32 {
		errs = append(errs, fmt.Errorf("keys id_length must be between %d and 32, got %d", MinIDLength, c.Keys.IDLength))
	}
	if c.Keys.MaxBatch < 1 {
		errs = append(errs, errors.New("keys max_batch must be at least 1"))
	}
	if c.Keys.MaxTTLMinutes < 1 {
		errs = append(errs, errors.New("keys max_ttl_minutes must be at least 1"))
	}

	if c.Webhook.URL != "" && !strings.HasPrefix(c.Webhook.URL, "http") {
		errs = append(errs, fmt.Errorf("webhook url must be http(s): %q", c.Webhook.URL))
	}

	return errors.Join(errs...)
}

// resolvePaths anchors relative paths at the config file directory
func (c *Config) resolvePaths() error {
	paths, err := GetPaths(c)
	if err != nil {
		return err
	}
	c.Store.Path = paths.KeysFile
	c.Logging.FilePath = paths.LogFile
	return nil
}

// findConfigFile returns KEYFORGE_CONFIG or the first config file found
func findConfigFile() string {
	if f := os.Getenv(EnvPrefix + "_CONFIG"); f != "" {
		return f
	}
	for _, location := range []string{
		"config.yaml",
		filepath.Join("configs", "config.yaml"),
	} {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}
	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20,
			MaxBodyBytes:    1 << 20,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "console",
			FilePath: filepath.Join("logs", "keyforge.log"),
		},
		Store: StoreConfig{
			Backend: "file",
			Path:    filepath.Join("data", "keys.json"),
			LockTTL: 8 * time.Second,
		},
		Keys: KeysConfig{
			IDLength:      32,
			MaxBatch:      10,
			MaxTTLMinutes: 1440,
		},
		Webhook: WebhookConfig{
			Username:  "Key Manager",
			Timeout:   10 * time.Second,
			QueueSize: 64,
		},
		Scheduler: SchedulerConfig{
			ExpirySchedule: "* * * * *",
		},
		Telemetry: TelemetryConfig{
			Enabled:     true,
			ServiceName: "keyforge",
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
		},
	}
}
