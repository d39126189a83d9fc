package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers accepted in database.driver.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server          ServerConfig          `yaml:"server"`
	Database        DatabaseConfig        `yaml:"database"`
	Auth            AuthConfig            `yaml:"auth"`
	Worker          WorkerConfig          `yaml:"worker"`
	Log             LogConfig             `yaml:"log"`
	SnapshotStorage SnapshotStorageConfig `yaml:"snapshot_storage"`

	// DevMode skips the API key requirement. Env-only.
	DevMode bool `yaml:"-"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains schema and response store settings.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// AuthConfig contains authentication settings.
type AuthConfig struct {
	APIKey string `yaml:"-"` // env-only, never in YAML
}

// WorkerConfig contains background worker settings.
type WorkerConfig struct {
	SessionIdleTimeout  Duration `yaml:"session_idle_timeout"`
	SessionMaxAge       Duration `yaml:"session_max_age"`
	SessionReapInterval Duration `yaml:"session_reap_interval"`
	SnapshotInterval    Duration `yaml:"snapshot_interval"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SnapshotStorageConfig contains S3-compatible storage settings for database
// snapshots. An empty Bucket keeps snapshots local.
type SnapshotStorageConfig struct {
	Bucket    string   `yaml:"bucket"`
	Endpoint  string   `yaml:"endpoint"`
	Region    string   `yaml:"region"`
	Prefix    string   `yaml:"prefix"`
	UseSSL    *bool    `yaml:"use_ssl"`
	URLExpiry Duration `yaml:"url_expiry"`
	AccessKey string   `yaml:"-"` // env-only, never in YAML
	SecretKey string   `yaml:"-"` // env-only, never in YAML
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("FICHA_CONFIG_PATH", "config/ficha.yaml")

	// Missing file is not an error
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a specific path, which must exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabaseConfig resolves only the database settings, with the same
// precedence as Load. Offline commands use it; no API key is required.
func LoadDatabaseConfig() (DatabaseConfig, error) {
	cfg := newDefaults()
	if err := loadYAMLFile(cfg, getEnv("FICHA_CONFIG_PATH", "config/ficha.yaml")); err != nil {
		return DatabaseConfig{}, err
	}
	applyEnvOverrides(cfg)
	if err := cfg.validateDatabase(); err != nil {
		return DatabaseConfig{}, err
	}
	return cfg.Database, nil
}

func newDefaults() *Config {
	useSSL := true
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   "data/ficha.db",
		},
		Worker: WorkerConfig{
			SessionIdleTimeout:  Duration(30 * time.Minute),
			SessionMaxAge:       Duration(12 * time.Hour),
			SessionReapInterval: Duration(1 * time.Minute),
			SnapshotInterval:    Duration(1 * time.Hour),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		SnapshotStorage: SnapshotStorageConfig{
			Region:    "us-east-1",
			Prefix:    "ficha",
			UseSSL:    &useSSL,
			URLExpiry: Duration(15 * time.Minute),
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("FICHA_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	envDuration("FICHA_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("FICHA_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("FICHA_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	// Database
	if v := os.Getenv("FICHA_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("FICHA_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Auth
	if v := os.Getenv("FICHA_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}

	// Worker
	envDuration("FICHA_SESSION_IDLE_TIMEOUT", &cfg.Worker.SessionIdleTimeout)
	envDuration("FICHA_SESSION_MAX_AGE", &cfg.Worker.SessionMaxAge)
	envDuration("FICHA_SESSION_REAP_INTERVAL", &cfg.Worker.SessionReapInterval)
	envDuration("FICHA_SNAPSHOT_INTERVAL", &cfg.Worker.SnapshotInterval)

	// Log
	if v := os.Getenv("FICHA_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("FICHA_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}

	// Snapshot storage
	if v := os.Getenv("FICHA_SNAPSHOT_BUCKET"); v != "" {
		cfg.SnapshotStorage.Bucket = v
	}
	if v := os.Getenv("FICHA_SNAPSHOT_ENDPOINT"); v != "" {
		cfg.SnapshotStorage.Endpoint = v
	}
	if v := os.Getenv("FICHA_SNAPSHOT_REGION"); v != "" {
		cfg.SnapshotStorage.Region = v
	}
	if v := os.Getenv("FICHA_SNAPSHOT_PREFIX"); v != "" {
		cfg.SnapshotStorage.Prefix = v
	}
	if v := os.Getenv("FICHA_SNAPSHOT_ACCESS_KEY"); v != "" {
		cfg.SnapshotStorage.AccessKey = v
	}
	if v := os.Getenv("FICHA_SNAPSHOT_SECRET_KEY"); v != "" {
		cfg.SnapshotStorage.SecretKey = v
	}
	if v := os.Getenv("FICHA_SNAPSHOT_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.SnapshotStorage.UseSSL = &b
		}
	}
	envDuration("FICHA_SNAPSHOT_URL_EXPIRY", &cfg.SnapshotStorage.URLExpiry)

	if v := os.Getenv("FICHA_DEV_MODE"); v != "" {
		cfg.DevMode = v == "true" || v == "1"
	}
}

// envDuration overwrites *d when key holds a parseable duration.
func envDuration(key string, d *Duration) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			*d = Duration(parsed)
		}
	}
}

// validate checks that required configuration values are set.
// In dev mode, API key validation is skipped.
func (c *Config) validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if c.SnapshotStorage.Bucket != "" && c.SnapshotStorage.Endpoint == "" {
		return errors.New("snapshot_storage.endpoint is required when a bucket is set")
	}

	if c.DevMode {
		return nil
	}
	if c.Auth.APIKey == "" {
		return errors.New("FICHA_API_KEY is required")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("database.path is required for the sqlite driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverMemory, c.Database.Driver)
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
