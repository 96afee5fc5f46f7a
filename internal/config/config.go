package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
	Rack     RackConfig     `yaml:"rack"`
	Worker   WorkerConfig   `yaml:"worker"`
	Backup   BackupConfig   `yaml:"backup"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig contains authentication settings.
// An empty APIKey leaves the API open.
type AuthConfig struct {
	APIKey string `yaml:"-"` // env-only, never in YAML
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RackConfig tunes the configurator engine.
type RackConfig struct {
	// PositionPolicy is "temporary_wins" or "saved_wins".
	PositionPolicy string `yaml:"position_policy"`
	// SnapTolerance is the snap radius in meters.
	SnapTolerance  float64  `yaml:"snap_tolerance"`
	HistoryLimit   int      `yaml:"history_limit"`
	CameraDebounce Duration `yaml:"camera_debounce"`
}

// WorkerConfig contains background worker settings.
type WorkerConfig struct {
	CompactionInterval Duration `yaml:"compaction_interval"`
	BackupInterval     Duration `yaml:"backup_interval"`
}

// BackupConfig contains manifest backup settings. An empty Bucket keeps
// backups local.
type BackupConfig struct {
	Dir       string `yaml:"dir"`
	Bucket    string `yaml:"bucket"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	UseSSL    *bool  `yaml:"use_ssl"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"-"` // env-only
	SecretKey string `yaml:"-"` // env-only
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

// Load loads configuration with precedence: defaults → YAML file → .env → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	// A missing .env is fine; real environment variables win over it.
	_ = godotenv.Load()

	configPath := getEnv("TRADERACK_CONFIG_PATH", "config/traderack.yaml")
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
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

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Path: "data/traderack.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Rack: RackConfig{
			PositionPolicy: "temporary_wins",
			SnapTolerance:  0.03,
			HistoryLimit:   500,
			CameraDebounce: Duration(500 * time.Millisecond),
		},
		Worker: WorkerConfig{
			CompactionInterval: Duration(1 * time.Hour),
			BackupInterval:     Duration(6 * time.Hour),
		},
		Backup: BackupConfig{
			Dir:    "data/backups",
			Prefix: "traderack",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
// Missing file is not an error; we just use defaults.
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
	if v := os.Getenv("TRADERACK_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	envDuration("TRADERACK_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("TRADERACK_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("TRADERACK_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	// Database
	if v := os.Getenv("TRADERACK_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Auth
	if v := os.Getenv("TRADERACK_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}

	// Log
	if v := os.Getenv("TRADERACK_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("TRADERACK_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}

	// Rack
	if v := os.Getenv("TRADERACK_POSITION_POLICY"); v != "" {
		cfg.Rack.PositionPolicy = v
	}
	if v := os.Getenv("TRADERACK_SNAP_TOLERANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Rack.SnapTolerance = f
		}
	}
	if v := os.Getenv("TRADERACK_HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Rack.HistoryLimit = n
		}
	}
	envDuration("TRADERACK_CAMERA_DEBOUNCE", &cfg.Rack.CameraDebounce)

	// Worker
	envDuration("TRADERACK_COMPACTION_INTERVAL", &cfg.Worker.CompactionInterval)
	envDuration("TRADERACK_BACKUP_INTERVAL", &cfg.Worker.BackupInterval)

	// Backup
	if v := os.Getenv("TRADERACK_BACKUP_DIR"); v != "" {
		cfg.Backup.Dir = v
	}
	if v := os.Getenv("TRADERACK_BACKUP_BUCKET"); v != "" {
		cfg.Backup.Bucket = v
	}
	if v := os.Getenv("TRADERACK_S3_ENDPOINT"); v != "" {
		cfg.Backup.Endpoint = v
	}
	if v := os.Getenv("TRADERACK_S3_REGION"); v != "" {
		cfg.Backup.Region = v
	}
	if v := os.Getenv("TRADERACK_S3_USE_SSL"); v != "" {
		b := v == "true" || v == "1"
		cfg.Backup.UseSSL = &b
	}
	if v := os.Getenv("TRADERACK_S3_ACCESS_KEY"); v != "" {
		cfg.Backup.AccessKey = v
	}
	if v := os.Getenv("TRADERACK_S3_SECRET_KEY"); v != "" {
		cfg.Backup.SecretKey = v
	}
}

func envDuration(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}

// validate checks the values the engine cannot run without.
func (c *Config) validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	switch c.Rack.PositionPolicy {
	case "temporary_wins", "saved_wins":
	default:
		errs = append(errs, fmt.Errorf("rack.position_policy %q must be temporary_wins or saved_wins", c.Rack.PositionPolicy))
	}
	if !(c.Rack.SnapTolerance > 0) {
		errs = append(errs, errors.New("rack.snap_tolerance must be positive"))
	}
	if c.Rack.HistoryLimit < 1 {
		errs = append(errs, errors.New("rack.history_limit must be at least 1"))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be json or text", c.Log.Format))
	}
	if c.Backup.Bucket != "" && c.Backup.Endpoint == "" {
		errs = append(errs, errors.New("backup.endpoint is required when backup.bucket is set"))
	}
	return errors.Join(errs...)
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
