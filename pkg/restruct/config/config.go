package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Daily      bool   `mapstructure:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// BackupConfig configures backup sessions.
type BackupConfig struct {
	Dir           string `mapstructure:"dir"`            // Empty means $XDG_STATE_HOME/restruct/backups
	RetentionDays int    `mapstructure:"retention_days"` // Orphaned session retention
}

// HistoryConfig configures the execution audit log.
type HistoryConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"` // Empty means default XDG data path
	RetentionDays int    `mapstructure:"retention_days"`
}

// CacheConfig configures the validation scan cache.
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"` // Empty means $XDG_CACHE_HOME/restruct/scancache
}

// Config represents the application configuration.
type Config struct {
	Format  string        `mapstructure:"format"`
	Exclude []string      `mapstructure:"exclude"`
	Workers int           `mapstructure:"workers"`
	Guard   bool          `mapstructure:"guard"`
	Backup  BackupConfig  `mapstructure:"backup"`
	History HistoryConfig `mapstructure:"history"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// Load loads configuration from file and environment variables.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/restruct/config.yaml
//   - $HOME/.config/restruct/config.yaml
//
// Environment variables are prefixed with RESTRUCT_ (e.g., RESTRUCT_FORMAT).
func Load() (*Config, error) {
	v := viper.New()

	// Set config name and type
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Add config paths
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		v.AddConfigPath(filepath.Join(xdgConfigHome, "restruct"))
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}
	v.AddConfigPath(filepath.Join(homeDir, ".config", "restruct"))

	// Set environment variable prefix and enable auto env binding
	v.SetEnvPrefix("RESTRUCT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	v.SetDefault("format", DefaultFormat)
	v.SetDefault("exclude", DefaultExcludes)
	v.SetDefault("workers", DefaultWorkers)
	v.SetDefault("guard", false)

	v.SetDefault("backup.dir", "") // Empty means default XDG state path
	v.SetDefault("backup.retention_days", DefaultRetentionDays)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "") // Empty means default XDG data path
	v.SetDefault("history.retention_days", DefaultRetentionDays)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.path", "") // Empty means default XDG cache path

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "") // Empty means use DefaultLogPath
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", map[string]string{
		"engine":   "info",
		"backup":   "info",
		"validate": "info",
	})

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is acceptable; we use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Expand ~ in user-supplied paths
	for _, p := range []*string{&cfg.Backup.Dir, &cfg.History.Path, &cfg.Cache.Path} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return nil, err
		}
		*p = expanded
	}

	return &cfg, nil
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	// Check XDG_CONFIG_HOME first
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "restruct"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "restruct"), nil
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return nil
}

// WriteDefault writes a default config file if none exists.
// Returns nil if a config file already exists.
func WriteDefault() error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}

	configDir, err := ConfigDir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(configDir, "config.yaml")

	// Check if config file already exists
	if _, err := os.Stat(configPath); err == nil {
		// Config file exists, do nothing
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to check config file: %w", err)
	}

	defaultConfig := fmt.Sprintf(`# Restruct Configuration

# Default output format: pretty, plain, json, yaml
format: %s

# Glob patterns excluded from validation scans
exclude:
  - .git
  - .git/**
  - node_modules
  - node_modules/**
  - vendor
  - vendor/**

# Validation worker count (0 means number of CPUs)
workers: %d

# Watch for concurrent external writes during live execution
guard: false

# Backup session settings
backup:
  # Session directory (empty means use default: $XDG_STATE_HOME/restruct/backups)
  dir: ""
  # Days before an orphaned session is eligible for cleanup
  retention_days: %d

# Execution history settings
history:
  enabled: true
  # History directory (empty means use default: $XDG_DATA_HOME/restruct/history)
  path: ""
  retention_days: %d

# Validation scan cache
cache:
  enabled: true
  # Cache directory (empty means use default: $XDG_CACHE_HOME/restruct/scancache)
  path: ""

# Logging configuration
logging:
  # Log level: debug, info, warn, error
  level: info
  # Log file path (empty means use default: $XDG_STATE_HOME/restruct/restruct.log)
  path: ""
  # Log rotation settings
  rotation:
    max_size: 10MB
    max_age: 30       # days
    max_backups: 5
    daily: true
  # Per-component log levels
  components:
    engine: info
    backup: info
    validate: info
`, DefaultFormat, DefaultWorkers, DefaultRetentionDays, DefaultRetentionDays)

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}

	return nil
}

// ExpandPath expands ~ in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, path[1:]), nil
}

// DataDir returns $XDG_DATA_HOME/restruct/ for history files.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "restruct")
}

// StateDir returns $XDG_STATE_HOME/restruct/ for logs and backups.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "restruct")
}

// CacheDir returns $XDG_CACHE_HOME/restruct/ for the scan cache.
func CacheDir() string {
	return filepath.Join(xdg.CacheHome, "restruct")
}

// DefaultHistoryPath returns the default history directory.
func DefaultHistoryPath() string {
	return filepath.Join(DataDir(), "history")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(StateDir(), "restruct.log")
}
