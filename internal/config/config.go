package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/xhit/go-str2duration/v2"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"evolvedvault.dev/internal/ctxlog"
)

// Environment variables consulted by ApplyEnvironmentOverrides.
const (
	EnvLogLevel    = "EVOLVEDVAULT_LOG_LEVEL"
	EnvVaultPath   = "EVOLVEDVAULT_VAULT_PATH"
	EnvLockTimeout = "EVOLVEDVAULT_LOCK_TIMEOUT"
	EnvJournal     = "EVOLVEDVAULT_JOURNAL"
	EnvFileLogging = "EVOLVEDVAULT_FILE_LOGGING"
)

// MemoryVaultPath keeps the vault in memory for the lifetime of one run.
const MemoryVaultPath = ":memory:"

var configFileNames = []string{"config.json", "config.yaml", "config.yml"}

var validLogLevels = []string{"debug", "info", "warn", "error"}

// FileLoggingConfig represents file-based logging configuration
type FileLoggingConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`           // Whether file logging is enabled
	Filename   string `json:"filename" yaml:"filename"`         // Log file path (empty = XDG cache path)
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb"`   // Max file size in MB before rotation
	MaxBackups int    `json:"max_backups" yaml:"max_backups"`   // Max number of backup files to keep
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"` // Max age in days before deletion
	Compress   bool   `json:"compress" yaml:"compress"`         // Whether to compress rotated files
}

// Config represents EvolvedVault configuration
type Config struct {
	LogLevel    string             `json:"log_level" yaml:"log_level"`       // debug, info, warn, error
	VaultPath   string             `json:"vault_path" yaml:"vault_path"`     // SQLite file (empty = XDG data path)
	LockTimeout string             `json:"lock_timeout" yaml:"lock_timeout"` // duration string, days and weeks allowed
	Journal     bool               `json:"journal" yaml:"journal"`           // Record every run in the vault
	FileLogging *FileLoggingConfig `json:"file_logging,omitempty" yaml:"file_logging,omitempty"`
}

// LockTimeoutDuration parses LockTimeout. Callers validate first; an
// unparseable value yields zero.
func (c *Config) LockTimeoutDuration() time.Duration {
	d, err := parseDuration(c.LockTimeout)
	if err != nil {
		return 0
	}
	return d
}

func parseDuration(s string) (time.Duration, error) {
	return str2duration.ParseDuration(strings.TrimSpace(s))
}

// ConfigManager handles loading and validating configuration
type ConfigManager struct {
	xdg    XDGInterface
	fs     afero.Fs
	logger *slog.Logger
}

// Option configures a ConfigManager.
type Option func(*ConfigManager)

// WithFilesystem sets the filesystem configuration files are read from.
func WithFilesystem(fsys afero.Fs) Option {
	return func(cm *ConfigManager) {
		cm.fs = fsys
	}
}

// WithXDG overrides directory discovery.
func WithXDG(x XDGInterface) Option {
	return func(cm *ConfigManager) {
		cm.xdg = x
	}
}

// WithLogger sets the logger used while loading.
func WithLogger(logger *slog.Logger) Option {
	return func(cm *ConfigManager) {
		cm.logger = logger
	}
}

// NewConfigManager creates a new configuration manager backed by the OS
// filesystem and XDG base directories unless options say otherwise.
func NewConfigManager(opts ...Option) *ConfigManager {
	cm := &ConfigManager{
		xdg:    NewXDGDirs(),
		fs:     afero.NewOsFs(),
		logger: ctxlog.Discard(),
	}
	for _, opt := range opts {
		opt(cm)
	}
	return cm
}

// GetDefaultConfig returns the default configuration
func (cm *ConfigManager) GetDefaultConfig() *Config {
	return &Config{
		LogLevel:    "warn",
		VaultPath:   "", // Empty = XDG data path
		LockTimeout: "5s",
		Journal:     true,
		FileLogging: &FileLoggingConfig{
			Enabled:    false,
			Filename:   "", // Empty = XDG cache path
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

// LoadFromFile loads configuration from a specific file. Keys absent from the
// file keep their default values.
func (cm *ConfigManager) LoadFromFile(filePath string) (*Config, error) {
	cm.logger.Debug("loading config from file", "file_path", filePath)

	data, err := afero.ReadFile(cm.fs, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := cm.GetDefaultConfig()
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}
	if cfg.FileLogging == nil {
		cfg.FileLogging = cm.GetDefaultConfig().FileLogging
	}

	if err := cm.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}

	cm.logger.Debug("config loaded successfully",
		"file_path", filePath,
		"log_level", cfg.LogLevel,
		"vault_path", cfg.VaultPath,
		"journal", cfg.Journal)

	return cfg, nil
}

// LoadConfig loads configuration using XDG path discovery. The first file
// found wins; no file at all means defaults.
func (cm *ConfigManager) LoadConfig() (*Config, error) {
	for _, name := range configFileNames {
		for _, configPath := range cm.xdg.GetConfigPaths(name) {
			exists, err := afero.Exists(cm.fs, configPath)
			if err != nil {
				return nil, fmt.Errorf("failed to stat %s: %w", configPath, err)
			}
			if exists {
				cm.logger.Debug("found config file", "path", configPath)
				return cm.LoadFromFile(configPath)
			}
		}
	}

	cm.logger.Debug("no config file found, using defaults")
	return cm.GetDefaultConfig(), nil
}

// Load resolves the configuration for one invocation: an explicit file when
// configFile is set, XDG discovery otherwise, then environment overrides and
// validation.
func (cm *ConfigManager) Load(configFile string) (*Config, error) {
	var cfg *Config
	var err error
	if configFile != "" {
		cfg, err = cm.LoadFromFile(configFile)
	} else {
		cfg, err = cm.LoadConfig()
	}
	if err != nil {
		return nil, err
	}

	cfg = cm.ApplyEnvironmentOverrides(cfg)
	if err := cm.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidateConfig validates configuration values. Every problem found is
// reported, not just the first.
func (cm *ConfigManager) ValidateConfig(config *Config) error {
	var errs error

	if config.LogLevel != "" && !isValidLogLevel(config.LogLevel) {
		errs = multierr.Append(errs, fmt.Errorf("invalid log level '%s', must be one of: %s",
			config.LogLevel, strings.Join(validLogLevels, ", ")))
	}

	if d, err := parseDuration(config.LockTimeout); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("invalid lock_timeout '%s': %w", config.LockTimeout, err))
	} else if d <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("lock_timeout must be positive, got %s", d))
	}

	if fileLogging := config.FileLogging; fileLogging != nil {
		if fileLogging.MaxSizeMB < 0 {
			errs = multierr.Append(errs, fmt.Errorf("file logging max_size_mb must be >= 0, got %d", fileLogging.MaxSizeMB))
		}
		if fileLogging.MaxBackups < 0 {
			errs = multierr.Append(errs, fmt.Errorf("file logging max_backups must be >= 0, got %d", fileLogging.MaxBackups))
		}
		if fileLogging.MaxAgeDays < 0 {
			errs = multierr.Append(errs, fmt.Errorf("file logging max_age_days must be >= 0, got %d", fileLogging.MaxAgeDays))
		}
	}

	if errs != nil {
		return fmt.Errorf("config validation failed: %w", errs)
	}
	return nil
}

// ApplyEnvironmentOverrides applies environment variable overrides to config.
// Invalid values are logged and skipped.
func (cm *ConfigManager) ApplyEnvironmentOverrides(config *Config) *Config {
	result := *config
	if config.FileLogging != nil {
		fileLogging := *config.FileLogging
		result.FileLogging = &fileLogging
	}

	if logLevel := os.Getenv(EnvLogLevel); logLevel != "" {
		if isValidLogLevel(logLevel) {
			result.LogLevel = strings.ToLower(logLevel)
			cm.logger.Debug("applied log level override from environment", "value", logLevel)
		} else {
			cm.logger.Warn("invalid environment variable", "name", EnvLogLevel, "value", logLevel)
		}
	}

	if vaultPath := os.Getenv(EnvVaultPath); vaultPath != "" {
		result.VaultPath = vaultPath
		cm.logger.Debug("applied vault path override from environment", "value", vaultPath)
	}

	if timeout := os.Getenv(EnvLockTimeout); timeout != "" {
		if d, err := parseDuration(timeout); err == nil && d > 0 {
			result.LockTimeout = timeout
			cm.logger.Debug("applied lock timeout override from environment", "value", timeout)
		} else {
			cm.logger.Warn("invalid environment variable", "name", EnvLockTimeout, "value", timeout)
		}
	}

	if journal := os.Getenv(EnvJournal); journal != "" {
		if enabled, err := strconv.ParseBool(journal); err == nil {
			result.Journal = enabled
			cm.logger.Debug("applied journal override from environment", "value", enabled)
		} else {
			cm.logger.Warn("invalid environment variable", "name", EnvJournal, "value", journal, "error", err)
		}
	}

	if fileLogging := os.Getenv(EnvFileLogging); fileLogging != "" {
		if enabled, err := strconv.ParseBool(fileLogging); err == nil {
			if result.FileLogging == nil {
				result.FileLogging = cm.GetDefaultConfig().FileLogging
			}
			result.FileLogging.Enabled = enabled
			cm.logger.Debug("applied file logging override from environment", "value", enabled)
		} else {
			cm.logger.Warn("invalid environment variable", "name", EnvFileLogging, "value", fileLogging, "error", err)
		}
	}

	return &result
}

// ResolveVaultPath returns the database path, falling back to the XDG data
// directory when the config leaves it empty.
func (cm *ConfigManager) ResolveVaultPath(config *Config) string {
	if config.VaultPath != "" {
		return config.VaultPath
	}
	return cm.xdg.GetDataPath("vault.db")
}

// ResolveLogFilePath resolves the log file path using XDG cache directory when filename is empty
func (cm *ConfigManager) ResolveLogFilePath(filename string) string {
	if filename != "" {
		return filename
	}
	return filepath.Join(cm.xdg.GetCachePath("logs"), "evolvedvault.log")
}

// ParseLogLevel maps a config log level to a slog level. Empty means warn.
func ParseLogLevel(logLevel string) (slog.Level, error) {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "", "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelWarn, fmt.Errorf("invalid log level '%s', must be one of: %s",
			logLevel, strings.Join(validLogLevels, ", "))
	}
}

func isValidLogLevel(logLevel string) bool {
	for _, level := range validLogLevels {
		if strings.EqualFold(logLevel, level) {
			return true
		}
	}
	return false
}
