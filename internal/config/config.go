package config

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/Ning0612/adbexplorer/internal/domain"
	"github.com/Ning0612/adbexplorer/internal/logger"
)

// Config represents the complete configuration for adbexplorer
type Config struct {
	Bridge   BridgeConfig   `mapstructure:"bridge"`
	Safety   SafetyConfig   `mapstructure:"safety"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Transfer TransferConfig `mapstructure:"transfer"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Data     DataConfig     `mapstructure:"data"`
}

// BridgeConfig locates the device bridge executable
type BridgeConfig struct {
	Path    string        `mapstructure:"path"`
	Serial  string        `mapstructure:"serial"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SafetyConfig guards destructive operations
type SafetyConfig struct {
	SafeRoot             string `mapstructure:"safe_root"`
	AllowUnsafe          bool   `mapstructure:"allow_unsafe"`
	WhatIf               bool   `mapstructure:"what_if"`
	LargeDeleteThreshold int64  `mapstructure:"large_delete_threshold"`
}

// CacheConfig bounds the directory listing cache
type CacheConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// TransferConfig tunes the transfer engine
type TransferConfig struct {
	// TempDir holds captured transfer output; empty uses the OS temp dir
	TempDir string `mapstructure:"temp_dir"`
}

// LoggingConfig configures the logger package
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// DataConfig locates persisted application data
type DataConfig struct {
	Dir     string `mapstructure:"dir"`
	History bool   `mapstructure:"history"`
}

// Validate checks if the configuration is complete and consistent
func (c *Config) Validate() error {
	if c.Bridge.Path == "" {
		return fmt.Errorf("%w: bridge path cannot be empty", domain.ErrConfigInvalid)
	}
	if c.Bridge.Timeout <= 0 {
		return fmt.Errorf("%w: bridge timeout must be positive, got %s", domain.ErrConfigInvalid, c.Bridge.Timeout)
	}
	if c.Cache.Capacity < 1 {
		return fmt.Errorf("%w: cache capacity must be at least 1, got %d", domain.ErrConfigInvalid, c.Cache.Capacity)
	}
	if !path.IsAbs(c.Safety.SafeRoot) {
		return fmt.Errorf("%w: safe root must be an absolute remote path: %q", domain.ErrConfigInvalid, c.Safety.SafeRoot)
	}
	if c.Safety.LargeDeleteThreshold < 0 {
		return fmt.Errorf("%w: large delete threshold cannot be negative", domain.ErrConfigInvalid)
	}
	if !logger.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("%w: unknown log level: %s", domain.ErrConfigInvalid, c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format: %s", domain.ErrConfigInvalid, c.Logging.Format)
	}
	return nil
}

// Policy projects the safety and timing settings consumed by the session
func (c *Config) Policy() domain.Policy {
	return domain.Policy{
		SafeRoot:             path.Clean(c.Safety.SafeRoot),
		AllowUnsafe:          c.Safety.AllowUnsafe,
		DefaultTimeout:       c.Bridge.Timeout,
		WhatIf:               c.Safety.WhatIf,
		LargeDeleteThreshold: c.Safety.LargeDeleteThreshold,
	}
}

// LoggerConfig projects the logging section. Diagnostics always go to stderr;
// a rotated file is added when logging.file is set.
func (c *Config) LoggerConfig(verbose bool) logger.Config {
	level := logger.ParseLevel(c.Logging.Level)
	if verbose {
		level = logger.LevelDebug
	}
	cfg := logger.Config{
		Level:   level,
		Format:  logger.ParseFormat(c.Logging.Format),
		Outputs: []logger.OutputConfig{{Type: logger.OutputStderr}},
	}
	if c.Logging.File != "" {
		cfg.Outputs = append(cfg.Outputs, logger.OutputConfig{Type: logger.OutputFile})
		cfg.File = logger.FileConfig{
			Enabled:    true,
			Path:       ExpandPath(c.Logging.File),
			MaxSizeMB:  c.Logging.MaxSizeMB,
			MaxAgeDays: c.Logging.MaxAgeDays,
			MaxBackups: c.Logging.MaxBackups,
			Compress:   c.Logging.Compress,
		}
	}
	return cfg
}

// HistoryPath returns the SQLite database path for transfer history
func (c *Config) HistoryPath() string {
	return filepath.Join(ExpandPath(c.Data.Dir), "history.db")
}

// LockDir returns the directory holding per-device lock files
func (c *Config) LockDir() string {
	return filepath.Join(ExpandPath(c.Data.Dir), "locks")
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	// Expand ~ to home directory
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			if len(path) > 1 && (path[1] == '/' || path[1] == filepath.Separator) {
				path = filepath.Join(home, path[2:])
			} else if len(path) == 1 {
				path = home
			}
		}
	}
	// Expand environment variables
	path = os.ExpandEnv(path)
	return filepath.Clean(path)
}
