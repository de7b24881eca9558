package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const appName = "clipkeep"

// Config holds all application configuration
type Config struct {
	Database       DatabaseConfig `mapstructure:"database" yaml:"database"`
	Poll           PollConfig     `mapstructure:"poll" yaml:"poll"`
	Backup         BackupConfig   `mapstructure:"backup" yaml:"backup"`
	History        HistoryConfig  `mapstructure:"history" yaml:"history"`
	IgnorePatterns []string       `mapstructure:"ignore_patterns" yaml:"ignore_patterns"`
}

// DatabaseConfig locates the history database
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path" validate:"required"`
}

// PollConfig holds clipboard sampling settings
type PollConfig struct {
	IntervalMs     int `mapstructure:"interval_ms" yaml:"interval_ms" validate:"min=10,max=60000"`
	ReadTimeoutMs  int `mapstructure:"read_timeout_ms" yaml:"read_timeout_ms" validate:"min=10,max=60000"`
	DedupeWindowMs int `mapstructure:"dedupe_window_ms" yaml:"dedupe_window_ms" validate:"min=0"`
	MaxItemSizeMB  int `mapstructure:"max_item_size_mb" yaml:"max_item_size_mb" validate:"min=0"`
	ThumbnailPx    int `mapstructure:"thumbnail_px" yaml:"thumbnail_px" validate:"min=8,max=1024"`
}

// BackupConfig holds incremental backup settings
type BackupConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Path      string `mapstructure:"path" yaml:"path"` // Optional: next to the database if not specified
	IntervalS int    `mapstructure:"interval_s" yaml:"interval_s" validate:"min=0"`
}

// HistoryConfig holds retention limits. Zero disables a limit.
type HistoryConfig struct {
	MaxItems int `mapstructure:"max_items" yaml:"max_items" validate:"min=0"`
	MaxDays  int `mapstructure:"max_days" yaml:"max_days" validate:"min=0"`
}

func (p PollConfig) Interval() time.Duration {
	return time.Duration(p.IntervalMs) * time.Millisecond
}

func (p PollConfig) ReadTimeout() time.Duration {
	return time.Duration(p.ReadTimeoutMs) * time.Millisecond
}

func (p PollConfig) DedupeWindow() time.Duration {
	return time.Duration(p.DedupeWindowMs) * time.Millisecond
}

// MaxItemSize returns the payload limit in bytes; 0 means unlimited.
func (p PollConfig) MaxItemSize() int64 {
	return int64(p.MaxItemSizeMB) * 1024 * 1024
}

func (b BackupConfig) Interval() time.Duration {
	return time.Duration(b.IntervalS) * time.Second
}

func (h HistoryConfig) MaxAge() time.Duration {
	return time.Duration(h.MaxDays) * 24 * time.Hour
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: filepath.Join(getConfigDir(), "clipboard_history.db"),
		},
		Poll: PollConfig{
			IntervalMs:     100,
			ReadTimeoutMs:  500,
			DedupeWindowMs: 1000,
			MaxItemSizeMB:  50,
			ThumbnailPx:    64,
		},
		Backup: BackupConfig{
			Enabled:   true,
			IntervalS: 300,
		},
		History: HistoryConfig{
			MaxItems: 1000,
			MaxDays:  0,
		},
		IgnorePatterns: []string{
			"**/.git/**",
			"**/.DS_Store",
			"**/node_modules/**",
		},
	}
}

// Loader reads configuration and keeps watching its file for changes.
type Loader struct {
	v        *viper.Viper
	validate *validator.Validate

	mu  sync.Mutex
	cfg *Config
}

// NewLoader prepares a loader for configPath. An empty path searches the
// working directory and the user config directory for config.yaml.
func NewLoader(configPath string) *Loader {
	v := viper.New()

	// Set defaults
	defaults := DefaultConfig()
	v.SetDefault("database.path", defaults.Database.Path)
	v.SetDefault("poll.interval_ms", defaults.Poll.IntervalMs)
	v.SetDefault("poll.read_timeout_ms", defaults.Poll.ReadTimeoutMs)
	v.SetDefault("poll.dedupe_window_ms", defaults.Poll.DedupeWindowMs)
	v.SetDefault("poll.max_item_size_mb", defaults.Poll.MaxItemSizeMB)
	v.SetDefault("poll.thumbnail_px", defaults.Poll.ThumbnailPx)
	v.SetDefault("backup.enabled", defaults.Backup.Enabled)
	v.SetDefault("backup.path", defaults.Backup.Path)
	v.SetDefault("backup.interval_s", defaults.Backup.IntervalS)
	v.SetDefault("history.max_items", defaults.History.MaxItems)
	v.SetDefault("history.max_days", defaults.History.MaxDays)
	v.SetDefault("ignore_patterns", defaults.IgnorePatterns)

	// Configure config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Search for config in standard locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(getConfigDir())
	}

	// Enable environment variable substitution
	v.AutomaticEnv()
	v.SetEnvPrefix("CLIPKEEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return &Loader{v: v, validate: validator.New()}
}

// Load reads configuration from file and environment
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

// Load reads the file, if any, and returns the validated configuration.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is okay, defaults and environment apply
	}

	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cfg = cfg
	l.mu.Unlock()
	return cfg, nil
}

// ConfigFile returns the file in use, or "" when running on defaults.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Watch calls onChange with every valid configuration written to the file
// after Load. Invalid edits are logged and ignored.
func (l *Loader) Watch(onChange func(*Config)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}

	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			slog.Warn("ignoring invalid config change", "file", e.Name, "error", err)
			return
		}

		l.mu.Lock()
		l.cfg = cfg
		l.mu.Unlock()

		slog.Info("config reloaded", "file", e.Name)
		onChange(cfg)
	})
	l.v.WatchConfig()
}

// Current returns the last successfully loaded configuration.
func (l *Loader) Current() *Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cfg
}

func (l *Loader) decode() (*Config, error) {
	// Unmarshal into struct
	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Database.Path = expandPath(cfg.Database.Path)
	cfg.Backup.Path = expandPath(cfg.Backup.Path)

	// Derive the backup artifact from the database path if not specified
	if cfg.Backup.Path == "" && cfg.Database.Path != "" {
		cfg.Backup.Path = strings.TrimSuffix(cfg.Database.Path, filepath.Ext(cfg.Database.Path)) + ".json"
	}

	if err := l.validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// DefaultConfigPath is where init writes a new configuration file.
func DefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// getConfigDir returns the appropriate config directory for the OS
func getConfigDir() string {
	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, appName)
		}
		return filepath.Join(os.Getenv("USERPROFILE"), ".config", appName)
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			return filepath.Join(xdgConfig, appName)
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", appName)
	}
}

// GetStateDir returns the directory for storing state files
func GetStateDir() (string, error) {
	dir := getConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}
	return dir, nil
}

// expandPath expands ~ and environment variables in a path
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path[1:])
	}
	return os.ExpandEnv(path)
}
