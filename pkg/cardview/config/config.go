// Package config loads cardview configuration from file and environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// DeviceConfig addresses the storage peripheral.
type DeviceConfig struct {
	Path      string `mapstructure:"path"`
	BlockSize int    `mapstructure:"block_size"`
}

// ScanConfig sets the scanner cadence.
type ScanConfig struct {
	SettleDelay time.Duration `mapstructure:"settle_delay"`
	Interval    time.Duration `mapstructure:"interval"`
}

// HTTPConfig configures the embedded web server.
type HTTPConfig struct {
	Listen string `mapstructure:"listen"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level        string            `mapstructure:"level"`
	Path         string            `mapstructure:"path"`
	ConsoleLevel string            `mapstructure:"console_level"`
	Components   map[string]string `mapstructure:"components"`
}

// DaemonConfig configures the daemon process.
type DaemonConfig struct {
	BinaryPath string `mapstructure:"binary_path"` // Path to cardviewd (auto-discovered if empty)
	PIDPath    string `mapstructure:"pid_path"`
}

// Config represents the application configuration.
type Config struct {
	Device  DeviceConfig  `mapstructure:"device"`
	Scan    ScanConfig    `mapstructure:"scan"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Logging LoggingConfig `mapstructure:"logging"`
	Daemon  DaemonConfig  `mapstructure:"daemon"`

	// File is the config file the values were read from, empty when
	// running on defaults only.
	File string `mapstructure:"-"`
}

// Load loads configuration from file and environment variables.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/cardview/config.yaml
//   - $HOME/.config/cardview/config.yaml
//
// Environment variables are prefixed with CARDVIEW_
// (e.g. CARDVIEW_DEVICE_PATH).
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		v.AddConfigPath(filepath.Join(xdgConfigHome, "cardview"))
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}
	v.AddConfigPath(filepath.Join(homeDir, ".config", "cardview"))

	v.SetEnvPrefix("CARDVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is acceptable; defaults apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("device.path", DefaultDevicePath)
	v.SetDefault("device.block_size", DefaultBlockSize)

	v.SetDefault("scan.settle_delay", DefaultSettleDelay)
	v.SetDefault("scan.interval", DefaultInterval)

	v.SetDefault("http.listen", DefaultListen)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "") // Empty means the default XDG path
	v.SetDefault("logging.console_level", "")
	v.SetDefault("logging.components", map[string]string{
		"daemon":  "info",
		"scanner": "info",
		"driver":  "warn",
		"http":    "info",
	})

	v.SetDefault("daemon.pid_path", "")
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "cardview"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "cardview"), nil
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

// DataDir returns $XDG_DATA_HOME/cardview/ for pid and status files.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "cardview")
}

// StateDir returns $XDG_STATE_HOME/cardview/ for log files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "cardview")
}

// DefaultPIDPath returns the default PID file path.
func DefaultPIDPath() string {
	return filepath.Join(DataDir(), "cardviewd.pid")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	if err := os.MkdirAll(DataDir(), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
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

	if _, err := os.Stat(configPath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to check config file: %w", err)
	}

	defaultConfig := fmt.Sprintf(`# Cardview Configuration

# Storage device to scan. Point this at the card reader's block device,
# or at a FAT-formatted image file for testing.
device:
  path: %s
  block_size: %d

# Scan cadence. The settle delay runs once at startup; the interval is
# fixed regardless of scan outcome.
scan:
  settle_delay: %s
  interval: %s

# Embedded web server.
http:
  listen: "%s"

# Logging configuration
logging:
  # Log level: debug, info, warn, error
  level: info
  # Log file path (empty means use default: $XDG_STATE_HOME/cardview/cardview.log)
  path: ""
  # Mirror logs to stderr at this level (empty disables)
  console_level: ""
  # Per-component log levels
  components:
    daemon: info
    scanner: info
    driver: warn
    http: info

# Daemon configuration
daemon:
  # PID file path (empty means use default: $XDG_DATA_HOME/cardview/cardviewd.pid)
  pid_path: ""
`, DefaultDevicePath, DefaultBlockSize, DefaultSettleDelay, DefaultInterval, DefaultListen)

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}

	return nil
}
